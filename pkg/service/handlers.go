package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/davecgh/go-spew/spew"

	"github.com/vctt94/pokerfabric/pkg/message"
	"github.com/vctt94/pokerfabric/pkg/poker"
	"github.com/vctt94/pokerfabric/pkg/protocol"
)

// subscribe wires the service's message handlers. Unknown message types
// never reach us; the transport routes by type.
func (s *TableService) subscribe() {
	s.t.Subscribe(protocol.TypeStartHand, s.handleStartHand)
	s.t.Subscribe(protocol.TypePlayerAction, s.handlePlayerAction)
	s.t.Subscribe(message.TypeDebug, s.handleDebug)
	s.t.Subscribe(message.TypeServiceRegistration, s.handlePeerSeen)
	s.t.Subscribe(message.TypeHeartbeat, s.handlePeerSeen)
}

// handleStartHand begins the next hand. Flush order: HandStarted, each
// seat's hole cards (targeted, acked), then whatever the betting loop
// queued, normally the first snapshot and turn prompt.
func (s *TableService) handleStartHand(ctx context.Context, msg *message.Message) error {
	s.mu.Lock()
	s.inbound = msg

	if err := s.game.StartHand(); err != nil {
		s.inbound = nil
		out := s.takeOutbox()
		s.mu.Unlock()
		s.flush(ctx, out)
		code := protocol.ErrCodeHandInProgress
		if errors.Is(err, poker.ErrTooFewPlayers) {
			code = protocol.ErrCodeTooFewPlayers
		}
		s.replyError(ctx, msg, code, err.Error())
		return fmt.Errorf("start hand: %w", err)
	}

	handNum := s.game.GetHandCount()
	pre := make([]outboxEntry, 0, len(s.cfg.Players)+1)
	if e, ok := s.newEntry("", protocol.TypeHandStarted, s.buildHandStarted(), false); ok {
		pre = append(pre, e)
	}
	for _, p := range s.game.GetPlayers() {
		if len(p.HoleCards) != 2 {
			continue // sitting out
		}
		hc := protocol.HoleCards{
			TableID:  s.cfg.TableID,
			HandNum:  handNum,
			PlayerID: p.ID,
			Cards:    append([]poker.Card(nil), p.HoleCards...),
		}
		if e, ok := s.newEntry(p.ID, protocol.TypeHoleCards, hc, true); ok {
			pre = append(pre, e)
		}
	}
	s.outbox = append(pre, s.outbox...)

	if s.game.GetPhase() == poker.PhaseHandComplete {
		// Blinds put everyone all-in and the board ran out already.
		s.queueHandComplete()
	}

	s.inbound = nil
	out := s.takeOutbox()
	s.mu.Unlock()

	s.flush(ctx, out)
	s.log.Debugf("hand %d started by %s", handNum, msg.SenderID())
	return nil
}

// handlePlayerAction applies one betting decision. Violations leave the
// engine untouched: the sender gets a correlated Error event and the
// handler error turns the command's ack negative.
func (s *TableService) handlePlayerAction(ctx context.Context, msg *message.Message) error {
	var pa protocol.PlayerAction
	if !msg.Bind(&pa) {
		s.replyError(ctx, msg, protocol.ErrCodeBadPayload, "malformed PlayerAction payload")
		return errors.New("malformed PlayerAction payload")
	}
	if pa.PlayerID == "" {
		pa.PlayerID = msg.SenderID()
	}
	if pa.PlayerID != msg.SenderID() {
		s.replyError(ctx, msg, protocol.ErrCodeInvalidAction, "players act only for themselves")
		return fmt.Errorf("sender %s acting as %s", msg.SenderID(), pa.PlayerID)
	}
	action, err := poker.ParseAction(pa.Action)
	if err != nil {
		s.replyError(ctx, msg, protocol.ErrCodeInvalidAction, err.Error())
		return err
	}

	s.mu.Lock()
	s.inbound = msg

	var code string
	var herr error
	current := s.game.GetCurrentPlayer()
	switch {
	case current == nil:
		code, herr = protocol.ErrCodeNoHand, poker.ErrNoBettingRound
	case current.ID != pa.PlayerID:
		code = protocol.ErrCodeOutOfTurn
		herr = fmt.Errorf("not %s's turn, waiting on %s", pa.PlayerID, current.Name)
	default:
		if err := s.game.ProcessPlayerAction(action, pa.Amount); err != nil {
			code, herr = protocol.ErrCodeInvalidAction, err
		}
	}
	if herr == nil && s.game.GetPhase() == poker.PhaseHandComplete {
		s.queueHandComplete()
	}

	s.inbound = nil
	out := s.takeOutbox()
	s.mu.Unlock()

	s.flush(ctx, out)
	if herr != nil {
		s.replyError(ctx, msg, code, herr.Error())
		return fmt.Errorf("action %s by %s: %w", pa.Action, pa.PlayerID, herr)
	}
	return nil
}

// debugDump is the state bundle rendered for Debug requests.
type debugDump struct {
	ServiceID string
	Peers     []string
	Delivered uint64
	Failures  uint64
	State     protocol.GameState
}

// handleDebug answers a Debug request with a correlated Response carrying
// a spew dump of the table's state, addressed to the requester.
func (s *TableService) handleDebug(ctx context.Context, msg *message.Message) error {
	dest := msg.ReplyTo()
	if dest == "" {
		dest = msg.SenderID()
	}
	if dest == "" {
		return errors.New("debug request carries no return address")
	}

	s.mu.Lock()
	snap := s.collectGameState(s.game)
	s.mu.Unlock()

	dump := debugDump{
		ServiceID: s.cfg.ID,
		Peers:     s.KnownServices(),
		State:     snap,
	}
	dump.Delivered, dump.Failures = s.t.Stats()

	m, err := s.t.NewMessage(message.TypeResponse).
		CorrelatedTo(msg).
		ContentType("text/plain").
		Content([]byte(spew.Sdump(dump))).
		Build()
	if err != nil {
		return fmt.Errorf("build debug response: %w", err)
	}
	if !s.t.Send(ctx, dest, m) {
		return fmt.Errorf("debug response to %s failed", dest)
	}
	return nil
}

// handlePeerSeen records fabric siblings from their registration and
// heartbeat traffic.
func (s *TableService) handlePeerSeen(_ context.Context, msg *message.Message) error {
	id := msg.SenderID()
	switch msg.Type() {
	case message.TypeServiceRegistration:
		var info protocol.ServiceInfo
		if msg.Bind(&info) && info.ServiceID != "" {
			id = info.ServiceID
		}
	case message.TypeHeartbeat:
		var hb protocol.Heartbeat
		if msg.Bind(&hb) && hb.ServiceID != "" {
			id = hb.ServiceID
		}
	}
	if id == "" || id == s.cfg.ID {
		return nil
	}
	if s.peers.Add(id) {
		s.log.Debugf("peer %s seen on the fabric", id)
	}
	return nil
}

// replyError sends a correlated Error event back to the offending
// command's sender. The negative ack travels separately, through the
// handler's error return.
func (s *TableService) replyError(ctx context.Context, cmd *message.Message, code, text string) {
	if cmd.SenderID() == "" {
		return
	}
	m, err := s.t.NewMessage(message.TypeError).
		CorrelatedTo(cmd).
		JSON(protocol.ErrorReply{Code: code, Message: text}).
		Build()
	if err != nil {
		s.log.Errorf("build error reply: %v", err)
		return
	}
	if !s.t.Send(ctx, cmd.SenderID(), m) {
		s.log.Warnf("error reply to %s failed", cmd.SenderID())
	}
}
