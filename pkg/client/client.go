// Package client is the player side of a poker table on the transport
// fabric: one endpoint subscribed to the table's events, typed
// notification dispatch, a cached view of the latest public state, and
// acked command senders. A tea.Msg feed mirrors every event for terminal
// UIs.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/decred/slog"

	"github.com/vctt94/pokerfabric/pkg/message"
	"github.com/vctt94/pokerfabric/pkg/poker"
	"github.com/vctt94/pokerfabric/pkg/protocol"
	"github.com/vctt94/pokerfabric/pkg/transport"
)

// ErrCommandRejected is returned when a command's acknowledgement came
// back negative or not at all.
var ErrCommandRejected = errors.New("command rejected or timed out")

// Message types for UI communication.
type (
	HandStartedMsg  protocol.HandStarted
	HoleCardsMsg    protocol.HoleCards
	GameStateMsg    protocol.GameState
	PlayerTurnMsg   protocol.PlayerTurn
	HandCompleteMsg protocol.HandComplete
	TableMessageMsg protocol.ShowMessage
	ErrorMsg        protocol.ErrorReply
)

// Config describes one player's connection to a table.
type Config struct {
	// ID is the player's fabric address; it must match a seat name at the
	// table. Required.
	ID string

	// TableID is the table service's fabric address. Required.
	TableID string

	// Registry is the fabric to join. Required.
	Registry *transport.Registry

	// Notifications receives the typed event callbacks. Required.
	Notifications *NotificationManager

	AckTimeout time.Duration
	Log        slog.Logger
}

// Client represents one seated player with notification handling.
type Client struct {
	sync.RWMutex
	ID      string
	tableID string

	t     *transport.Transport
	ntfns *NotificationManager
	log   slog.Logger

	UpdatesCh chan tea.Msg
	ErrorsCh  chan error

	state     *protocol.GameState
	lastTurn  *protocol.PlayerTurn
	holeCards []poker.Card
	handNum   int
}

// NewClient joins the fabric and starts listening for the table's events.
func NewClient(cfg Config) (*Client, error) {
	if cfg.ID == "" {
		return nil, errors.New("client: id is required")
	}
	if cfg.TableID == "" {
		return nil, errors.New("client: table id is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("client: registry is required")
	}
	if cfg.Notifications == nil {
		return nil, errors.New("client: notification manager cannot be nil")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Disabled
	}

	t, err := transport.NewTransport(cfg.Registry, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("client %s: %w", cfg.ID, err)
	}
	if err := t.Initialize(transport.Config{
		ServiceName: cfg.ID,
		AckTimeout:  cfg.AckTimeout,
		Log:         cfg.Log,
	}); err != nil {
		t.Close()
		return nil, err
	}

	c := &Client{
		ID:        cfg.ID,
		tableID:   cfg.TableID,
		t:         t,
		ntfns:     cfg.Notifications,
		log:       cfg.Log,
		UpdatesCh: make(chan tea.Msg, 100),
		ErrorsCh:  make(chan error, 10),
	}
	c.subscribe()

	if err := t.Start(); err != nil {
		t.Close()
		return nil, err
	}
	c.log.Debugf("client %s listening for table %s", c.ID, c.tableID)
	return c, nil
}

// TableID returns the table this client plays at.
func (c *Client) TableID() string {
	return c.tableID
}

// Close leaves the fabric. Idempotent.
func (c *Client) Close() {
	c.t.Stop()
	c.t.Close()
}

// GameState returns the latest public snapshot and whether one arrived
// yet. The player's own seat is marked is_current_user.
func (c *Client) GameState() (protocol.GameState, bool) {
	c.RLock()
	defer c.RUnlock()
	if c.state == nil {
		return protocol.GameState{}, false
	}
	return *c.state, true
}

// HoleCards returns this player's cards for the current hand.
func (c *Client) HoleCards() []poker.Card {
	c.RLock()
	defer c.RUnlock()
	return append([]poker.Card(nil), c.holeCards...)
}

// CurrentTurn returns the latest turn prompt and whether it addresses
// this player right now.
func (c *Client) CurrentTurn() (protocol.PlayerTurn, bool) {
	c.RLock()
	defer c.RUnlock()
	if c.lastTurn == nil {
		return protocol.PlayerTurn{}, false
	}
	mine := c.lastTurn.PlayerID == c.ID &&
		c.state != nil && c.state.CurrentPlayerID == c.ID
	return *c.lastTurn, mine
}

// StartHand asks the table to begin the next hand.
func (c *Client) StartHand(ctx context.Context) error {
	return c.send(ctx, protocol.TypeStartHand, protocol.StartHand{TableID: c.tableID})
}

// Act sends one betting decision. Amount is the bet-to total and is only
// meaningful for raises.
func (c *Client) Act(ctx context.Context, action poker.Action, amount int64) error {
	return c.send(ctx, protocol.TypePlayerAction, protocol.PlayerAction{
		PlayerID: c.ID,
		Action:   action.String(),
		Amount:   amount,
	})
}

// Fold folds the current hand.
func (c *Client) Fold(ctx context.Context) error { return c.Act(ctx, poker.ActionFold, 0) }

// Check passes when no bet is live.
func (c *Client) Check(ctx context.Context) error { return c.Act(ctx, poker.ActionCheck, 0) }

// Call matches the live bet.
func (c *Client) Call(ctx context.Context) error { return c.Act(ctx, poker.ActionCall, 0) }

// Raise raises the live bet to amount.
func (c *Client) Raise(ctx context.Context, amount int64) error {
	return c.Act(ctx, poker.ActionRaise, amount)
}

// send delivers one acked command to the table. A negative or missing
// acknowledgement surfaces as ErrCommandRejected; the reason, if any,
// arrives separately through the Error notification.
func (c *Client) send(ctx context.Context, msgType string, payload any) error {
	msg, err := c.t.NewMessage(msgType).RequireAck(true).JSON(payload).Build()
	if err != nil {
		return fmt.Errorf("build %s: %w", msgType, err)
	}
	if !c.t.Send(ctx, c.tableID, msg) {
		return fmt.Errorf("%s: %w", msgType, ErrCommandRejected)
	}
	return nil
}

// subscribe wires the table's event types into the caches, the
// notification manager and the UI feed.
func (c *Client) subscribe() {
	c.t.Subscribe(protocol.TypeHandStarted, c.handleHandStarted)
	c.t.Subscribe(protocol.TypeHoleCards, c.handleHoleCards)
	c.t.Subscribe(protocol.TypeGameStateUpdated, c.handleGameState)
	c.t.Subscribe(protocol.TypePlayerTurn, c.handlePlayerTurn)
	c.t.Subscribe(protocol.TypeHandComplete, c.handleHandComplete)
	c.t.Subscribe(protocol.TypeShowMessage, c.handleTableMessage)
	c.t.Subscribe(message.TypeError, c.handleError)
}

func (c *Client) handleHandStarted(_ context.Context, msg *message.Message) error {
	var hs protocol.HandStarted
	if !msg.Bind(&hs) {
		return errors.New("malformed HandStarted payload")
	}
	c.Lock()
	c.handNum = hs.HandNum
	c.holeCards = c.holeCards[:0]
	c.lastTurn = nil
	c.Unlock()

	c.ntfns.notifyHandStarted(hs, msg.Timestamp())
	c.pushUpdate(HandStartedMsg(hs))
	return nil
}

func (c *Client) handleHoleCards(_ context.Context, msg *message.Message) error {
	var hc protocol.HoleCards
	if !msg.Bind(&hc) {
		return errors.New("malformed HoleCards payload")
	}
	if hc.PlayerID != c.ID {
		// Deals are targeted; anything else is misrouted.
		return fmt.Errorf("hole cards for %s delivered to %s", hc.PlayerID, c.ID)
	}
	c.Lock()
	c.holeCards = append(c.holeCards[:0], hc.Cards...)
	c.handNum = hc.HandNum
	c.Unlock()

	c.ntfns.notifyHoleCards(hc, msg.Timestamp())
	c.pushUpdate(HoleCardsMsg(hc))
	return nil
}

func (c *Client) handleGameState(_ context.Context, msg *message.Message) error {
	var gs protocol.GameState
	if !msg.Bind(&gs) {
		return errors.New("malformed GameState payload")
	}
	for i := range gs.Players {
		gs.Players[i].IsCurrentUser = gs.Players[i].ID == c.ID
	}
	c.Lock()
	c.state = &gs
	c.Unlock()

	c.ntfns.notifyGameStateUpdated(gs, msg.Timestamp())
	c.pushUpdate(GameStateMsg(gs))
	return nil
}

func (c *Client) handlePlayerTurn(_ context.Context, msg *message.Message) error {
	var pt protocol.PlayerTurn
	if !msg.Bind(&pt) {
		return errors.New("malformed PlayerTurn payload")
	}
	c.Lock()
	c.lastTurn = &pt
	c.Unlock()

	c.ntfns.notifyPlayerTurn(pt, msg.Timestamp())
	c.pushUpdate(PlayerTurnMsg(pt))
	return nil
}

func (c *Client) handleHandComplete(_ context.Context, msg *message.Message) error {
	var hc protocol.HandComplete
	if !msg.Bind(&hc) {
		return errors.New("malformed HandComplete payload")
	}
	c.Lock()
	c.lastTurn = nil
	c.Unlock()

	c.ntfns.notifyHandComplete(hc, msg.Timestamp())
	c.pushUpdate(HandCompleteMsg(hc))
	return nil
}

func (c *Client) handleTableMessage(_ context.Context, msg *message.Message) error {
	var sm protocol.ShowMessage
	if !msg.Bind(&sm) {
		return errors.New("malformed ShowMessage payload")
	}
	c.ntfns.notifyTableMessage(sm, msg.Timestamp())
	c.pushUpdate(TableMessageMsg(sm))
	return nil
}

func (c *Client) handleError(_ context.Context, msg *message.Message) error {
	var er protocol.ErrorReply
	if !msg.Bind(&er) {
		er = protocol.ErrorReply{Code: "unknown", Message: "unparseable error reply"}
	}
	c.log.Warnf("table rejected a command: %s (%s)", er.Message, er.Code)
	c.ntfns.notifyError(er, msg.Timestamp())
	c.pushUpdate(ErrorMsg(er))
	select {
	case c.ErrorsCh <- fmt.Errorf("%s: %s", er.Code, er.Message):
	default:
	}
	return nil
}

// pushUpdate forwards one event to the UI feed, dropping it when the
// consumer lags.
func (c *Client) pushUpdate(msg tea.Msg) {
	select {
	case c.UpdatesCh <- msg:
	default:
		c.log.Warnf("updates channel full, dropping %T", msg)
	}
}
