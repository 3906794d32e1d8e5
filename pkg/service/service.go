// Package service hosts a poker table on the transport fabric. A
// TableService owns one transport endpoint and one game engine; inbound
// StartHand and PlayerAction commands drive the engine, and the engine's
// UI callbacks become broadcast events. Correlation ids tie every event
// to the command that caused it.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/decred/slog"
	"github.com/prometheus/procfs"

	"github.com/vctt94/pokerfabric/pkg/message"
	"github.com/vctt94/pokerfabric/pkg/poker"
	"github.com/vctt94/pokerfabric/pkg/protocol"
	"github.com/vctt94/pokerfabric/pkg/transport"
)

const (
	// DefaultStartingChips seats players who did not bring a stack size.
	DefaultStartingChips = 1000

	// DefaultHeartbeatInterval paces the liveness broadcast.
	DefaultHeartbeatInterval = 30 * time.Second

	// KindTable identifies this service in registration announcements.
	KindTable = "table"
)

// Config describes one table service.
type Config struct {
	// ID is the service's fabric address. Required.
	ID string

	// TableID names the table in event payloads. Defaults to ID.
	TableID string

	// Registry is the fabric the service's endpoint joins. Required.
	Registry *transport.Registry

	// Players lists the seats in order. Each name doubles as the player's
	// fabric address for targeted sends. At least two.
	Players []string

	// StartingChips is each seat's starting stack.
	StartingChips int64

	// Table rules; zero values fall back to the poker package defaults.
	SmallBlind    int64
	BigBlind      int64
	MaxBet        int64
	MaxTableLimit int64

	// Seed makes the deck deterministic when non-zero.
	Seed int64

	AckTimeout        time.Duration
	HeartbeatInterval time.Duration
	Log               slog.Logger
}

// outboxEntry is one queued outbound event. An empty dest broadcasts.
type outboxEntry struct {
	dest string
	msg  *message.Message
}

// TableService runs one table. The mutex makes it the engine's single
// logical owner: command handlers hold it across engine calls, and the
// UI callbacks fired inside those calls queue events on the outbox. The
// queue is flushed only after the mutex is released, so a broadcast never
// waits on a sibling handler that needs the same mutex to answer.
type TableService struct {
	cfg Config
	log slog.Logger

	t    *transport.Transport
	game *poker.Game

	mu      sync.Mutex
	inbound *message.Message // command being handled; stamps correlation ids
	outbox  []outboxEntry

	peers mapset.Set[string]

	proc    *procfs.Proc // nil when /proc is unavailable
	started time.Time
	hbSeq   atomic.Uint64

	quit      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a table service, seats the configured players and registers
// with the registry's shutdown coordinator at PriorityService. The service
// stays quiet until Start.
func New(cfg Config) (*TableService, error) {
	if cfg.ID == "" {
		return nil, errors.New("service: id is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("service: registry is required")
	}
	if len(cfg.Players) < 2 {
		return nil, fmt.Errorf("service %s: %w", cfg.ID, poker.ErrTooFewPlayers)
	}
	if cfg.TableID == "" {
		cfg.TableID = cfg.ID
	}
	if cfg.StartingChips <= 0 {
		cfg.StartingChips = DefaultStartingChips
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.Log == nil {
		cfg.Log = slog.Disabled
	}

	t, err := transport.NewTransport(cfg.Registry, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("service %s: %w", cfg.ID, err)
	}
	if err := t.Initialize(transport.Config{
		ServiceName: cfg.ID,
		AckTimeout:  cfg.AckTimeout,
		Log:         cfg.Log,
	}); err != nil {
		t.Close()
		return nil, err
	}

	s := &TableService{
		cfg:   cfg,
		log:   cfg.Log,
		t:     t,
		peers: mapset.NewSet[string](),
		quit:  make(chan struct{}),
	}
	if p, err := procfs.Self(); err == nil {
		s.proc = &p
	}

	s.game = poker.NewGame(poker.GameConfig{
		SmallBlind:    cfg.SmallBlind,
		BigBlind:      cfg.BigBlind,
		MaxBet:        cfg.MaxBet,
		MaxTableLimit: cfg.MaxTableLimit,
		Seed:          cfg.Seed,
		UI:            s,
		Log:           cfg.Log,
	})
	if err := s.game.StartGame(cfg.Players, cfg.StartingChips); err != nil {
		t.Close()
		return nil, fmt.Errorf("service %s: seat players: %w", cfg.ID, err)
	}

	s.subscribe()
	cfg.Registry.Coordinator().Register("service:"+cfg.ID, transport.PriorityService,
		func(context.Context) { s.Close() })
	return s, nil
}

// ID returns the service's fabric address.
func (s *TableService) ID() string { return s.cfg.ID }

// TableID returns the table name carried in event payloads.
func (s *TableService) TableID() string { return s.cfg.TableID }

// Start brings the endpoint up, announces the service and begins the
// heartbeat loop. Notices queued while seating players (such as a capped
// stack warning) go out now.
func (s *TableService) Start() error {
	if err := s.t.Start(); err != nil {
		return err
	}
	s.started = time.Now()

	s.mu.Lock()
	out := s.takeOutbox()
	s.mu.Unlock()
	s.flush(context.Background(), out)

	s.announce()
	s.wg.Add(1)
	go s.heartbeatLoop()

	s.log.Infof("table %s serving %d players, blinds %d/%d",
		s.cfg.TableID, len(s.cfg.Players), s.game.GetConfig().SmallBlind, s.game.GetConfig().BigBlind)
	return nil
}

// Close stops the heartbeat and disposes the endpoint. Idempotent; the
// shutdown coordinator calls it at PriorityService so the table quiesces
// before the fabric's transports go away.
func (s *TableService) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		s.wg.Wait()
		s.t.Stop()
		s.t.Close()
		s.cfg.Registry.Coordinator().Deregister("service:" + s.cfg.ID)
		s.log.Infof("table %s closed", s.cfg.TableID)
	})
}

// KnownServices returns the fabric ids of sibling services seen through
// their registration or heartbeat traffic, sorted.
func (s *TableService) KnownServices() []string {
	ids := s.peers.ToSlice()
	sort.Strings(ids)
	return ids
}

// Snapshot returns the current public table state.
func (s *TableService) Snapshot() protocol.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectGameState(s.game)
}

// poker.UI implementation. The engine invokes these while a command
// handler holds the mutex; they only queue, never send.

// ShowMessage queues a table notice broadcast.
func (s *TableService) ShowMessage(text string) {
	s.queue("", protocol.TypeShowMessage,
		protocol.ShowMessage{TableID: s.cfg.TableID, Text: text}, false)
}

// UpdateGameState queues a public snapshot broadcast.
func (s *TableService) UpdateGameState(g *poker.Game) {
	s.queue("", protocol.TypeGameStateUpdated, s.collectGameState(g), false)
}

// GetPlayerAction queues a turn prompt. The answer arrives as a later
// PlayerAction command, never synchronously, so the engine always defers
// here and the prompt is the last event of the flush.
func (s *TableService) GetPlayerAction(p *poker.Player, g *poker.Game) {
	cfg := g.GetConfig()
	s.queue("", protocol.TypePlayerTurn, protocol.PlayerTurn{
		TableID:    s.cfg.TableID,
		PlayerID:   p.ID,
		Name:       p.Name,
		Seat:       s.seatOf(g, p.ID),
		Pot:        g.GetPot(),
		CurrentBet: g.GetCurrentBet(),
		PlayerBet:  p.CurrentBet,
		Chips:      p.Chips,
		ToCall:     g.GetCurrentBet() - p.CurrentBet,
		MinRaise:   g.GetCurrentBet() + cfg.BigBlind,
		MaxRaise:   cfg.MaxBet,
	}, false)
}

func (s *TableService) seatOf(g *poker.Game, playerID string) int {
	for i, p := range g.GetPlayers() {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// newEntry builds one outbound event, correlated to the command being
// handled when there is one.
func (s *TableService) newEntry(dest, msgType string, payload any, requireAck bool) (outboxEntry, bool) {
	m, err := s.t.NewMessage(msgType).
		CorrelatedTo(s.inbound).
		RequireAck(requireAck).
		JSON(payload).
		Build()
	if err != nil {
		s.log.Errorf("build %s event: %v", msgType, err)
		return outboxEntry{}, false
	}
	return outboxEntry{dest: dest, msg: m}, true
}

// queue appends one event to the outbox. Callers hold the mutex.
func (s *TableService) queue(dest, msgType string, payload any, requireAck bool) {
	if e, ok := s.newEntry(dest, msgType, payload, requireAck); ok {
		s.outbox = append(s.outbox, e)
	}
}

// takeOutbox drains the queue. Callers hold the mutex.
func (s *TableService) takeOutbox() []outboxEntry {
	out := s.outbox
	s.outbox = nil
	return out
}

// flush delivers queued events in order. It must run with the mutex
// released: broadcasts wait for every sibling handler to finish, and some
// of those handlers answer with commands that need the mutex.
func (s *TableService) flush(ctx context.Context, out []outboxEntry) {
	for _, e := range out {
		if e.dest == "" {
			if !s.t.Broadcast(ctx, e.msg) {
				s.log.Warnf("broadcast %s failed", e.msg.Type())
			}
			continue
		}
		if !s.t.Send(ctx, e.dest, e.msg) {
			s.log.Warnf("send %s to %s failed", e.msg.Type(), e.dest)
		}
	}
}
