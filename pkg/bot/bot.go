// Package bot seats an automated player at a table. A Bot is an ordinary
// fabric client with a decision loop on top: it watches for its own turn
// prompts, estimates hand strength from its cards and the board, and
// answers with acked actions. One worker goroutine serializes decisions
// so prompts are always answered in arrival order.
package bot

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/slog"

	"github.com/vctt94/pokerfabric/pkg/client"
	"github.com/vctt94/pokerfabric/pkg/poker"
	"github.com/vctt94/pokerfabric/pkg/protocol"
	"github.com/vctt94/pokerfabric/pkg/transport"
)

// DefaultAggression is used when the config leaves the knob unset.
const DefaultAggression = 0.5

// Decision thresholds on the 0..1 strength scale.
const (
	raiseStrength = 0.62
	callStrength  = 0.30
)

// Config describes one automated seat.
type Config struct {
	// ID is the bot's fabric address and seat name. Required.
	ID string

	// TableID is the table service to play at. Required.
	TableID string

	// Registry is the fabric to join. Required.
	Registry *transport.Registry

	// Aggression in (0,1] shifts the bot toward raising and calling.
	// Zero means DefaultAggression.
	Aggression float64

	// Seed makes the bot's mixed decisions reproducible when non-zero.
	Seed int64

	// ActDelay paces decisions for live demos. Zero acts immediately.
	ActDelay time.Duration

	AckTimeout time.Duration
	Log        slog.Logger
}

// Bot plays one seat without supervision.
type Bot struct {
	ID  string
	cfg Config
	log slog.Logger

	c   *client.Client
	rng *rand.Rand

	turns chan protocol.PlayerTurn

	handsSeen atomic.Int64
	actions   atomic.Int64

	quit      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New seats the bot and starts its decision worker.
func New(cfg Config) (*Bot, error) {
	if cfg.ID == "" {
		return nil, errors.New("bot: id is required")
	}
	if cfg.Log == nil {
		cfg.Log = slog.Disabled
	}
	if cfg.Aggression <= 0 {
		cfg.Aggression = DefaultAggression
	}
	if cfg.Aggression > 1 {
		cfg.Aggression = 1
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	b := &Bot{
		ID:  cfg.ID,
		cfg: cfg,
		log: cfg.Log,
		rng: rand.New(rand.NewSource(seed)),
		// The engine never prompts the same seat twice without an answer,
		// so one slot of headroom is already generous.
		turns: make(chan protocol.PlayerTurn, 4),
		quit:  make(chan struct{}),
	}

	ntfns := client.NewNotificationManager()
	ntfns.RegisterSync(client.OnPlayerTurnNtfn(func(pt protocol.PlayerTurn, _ time.Time) {
		if pt.PlayerID != b.ID {
			return
		}
		select {
		case b.turns <- pt:
		default:
			b.log.Warnf("bot %s: turn prompt queue full, dropping prompt", b.ID)
		}
	}))
	ntfns.RegisterSync(client.OnHandStartedNtfn(func(hs protocol.HandStarted, _ time.Time) {
		b.handsSeen.Add(1)
	}))
	ntfns.RegisterSync(client.OnHandCompleteNtfn(func(hc protocol.HandComplete, _ time.Time) {
		for _, w := range hc.Winners {
			b.log.Debugf("bot %s: hand %d went to %s (%d chips)", b.ID, hc.HandNum, w.PlayerID, w.Share)
		}
	}))

	cl, err := client.NewClient(client.Config{
		ID:            cfg.ID,
		TableID:       cfg.TableID,
		Registry:      cfg.Registry,
		Notifications: ntfns,
		AckTimeout:    cfg.AckTimeout,
		Log:           cfg.Log,
	})
	if err != nil {
		return nil, fmt.Errorf("bot %s: %w", cfg.ID, err)
	}
	b.c = cl

	b.wg.Add(2)
	go b.actLoop()
	go b.drainUpdates()
	return b, nil
}

// Close retires the bot from the table. Idempotent.
func (b *Bot) Close() {
	b.closeOnce.Do(func() {
		close(b.quit)
		b.c.Close()
		b.wg.Wait()
	})
}

// HandsSeen reports how many hands the bot has been dealt into.
func (b *Bot) HandsSeen() int64 { return b.handsSeen.Load() }

// Actions reports how many betting decisions the bot has sent.
func (b *Bot) Actions() int64 { return b.actions.Load() }

// actLoop answers turn prompts one at a time.
func (b *Bot) actLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.quit:
			return
		case pt := <-b.turns:
			if b.cfg.ActDelay > 0 {
				select {
				case <-time.After(b.cfg.ActDelay):
				case <-b.quit:
					return
				}
			}
			b.act(pt)
		}
	}
}

// drainUpdates keeps the client's UI feed from backing up; the bot has
// no screen to paint.
func (b *Bot) drainUpdates() {
	defer b.wg.Done()
	for {
		select {
		case <-b.quit:
			return
		case <-b.c.UpdatesCh:
		case <-b.c.ErrorsCh:
		}
	}
}

// act sends the chosen action and falls back toward the safest legal
// one when the table rejects it. Rejections happen when the prompt went
// stale or a raise missed the table limits.
func (b *Bot) act(pt protocol.PlayerTurn) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	action, amount := b.decide(pt)
	b.log.Debugf("bot %s: %s %d (toCall=%d pot=%d)", b.ID, action, amount, pt.ToCall, pt.Pot)

	if err := b.c.Act(ctx, action, amount); err == nil {
		b.actions.Add(1)
		return
	}

	fallbacks := []poker.Action{poker.ActionCall, poker.ActionCheck, poker.ActionFold}
	if pt.ToCall == 0 {
		fallbacks = []poker.Action{poker.ActionCheck, poker.ActionFold}
	}
	for _, fb := range fallbacks {
		if fb == action {
			continue
		}
		if err := b.c.Act(ctx, fb, 0); err == nil {
			b.log.Debugf("bot %s: fell back to %s", b.ID, fb)
			b.actions.Add(1)
			return
		}
	}
	b.log.Warnf("bot %s: every action was rejected, giving up the prompt", b.ID)
}

// decide picks an action from hand strength, pot odds and the
// aggression knob.
func (b *Bot) decide(pt protocol.PlayerTurn) (poker.Action, int64) {
	var board []poker.Card
	if state, ok := b.c.GameState(); ok {
		board = state.Board
	}
	strength := handStrength(b.c.HoleCards(), board)

	// A small bluff chance keeps the table honest.
	bluff := b.rng.Float64() < 0.08*b.cfg.Aggression
	edge := 0.2 * (b.cfg.Aggression - 0.5)

	if pt.ToCall == 0 {
		if strength+edge >= raiseStrength || bluff {
			return poker.ActionRaise, b.raiseTo(pt)
		}
		return poker.ActionCheck, 0
	}

	if strength+edge >= raiseStrength && pt.Chips > pt.ToCall && !bluff {
		return poker.ActionRaise, b.raiseTo(pt)
	}

	// Price the call: cheap calls need less of a hand.
	potOdds := float64(pt.ToCall) / float64(pt.Pot+pt.ToCall)
	if strength+edge >= callStrength && strength+edge >= potOdds*0.8 {
		return poker.ActionCall, 0
	}
	if bluff {
		return poker.ActionCall, 0
	}
	return poker.ActionFold, 0
}

// raiseTo sizes a raise near half pot, clamped to the table's limits.
func (b *Bot) raiseTo(pt protocol.PlayerTurn) int64 {
	amount := pt.CurrentBet + pt.Pot/2
	if amount < pt.MinRaise {
		amount = pt.MinRaise
	}
	if pt.MaxRaise > 0 && amount > pt.MaxRaise {
		amount = pt.MaxRaise
	}
	// The engine clamps bet-to totals beyond the stack to all-in.
	if max := pt.PlayerBet + pt.Chips; amount > max {
		amount = max
	}
	return amount
}

// handStrength scores a hand on 0..1. Preflop uses a coarse hole-card
// heuristic; later streets evaluate the best five of the visible seven.
func handStrength(hole, board []poker.Card) float64 {
	if len(hole) != 2 {
		return 0
	}
	if len(board) < 3 {
		return preflopStrength(hole)
	}
	hv, err := poker.EvaluateBestHand(append(append([]poker.Card{}, hole...), board...))
	if err != nil {
		return 0
	}
	s := float64(hv.Rank) / float64(poker.StraightFlush)
	// Nudge a bare high card by its kicker so ace-high calls more than
	// seven-high.
	if hv.Rank == poker.HighCard && len(hv.TieBreakers) > 0 {
		s += float64(hv.TieBreakers[0]) / float64(poker.Ace) * 0.1
	}
	if s > 1 {
		s = 1
	}
	return s
}

// preflopStrength is the usual coarse ladder: pairs, then big suited and
// connected cards, then big offsuit cards.
func preflopStrength(hole []poker.Card) float64 {
	hi, lo := hole[0].Rank(), hole[1].Rank()
	if lo > hi {
		hi, lo = lo, hi
	}

	if hi == lo {
		// 22 scores 0.50, aces 0.95.
		return 0.5 + float64(hi-poker.Two)*0.45/float64(poker.Ace-poker.Two)
	}

	s := 0.12 + float64(hi)*0.022 + float64(lo)*0.010
	if hole[0].Suit() == hole[1].Suit() {
		s += 0.05
	}
	if hi-lo == 1 {
		s += 0.04
	}
	return s
}
