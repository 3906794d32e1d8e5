// This file contains end-to-end tests that spin up a full poker fabric:
// a real table service, real client and bot endpoints, all wired through
// an in-process transport registry with acknowledged delivery. Nothing is
// mocked; the tests drive the same code paths the pokerd binary runs.
//
// Acked commands return only after every event they caused was handled
// by every subscriber, so the tests are deterministic without sleeps.

package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vctt94/pokerfabric/pkg/bot"
	"github.com/vctt94/pokerfabric/pkg/client"
	"github.com/vctt94/pokerfabric/pkg/protocol"
	"github.com/vctt94/pokerfabric/pkg/service"
	"github.com/vctt94/pokerfabric/pkg/transport"
)

const tableID = "table-1"

// testEnv is one complete fabric: a table service plus a dealer client
// that paces hands and records completions. Each test builds its own env
// so tests stay isolated.
type testEnv struct {
	t        *testing.T
	registry *transport.Registry
	svc      *service.TableService
	dealer   *client.Client
	done     chan protocol.HandComplete
}

func newTestEnv(t *testing.T, seats []string, seed int64) *testEnv {
	t.Helper()

	registry := transport.NewRegistry()
	svc, err := service.New(service.Config{
		ID:                tableID,
		Registry:          registry,
		Players:           seats,
		SmallBlind:        5,
		BigBlind:          10,
		Seed:              seed,
		HeartbeatInterval: time.Hour,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Start())

	done := make(chan protocol.HandComplete, 16)
	ntfns := client.NewNotificationManager()
	ntfns.RegisterSync(client.OnHandCompleteNtfn(func(hc protocol.HandComplete, _ time.Time) {
		done <- hc
	}))
	dealer, err := client.NewClient(client.Config{
		ID:            "dealer",
		TableID:       tableID,
		Registry:      registry,
		Notifications: ntfns,
	})
	require.NoError(t, err)

	e := &testEnv{t: t, registry: registry, svc: svc, dealer: dealer, done: done}
	t.Cleanup(e.Close)
	return e
}

// Close tears the fabric down the way pokerd does: services first, then
// transports, via the registry's shutdown coordinator.
func (e *testEnv) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.registry.ShutdownAll(ctx)
}

// playHand starts one hand and waits for its completion broadcast.
func (e *testEnv) playHand(ctx context.Context) protocol.HandComplete {
	e.t.Helper()
	require.NoError(e.t, e.dealer.StartHand(ctx))
	select {
	case hc := <-e.done:
		return hc
	case <-time.After(20 * time.Second):
		e.t.Fatal("hand never completed")
		return protocol.HandComplete{}
	}
}

// chipTotal sums every stack plus the live pot from the service's view.
func (e *testEnv) chipTotal() int64 {
	snap := e.svc.Snapshot()
	total := snap.Pot
	for _, p := range snap.Players {
		total += p.Chips + p.Bet
	}
	return total
}

// seatBot seats an automated player and retires it with the test.
func seatBot(t *testing.T, registry *transport.Registry, id string, seed int64) *bot.Bot {
	t.Helper()
	b, err := bot.New(bot.Config{
		ID:         id,
		TableID:    tableID,
		Registry:   registry,
		Aggression: 0.4,
		Seed:       seed,
	})
	require.NoError(t, err)
	t.Cleanup(b.Close)
	return b
}

// seatCaller seats a scripted player that calls any bet and checks
// otherwise, so hands always reach showdown.
func seatCaller(t *testing.T, registry *transport.Registry, id string) *client.Client {
	t.Helper()
	ntfns := client.NewNotificationManager()
	cl, err := client.NewClient(client.Config{
		ID:            id,
		TableID:       tableID,
		Registry:      registry,
		Notifications: ntfns,
	})
	require.NoError(t, err)
	t.Cleanup(cl.Close)

	ntfns.RegisterSync(client.OnPlayerTurnNtfn(func(pt protocol.PlayerTurn, _ time.Time) {
		if pt.PlayerID != id {
			return
		}
		// Act from a fresh goroutine: the prompt arrives inside a
		// broadcast, and answering it synchronously would nest command
		// handling inside event handling.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if pt.ToCall > 0 {
				_ = cl.Call(ctx)
			} else {
				_ = cl.Check(ctx)
			}
		}()
	}))
	return cl
}

func TestMultiHandSessionWithBots(t *testing.T) {
	seats := []string{"bot-1", "bot-2", "bot-3", "bot-4"}
	e := newTestEnv(t, seats, 42)
	for i, seat := range seats {
		seatBot(t, e.registry, seat, int64(100+i))
	}

	ctx := context.Background()
	startingTotal := e.chipTotal()
	require.Equal(t, int64(4000), startingTotal)

	for hand := 1; hand <= 5; hand++ {
		hc := e.playHand(ctx)
		assert.Equal(t, hand, hc.HandNum)

		require.NotEmpty(t, hc.Winners)
		var shares int64
		for _, w := range hc.Winners {
			shares += w.Share
		}
		assert.Equal(t, hc.Pot, shares, "hand %d paid out exactly its pot", hand)
		assert.Equal(t, startingTotal, e.chipTotal(), "hand %d conserved chips", hand)
	}

	snap := e.svc.Snapshot()
	assert.Equal(t, 5, snap.HandNum)
	assert.Equal(t, "HandComplete", snap.Phase)
}

func TestHoleCardPrivacyAcrossFabric(t *testing.T) {
	e := newTestEnv(t, []string{"alice", "bob", "carol"}, 7)

	type deal struct {
		owner string
		cards protocol.HoleCards
	}
	deals := make(chan deal, 16)

	clients := make(map[string]*client.Client, 3)
	for _, id := range []string{"alice", "bob", "carol"} {
		id := id
		ntfns := client.NewNotificationManager()
		ntfns.RegisterSync(client.OnHoleCardsNtfn(func(hc protocol.HoleCards, _ time.Time) {
			deals <- deal{owner: id, cards: hc}
		}))
		cl, err := client.NewClient(client.Config{
			ID:            id,
			TableID:       tableID,
			Registry:      e.registry,
			Notifications: ntfns,
		})
		require.NoError(t, err)
		t.Cleanup(cl.Close)
		clients[id] = cl
	}

	require.NoError(t, clients["alice"].StartHand(context.Background()))

	// Exactly one targeted deal per seat, each addressed to its owner.
	seen := map[string]int{}
	for i := 0; i < 3; i++ {
		select {
		case d := <-deals:
			assert.Equal(t, d.owner, d.cards.PlayerID, "deals only reach their owner")
			assert.Len(t, d.cards.Cards, 2)
			seen[d.owner]++
		default:
			t.Fatal("missing a hole card deal")
		}
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, "%s got exactly one deal", id)
	}

	// The shared snapshot hides every hand mid-play, including from the
	// off-seat dealer.
	state, ok := e.dealer.GameState()
	require.True(t, ok)
	assert.Equal(t, "PreFlop", state.Phase)
	for _, p := range state.Players {
		assert.Empty(t, p.HoleCards, "%s's cards stay private", p.ID)
		assert.Empty(t, p.HandRank)
	}
}

func TestSeededGamesReplayIdentically(t *testing.T) {
	play := func() protocol.HandComplete {
		reg := transport.NewRegistry()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			reg.ShutdownAll(ctx)
		}()

		svc, err := service.New(service.Config{
			ID:                tableID,
			Registry:          reg,
			Players:           []string{"p1", "p2", "p3"},
			SmallBlind:        5,
			BigBlind:          10,
			Seed:              1234,
			HeartbeatInterval: time.Hour,
		})
		require.NoError(t, err)
		require.NoError(t, svc.Start())

		done := make(chan protocol.HandComplete, 1)
		ntfns := client.NewNotificationManager()
		ntfns.RegisterSync(client.OnHandCompleteNtfn(func(hc protocol.HandComplete, _ time.Time) {
			done <- hc
		}))
		dealer, err := client.NewClient(client.Config{
			ID:            "dealer",
			TableID:       tableID,
			Registry:      reg,
			Notifications: ntfns,
		})
		require.NoError(t, err)
		defer dealer.Close()

		for _, id := range []string{"p1", "p2", "p3"} {
			seatCaller(t, reg, id)
		}

		require.NoError(t, dealer.StartHand(context.Background()))
		select {
		case hc := <-done:
			return hc
		case <-time.After(20 * time.Second):
			t.Fatal("seeded hand never completed")
			return protocol.HandComplete{}
		}
	}

	first := play()
	second := play()

	// Same seed, same script: the board and the payouts replay exactly.
	assert.Equal(t, first.Board, second.Board)
	assert.Equal(t, first.Pot, second.Pot)
	require.Equal(t, len(first.Winners), len(second.Winners))
	for i := range first.Winners {
		assert.Equal(t, first.Winners[i].PlayerID, second.Winners[i].PlayerID)
		assert.Equal(t, first.Winners[i].Share, second.Winners[i].Share)
		assert.Equal(t, first.Winners[i].HandRank, second.Winners[i].HandRank)
	}
	assert.Len(t, first.Board, 5, "calling stations always see a full board")
}

func TestShowdownRevealsContenders(t *testing.T) {
	e := newTestEnv(t, []string{"p1", "p2", "p3"}, 99)
	for _, id := range []string{"p1", "p2", "p3"} {
		seatCaller(t, e.registry, id)
	}

	hc := e.playHand(context.Background())
	require.NotEmpty(t, hc.Winners)
	for _, w := range hc.Winners {
		assert.NotEmpty(t, w.HandRank, "showdown winners carry a rank")
		assert.Len(t, w.Cards, 5, "and the five cards that made it")
	}

	// After showdown the snapshot turns every surviving hand face up.
	snap := e.svc.Snapshot()
	revealed := 0
	for _, p := range snap.Players {
		if !p.Folded {
			assert.Len(t, p.HoleCards, 2)
			assert.NotEmpty(t, p.HandRank)
			revealed++
		}
	}
	assert.NotZero(t, revealed)
}

func TestCoordinatedShutdownOrder(t *testing.T) {
	e := newTestEnv(t, []string{"bot-1", "bot-2"}, 5)
	seatBot(t, e.registry, "bot-1", 1)
	seatBot(t, e.registry, "bot-2", 2)

	// Play one hand so the fabric has seen real traffic.
	e.playHand(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.registry.ShutdownAll(ctx)

	coord := e.registry.Coordinator()
	assert.True(t, coord.IsTornDown("service:"+tableID), "the service went down")
	assert.True(t, coord.IsTornDown("transport:"+tableID), "and its transport after it")
	assert.True(t, coord.IsTornDown("transport:dealer"))
	assert.Empty(t, e.registry.TransportIDs(), "no endpoint outlives the shutdown")

	// Post-shutdown commands are refused, not raced.
	err := e.dealer.StartHand(context.Background())
	require.ErrorIs(t, err, client.ErrCommandRejected)

	// Idempotent: a second sweep is a no-op.
	e.registry.ShutdownAll(ctx)
}

func TestBustedSeatEndsHeadsUpPlay(t *testing.T) {
	// Heads-up with stacks small enough that one all-in busts a seat.
	reg := transport.NewRegistry()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		reg.ShutdownAll(ctx)
	})

	svc, err := service.New(service.Config{
		ID:                tableID,
		Registry:          reg,
		Players:           []string{"p1", "p2"},
		StartingChips:     50,
		SmallBlind:        5,
		BigBlind:          10,
		MaxBet:            50,
		Seed:              21,
		HeartbeatInterval: time.Hour,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Start())

	done := make(chan protocol.HandComplete, 8)
	ntfns := client.NewNotificationManager()
	ntfns.RegisterSync(client.OnHandCompleteNtfn(func(hc protocol.HandComplete, _ time.Time) {
		done <- hc
	}))
	dealer, err := client.NewClient(client.Config{
		ID:            "dealer",
		TableID:       tableID,
		Registry:      reg,
		Notifications: ntfns,
	})
	require.NoError(t, err)
	t.Cleanup(dealer.Close)

	// Both seats jam every prompt; every hand is an all-in showdown.
	for _, id := range []string{"p1", "p2"} {
		id := id
		nm := client.NewNotificationManager()
		cl, err := client.NewClient(client.Config{
			ID:            id,
			TableID:       tableID,
			Registry:      reg,
			Notifications: nm,
		})
		require.NoError(t, err)
		t.Cleanup(cl.Close)
		nm.RegisterSync(client.OnPlayerTurnNtfn(func(pt protocol.PlayerTurn, _ time.Time) {
			if pt.PlayerID != id {
				return
			}
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := cl.Raise(ctx, 50); err != nil {
					_ = cl.Call(ctx)
				}
			}()
		}))
	}

	ctx := context.Background()
	busted := false
	for hand := 1; hand <= 10 && !busted; hand++ {
		require.NoError(t, dealer.StartHand(ctx))
		select {
		case <-done:
		case <-time.After(20 * time.Second):
			t.Fatalf("hand %d never completed", hand)
		}

		var total int64
		for _, p := range svc.Snapshot().Players {
			total += p.Chips
			if p.Chips == 0 {
				busted = true
			}
		}
		require.Equal(t, int64(100), total)
	}
	require.True(t, busted, "a decisive board eventually busts one seat")

	// One funded seat left: the table refuses to deal another hand.
	err = dealer.StartHand(ctx)
	require.ErrorIs(t, err, client.ErrCommandRejected)
}
