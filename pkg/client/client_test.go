package client

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vctt94/pokerfabric/pkg/poker"
	"github.com/vctt94/pokerfabric/pkg/protocol"
	"github.com/vctt94/pokerfabric/pkg/service"
	"github.com/vctt94/pokerfabric/pkg/transport"
)

// tableHarness is a real table service plus one connected client per
// seat. Acked commands return only after every event they caused has
// been handled, so tests never need to sleep.
type tableHarness struct {
	svc     *service.TableService
	clients map[string]*Client
	ntfns   map[string]*NotificationManager
}

func newTable(t *testing.T, players ...string) *tableHarness {
	t.Helper()

	reg := transport.NewRegistry()
	svc, err := service.New(service.Config{
		ID:                "table-1",
		Registry:          reg,
		Players:           players,
		SmallBlind:        5,
		BigBlind:          10,
		Seed:              42,
		HeartbeatInterval: time.Hour,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Start())

	h := &tableHarness{
		svc:     svc,
		clients: make(map[string]*Client, len(players)),
		ntfns:   make(map[string]*NotificationManager, len(players)),
	}
	for _, p := range players {
		nm := NewNotificationManager()
		cl, err := NewClient(Config{
			ID:            p,
			TableID:       "table-1",
			Registry:      reg,
			Notifications: nm,
		})
		require.NoError(t, err)
		h.clients[p] = cl
		h.ntfns[p] = nm
	}
	t.Cleanup(func() {
		for _, cl := range h.clients {
			cl.Close()
		}
		svc.Close()
	})
	return h
}

func nextUpdate(t *testing.T, ch <-chan tea.Msg) tea.Msg {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a UI update")
		return nil
	}
}

// With seed 42 and seats alice/bob/carol, hand one has alice on the
// button, bob small blind, carol big blind, alice first to act.
func TestClientEventFeedOrder(t *testing.T) {
	h := newTable(t, "alice", "bob", "carol")
	alice := h.clients["alice"]

	require.NoError(t, alice.StartHand(context.Background()))

	started, ok := nextUpdate(t, alice.UpdatesCh).(HandStartedMsg)
	require.True(t, ok, "first update should be the hand announcement")
	assert.Equal(t, 1, started.HandNum)
	assert.Equal(t, int64(5), started.SmallBlind)
	assert.Equal(t, int64(10), started.BigBlind)

	cards, ok := nextUpdate(t, alice.UpdatesCh).(HoleCardsMsg)
	require.True(t, ok, "the private deal follows the announcement")
	assert.Equal(t, "alice", cards.PlayerID)
	assert.Len(t, cards.Cards, 2)

	state, ok := nextUpdate(t, alice.UpdatesCh).(GameStateMsg)
	require.True(t, ok, "the table snapshot follows the deal")
	assert.Equal(t, "PreFlop", state.Phase)
	assert.Equal(t, int64(15), state.Pot)

	turn, ok := nextUpdate(t, alice.UpdatesCh).(PlayerTurnMsg)
	require.True(t, ok, "the turn prompt closes the sequence")
	assert.Equal(t, "alice", turn.PlayerID)
	assert.Equal(t, int64(10), turn.ToCall)
}

func TestClientNotificationsFireBeforeCommandReturns(t *testing.T) {
	h := newTable(t, "alice", "bob", "carol")

	var gotStart protocol.HandStarted
	var gotCards protocol.HoleCards
	var gotState protocol.GameState
	var gotTurn protocol.PlayerTurn
	h.ntfns["bob"].RegisterSync(OnHandStartedNtfn(func(hs protocol.HandStarted, _ time.Time) {
		gotStart = hs
	}))
	h.ntfns["bob"].RegisterSync(OnHoleCardsNtfn(func(hc protocol.HoleCards, _ time.Time) {
		gotCards = hc
	}))
	h.ntfns["bob"].RegisterSync(OnGameStateUpdatedNtfn(func(gs protocol.GameState, _ time.Time) {
		gotState = gs
	}))
	h.ntfns["bob"].RegisterSync(OnPlayerTurnNtfn(func(pt protocol.PlayerTurn, _ time.Time) {
		gotTurn = pt
	}))

	// The starter's ack only comes back after every subscriber handled
	// every event, so bob's sync callbacks have all run by now.
	require.NoError(t, h.clients["alice"].StartHand(context.Background()))

	assert.Equal(t, 1, gotStart.HandNum)
	assert.Equal(t, "bob", gotCards.PlayerID)
	assert.Len(t, gotCards.Cards, 2)
	assert.Equal(t, "alice", gotState.CurrentPlayerID)
	assert.Equal(t, "alice", gotTurn.PlayerID)
}

func TestClientStateCache(t *testing.T) {
	h := newTable(t, "alice", "bob", "carol")
	alice, bob := h.clients["alice"], h.clients["bob"]

	_, ok := alice.GameState()
	assert.False(t, ok, "no snapshot before the first hand")

	require.NoError(t, alice.StartHand(context.Background()))

	state, ok := alice.GameState()
	require.True(t, ok)
	assert.Equal(t, "PreFlop", state.Phase)
	require.Len(t, state.Players, 3)
	for _, ps := range state.Players {
		assert.Equal(t, ps.ID == "alice", ps.IsCurrentUser, "seat %s", ps.ID)
	}

	assert.Len(t, alice.HoleCards(), 2)
	assert.Len(t, bob.HoleCards(), 2)
	assert.NotEqual(t, alice.HoleCards(), bob.HoleCards())

	turn, mine := alice.CurrentTurn()
	assert.True(t, mine)
	assert.Equal(t, "alice", turn.PlayerID)

	_, mine = bob.CurrentTurn()
	assert.False(t, mine, "the prompt is alice's, not bob's")
}

func TestClientActionsPlayOutHand(t *testing.T) {
	h := newTable(t, "alice", "bob", "carol")
	ctx := context.Background()

	var done protocol.HandComplete
	h.ntfns["carol"].RegisterSync(OnHandCompleteNtfn(func(hc protocol.HandComplete, _ time.Time) {
		done = hc
	}))

	require.NoError(t, h.clients["alice"].StartHand(ctx))
	require.NoError(t, h.clients["alice"].Fold(ctx))
	require.NoError(t, h.clients["bob"].Fold(ctx))

	require.Len(t, done.Winners, 1, "carol wins the blinds uncontested")
	assert.Equal(t, "carol", done.Winners[0].PlayerID)
	assert.Equal(t, int64(15), done.Winners[0].Share)

	_, mine := h.clients["carol"].CurrentTurn()
	assert.False(t, mine, "no turn prompt survives the hand")
}

func TestClientRejectedCommand(t *testing.T) {
	h := newTable(t, "alice", "bob", "carol")
	ctx := context.Background()

	var gotErr protocol.ErrorReply
	h.ntfns["bob"].RegisterSync(OnErrorNtfn(func(er protocol.ErrorReply, _ time.Time) {
		gotErr = er
	}))

	require.NoError(t, h.clients["alice"].StartHand(ctx))

	// Bob acts on alice's turn. The nack surfaces as an error from Act
	// and the reason arrives through the error notification.
	err := h.clients["bob"].Call(ctx)
	require.ErrorIs(t, err, ErrCommandRejected)
	assert.Equal(t, protocol.ErrCodeOutOfTurn, gotErr.Code)
	assert.Contains(t, gotErr.Message, "bob")

	select {
	case ferr := <-h.clients["bob"].ErrorsCh:
		assert.Contains(t, ferr.Error(), protocol.ErrCodeOutOfTurn)
	default:
		t.Fatal("rejection should also land on ErrorsCh")
	}

	// The hand is still playable.
	require.NoError(t, h.clients["alice"].Call(ctx))
}

func TestClientRaiseAmountReachesEngine(t *testing.T) {
	h := newTable(t, "alice", "bob", "carol")
	ctx := context.Background()

	require.NoError(t, h.clients["alice"].StartHand(ctx))
	require.NoError(t, h.clients["alice"].Raise(ctx, 30))

	state, ok := h.clients["bob"].GameState()
	require.True(t, ok)
	assert.Equal(t, int64(30), state.CurrentBet)

	turn, mine := h.clients["bob"].CurrentTurn()
	require.True(t, mine)
	assert.Equal(t, int64(25), turn.ToCall, "small blind owes the raise minus the blind")
}

func TestNewClientValidation(t *testing.T) {
	reg := transport.NewRegistry()

	_, err := NewClient(Config{TableID: "t", Registry: reg, Notifications: NewNotificationManager()})
	assert.Error(t, err)

	_, err = NewClient(Config{ID: "p", Registry: reg, Notifications: NewNotificationManager()})
	assert.Error(t, err)

	_, err = NewClient(Config{ID: "p", TableID: "t", Notifications: NewNotificationManager()})
	assert.Error(t, err)

	_, err = NewClient(Config{ID: "p", TableID: "t", Registry: reg})
	assert.Error(t, err, "a notification manager is required")
}

func TestNotificationUnregister(t *testing.T) {
	nm := NewNotificationManager()

	calls := 0
	reg := nm.RegisterSync(onTestNtfn(func() { calls++ }))

	nm.notifyTest()
	assert.Equal(t, 1, calls)

	assert.True(t, reg.Unregister())
	nm.notifyTest()
	assert.Equal(t, 1, calls, "unregistered handlers stay quiet")

	assert.False(t, reg.Unregister(), "second unregister reports the miss")
}

func TestNotificationAsyncDispatch(t *testing.T) {
	nm := NewNotificationManager()

	fired := make(chan poker.Card, 1)
	nm.Register(OnHoleCardsNtfn(func(hc protocol.HoleCards, _ time.Time) {
		fired <- hc.Cards[0]
	}))

	want := poker.NewCard(poker.Ace, poker.Spades)
	nm.notifyHoleCards(protocol.HoleCards{Cards: []poker.Card{want}}, time.Now())

	select {
	case got := <-fired:
		assert.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatal("async handler never ran")
	}
}
