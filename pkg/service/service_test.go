package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vctt94/pokerfabric/pkg/message"
	"github.com/vctt94/pokerfabric/pkg/protocol"
	"github.com/vctt94/pokerfabric/pkg/transport"
)

// newHarness stands up a table service plus one running transport per
// player, all on a fresh registry.
func newHarness(t *testing.T, players []string, mut ...func(*Config)) (*TableService, map[string]*transport.Transport) {
	t.Helper()
	reg := transport.NewRegistry()

	seats := make(map[string]*transport.Transport, len(players))
	for _, name := range players {
		tr, err := transport.NewTransport(reg, name)
		require.NoError(t, err)
		require.NoError(t, tr.Initialize(transport.Config{}))
		require.NoError(t, tr.Start())
		t.Cleanup(func() { tr.Close() })
		seats[name] = tr
	}

	cfg := Config{
		ID:            "table-1",
		Registry:      reg,
		Players:       players,
		StartingChips: 1000,
		SmallBlind:    5,
		BigBlind:      10,
		Seed:          42,
		// Keep the ticker quiet unless a test wants heartbeats.
		HeartbeatInterval: time.Hour,
	}
	for _, m := range mut {
		m(&cfg)
	}
	svc, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Close)
	return svc, seats
}

// watchEvents funnels every message of the given types arriving at tr
// into one ordered channel.
func watchEvents(tr *transport.Transport, types ...string) <-chan *message.Message {
	ch := make(chan *message.Message, 128)
	for _, typ := range types {
		tr.Subscribe(typ, func(_ context.Context, m *message.Message) error {
			ch <- m
			return nil
		})
	}
	return ch
}

func nextEvent(t *testing.T, ch <-chan *message.Message, msgType string) *message.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-ch:
			if m.Type() == msgType {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", msgType)
		}
	}
}

func sendCommand(t *testing.T, tr *transport.Transport, dest, msgType string, payload any) bool {
	t.Helper()
	msg, err := tr.NewMessage(msgType).RequireAck(true).JSON(payload).Build()
	require.NoError(t, err)
	return tr.Send(context.Background(), dest, msg)
}

func TestStartHandEventSequence(t *testing.T) {
	players := []string{"alice", "bob", "carol"}
	_, seats := newHarness(t, players)

	allTypes := []string{
		protocol.TypeHandStarted, protocol.TypeHoleCards,
		protocol.TypeGameStateUpdated, protocol.TypePlayerTurn,
	}
	alice := watchEvents(seats["alice"], allTypes...)
	bob := watchEvents(seats["bob"], allTypes...)

	cmd, err := seats["alice"].NewMessage(protocol.TypeStartHand).
		RequireAck(true).
		JSON(protocol.StartHand{TableID: "table-1"}).
		Build()
	require.NoError(t, err)
	require.True(t, seats["alice"].Send(context.Background(), "table-1", cmd),
		"StartHand must be positively acked")

	// The ack arrives only after the handler flushed, so the sequence is
	// already buffered: announcement, own cards, snapshot, first prompt.
	wantOrder := []string{
		protocol.TypeHandStarted, protocol.TypeHoleCards,
		protocol.TypeGameStateUpdated, protocol.TypePlayerTurn,
	}
	got := make([]*message.Message, 0, len(wantOrder))
	for range wantOrder {
		select {
		case m := <-alice:
			got = append(got, m)
		case <-time.After(2 * time.Second):
			t.Fatal("missing hand-start events")
		}
	}
	for i, m := range got {
		assert.Equal(t, wantOrder[i], m.Type())
		assert.Equal(t, cmd.ID(), m.CorrelationID(), "%s must correlate to the command", m.Type())
	}

	started := message.Payload[protocol.HandStarted](got[0])
	assert.Equal(t, 1, started.HandNum)
	assert.Equal(t, int64(5), started.SmallBlind)
	assert.Equal(t, int64(10), started.BigBlind)
	assert.Len(t, started.Players, 3)

	cards := message.Payload[protocol.HoleCards](got[1])
	assert.Equal(t, "alice", cards.PlayerID)
	assert.Len(t, cards.Cards, 2)
	assert.True(t, got[1].RequireAck(), "hole cards ride an acked targeted send")

	turn := message.Payload[protocol.PlayerTurn](got[3])
	assert.Equal(t, "alice", turn.PlayerID, "button acts first preflop with three seats")
	assert.Equal(t, int64(10), turn.ToCall)
	assert.Equal(t, int64(20), turn.MinRaise)

	// Bob sees the same public events but only his own hole cards.
	bobCards := message.Payload[protocol.HoleCards](nextEvent(t, bob, protocol.TypeHoleCards))
	assert.Equal(t, "bob", bobCards.PlayerID)
	assert.NotEqual(t, cards.Cards, bobCards.Cards)
}

func TestHoleCardsStayPrivateUntilShowdown(t *testing.T) {
	players := []string{"alice", "bob"}
	_, seats := newHarness(t, players)

	alice := watchEvents(seats["alice"],
		protocol.TypeHoleCards, protocol.TypeGameStateUpdated)

	require.True(t, sendCommand(t, seats["bob"], "table-1",
		protocol.TypeStartHand, protocol.StartHand{}))

	own := 0
	drained := false
	for !drained {
		select {
		case m := <-alice:
			switch m.Type() {
			case protocol.TypeHoleCards:
				own++
				assert.Equal(t, "alice", message.Payload[protocol.HoleCards](m).PlayerID)
			case protocol.TypeGameStateUpdated:
				state := message.Payload[protocol.GameState](m)
				for _, p := range state.Players {
					assert.Empty(t, p.HoleCards, "public snapshots must not leak cards mid-hand")
				}
			}
		default:
			drained = true
		}
	}
	assert.Equal(t, 1, own, "exactly one targeted hole-card delivery per seat")
}

func TestFoldOutHand(t *testing.T) {
	players := []string{"alice", "bob", "carol"}
	svc, seats := newHarness(t, players)

	events := watchEvents(seats["carol"],
		protocol.TypePlayerTurn, protocol.TypeHandComplete)

	require.True(t, sendCommand(t, seats["alice"], "table-1",
		protocol.TypeStartHand, protocol.StartHand{}))

	turn := message.Payload[protocol.PlayerTurn](nextEvent(t, events, protocol.TypePlayerTurn))
	require.Equal(t, "alice", turn.PlayerID)
	require.True(t, sendCommand(t, seats["alice"], "table-1", protocol.TypePlayerAction,
		protocol.PlayerAction{PlayerID: "alice", Action: "fold"}))

	turn = message.Payload[protocol.PlayerTurn](nextEvent(t, events, protocol.TypePlayerTurn))
	require.Equal(t, "bob", turn.PlayerID)
	require.True(t, sendCommand(t, seats["bob"], "table-1", protocol.TypePlayerAction,
		protocol.PlayerAction{PlayerID: "bob", Action: "fold"}))

	// Only the big blind is left; the pot goes to carol uncontested.
	done := message.Payload[protocol.HandComplete](nextEvent(t, events, protocol.TypeHandComplete))
	require.Len(t, done.Winners, 1)
	assert.Equal(t, "carol", done.Winners[0].PlayerID)
	assert.Equal(t, int64(15), done.Winners[0].Share)
	assert.Equal(t, int64(15), done.Pot)
	assert.Empty(t, done.Winners[0].Cards, "uncontested pots reveal nothing")

	snap := svc.Snapshot()
	chips := map[string]int64{}
	var total int64
	for _, p := range snap.Players {
		chips[p.ID] = p.Chips
		total += p.Chips
	}
	assert.Equal(t, int64(1000), chips["alice"])
	assert.Equal(t, int64(995), chips["bob"])
	assert.Equal(t, int64(1005), chips["carol"])
	assert.Equal(t, int64(3000), total)
}

func TestHandPlaysToShowdown(t *testing.T) {
	players := []string{"alice", "bob", "carol"}
	svc, seats := newHarness(t, players)

	events := watchEvents(seats["alice"],
		protocol.TypePlayerTurn, protocol.TypeHandComplete, protocol.TypeGameStateUpdated)

	require.True(t, sendCommand(t, seats["bob"], "table-1",
		protocol.TypeStartHand, protocol.StartHand{}))

	// Call every bet and check everything down to the river.
	deadline := time.After(5 * time.Second)
	var done protocol.HandComplete
	var sawShowdownState bool
play:
	for {
		select {
		case m := <-events:
			switch m.Type() {
			case protocol.TypePlayerTurn:
				turn := message.Payload[protocol.PlayerTurn](m)
				act := "check"
				if turn.ToCall > 0 {
					act = "call"
				}
				require.True(t, sendCommand(t, seats[turn.PlayerID], "table-1",
					protocol.TypePlayerAction,
					protocol.PlayerAction{PlayerID: turn.PlayerID, Action: act}))
			case protocol.TypeGameStateUpdated:
				state := message.Payload[protocol.GameState](m)
				if state.Phase == "HandComplete" {
					for _, p := range state.Players {
						if !p.Folded {
							assert.Len(t, p.HoleCards, 2, "showdown reveals contenders")
							assert.NotEmpty(t, p.HandRank)
						}
					}
					sawShowdownState = true
				}
			case protocol.TypeHandComplete:
				done = message.Payload[protocol.HandComplete](m)
				break play
			}
		case <-deadline:
			t.Fatal("hand did not complete")
		}
	}

	assert.Equal(t, int64(30), done.Pot, "three seats call ten each and check it down")
	assert.Len(t, done.Board, 5)
	require.NotEmpty(t, done.Winners)
	var won int64
	for _, w := range done.Winners {
		won += w.Share
		assert.NotEmpty(t, w.HandRank)
	}
	assert.Equal(t, done.Pot, won, "pot splits exactly among winners")
	assert.True(t, sawShowdownState)

	var total int64
	for _, p := range svc.Snapshot().Players {
		total += p.Chips
	}
	assert.Equal(t, int64(3000), total)
}

func TestOutOfTurnActionRejected(t *testing.T) {
	_, seats := newHarness(t, []string{"alice", "bob", "carol"})

	bobErrs := watchEvents(seats["bob"], message.TypeError)
	require.True(t, sendCommand(t, seats["alice"], "table-1",
		protocol.TypeStartHand, protocol.StartHand{}))

	// Alice is first to act; bob jumps the queue.
	ok := sendCommand(t, seats["bob"], "table-1", protocol.TypePlayerAction,
		protocol.PlayerAction{PlayerID: "bob", Action: "call"})
	assert.False(t, ok, "out-of-turn command must be nacked")

	reply := message.Payload[protocol.ErrorReply](nextEvent(t, bobErrs, message.TypeError))
	assert.Equal(t, protocol.ErrCodeOutOfTurn, reply.Code)
	assert.Contains(t, reply.Message, "bob")
}

func TestInvalidActionRejected(t *testing.T) {
	_, seats := newHarness(t, []string{"alice", "bob", "carol"})

	aliceCh := watchEvents(seats["alice"], message.TypeError, protocol.TypeShowMessage)
	require.True(t, sendCommand(t, seats["bob"], "table-1",
		protocol.TypeStartHand, protocol.StartHand{}))

	// A live bet of 10 is on the table; alice cannot check it.
	ok := sendCommand(t, seats["alice"], "table-1", protocol.TypePlayerAction,
		protocol.PlayerAction{PlayerID: "alice", Action: "check"})
	assert.False(t, ok)

	reply := message.Payload[protocol.ErrorReply](nextEvent(t, aliceCh, message.TypeError))
	assert.Equal(t, protocol.ErrCodeInvalidAction, reply.Code)

	// Spoofed actor ids are refused outright.
	ok = sendCommand(t, seats["alice"], "table-1", protocol.TypePlayerAction,
		protocol.PlayerAction{PlayerID: "bob", Action: "fold"})
	assert.False(t, ok)
	reply = message.Payload[protocol.ErrorReply](nextEvent(t, aliceCh, message.TypeError))
	assert.Equal(t, protocol.ErrCodeInvalidAction, reply.Code)

	// So are unknown verbs.
	ok = sendCommand(t, seats["alice"], "table-1", protocol.TypePlayerAction,
		protocol.PlayerAction{PlayerID: "alice", Action: "jam"})
	assert.False(t, ok)
	reply = message.Payload[protocol.ErrorReply](nextEvent(t, aliceCh, message.TypeError))
	assert.Equal(t, protocol.ErrCodeInvalidAction, reply.Code)
}

func TestStartHandWhileHandRunning(t *testing.T) {
	_, seats := newHarness(t, []string{"alice", "bob"})

	errs := watchEvents(seats["alice"], message.TypeError)
	require.True(t, sendCommand(t, seats["alice"], "table-1",
		protocol.TypeStartHand, protocol.StartHand{}))

	ok := sendCommand(t, seats["alice"], "table-1",
		protocol.TypeStartHand, protocol.StartHand{})
	assert.False(t, ok, "second StartHand mid-hand must be nacked")

	reply := message.Payload[protocol.ErrorReply](nextEvent(t, errs, message.TypeError))
	assert.Equal(t, protocol.ErrCodeHandInProgress, reply.Code)
}

func TestDebugResponder(t *testing.T) {
	svc, seats := newHarness(t, []string{"alice", "bob"})

	responses := watchEvents(seats["alice"], message.TypeResponse)
	req, err := seats["alice"].NewMessage(message.TypeDebug).Build()
	require.NoError(t, err)
	require.True(t, seats["alice"].Send(context.Background(), svc.ID(), req))

	resp := nextEvent(t, responses, message.TypeResponse)
	assert.Equal(t, req.ID(), resp.CorrelationID())
	assert.Equal(t, "text/plain", resp.ContentType())
	dump := string(resp.Content())
	assert.Contains(t, dump, "debugDump")
	assert.Contains(t, dump, "table-1")
	assert.True(t, strings.Contains(dump, "State"), "dump carries the table snapshot")
}

func TestPeerDirectory(t *testing.T) {
	svc, seats := newHarness(t, []string{"alice", "bob"})

	reg, err := seats["alice"].NewMessage(message.TypeServiceRegistration).
		JSON(protocol.ServiceInfo{ServiceID: "table-9", Kind: KindTable}).
		Build()
	require.NoError(t, err)
	require.True(t, seats["alice"].Broadcast(context.Background(), reg))

	// Broadcast returns after every sibling handler finished, so the
	// directory is already updated.
	assert.Equal(t, []string{"table-9"}, svc.KnownServices())

	hb, err := seats["bob"].NewMessage(message.TypeHeartbeat).
		JSON(protocol.Heartbeat{ServiceID: "table-7", Seq: 1}).
		Build()
	require.NoError(t, err)
	require.True(t, seats["bob"].Broadcast(context.Background(), hb))
	assert.Equal(t, []string{"table-7", "table-9"}, svc.KnownServices())
}

func TestHeartbeatBroadcast(t *testing.T) {
	_, seats := newHarness(t, []string{"alice", "bob"}, func(cfg *Config) {
		cfg.HeartbeatInterval = 20 * time.Millisecond
	})

	beats := watchEvents(seats["alice"], message.TypeHeartbeat)
	hb := message.Payload[protocol.Heartbeat](nextEvent(t, beats, message.TypeHeartbeat))

	assert.Equal(t, "table-1", hb.ServiceID)
	assert.GreaterOrEqual(t, hb.Seq, uint64(1))
	assert.Greater(t, hb.Goroutines, 0)
	assert.Greater(t, hb.HeapBytes, uint64(0))
	assert.Greater(t, hb.SysBytes, uint64(0))
}

func TestServiceRegistrationAnnounced(t *testing.T) {
	reg := transport.NewRegistry()
	observer, err := transport.NewTransport(reg, "observer")
	require.NoError(t, err)
	require.NoError(t, observer.Initialize(transport.Config{}))
	require.NoError(t, observer.Start())
	t.Cleanup(func() { observer.Close() })

	regs := watchEvents(observer, message.TypeServiceRegistration)

	svc, err := New(Config{
		ID:       "table-2",
		Registry: reg,
		Players:  []string{"p1", "p2"},
		Seed:     1,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Close)

	info := message.Payload[protocol.ServiceInfo](nextEvent(t, regs, message.TypeServiceRegistration))
	assert.Equal(t, "table-2", info.ServiceID)
	assert.Equal(t, KindTable, info.Kind)
}

func TestCloseIsIdempotentAndCoordinated(t *testing.T) {
	reg := transport.NewRegistry()
	svc, err := New(Config{
		ID:       "table-3",
		Registry: reg,
		Players:  []string{"p1", "p2"},
	})
	require.NoError(t, err)
	require.NoError(t, svc.Start())

	svc.Close()
	svc.Close()

	// The endpoint left the registry, so the id can be reused.
	assert.NotContains(t, reg.TransportIDs(), "table-3")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reg.ShutdownAll(ctx)
}
