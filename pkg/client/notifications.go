package client

import (
	"fmt"
	"sync"
	"time"

	"github.com/vctt94/pokerfabric/pkg/protocol"
)

// Following are the notification types. Add new types at the bottom of
// this list, then add a notifyX() to NotificationManager and initialize a
// new container in NewNotificationManager().

const onHandStartedNtfnType = "onHandStarted"

// OnHandStartedNtfn is the handler for hand started notifications.
type OnHandStartedNtfn func(protocol.HandStarted, time.Time)

func (_ OnHandStartedNtfn) typ() string { return onHandStartedNtfnType }

const onHoleCardsNtfnType = "onHoleCards"

// OnHoleCardsNtfn is the handler for the player's own hole cards.
type OnHoleCardsNtfn func(protocol.HoleCards, time.Time)

func (_ OnHoleCardsNtfn) typ() string { return onHoleCardsNtfnType }

const onGameStateUpdatedNtfnType = "onGameStateUpdated"

// OnGameStateUpdatedNtfn is the handler for public table snapshots.
type OnGameStateUpdatedNtfn func(protocol.GameState, time.Time)

func (_ OnGameStateUpdatedNtfn) typ() string { return onGameStateUpdatedNtfnType }

const onPlayerTurnNtfnType = "onPlayerTurn"

// OnPlayerTurnNtfn is the handler for turn prompts, everyone's, not just
// this player's.
type OnPlayerTurnNtfn func(protocol.PlayerTurn, time.Time)

func (_ OnPlayerTurnNtfn) typ() string { return onPlayerTurnNtfnType }

const onHandCompleteNtfnType = "onHandComplete"

// OnHandCompleteNtfn is the handler for hand results.
type OnHandCompleteNtfn func(protocol.HandComplete, time.Time)

func (_ OnHandCompleteNtfn) typ() string { return onHandCompleteNtfnType }

const onTableMessageNtfnType = "onTableMessage"

// OnTableMessageNtfn is the handler for free-form table notices.
type OnTableMessageNtfn func(protocol.ShowMessage, time.Time)

func (_ OnTableMessageNtfn) typ() string { return onTableMessageNtfnType }

const onErrorNtfnType = "onError"

// OnErrorNtfn is the handler for command rejections addressed to this
// player.
type OnErrorNtfn func(protocol.ErrorReply, time.Time)

func (_ OnErrorNtfn) typ() string { return onErrorNtfnType }

// The following is used only in tests.

const onTestNtfnType = "testNtfnType"

type onTestNtfn func()

func (_ onTestNtfn) typ() string { return onTestNtfnType }

// Following is the generic notification code.

type NotificationRegistration struct {
	unreg func() bool
}

func (reg NotificationRegistration) Unregister() bool {
	return reg.unreg()
}

type NotificationHandler interface {
	typ() string
}

type handler[T any] struct {
	handler T
	async   bool
}

type handlersFor[T any] struct {
	mtx      sync.Mutex
	next     uint
	handlers map[uint]handler[T]
}

func (hn *handlersFor[T]) register(h T, async bool) NotificationRegistration {
	var id uint

	hn.mtx.Lock()
	id, hn.next = hn.next, hn.next+1
	if hn.handlers == nil {
		hn.handlers = make(map[uint]handler[T])
	}
	hn.handlers[id] = handler[T]{handler: h, async: async}
	registered := true
	hn.mtx.Unlock()

	return NotificationRegistration{
		unreg: func() bool {
			hn.mtx.Lock()
			res := registered
			if registered {
				delete(hn.handlers, id)
				registered = false
			}
			hn.mtx.Unlock()
			return res
		},
	}
}

func (hn *handlersFor[T]) visit(f func(T)) {
	hn.mtx.Lock()
	for _, h := range hn.handlers {
		if h.async {
			go f(h.handler)
		} else {
			f(h.handler)
		}
	}
	hn.mtx.Unlock()
}

func (hn *handlersFor[T]) Register(v interface{}, async bool) NotificationRegistration {
	if h, ok := v.(T); !ok {
		panic("wrong type")
	} else {
		return hn.register(h, async)
	}
}

func (hn *handlersFor[T]) AnyRegistered() bool {
	hn.mtx.Lock()
	res := len(hn.handlers) > 0
	hn.mtx.Unlock()
	return res
}

type handlersRegistry interface {
	Register(v interface{}, async bool) NotificationRegistration
	AnyRegistered() bool
}

// NotificationManager dispatches typed game notifications to registered
// handlers.
type NotificationManager struct {
	handlers map[string]handlersRegistry
}

func (nmgr *NotificationManager) register(handler NotificationHandler, async bool) NotificationRegistration {
	handlers := nmgr.handlers[handler.typ()]
	if handlers == nil {
		panic(fmt.Sprintf("forgot to init the handler type %T "+
			"in NewNotificationManager", handler))
	}

	return handlers.Register(handler, async)
}

// Register registers a callback notification function that is called
// asynchronously to the event (i.e. in a separate goroutine).
func (nmgr *NotificationManager) Register(handler NotificationHandler) NotificationRegistration {
	return nmgr.register(handler, true)
}

// RegisterSync registers a callback notification function that is called
// synchronously to the event. This callback SHOULD return as soon as
// possible, otherwise the client might hang.
//
// Synchronous callbacks are mostly intended for tests and when external
// callers need to ensure proper order of multiple sequential events. In
// general it is preferable to use callbacks registered with the Register
// call, to ensure the client will not deadlock or hang.
func (nmgr *NotificationManager) RegisterSync(handler NotificationHandler) NotificationRegistration {
	return nmgr.register(handler, false)
}

// AnyRegistered returns true if there are any handlers registered for the
// given handler type.
func (nmgr *NotificationManager) AnyRegistered(handler NotificationHandler) bool {
	return nmgr.handlers[handler.typ()].AnyRegistered()
}

// Following are the notifyX() calls (one for each type of notification).

func (nmgr *NotificationManager) notifyTest() {
	nmgr.handlers[onTestNtfnType].(*handlersFor[onTestNtfn]).
		visit(func(h onTestNtfn) { h() })
}

func (nmgr *NotificationManager) notifyHandStarted(hs protocol.HandStarted, ts time.Time) {
	nmgr.handlers[onHandStartedNtfnType].(*handlersFor[OnHandStartedNtfn]).
		visit(func(h OnHandStartedNtfn) { h(hs, ts) })
}

func (nmgr *NotificationManager) notifyHoleCards(hc protocol.HoleCards, ts time.Time) {
	nmgr.handlers[onHoleCardsNtfnType].(*handlersFor[OnHoleCardsNtfn]).
		visit(func(h OnHoleCardsNtfn) { h(hc, ts) })
}

func (nmgr *NotificationManager) notifyGameStateUpdated(gs protocol.GameState, ts time.Time) {
	nmgr.handlers[onGameStateUpdatedNtfnType].(*handlersFor[OnGameStateUpdatedNtfn]).
		visit(func(h OnGameStateUpdatedNtfn) { h(gs, ts) })
}

func (nmgr *NotificationManager) notifyPlayerTurn(pt protocol.PlayerTurn, ts time.Time) {
	nmgr.handlers[onPlayerTurnNtfnType].(*handlersFor[OnPlayerTurnNtfn]).
		visit(func(h OnPlayerTurnNtfn) { h(pt, ts) })
}

func (nmgr *NotificationManager) notifyHandComplete(hc protocol.HandComplete, ts time.Time) {
	nmgr.handlers[onHandCompleteNtfnType].(*handlersFor[OnHandCompleteNtfn]).
		visit(func(h OnHandCompleteNtfn) { h(hc, ts) })
}

func (nmgr *NotificationManager) notifyTableMessage(sm protocol.ShowMessage, ts time.Time) {
	nmgr.handlers[onTableMessageNtfnType].(*handlersFor[OnTableMessageNtfn]).
		visit(func(h OnTableMessageNtfn) { h(sm, ts) })
}

func (nmgr *NotificationManager) notifyError(er protocol.ErrorReply, ts time.Time) {
	nmgr.handlers[onErrorNtfnType].(*handlersFor[OnErrorNtfn]).
		visit(func(h OnErrorNtfn) { h(er, ts) })
}

func NewNotificationManager() *NotificationManager {
	return &NotificationManager{
		handlers: map[string]handlersRegistry{
			onTestNtfnType:             &handlersFor[onTestNtfn]{},
			onHandStartedNtfnType:      &handlersFor[OnHandStartedNtfn]{},
			onHoleCardsNtfnType:        &handlersFor[OnHoleCardsNtfn]{},
			onGameStateUpdatedNtfnType: &handlersFor[OnGameStateUpdatedNtfn]{},
			onPlayerTurnNtfnType:       &handlersFor[OnPlayerTurnNtfn]{},
			onHandCompleteNtfnType:     &handlersFor[OnHandCompleteNtfn]{},
			onTableMessageNtfnType:     &handlersFor[OnTableMessageNtfn]{},
			onErrorNtfnType:            &handlersFor[OnErrorNtfn]{},
		},
	}
}
