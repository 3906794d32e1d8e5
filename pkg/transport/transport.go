// Package transport implements the in-process pub/sub fabric: addressable
// transport endpoints with subscription routing by type, source or
// wildcard, delivery acknowledgements with timeout, broadcast across
// sibling endpoints, and priority-ordered coordinated shutdown.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/slog"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vctt94/pokerfabric/pkg/message"
)

// DefaultAckTimeout bounds the wait for a delivery acknowledgement when a
// config does not set one.
const DefaultAckTimeout = 5 * time.Second

var (
	// ErrTransportDisposed is returned by lifecycle calls on a disposed
	// transport. Routing calls report it as a boolean false instead.
	ErrTransportDisposed = errors.New("transport is disposed")

	// ErrNotRunning signals delivery to an endpoint that has not been
	// started or was stopped.
	ErrNotRunning = errors.New("transport is not running")
)

// Handler consumes a delivered message. Returning an error marks the
// delivery as failed for acknowledgement purposes; panics are recovered
// and treated the same way.
type Handler func(ctx context.Context, msg *message.Message) error

// Config carries the per-endpoint settings applied by Initialize.
type Config struct {
	// ServiceName identifies the owning service in logs. Defaults to the
	// transport id.
	ServiceName string

	// AckTimeout bounds Send when the message requires acknowledgement.
	AckTimeout time.Duration

	// DefaultContentType is stamped on builders from NewMessage.
	DefaultContentType string

	// Log receives the transport's diagnostics.
	Log slog.Logger
}

type predicateKind int

const (
	predicateAll predicateKind = iota
	predicateType
	predicateSource
)

// subscription binds a routing predicate to a handler. The id string
// encodes the predicate kind so unsubscribe needs no separate lookup.
type subscription struct {
	id      string
	kind    predicateKind
	match   string
	handler Handler
}

func (s *subscription) matches(msg *message.Message) bool {
	switch s.kind {
	case predicateType:
		return msg.Type() == s.match
	case predicateSource:
		return msg.SenderID() == s.match
	default:
		return true
	}
}

func subscriptionID(kind predicateKind, match string) string {
	fresh := uuid.New().String()
	switch kind {
	case predicateType:
		return "type:" + match + ":" + fresh
	case predicateSource:
		return "source:" + match + ":" + fresh
	default:
		return "all:" + fresh
	}
}

type ackResult struct {
	ok     bool
	errMsg string
}

// ackWaiter parks one Send until its acknowledgement arrives. The pending
// map's LoadAndDelete makes each waiter single-consumer; the once guards
// the completion write regardless.
type ackWaiter struct {
	once sync.Once
	ch   chan ackResult
}

func newAckWaiter() *ackWaiter {
	return &ackWaiter{ch: make(chan ackResult, 1)}
}

func (w *ackWaiter) complete(res ackResult) {
	w.once.Do(func() { w.ch <- res })
}

// Transport is one addressable endpoint of the fabric. All methods are safe
// for concurrent use. Routing methods (Send, Broadcast, Subscribe,
// Unsubscribe, Acknowledge) never panic on a stopped or disposed endpoint;
// they report failure through their return values.
type Transport struct {
	id  string
	reg *Registry

	mu       sync.RWMutex
	cfg      Config
	running  bool
	disposed bool
	log      slog.Logger

	subs    sync.Map // subscription id -> *subscription
	pending sync.Map // message id -> *ackWaiter

	delivered atomic.Uint64
	failures  atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
}

// NewTransport creates an endpoint and joins it to the registry. An empty
// id gets a generated one. The endpoint also registers with the registry's
// shutdown coordinator at PriorityTransport.
func NewTransport(reg *Registry, id string) (*Transport, error) {
	if reg == nil {
		reg = Default()
	}
	if id == "" {
		id = uuid.New().String()
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		id:  id,
		reg: reg,
		cfg: Config{
			ServiceName:        id,
			AckTimeout:         DefaultAckTimeout,
			DefaultContentType: message.DefaultContentType,
		},
		log:    slog.Disabled,
		ctx:    ctx,
		cancel: cancel,
	}
	if err := reg.register(t); err != nil {
		cancel()
		return nil, err
	}
	reg.coord.Register("transport:"+id, PriorityTransport, func(context.Context) {
		t.Close()
	})
	return t, nil
}

// ID returns the endpoint's address in the registry.
func (t *Transport) ID() string { return t.id }

// Initialize applies cfg. It is idempotent and fails only on a disposed
// endpoint.
func (t *Transport) Initialize(cfg Config) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return fmt.Errorf("initialize %s: %w", t.id, ErrTransportDisposed)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = t.id
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = DefaultAckTimeout
	}
	if cfg.DefaultContentType == "" {
		cfg.DefaultContentType = message.DefaultContentType
	}
	t.cfg = cfg
	if cfg.Log != nil {
		t.log = cfg.Log
	}
	return nil
}

// Start transitions the endpoint to running. Sends and broadcasts before
// Start return false without raising.
func (t *Transport) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.disposed {
		return fmt.Errorf("start %s: %w", t.id, ErrTransportDisposed)
	}
	t.running = true
	t.log.Debugf("transport %s started", t.id)
	return nil
}

// Stop transitions to not-running and drains every pending ack waiter with
// a negative completion.
func (t *Transport) Stop() {
	t.mu.Lock()
	if t.disposed || !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.mu.Unlock()

	t.drainPending("transport stopped")
	t.log.Debugf("transport %s stopped", t.id)
}

// Close disposes the endpoint: cancels its waiters, leaves the registry
// and the shutdown coordinator. Idempotent. Afterwards all routing calls
// are no-ops returning false.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return nil
	}
	t.disposed = true
	t.running = false
	t.mu.Unlock()

	t.cancel()
	t.drainPending("transport disposed")
	t.reg.deregister(t.id)
	t.log.Debugf("transport %s disposed", t.id)
	return nil
}

func (t *Transport) isRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.running && !t.disposed
}

func (t *Transport) isDisposed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.disposed
}

func (t *Transport) ackTimeout() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cfg.AckTimeout
}

func (t *Transport) drainPending(reason string) {
	t.pending.Range(func(key, _ any) bool {
		if v, ok := t.pending.LoadAndDelete(key); ok {
			v.(*ackWaiter).complete(ackResult{ok: false, errMsg: reason})
		}
		return true
	})
}

// NewMessage starts a builder pre-addressed from this endpoint, with the
// configured default content type.
func (t *Transport) NewMessage(msgType string) *message.Builder {
	t.mu.RLock()
	ct := t.cfg.DefaultContentType
	t.mu.RUnlock()
	return message.NewBuilder(msgType).Sender(t.id).ContentType(ct)
}

// Subscribe registers handler for messages whose type equals msgType and
// returns the subscription id, or "" on a disposed endpoint.
func (t *Transport) Subscribe(msgType string, handler Handler) string {
	return t.addSubscription(predicateType, msgType, handler)
}

// SubscribeToSource registers handler for messages whose sender equals
// senderID.
func (t *Transport) SubscribeToSource(senderID string, handler Handler) string {
	return t.addSubscription(predicateSource, senderID, handler)
}

// SubscribeToAll registers handler for every message delivered to this
// endpoint.
func (t *Transport) SubscribeToAll(handler Handler) string {
	return t.addSubscription(predicateAll, "", handler)
}

func (t *Transport) addSubscription(kind predicateKind, match string, handler Handler) string {
	if handler == nil || t.isDisposed() {
		return ""
	}
	id := subscriptionID(kind, match)
	t.subs.Store(id, &subscription{id: id, kind: kind, match: match, handler: handler})
	return id
}

// Unsubscribe removes the subscription and reports whether a binding
// existed. Removal is idempotent: the second call returns false.
func (t *Transport) Unsubscribe(id string) bool {
	if t.isDisposed() {
		return false
	}
	_, existed := t.subs.LoadAndDelete(id)
	return existed
}

// Send routes msg to the sibling endpoint named by destination and reports
// success. Without ack-requirement it returns after every matching handler
// at the destination completed. With ack-requirement it waits for the
// acknowledgement, bounded by the configured AckTimeout; the caller ctx
// aborts the wait without retracting the delivered message.
func (t *Transport) Send(ctx context.Context, destination string, msg *message.Message) bool {
	if msg == nil || !t.isRunning() {
		return false
	}
	dest, ok := t.reg.lookup(destination)
	if !ok {
		t.log.Warnf("send: unknown destination %q for message %s", destination, msg.ID())
		return false
	}
	if !dest.isRunning() {
		t.log.Warnf("send: destination %q is not running", destination)
		return false
	}

	if !msg.RequireAck() {
		if err := dest.deliver(ctx, msg); err != nil && errors.Is(err, ErrNotRunning) {
			return false
		}
		return true
	}

	w := newAckWaiter()
	t.pending.Store(msg.ID(), w)

	// Delivery runs under the destination's lifetime so the caller ctx
	// bounds only the wait below.
	go func() {
		if err := dest.deliver(dest.ctx, msg); err != nil && errors.Is(err, ErrNotRunning) {
			if v, ok := t.pending.LoadAndDelete(msg.ID()); ok {
				v.(*ackWaiter).complete(ackResult{ok: false, errMsg: err.Error()})
			}
		}
	}()

	timer := time.NewTimer(t.ackTimeout())
	defer timer.Stop()
	select {
	case res := <-w.ch:
		if !res.ok && res.errMsg != "" {
			t.log.Debugf("send: negative ack for message %s: %s", msg.ID(), res.errMsg)
		}
		return res.ok
	case <-timer.C:
		t.pending.Delete(msg.ID())
		t.log.Warnf("send: ack timeout for message %s (type %s)", msg.ID(), msg.Type())
		return false
	case <-ctx.Done():
		t.pending.Delete(msg.ID())
		return false
	case <-t.ctx.Done():
		t.pending.Delete(msg.ID())
		return false
	}
}

// Broadcast delivers msg to every other running sibling. Per-sibling
// failures are logged and do not abort the rest; the call returns true
// unless this endpoint itself cannot route. It returns after every
// sibling's delivery completed.
func (t *Transport) Broadcast(ctx context.Context, msg *message.Message) bool {
	if msg == nil || !t.isRunning() {
		return false
	}

	var g errgroup.Group
	for _, sib := range t.reg.siblings(t.id) {
		if !sib.isRunning() {
			continue
		}
		sib := sib
		g.Go(func() error {
			return sib.deliver(ctx, msg)
		})
	}
	if err := g.Wait(); err != nil {
		t.log.Warnf("broadcast: delivery failure for message %s: %v", msg.ID(), err)
	}
	return true
}

// Acknowledge completes the pending waiter for messageID on whichever
// sibling holds it. At most one sibling holds a given id. It reports
// whether a waiter was found.
func (t *Transport) Acknowledge(messageID string, success bool, errMsg string) bool {
	if t.isDisposed() {
		return false
	}
	return t.reg.completeAck(messageID, success, errMsg)
}

// Stats returns how many messages this endpoint delivered to handlers and
// how many handler invocations failed.
func (t *Transport) Stats() (delivered, failures uint64) {
	return t.delivered.Load(), t.failures.Load()
}

// deliver routes msg to this endpoint's matching subscriptions. Handlers
// run concurrently; deliver returns once all of them finished. When the
// message requires acknowledgement, the receiver auto-acks: positive if
// every handler succeeded, negative with the first error otherwise.
func (t *Transport) deliver(ctx context.Context, msg *message.Message) error {
	if !t.isRunning() {
		return fmt.Errorf("deliver to %s: %w", t.id, ErrNotRunning)
	}

	// Snapshot matching subscriptions so deliveries in flight are not
	// affected by concurrent subscribe/unsubscribe.
	var matched []*subscription
	t.subs.Range(func(_, v any) bool {
		sub := v.(*subscription)
		if sub.matches(msg) {
			matched = append(matched, sub)
		}
		return true
	})

	var g errgroup.Group
	for _, sub := range matched {
		sub := sub
		g.Go(func() error {
			return t.invoke(ctx, sub, msg)
		})
	}
	err := g.Wait()

	t.delivered.Add(1)
	if msg.RequireAck() {
		if err != nil {
			t.reg.completeAck(msg.ID(), false, err.Error())
		} else {
			t.reg.completeAck(msg.ID(), true, "")
		}
	}
	return err
}

// invoke runs one handler, recovering panics into errors.
func (t *Transport) invoke(ctx context.Context, sub *subscription, msg *message.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
		if err != nil {
			t.failures.Add(1)
			t.log.Warnf("subscription %s failed on %s message %s: %v",
				sub.id, msg.Type(), msg.ID(), err)
		}
	}()
	return sub.handler(ctx, msg)
}
