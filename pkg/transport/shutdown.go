package transport

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/decred/slog"
)

// Shutdown priority bands. Lower runs first, so services quiesce before
// the transports they talk over are torn down.
const (
	PriorityService   = 100
	PriorityTransport = 200
)

// ShutdownFunc tears down one participant. The ctx carries the deadline of
// the whole shutdown pass.
type ShutdownFunc func(ctx context.Context)

type shutdownParticipant struct {
	id       string
	priority int
	seq      int
	fn       ShutdownFunc
}

// ShutdownCoordinator runs registered teardown functions in ascending
// priority order, equal priorities in registration order. Participants
// register at construction and deregister when they dispose themselves.
type ShutdownCoordinator struct {
	mu           sync.Mutex
	participants map[string]*shutdownParticipant
	tornDown     map[string]bool
	seq          int
	log          slog.Logger

	shuttingDown atomic.Bool
}

// NewShutdownCoordinator returns an empty coordinator.
func NewShutdownCoordinator() *ShutdownCoordinator {
	return &ShutdownCoordinator{
		participants: make(map[string]*shutdownParticipant),
		tornDown:     make(map[string]bool),
		log:          slog.Disabled,
	}
}

func (c *ShutdownCoordinator) setLogger(log slog.Logger) {
	c.mu.Lock()
	c.log = log
	c.mu.Unlock()
}

// Register adds a participant. Registering an id again replaces its entry
// and clears any torn-down mark from a previous life.
func (c *ShutdownCoordinator) Register(id string, priority int, fn ShutdownFunc) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.participants[id] = &shutdownParticipant{
		id:       id,
		priority: priority,
		seq:      c.seq,
		fn:       fn,
	}
	delete(c.tornDown, id)
}

// Deregister removes a participant and reports whether it was registered.
func (c *ShutdownCoordinator) Deregister(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.participants[id]
	delete(c.participants, id)
	return ok
}

// IsTornDown reports whether id was processed (invoked or deadline-skipped)
// by a shutdown pass.
func (c *ShutdownCoordinator) IsTornDown(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tornDown[id]
}

// ShutdownAll invokes every participant in ascending priority order.
// Reentrant calls return immediately. Once the ctx deadline elapses the
// remaining participants are skipped, but they are still marked torn down
// so nothing reports as live after the pass.
func (c *ShutdownCoordinator) ShutdownAll(ctx context.Context) {
	if !c.shuttingDown.CompareAndSwap(false, true) {
		return
	}

	c.mu.Lock()
	ordered := make([]*shutdownParticipant, 0, len(c.participants))
	for _, p := range c.participants {
		ordered = append(ordered, p)
	}
	log := c.log
	c.mu.Unlock()

	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].priority != ordered[j].priority {
			return ordered[i].priority < ordered[j].priority
		}
		return ordered[i].seq < ordered[j].seq
	})

	for _, p := range ordered {
		if ctx.Err() != nil {
			log.Warnf("shutdown deadline reached, skipping %s", p.id)
			c.markTornDown(p.id)
			continue
		}
		log.Debugf("shutting down %s (priority %d)", p.id, p.priority)
		p.fn(ctx)
		c.markTornDown(p.id)
	}
	log.Infof("shutdown pass complete, %d participants processed", len(ordered))
}

func (c *ShutdownCoordinator) markTornDown(id string) {
	c.mu.Lock()
	c.tornDown[id] = true
	c.mu.Unlock()
}
