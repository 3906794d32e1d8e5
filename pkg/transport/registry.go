package transport

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/decred/slog"
)

// ErrDuplicateTransportID signals a second registration under an id the
// registry already holds.
var ErrDuplicateTransportID = errors.New("transport id already registered")

// Registry is the routing directory for one in-process fabric. Endpoints
// join on creation and leave on Close; siblings of the same registry can
// reach each other by id. Each registry owns a ShutdownCoordinator.
//
// Most programs use a single fabric via Default; an explicit Registry keeps
// tests and embedded fabrics isolated from each other.
type Registry struct {
	mu         sync.RWMutex
	transports map[string]*Transport

	coord *ShutdownCoordinator
	log   slog.Logger
}

// NewRegistry returns an empty fabric with its own shutdown coordinator.
func NewRegistry() *Registry {
	return &Registry{
		transports: make(map[string]*Transport),
		coord:      NewShutdownCoordinator(),
		log:        slog.Disabled,
	}
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry, created lazily on first use.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// SetLogger routes registry and coordinator diagnostics to log.
func (r *Registry) SetLogger(log slog.Logger) {
	r.mu.Lock()
	r.log = log
	r.mu.Unlock()
	r.coord.setLogger(log)
}

// Coordinator exposes the registry's shutdown coordinator so services can
// register their own teardown alongside their transports.
func (r *Registry) Coordinator() *ShutdownCoordinator { return r.coord }

// ShutdownAll tears down every registered participant in ascending
// priority order. See ShutdownCoordinator.ShutdownAll.
func (r *Registry) ShutdownAll(ctx context.Context) {
	r.coord.ShutdownAll(ctx)
}

// TransportIDs returns the ids currently registered, sorted.
func (r *Registry) TransportIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.transports))
	for id := range r.transports {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) register(t *Transport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.transports[t.id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTransportID, t.id)
	}
	r.transports[t.id] = t
	r.log.Debugf("registered transport %s", t.id)
	return nil
}

func (r *Registry) deregister(id string) {
	r.mu.Lock()
	delete(r.transports, id)
	r.mu.Unlock()
	r.coord.Deregister("transport:" + id)
}

func (r *Registry) lookup(id string) (*Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[id]
	return t, ok
}

// siblings snapshots every registered endpoint except excludeID.
func (r *Registry) siblings(excludeID string) []*Transport {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Transport, 0, len(r.transports))
	for id, t := range r.transports {
		if id == excludeID {
			continue
		}
		out = append(out, t)
	}
	return out
}

// completeAck finds the sibling holding the pending waiter for messageID
// and completes it. Message ids are unique, so at most one endpoint holds
// a waiter for a given id; LoadAndDelete makes the completion exclusive.
func (r *Registry) completeAck(messageID string, success bool, errMsg string) bool {
	r.mu.RLock()
	snapshot := make([]*Transport, 0, len(r.transports))
	for _, t := range r.transports {
		snapshot = append(snapshot, t)
	}
	r.mu.RUnlock()

	for _, t := range snapshot {
		if v, ok := t.pending.LoadAndDelete(messageID); ok {
			v.(*ackWaiter).complete(ackResult{ok: success, errMsg: errMsg})
			return true
		}
	}
	return false
}
