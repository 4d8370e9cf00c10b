package daemon

import (
	"github.com/hazyhaar/reactwatch/tree"
)

// Wait conditions accepted by the wait command.
const (
	WaitConnected = "connected"
	WaitComponent = "component"
)

// waiter is one pending wait registration. met is buffered so a signaller
// never blocks on a waiter that is timing out concurrently.
type waiter struct {
	condition string
	name      string // component display name, exact case-sensitive match
	met       chan struct{}
}

// waitRegistry holds pending waiters. Guarded by the daemon's mutex; the
// signalling methods are called on every state transition that can change
// a predicate's answer.
type waitRegistry struct {
	waiters map[*waiter]struct{}
}

func newWaitRegistry() *waitRegistry {
	return &waitRegistry{waiters: make(map[*waiter]struct{})}
}

func (r *waitRegistry) add(w *waiter) {
	r.waiters[w] = struct{}{}
}

func (r *waitRegistry) remove(w *waiter) {
	delete(r.waiters, w)
}

// signalConnected resolves every AppConnected waiter.
func (r *waitRegistry) signalConnected() {
	for w := range r.waiters {
		if w.condition == WaitConnected {
			w.resolve()
			delete(r.waiters, w)
		}
	}
}

// signalAdded resolves component waiters whose name appears among the
// nodes a batch just added.
func (r *waitRegistry) signalAdded(added []tree.AddedSummary) {
	if len(added) == 0 {
		return
	}
	names := make(map[string]bool, len(added))
	for _, a := range added {
		names[a.DisplayName] = true
	}
	for w := range r.waiters {
		if w.condition == WaitComponent && names[w.name] {
			w.resolve()
			delete(r.waiters, w)
		}
	}
}

func (w *waiter) resolve() {
	select {
	case w.met <- struct{}{}:
	default:
	}
}
