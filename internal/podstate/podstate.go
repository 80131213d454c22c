// Package podstate tracks per-pod information that lives only for the
// lifetime of the operator process: which pods have been observed at all,
// and the container restart counts seen on the last observation.
//
// The restart counters let the pod event handler detect a restart exactly
// once per counter increment even though the informer delivers many events
// per pod. Because the state is process local, the first event after an
// operator restart re-seeds the counters without reporting a restart; a
// restart that happens while the operator is down is intentionally not
// reported.
package podstate

import (
	"sync"

	"k8s.io/apimachinery/pkg/types"
)

// Tracker is safe for concurrent use.
type Tracker struct {
	mu   sync.Mutex
	pods map[types.NamespacedName]*entry
}

type entry struct {
	restarts int32
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{pods: make(map[types.NamespacedName]*entry)}
}

// Seen reports whether the pod has been observed by this operator process.
// The first observation of a pod is what distinguishes a pod-created event
// from a routine pod update.
func (t *Tracker) Seen(pod types.NamespacedName) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.pods[pod]
	return ok
}

// Observe records the current restart count for a pod and returns whether
// this observation is a restart, that is whether the pod was already seen
// and the count increased since the previous observation.
//
// The first observation never reports a restart; it only seeds the counter.
func (t *Tracker) Observe(pod types.NamespacedName, restarts int32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.pods[pod]
	if !ok {
		t.pods[pod] = &entry{restarts: restarts}
		return false
	}

	restarted := restarts > e.restarts
	e.restarts = restarts
	return restarted
}

// Restarts returns the last observed restart count, or 0 when the pod has
// not been observed.
func (t *Tracker) Restarts(pod types.NamespacedName) int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.pods[pod]; ok {
		return e.restarts
	}
	return 0
}

// Forget drops the state for a deleted pod so that a recreated pod with the
// same name is treated as new.
func (t *Tracker) Forget(pod types.NamespacedName) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pods, pod)
}
