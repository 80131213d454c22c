// Package operationlock provides the per-cluster mutual exclusion used to
// serialize all mutating reconciliation work against one logical cluster.
//
// Pod events, spec-field changes, and group-membership callbacks arrive
// uncorrelated and unordered; the lock is the mechanism that turns them into
// a single consistent transition sequence. Acquisition blocks the calling
// handler until the lock is free and may carry the identity of the pod that
// triggered the work, for diagnostics.
package operationlock

import (
	"sync"

	"k8s.io/apimachinery/pkg/types"
)

// Set holds one mutex per known cluster. The zero value is not usable; use
// NewSet.
type Set struct {
	mu    sync.Mutex
	locks map[types.NamespacedName]*clusterLock
}

type clusterLock struct {
	mu sync.Mutex

	// holder is informational only, guarded by the Set mutex.
	holder string
}

// NewSet returns an empty lock set.
func NewSet() *Set {
	return &Set{locks: make(map[types.NamespacedName]*clusterLock)}
}

// Lock acquires the mutex for the given cluster, blocking until it is free,
// and returns the release function. holder optionally names the pod (or
// other actor) on whose behalf the lock is taken.
//
// Handlers take exactly one acquisition per handler body and release it on
// every exit path (defer the returned function immediately).
func (s *Set) Lock(cluster types.NamespacedName, holder string) func() {
	s.mu.Lock()
	l, ok := s.locks[cluster]
	if !ok {
		l = &clusterLock{}
		s.locks[cluster] = l
	}
	s.mu.Unlock()

	l.mu.Lock()

	s.mu.Lock()
	l.holder = holder
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		l.holder = ""
		s.mu.Unlock()
		l.mu.Unlock()
	}
}

// Holder returns the identity recorded by the current lock owner, or the
// empty string when the lock is free. Informational; the answer may be stale
// by the time the caller looks at it.
func (s *Set) Holder(cluster types.NamespacedName) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[cluster]; ok {
		return l.holder
	}
	return ""
}

// Forget drops the lock entry for a deleted cluster. The caller must not
// hold the cluster lock and must guarantee no further handlers for this
// cluster are in flight.
func (s *Set) Forget(cluster types.NamespacedName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, cluster)
}
