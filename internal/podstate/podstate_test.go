package podstate

import (
	"testing"

	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/types"
)

func TestObserveSeedsWithoutRestart(t *testing.T) {
	tracker := NewTracker()
	pod := types.NamespacedName{Namespace: "testns", Name: "mycluster-0"}

	require.False(t, tracker.Seen(pod))

	// Even a nonzero first count is a seed, not a restart. The operator may
	// have been restarted after the pod already restarted.
	require.False(t, tracker.Observe(pod, 3))
	require.True(t, tracker.Seen(pod))
	require.Equal(t, int32(3), tracker.Restarts(pod))
}

func TestObserveDetectsRestartOnce(t *testing.T) {
	tracker := NewTracker()
	pod := types.NamespacedName{Namespace: "testns", Name: "mycluster-1"}

	tracker.Observe(pod, 0)
	require.True(t, tracker.Observe(pod, 1))

	// Repeated events with the same count do not re-report.
	require.False(t, tracker.Observe(pod, 1))
	require.True(t, tracker.Observe(pod, 2))
}

func TestForgetResetsPod(t *testing.T) {
	tracker := NewTracker()
	pod := types.NamespacedName{Namespace: "testns", Name: "mycluster-0"}

	tracker.Observe(pod, 5)
	tracker.Forget(pod)

	require.False(t, tracker.Seen(pod))
	require.False(t, tracker.Observe(pod, 0))
}
