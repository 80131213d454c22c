package errors

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTemporary(t *testing.T) {
	err := Temporary(15*time.Second, "cluster has unreachable members, status=%s", "UNKNOWN")
	require.True(t, IsTemporary(err))
	require.Equal(t, 15*time.Second, Delay(err))
	require.Contains(t, err.Error(), "UNKNOWN")

	wrapped := fmt.Errorf("probing: %w", err)
	require.True(t, IsTemporary(wrapped))
	require.Equal(t, 15*time.Second, Delay(wrapped))

	require.False(t, IsTemporary(fmt.Errorf("boom")))
	require.Zero(t, Delay(fmt.Errorf("boom")))
}

func TestInvalidSpec(t *testing.T) {
	err := WrapInvalidSpec(fmt.Errorf("spec.instances must be between 1 and 9, got 0"))
	require.True(t, IsInvalidSpec(err))
	require.False(t, IsInvalidSpec(fmt.Errorf("boom")))
	require.Nil(t, WrapInvalidSpec(nil))
}

func TestShouldRequeue(t *testing.T) {
	ok, delay := ShouldRequeue(nil)
	require.False(t, ok)
	require.Zero(t, delay)

	ok, delay = ShouldRequeue(Temporary(10*time.Second, "sidecar not configured"))
	require.True(t, ok)
	require.Equal(t, 10*time.Second, delay)

	ok, delay = ShouldRequeue(WrapInvalidSpec(fmt.Errorf("bad")))
	require.True(t, ok)
	require.Equal(t, 30*time.Second, delay)

	// Conflict-style temporaries declare no delay and get the default.
	ok, delay = ShouldRequeue(Temporary(0, "update conflict"))
	require.True(t, ok)
	require.Equal(t, 5*time.Second, delay)

	// Unknown errors are re-raised so the platform backs off for us.
	ok, delay = ShouldRequeue(fmt.Errorf("boom"))
	require.False(t, ok)
	require.Zero(t, delay)
}

func TestIsTransientConnection(t *testing.T) {
	require.True(t, IsTransientConnection(fmt.Errorf("dial tcp 10.0.0.1:3306: connection refused")))
	require.True(t, IsTransientConnection(fmt.Errorf("read: i/o timeout")))
	require.False(t, IsTransientConnection(fmt.Errorf("access denied for user")))
	require.False(t, IsTransientConnection(nil))
}
