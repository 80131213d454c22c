package operationlock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/types"
)

func TestLockSerializesHandlers(t *testing.T) {
	set := NewSet()
	cluster := types.NamespacedName{Namespace: "testns", Name: "mycluster"}

	const workers = 8
	const iterations = 50

	var counter int
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				release := set.Lock(cluster, "worker")
				// Non-atomic read-modify-write; only safe when the
				// lock actually excludes concurrent holders.
				v := counter
				counter = v + 1
				release()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, workers*iterations, counter)
}

func TestLockIndependentPerCluster(t *testing.T) {
	set := NewSet()
	a := types.NamespacedName{Namespace: "ns", Name: "a"}
	b := types.NamespacedName{Namespace: "ns", Name: "b"}

	releaseA := set.Lock(a, "mycluster-0")

	// Locking a different cluster must not block.
	done := make(chan struct{})
	go func() {
		release := set.Lock(b, "other-0")
		release()
		close(done)
	}()
	<-done

	require.Equal(t, "mycluster-0", set.Holder(a))
	releaseA()
	require.Empty(t, set.Holder(a))
}

func TestForget(t *testing.T) {
	set := NewSet()
	cluster := types.NamespacedName{Namespace: "ns", Name: "gone"}

	release := set.Lock(cluster, "gone-0")
	release()
	set.Forget(cluster)

	require.Empty(t, set.Holder(cluster))

	// A fresh entry is created transparently on the next acquisition.
	release = set.Lock(cluster, "gone-1")
	require.Equal(t, "gone-1", set.Holder(cluster))
	release()
}
