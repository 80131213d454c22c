package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	mysqlv2 "github.com/mysql-cluster/innodb-operator/api/v2"
	"github.com/mysql-cluster/innodb-operator/internal/constants"
	"github.com/mysql-cluster/innodb-operator/internal/mysql"
)

// switchingAdmin serves a view id that can be flipped during the test.
type switchingAdmin struct {
	mu     sync.Mutex
	viewID string
}

func (a *switchingAdmin) setViewID(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.viewID = id
}

func (a *switchingAdmin) FetchGroupView(_ context.Context, addr string) (*mysql.GroupView, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return &mysql.GroupView{ViewID: a.viewID, Source: addr}, nil
}

func (a *switchingAdmin) RemoveInstance(context.Context, string, string) error { return nil }

func (a *switchingAdmin) RejoinInstance(context.Context, string) error { return nil }

func (a *switchingAdmin) RebootFromCompleteOutage(context.Context, string) error { return nil }

func configuredPod(name string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "testns",
			Labels: map[string]string{
				constants.LabelCluster:   "mycluster",
				constants.LabelComponent: constants.LabelValueComponentServer,
			},
		},
		Status: corev1.PodStatus{
			Conditions: []corev1.PodCondition{
				{Type: corev1.PodConditionType(constants.ReadinessGateConfigured), Status: corev1.ConditionTrue},
			},
		},
	}
}

func TestWatchReportsViewChanges(t *testing.T) {
	scheme := runtime.NewScheme()
	require.NoError(t, clientgoscheme.AddToScheme(scheme))
	require.NoError(t, mysqlv2.AddToScheme(scheme))
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(configuredPod("mycluster-0")).Build()

	admin := &switchingAdmin{viewID: "1:10"}

	changes := make(chan string, 8)
	m := NewGroupMonitor(c, admin, func(_ context.Context, _ types.NamespacedName, viewID string) {
		changes <- viewID
	}, logr.Discard())
	m.interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	key := types.NamespacedName{Namespace: "testns", Name: "mycluster"}
	m.Watch(ctx, key)
	require.True(t, m.Watching(key))

	// The baseline view must not be reported; only the transition is.
	select {
	case v := <-changes:
		t.Fatalf("unexpected change report for baseline view %s", v)
	case <-time.After(50 * time.Millisecond):
	}

	admin.setViewID("1:11")
	select {
	case v := <-changes:
		require.Equal(t, "1:11", v)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for view change report")
	}

	m.Forget(key)
	require.False(t, m.Watching(key))
}

func TestStartScansExistingClusters(t *testing.T) {
	scheme := runtime.NewScheme()
	require.NoError(t, clientgoscheme.AddToScheme(scheme))
	require.NoError(t, mysqlv2.AddToScheme(scheme))

	ready := &mysqlv2.InnoDBCluster{
		ObjectMeta: metav1.ObjectMeta{Name: "mycluster", Namespace: "testns"},
		Spec:       mysqlv2.InnoDBClusterSpec{SecretName: "mypwds", Instances: 3},
	}
	ready.SetCreateTime(metav1.Now())

	pending := &mysqlv2.InnoDBCluster{
		ObjectMeta: metav1.ObjectMeta{Name: "newcluster", Namespace: "testns"},
		Spec:       mysqlv2.InnoDBClusterSpec{SecretName: "mypwds", Instances: 1},
	}

	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(ready, pending).Build()
	m := NewGroupMonitor(c, &switchingAdmin{}, func(context.Context, types.NamespacedName, string) {}, logr.Discard())
	m.interval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Start(ctx) }()

	require.Eventually(t, func() bool {
		return m.Watching(types.NamespacedName{Namespace: "testns", Name: "mycluster"})
	}, 2*time.Second, 5*time.Millisecond)
	require.False(t, m.Watching(types.NamespacedName{Namespace: "testns", Name: "newcluster"}))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop on context cancellation")
	}
}
