// Package monitor watches replication group membership from the outside.
// Each bootstrapped cluster gets one goroutine that polls a member for the
// current view id and reports changes. Polling is rate limited; membership
// churn during recovery would otherwise turn into a probe storm.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/time/rate"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	mysqlv2 "github.com/mysql-cluster/innodb-operator/api/v2"
	"github.com/mysql-cluster/innodb-operator/internal/constants"
	"github.com/mysql-cluster/innodb-operator/internal/member"
	"github.com/mysql-cluster/innodb-operator/internal/mysql"
)

// ViewChangeHandler is called outside any lock whenever a watched cluster's
// group view id changes. Implementations are expected to take the cluster's
// operation lock themselves.
type ViewChangeHandler func(ctx context.Context, cluster types.NamespacedName, viewID string)

// GroupMonitor runs one watcher goroutine per bootstrapped cluster. It
// implements manager.Runnable; Start performs a scan for clusters that
// already exist so watchers survive operator restarts.
type GroupMonitor struct {
	client  client.Client
	admin   mysql.GroupAdmin
	handler ViewChangeHandler
	log     logr.Logger

	// interval overrides the poll pacing in tests.
	interval time.Duration

	mu       sync.Mutex
	watchers map[types.NamespacedName]context.CancelFunc
	wg       sync.WaitGroup
}

// NewGroupMonitor constructs a GroupMonitor.
func NewGroupMonitor(c client.Client, admin mysql.GroupAdmin, handler ViewChangeHandler, log logr.Logger) *GroupMonitor {
	return &GroupMonitor{
		client:   c,
		admin:    admin,
		handler:  handler,
		log:      log,
		interval: constants.MonitorPollInterval,
		watchers: make(map[types.NamespacedName]context.CancelFunc),
	}
}

// Start implements manager.Runnable. It scans for clusters that are already
// bootstrapped, starts a watcher for each, and then blocks until the
// manager shuts down.
func (m *GroupMonitor) Start(ctx context.Context) error {
	clusters := &mysqlv2.InnoDBClusterList{}
	if err := m.client.List(ctx, clusters); err != nil {
		return err
	}
	for i := range clusters.Items {
		c := &clusters.Items[i]
		if c.Ready() && !c.Deleting() {
			m.Watch(ctx, types.NamespacedName{Namespace: c.Namespace, Name: c.Name})
		}
	}

	<-ctx.Done()

	m.mu.Lock()
	for _, cancel := range m.watchers {
		cancel()
	}
	m.watchers = make(map[types.NamespacedName]context.CancelFunc)
	m.mu.Unlock()

	m.wg.Wait()
	return nil
}

// NeedLeaderElection makes the monitor run only on the elected leader,
// alongside the reconcilers it feeds.
func (m *GroupMonitor) NeedLeaderElection() bool {
	return true
}

// Watch starts a watcher for the cluster if none runs yet. Idempotent.
func (m *GroupMonitor) Watch(ctx context.Context, cluster types.NamespacedName) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.watchers[cluster]; ok {
		return
	}

	watchCtx, cancel := context.WithCancel(ctx)
	m.watchers[cluster] = cancel
	m.wg.Add(1)
	go m.run(watchCtx, cluster)
	m.log.Info("Started group membership watch", "cluster", cluster)
}

// Forget stops the watcher of a deleted cluster.
func (m *GroupMonitor) Forget(cluster types.NamespacedName) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.watchers[cluster]; ok {
		cancel()
		delete(m.watchers, cluster)
		m.log.Info("Stopped group membership watch", "cluster", cluster)
	}
}

// Watching reports whether a watcher is active for the cluster.
func (m *GroupMonitor) Watching(cluster types.NamespacedName) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.watchers[cluster]
	return ok
}

func (m *GroupMonitor) run(ctx context.Context, cluster types.NamespacedName) {
	defer m.wg.Done()

	limiter := rate.NewLimiter(rate.Every(m.interval), 1)
	lastViewID := ""

	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		viewID, err := m.fetchViewID(ctx, cluster)
		if err != nil {
			m.log.V(1).Info("Group view poll failed", "cluster", cluster, "error", err.Error())
			continue
		}
		if viewID == "" || viewID == lastViewID {
			continue
		}

		if lastViewID != "" {
			m.handler(ctx, cluster, viewID)
		}
		lastViewID = viewID
	}
}

// fetchViewID reads the view id from the first reachable configured member.
func (m *GroupMonitor) fetchViewID(ctx context.Context, cluster types.NamespacedName) (string, error) {
	pods := &corev1.PodList{}
	err := m.client.List(ctx, pods,
		client.InNamespace(cluster.Namespace),
		client.MatchingLabels{
			constants.LabelCluster:   cluster.Name,
			constants.LabelComponent: constants.LabelValueComponentServer,
		})
	if err != nil {
		return "", err
	}

	var lastErr error
	for i := range pods.Items {
		mp := member.Wrap(&pods.Items[i])
		if mp.Deleting() || !mp.IsConfigured() {
			continue
		}
		view, verr := m.admin.FetchGroupView(ctx, mp.Address(cluster.Name)+":3306")
		if verr != nil {
			lastErr = verr
			continue
		}
		return view.ViewID, nil
	}
	return "", lastErr
}
