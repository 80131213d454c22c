// Package innodbcluster holds the cluster-level control logic that sits
// between the Kubernetes reconcilers and the database servers. All group
// replication operations go through here, and every method expects the
// caller to hold the cluster's operation lock.
package innodbcluster

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/client"

	mysqlv2 "github.com/mysql-cluster/innodb-operator/api/v2"
	"github.com/mysql-cluster/innodb-operator/internal/constants"
	"github.com/mysql-cluster/innodb-operator/internal/diagnose"
	operatorerrors "github.com/mysql-cluster/innodb-operator/internal/errors"
	"github.com/mysql-cluster/innodb-operator/internal/factory"
	"github.com/mysql-cluster/innodb-operator/internal/member"
	"github.com/mysql-cluster/innodb-operator/internal/mysql"
)

// Controller drives a single logical cluster through its lifecycle. One
// instance serves all clusters; per-cluster serialization comes from the
// operation lock held by the callers.
type Controller struct {
	client   client.Client
	factory  *factory.Manager
	prober   diagnose.Prober
	admin    mysql.GroupAdmin
	recorder record.EventRecorder
	log      logr.Logger

	mu         sync.Mutex
	lastProbes map[types.NamespacedName]time.Time
}

// NewController constructs a Controller.
func NewController(c client.Client, f *factory.Manager, p diagnose.Prober, admin mysql.GroupAdmin, recorder record.EventRecorder, log logr.Logger) *Controller {
	return &Controller{
		client:     c,
		factory:    f,
		prober:     p,
		admin:      admin,
		recorder:   recorder,
		log:        log,
		lastProbes: make(map[types.NamespacedName]time.Time),
	}
}

// OnPodCreated handles the first sighting of a configured server pod. The
// seed pod of a not-yet-bootstrapped cluster marks the cluster created and
// brings the routers up; later pods only refresh the status.
func (c *Controller) OnPodCreated(ctx context.Context, cluster *mysqlv2.InnoDBCluster, pod *member.Pod) error {
	log := c.log.WithValues("cluster", cluster.Name, "pod", pod.Name)

	if pod.AddMembershipFinalizer() {
		if err := c.client.Update(ctx, pod.Pod); err != nil {
			if apierrors.IsConflict(err) {
				return operatorerrors.Temporary(0, "conflict adding finalizer to pod %s: %v", pod.Name, err)
			}
			return fmt.Errorf("failed to add finalizer to pod %s: %w", pod.Name, err)
		}
	}

	idx, err := pod.Index()
	if err != nil {
		return err
	}

	if !cluster.Ready() {
		if idx != 0 {
			// Later pods cannot do anything before the seed bootstraps.
			return operatorerrors.Temporary(constants.RetryClusterNotReady,
				"cluster %s not yet bootstrapped, pod %s waiting", cluster.Name, pod.Name)
		}
		if err := c.bootstrapFromSeed(ctx, log, cluster, pod); err != nil {
			return err
		}
		c.recorder.Eventf(cluster, corev1.EventTypeNormal, "ClusterBootstrapped",
			"Group bootstrapped from seed instance %s", pod.Name)
	} else {
		c.recorder.Eventf(cluster, corev1.EventTypeNormal, "InstanceJoined",
			"Instance %s joined the cluster", pod.Name)
	}

	return c.ProbeStatus(ctx, cluster, true)
}

// bootstrapFromSeed settles the group on the seed pod and stamps the
// cluster's create time. Stamping happens last; if anything before it
// fails the whole sequence reruns on the next attempt.
func (c *Controller) bootstrapFromSeed(ctx context.Context, log logr.Logger, cluster *mysqlv2.InnoDBCluster, pod *member.Pod) error {
	addr := pod.Address(cluster.Name) + ":3306"

	view, err := c.admin.FetchGroupView(ctx, addr)
	if err != nil {
		if operatorerrors.IsTemporary(err) {
			return operatorerrors.Temporary(constants.RetrySidecarNotConfigured,
				"seed instance %s not reachable yet: %v", pod.Name, err)
		}
		return err
	}

	if view.ViewID == "" {
		log.Info("Bootstrapping replication group on seed instance")
		if err := c.admin.RebootFromCompleteOutage(ctx, addr); err != nil {
			return err
		}
	}

	cluster.SetCreateTime(metav1.Now())
	if err := c.client.Update(ctx, cluster); err != nil {
		if apierrors.IsConflict(err) {
			return operatorerrors.Temporary(0, "conflict marking cluster %s created: %v", cluster.Name, err)
		}
		return fmt.Errorf("failed to mark cluster %s created: %w", cluster.Name, err)
	}

	// Routers were held at zero replicas until now.
	if cluster.Spec.Router.Instances > 0 {
		if err := c.factory.ScaleRouters(ctx, cluster, cluster.Spec.Router.Instances); err != nil {
			return err
		}
	}

	return nil
}

// OnPodRestarted handles a server container restart observed on a pod that
// was already a member. The sidecar rejoins the instance on its own; the
// controller's job is to re-probe and surface the event.
func (c *Controller) OnPodRestarted(ctx context.Context, cluster *mysqlv2.InnoDBCluster, pod *member.Pod) error {
	c.recorder.Eventf(cluster, corev1.EventTypeWarning, "InstanceRestarted",
		"Server container of %s restarted (count %d)", pod.Name, pod.ServerRestarts())

	if cluster.Ready() && !cluster.Deleting() {
		addr := pod.Address(cluster.Name) + ":3306"
		view, err := c.admin.FetchGroupView(ctx, addr)
		if err == nil && view.ViewID == "" {
			// Group replication did not come back after the restart.
			c.log.Info("Rejoining restarted instance", "cluster", cluster.Name, "pod", pod.Name)
			if err := c.admin.RejoinInstance(ctx, addr); err != nil {
				return err
			}
			c.recorder.Eventf(cluster, corev1.EventTypeNormal, "InstanceRejoined",
				"Instance %s rejoined the group after restart", pod.Name)
		}
		// An unreachable instance surfaces through the probe below.
	}

	return c.ProbeStatus(ctx, cluster, true)
}

// OnPodDeleted removes a deleted pod's server from the group metadata and
// releases the membership finalizer so the pod can go away. Called for pods
// with a deletion timestamp that still carry the finalizer.
func (c *Controller) OnPodDeleted(ctx context.Context, cluster *mysqlv2.InnoDBCluster, pod *member.Pod) error {
	log := c.log.WithValues("cluster", cluster.Name, "pod", pod.Name)

	if cluster.Ready() && !cluster.Deleting() {
		if err := c.removeFromGroup(ctx, log, cluster, pod); err != nil {
			return err
		}
	}
	// During cluster teardown the whole group is going away; removing each
	// member from metadata would just fight the shrinking group.

	if pod.RemoveMembershipFinalizer() {
		if err := c.client.Update(ctx, pod.Pod); err != nil {
			if apierrors.IsNotFound(err) {
				return nil
			}
			if apierrors.IsConflict(err) {
				return operatorerrors.Temporary(0, "conflict releasing finalizer of pod %s: %v", pod.Name, err)
			}
			return fmt.Errorf("failed to release finalizer of pod %s: %w", pod.Name, err)
		}
	}

	c.recorder.Eventf(cluster, corev1.EventTypeNormal, "InstanceRemoved",
		"Instance %s removed from the cluster", pod.Name)
	return nil
}

func (c *Controller) removeFromGroup(ctx context.Context, log logr.Logger, cluster *mysqlv2.InnoDBCluster, pod *member.Pod) error {
	result, err := c.prober.Probe(ctx, cluster)
	if err != nil {
		return err
	}
	if result.PrimaryAddress == "" {
		// No reachable primary. If the group is gone there is nothing to
		// remove from; otherwise retry until a primary shows up.
		if result.Status == mysqlv2.ClusterStatusOffline || result.Status == mysqlv2.ClusterStatusFinalizing {
			return nil
		}
		return operatorerrors.Temporary(constants.RetryUnreachableMembers,
			"no reachable primary to remove %s through (status %s)", pod.Name, result.Status)
	}

	memberAddr := pod.Address(cluster.Name) + ":3306"
	log.Info("Removing instance from group metadata", "primary", result.PrimaryAddress)
	return c.admin.RemoveInstance(ctx, result.PrimaryAddress, memberAddr)
}

// OnServerVersionChange reacts to a spec.version edit. Downgrades are
// rejected as invalid; upgrades re-apply the StatefulSet so the rolling
// update picks up the new image.
func (c *Controller) OnServerVersionChange(ctx context.Context, log logr.Logger, cluster *mysqlv2.InnoDBCluster, oldVersion, newVersion string) error {
	if compareVersions(newVersion, oldVersion) < 0 {
		return operatorerrors.WrapInvalidSpec(
			fmt.Errorf("version downgrade from %s to %s is not supported", oldVersion, newVersion))
	}

	log.Info("Server version changed", "from", oldVersion, "to", newVersion)
	c.recorder.Eventf(cluster, corev1.EventTypeNormal, "VersionChange",
		"Server version changing from %s to %s", oldVersion, newVersion)
	return c.factory.EnsureAll(ctx, log, cluster)
}

// OnServerImageChange reacts to image, imageRepository, or imagePullPolicy
// edits by re-applying the dependent resources.
func (c *Controller) OnServerImageChange(ctx context.Context, log logr.Logger, cluster *mysqlv2.InnoDBCluster, oldImage, newImage string) error {
	log.Info("Server image changed", "from", oldImage, "to", newImage)
	c.recorder.Eventf(cluster, corev1.EventTypeNormal, "ImageChange",
		"Server image changing from %s to %s", oldImage, newImage)
	return c.factory.EnsureAll(ctx, log, cluster)
}

// OnGroupViewChange handles a membership change noticed by the group
// monitor. The view id itself is opaque; a change just means the status
// must be refreshed now.
func (c *Controller) OnGroupViewChange(ctx context.Context, cluster *mysqlv2.InnoDBCluster, viewID string) error {
	c.log.V(1).Info("Group view changed", "cluster", cluster.Name, "viewId", viewID)
	return c.ProbeStatus(ctx, cluster, true)
}

// ProbeStatusIfNeeded refreshes the cluster status unless a recent probe
// already covered it.
func (c *Controller) ProbeStatusIfNeeded(ctx context.Context, cluster *mysqlv2.InnoDBCluster) error {
	key := types.NamespacedName{Namespace: cluster.Namespace, Name: cluster.Name}

	c.mu.Lock()
	last, ok := c.lastProbes[key]
	c.mu.Unlock()
	if ok && time.Since(last) < constants.ProbeStaleness {
		return nil
	}
	return c.ProbeStatus(ctx, cluster, true)
}

// ProbeStatus probes the group and writes the result to the cluster status
// subresource. A fully unreachable group (UNKNOWN) is reported through a
// temporary error so the caller retries.
func (c *Controller) ProbeStatus(ctx context.Context, cluster *mysqlv2.InnoDBCluster, force bool) error {
	key := types.NamespacedName{Namespace: cluster.Namespace, Name: cluster.Name}

	result, err := c.prober.Probe(ctx, cluster)
	if err != nil {
		return err
	}

	// An UNKNOWN result never satisfies the staleness window; retry loops
	// relying on ProbeStatusIfNeeded must hit the group again.
	if result.Status != mysqlv2.ClusterStatusUnknown {
		c.mu.Lock()
		c.lastProbes[key] = result.ProbedAt
		c.mu.Unlock()
	}

	if err := c.writeStatus(ctx, cluster, result); err != nil {
		return err
	}

	if result.Status == mysqlv2.ClusterStatusUnknown {
		return operatorerrors.Temporary(constants.RetryUnreachableMembers,
			"cluster %s has no reachable members", cluster.Name)
	}
	return nil
}

// Forget drops process-local probe state for a deleted cluster.
func (c *Controller) Forget(cluster types.NamespacedName) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lastProbes, cluster)
}

func (c *Controller) writeStatus(ctx context.Context, cluster *mysqlv2.InnoDBCluster, result *diagnose.Result) error {
	probeTime := metav1.NewTime(result.ProbedAt)
	cluster.Status.Cluster = mysqlv2.ClusterStatus{
		Status:          result.Status,
		OnlineInstances: result.OnlineInstances,
		LastProbeTime:   &probeTime,
	}
	cluster.Status.OperatorVersion = constants.OperatorVersionTag

	available := metav1.ConditionFalse
	reason := string(result.Status)
	switch result.Status {
	case mysqlv2.ClusterStatusOnline, mysqlv2.ClusterStatusOnlinePartial, mysqlv2.ClusterStatusOnlineUncertain:
		available = metav1.ConditionTrue
	}
	meta.SetStatusCondition(&cluster.Status.Conditions, metav1.Condition{
		Type:    string(mysqlv2.ConditionAvailable),
		Status:  available,
		Reason:  reason,
		Message: fmt.Sprintf("Cluster is %s with %d instances online", result.Status, result.OnlineInstances),
	})

	if err := c.client.Status().Update(ctx, cluster); err != nil {
		if apierrors.IsConflict(err) {
			return operatorerrors.Temporary(0, "conflict writing status of cluster %s: %v", cluster.Name, err)
		}
		return fmt.Errorf("failed to write status of cluster %s: %w", cluster.Name, err)
	}
	return nil
}

// compareVersions compares dotted numeric versions, returning -1, 0, or 1.
// Non-numeric fields compare lexically, which is good enough to catch
// downgrades of release versions.
func compareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if as[i] == bs[i] {
			continue
		}
		an, aerr := strconv.ParseUint(as[i], 10, 64)
		bn, berr := strconv.ParseUint(bs[i], 10, 64)
		if aerr == nil && berr == nil {
			if an < bn {
				return -1
			}
			return 1
		}
		if as[i] < bs[i] {
			return -1
		}
		return 1
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}
