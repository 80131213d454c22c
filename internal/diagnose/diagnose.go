// Package diagnose derives a cluster-level status from the group views of
// the individual members. Views are fetched from every reachable configured
// pod and compared; disagreement between them is what distinguishes a
// partition from a dead member.
package diagnose

import (
	"context"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"

	mysqlv2 "github.com/mysql-cluster/innodb-operator/api/v2"
	"github.com/mysql-cluster/innodb-operator/internal/constants"
	"github.com/mysql-cluster/innodb-operator/internal/member"
	"github.com/mysql-cluster/innodb-operator/internal/mysql"
)

// Result is the outcome of one cluster status probe.
type Result struct {
	Status          mysqlv2.ClusterDiagStatus
	OnlineInstances int32
	// PrimaryAddress is the "host:port" of the current primary, empty when
	// no quorum partition with a primary exists.
	PrimaryAddress string
	ProbedAt       time.Time
}

// Uncertain reports whether the status carries the _UNCERTAIN qualifier,
// i.e. some pods could not be contacted and the picture may be incomplete.
func (r *Result) Uncertain() bool {
	switch r.Status {
	case mysqlv2.ClusterStatusOnlineUncertain,
		mysqlv2.ClusterStatusOfflineUncertain,
		mysqlv2.ClusterStatusNoQuorumUncertain,
		mysqlv2.ClusterStatusSplitBrainUncertain,
		mysqlv2.ClusterStatusUnknown:
		return true
	}
	return false
}

// Prober probes cluster status. The default implementation lists the
// cluster's server pods and asks each for its group view.
type Prober interface {
	Probe(ctx context.Context, cluster *mysqlv2.InnoDBCluster) (*Result, error)
}

// GroupProber implements Prober using a GroupAdmin.
type GroupProber struct {
	client client.Client
	admin  mysql.GroupAdmin
	log    logr.Logger
}

// NewGroupProber constructs a GroupProber.
func NewGroupProber(c client.Client, admin mysql.GroupAdmin, log logr.Logger) *GroupProber {
	return &GroupProber{client: c, admin: admin, log: log}
}

// Probe fetches a group view from every configured server pod and condenses
// them into a single cluster status.
func (p *GroupProber) Probe(ctx context.Context, cluster *mysqlv2.InnoDBCluster) (*Result, error) {
	if cluster.Deleting() {
		return &Result{Status: mysqlv2.ClusterStatusFinalizing, ProbedAt: time.Now()}, nil
	}
	if !cluster.Ready() {
		return &Result{Status: mysqlv2.ClusterStatusInitializing, ProbedAt: time.Now()}, nil
	}

	pods := &corev1.PodList{}
	err := p.client.List(ctx, pods,
		client.InNamespace(cluster.Namespace),
		client.MatchingLabels{
			constants.LabelCluster:   cluster.Name,
			constants.LabelComponent: constants.LabelValueComponentServer,
		})
	if err != nil {
		return nil, err
	}

	var views []*mysql.GroupView
	unreachable := 0
	for i := range pods.Items {
		mp := member.Wrap(&pods.Items[i])
		if mp.Deleting() || !mp.IsConfigured() {
			continue
		}
		addr := mp.Address(cluster.Name) + ":3306"
		view, verr := p.admin.FetchGroupView(ctx, addr)
		if verr != nil {
			p.log.V(1).Info("Member unreachable during probe", "pod", mp.Name, "error", verr.Error())
			unreachable++
			continue
		}
		views = append(views, view)
	}

	result := Condense(int(cluster.Spec.Instances), views, unreachable)
	result.ProbedAt = time.Now()
	return result, nil
}

// Condense folds the per-member group views into one cluster status.
// expected is the spec'd instance count, unreachable the number of
// configured pods that could not be contacted.
func Condense(expected int, views []*mysql.GroupView, unreachable int) *Result {
	uncertain := unreachable > 0

	if len(views) == 0 {
		if uncertain {
			return &Result{Status: mysqlv2.ClusterStatusUnknown}
		}
		return &Result{Status: mysqlv2.ClusterStatusOffline}
	}

	// Partition the views by view id. Members that agree on a view id are
	// in the same group partition.
	partitions := make(map[string][]*mysql.GroupView)
	for _, v := range views {
		if v.ViewID == "" {
			// Group replication stopped on this member; counts as offline.
			continue
		}
		partitions[v.ViewID] = append(partitions[v.ViewID], v)
	}

	if len(partitions) == 0 {
		if uncertain {
			return &Result{Status: mysqlv2.ClusterStatusOfflineUncertain}
		}
		return &Result{Status: mysqlv2.ClusterStatusOffline}
	}

	// Deterministic iteration keeps repeated probes stable.
	ids := make([]string, 0, len(partitions))
	for id := range partitions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	quorumPartitions := 0
	var active *mysql.GroupView
	for _, id := range ids {
		v := partitions[id][0]
		if v.Quorum() {
			quorumPartitions++
			if active == nil {
				active = v
			}
		}
	}

	switch {
	case quorumPartitions > 1:
		if uncertain {
			return &Result{Status: mysqlv2.ClusterStatusSplitBrainUncertain}
		}
		return &Result{Status: mysqlv2.ClusterStatusSplitBrain}
	case quorumPartitions == 0:
		if uncertain {
			return &Result{Status: mysqlv2.ClusterStatusNoQuorumUncertain}
		}
		return &Result{Status: mysqlv2.ClusterStatusNoQuorum}
	}

	online := int32(active.OnlineMembers())
	result := &Result{OnlineInstances: online}
	if p := active.Primary(); p != nil {
		result.PrimaryAddress = joinHostPort(p.Host, p.Port)
	}

	switch {
	case uncertain:
		result.Status = mysqlv2.ClusterStatusOnlineUncertain
	case int(online) < expected:
		result.Status = mysqlv2.ClusterStatusOnlinePartial
	default:
		result.Status = mysqlv2.ClusterStatusOnline
	}
	return result
}

func joinHostPort(host string, port int) string {
	if port == 0 {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
