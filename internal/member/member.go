// Package member interprets database server pods managed by the operator.
// It answers the questions the reconcilers keep asking about a pod: which
// cluster it belongs to, its ordinal, whether the sidecar finished
// configuring it, and how often the server container has restarted.
package member

import (
	"fmt"
	"strconv"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"

	mysqlv2 "github.com/mysql-cluster/innodb-operator/api/v2"
	"github.com/mysql-cluster/innodb-operator/internal/constants"
)

// Pod wraps a server pod with accessors for the operator's conventions.
type Pod struct {
	*corev1.Pod
}

// Wrap returns a member view of the given pod. The pod is not copied.
func Wrap(pod *corev1.Pod) *Pod {
	return &Pod{Pod: pod}
}

// ClusterName returns the owning cluster's name from the pod labels, or an
// error when the pod carries no cluster label.
func (p *Pod) ClusterName() (string, error) {
	name, ok := p.Labels[constants.LabelCluster]
	if !ok || name == "" {
		return "", fmt.Errorf("pod %s/%s has no %s label", p.Namespace, p.Name, constants.LabelCluster)
	}
	return name, nil
}

// ClusterKey returns the namespaced name of the owning cluster.
func (p *Pod) ClusterKey() (types.NamespacedName, error) {
	name, err := p.ClusterName()
	if err != nil {
		return types.NamespacedName{}, err
	}
	return types.NamespacedName{Namespace: p.Namespace, Name: name}, nil
}

// Index returns the StatefulSet ordinal parsed from the pod name.
func (p *Pod) Index() (int, error) {
	i := strings.LastIndex(p.Name, "-")
	if i < 0 {
		return 0, fmt.Errorf("pod name %q has no ordinal suffix", p.Name)
	}
	n, err := strconv.Atoi(p.Name[i+1:])
	if err != nil {
		return 0, fmt.Errorf("pod name %q has no ordinal suffix: %w", p.Name, err)
	}
	return n, nil
}

// IsConfigured reports whether the sidecar flipped the configured readiness
// gate condition to true. Membership changes are meaningless before this.
func (p *Pod) IsConfigured() bool {
	for _, cond := range p.Status.Conditions {
		if string(cond.Type) == constants.ReadinessGateConfigured {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

// ContainersReady reports whether the kubelet marked all containers ready.
func (p *Pod) ContainersReady() bool {
	for _, cond := range p.Status.Conditions {
		if cond.Type == corev1.ContainersReady {
			return cond.Status == corev1.ConditionTrue
		}
	}
	return false
}

// ServerRestarts returns the restart count of the server container, or 0
// when its status is not yet reported.
func (p *Pod) ServerRestarts() int32 {
	for _, cs := range p.Status.ContainerStatuses {
		if cs.Name == constants.ContainerNameMySQL {
			return cs.RestartCount
		}
	}
	return 0
}

// Deleting reports whether pod deletion has begun.
func (p *Pod) Deleting() bool {
	return p.DeletionTimestamp != nil
}

// HasMembershipFinalizer reports whether the pod still carries the
// finalizer that defers removal until the member is removed from the group.
func (p *Pod) HasMembershipFinalizer() bool {
	for _, f := range p.Finalizers {
		if f == mysqlv2.MemberFinalizer {
			return true
		}
	}
	return false
}

// AddMembershipFinalizer appends the membership finalizer when absent and
// reports whether the pod object was changed.
func (p *Pod) AddMembershipFinalizer() bool {
	if p.HasMembershipFinalizer() {
		return false
	}
	p.Finalizers = append(p.Finalizers, mysqlv2.MemberFinalizer)
	return true
}

// RemoveMembershipFinalizer strips the membership finalizer and reports
// whether the pod object was changed.
func (p *Pod) RemoveMembershipFinalizer() bool {
	for i, f := range p.Finalizers {
		if f == mysqlv2.MemberFinalizer {
			p.Finalizers = append(p.Finalizers[:i], p.Finalizers[i+1:]...)
			return true
		}
	}
	return false
}

// Address returns the stable DNS name of the member inside the cluster's
// headless service, without a port.
func (p *Pod) Address(clusterName string) string {
	return fmt.Sprintf("%s.%s%s.%s.svc.cluster.local",
		p.Name, clusterName, constants.SuffixInstances, p.Namespace)
}
