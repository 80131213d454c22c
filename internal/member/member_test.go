package member

import (
	"testing"

	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/mysql-cluster/innodb-operator/internal/constants"
)

func newServerPod(name string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "testns",
			Labels: map[string]string{
				constants.LabelCluster:   "mycluster",
				constants.LabelComponent: constants.LabelValueComponentServer,
			},
		},
	}
}

func TestClusterKeyAndIndex(t *testing.T) {
	p := Wrap(newServerPod("mycluster-2"))

	key, err := p.ClusterKey()
	require.NoError(t, err)
	require.Equal(t, "testns", key.Namespace)
	require.Equal(t, "mycluster", key.Name)

	idx, err := p.Index()
	require.NoError(t, err)
	require.Equal(t, 2, idx)
}

func TestClusterNameMissingLabel(t *testing.T) {
	pod := newServerPod("mycluster-0")
	delete(pod.Labels, constants.LabelCluster)

	_, err := Wrap(pod).ClusterName()
	require.Error(t, err)
}

func TestIndexRejectsMalformedName(t *testing.T) {
	_, err := Wrap(newServerPod("nodigits")).Index()
	require.Error(t, err)
}

func TestIsConfigured(t *testing.T) {
	pod := newServerPod("mycluster-0")
	p := Wrap(pod)
	require.False(t, p.IsConfigured())

	pod.Status.Conditions = []corev1.PodCondition{
		{Type: corev1.PodConditionType(constants.ReadinessGateConfigured), Status: corev1.ConditionFalse},
	}
	require.False(t, p.IsConfigured())

	pod.Status.Conditions[0].Status = corev1.ConditionTrue
	require.True(t, p.IsConfigured())
}

func TestServerRestarts(t *testing.T) {
	pod := newServerPod("mycluster-0")
	pod.Status.ContainerStatuses = []corev1.ContainerStatus{
		{Name: constants.ContainerNameSidecar, RestartCount: 7},
		{Name: constants.ContainerNameMySQL, RestartCount: 2},
	}
	require.Equal(t, int32(2), Wrap(pod).ServerRestarts())
}

func TestMembershipFinalizer(t *testing.T) {
	p := Wrap(newServerPod("mycluster-0"))
	require.False(t, p.HasMembershipFinalizer())

	require.True(t, p.AddMembershipFinalizer())
	require.False(t, p.AddMembershipFinalizer())
	require.True(t, p.HasMembershipFinalizer())

	require.True(t, p.RemoveMembershipFinalizer())
	require.False(t, p.RemoveMembershipFinalizer())
	require.False(t, p.HasMembershipFinalizer())
}

func TestAddress(t *testing.T) {
	p := Wrap(newServerPod("mycluster-1"))
	require.Equal(t,
		"mycluster-1.mycluster-instances.testns.svc.cluster.local",
		p.Address("mycluster"))
}
