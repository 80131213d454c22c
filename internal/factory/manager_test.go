package factory

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	policyv1 "k8s.io/api/policy/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	mysqlv2 "github.com/mysql-cluster/innodb-operator/api/v2"
	"github.com/mysql-cluster/innodb-operator/internal/constants"
)

func newTestScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	scheme := runtime.NewScheme()
	require.NoError(t, clientgoscheme.AddToScheme(scheme))
	require.NoError(t, mysqlv2.AddToScheme(scheme))
	return scheme
}

func newTestCluster(name, namespace string) *mysqlv2.InnoDBCluster {
	return &mysqlv2.InnoDBCluster{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			UID:       "test-uid",
		},
		Spec: mysqlv2.InnoDBClusterSpec{
			SecretName:   "mypwds",
			Instances:    3,
			Version:      "8.0.36",
			BaseServerID: 1000,
			Router:       mysqlv2.RouterSpec{Instances: 2},
		},
	}
}

func newTestManager(t *testing.T) (*Manager, client.Client) {
	t.Helper()
	scheme := newTestScheme(t)
	c := fake.NewClientBuilder().WithScheme(scheme).Build()
	return NewManager(c, scheme), c
}

func TestEnsureAllCreatesDependents(t *testing.T) {
	manager, c := newTestManager(t)
	cluster := newTestCluster("mycluster", "testns")
	ctx := context.Background()

	require.NoError(t, manager.EnsureAll(ctx, logr.Discard(), cluster))

	get := func(name string, obj client.Object) {
		t.Helper()
		key := types.NamespacedName{Namespace: "testns", Name: name}
		require.NoError(t, c.Get(ctx, key, obj), "expected %s to exist", name)
	}

	cm := &corev1.ConfigMap{}
	get("mycluster-initconf", cm)
	require.Contains(t, cm.Data[configFileKey], "base_server_id=1000")
	require.Contains(t, cm.Data[configFileKey], "mycluster-instances.testns.svc.cluster.local")

	get("mycluster-privsecrets", &corev1.Secret{})
	get("mycluster-backup", &corev1.Secret{})

	svc := &corev1.Service{}
	get("mycluster-instances", svc)
	require.Equal(t, corev1.ClusterIPNone, svc.Spec.ClusterIP)

	sts := &appsv1.StatefulSet{}
	get("mycluster", sts)
	require.Equal(t, int32(3), *sts.Spec.Replicas)
	require.Equal(t, "mycluster-instances", sts.Spec.ServiceName)
	require.Len(t, sts.Spec.Template.Spec.Containers, 2)
	require.Equal(t, constants.ContainerNameMySQL, sts.Spec.Template.Spec.Containers[0].Name)
	require.Equal(t,
		constants.ReadinessGateConfigured,
		string(sts.Spec.Template.Spec.ReadinessGates[0].ConditionType))

	get("mycluster-pdb", &policyv1.PodDisruptionBudget{})

	deploy := &appsv1.Deployment{}
	get("mycluster-router", deploy)
	// Routers stay down until the cluster first reaches ONLINE.
	require.Equal(t, int32(0), *deploy.Spec.Replicas)
}

func TestEnsureAllIsIdempotent(t *testing.T) {
	manager, c := newTestManager(t)
	cluster := newTestCluster("mycluster", "testns")
	ctx := context.Background()

	require.NoError(t, manager.EnsureAll(ctx, logr.Discard(), cluster))

	first := &corev1.Secret{}
	key := types.NamespacedName{Namespace: "testns", Name: "mycluster-privsecrets"}
	require.NoError(t, c.Get(ctx, key, first))

	require.NoError(t, manager.EnsureAll(ctx, logr.Discard(), cluster))

	second := &corev1.Secret{}
	require.NoError(t, c.Get(ctx, key, second))

	// Generated credentials must survive re-runs.
	require.Equal(t, first.Data, second.Data)
	require.Equal(t, first.StringData, second.StringData)
}

func TestRouterDeploymentSkippedWithoutRouters(t *testing.T) {
	manager, c := newTestManager(t)
	cluster := newTestCluster("mycluster", "testns")
	cluster.Spec.Router.Instances = 0
	ctx := context.Background()

	require.NoError(t, manager.EnsureAll(ctx, logr.Discard(), cluster))

	deploy := &appsv1.Deployment{}
	err := c.Get(ctx, types.NamespacedName{Namespace: "testns", Name: "mycluster-router"}, deploy)
	require.Error(t, err)

	// The router service exists regardless, to keep client config stable.
	svc := &corev1.Service{}
	require.NoError(t, c.Get(ctx, types.NamespacedName{Namespace: "testns", Name: "mycluster-router"}, svc))
}

func TestScaleServers(t *testing.T) {
	manager, c := newTestManager(t)
	cluster := newTestCluster("mycluster", "testns")
	ctx := context.Background()

	require.NoError(t, manager.EnsureAll(ctx, logr.Discard(), cluster))
	require.NoError(t, manager.ScaleServers(ctx, cluster, 5))

	sts := &appsv1.StatefulSet{}
	require.NoError(t, c.Get(ctx, types.NamespacedName{Namespace: "testns", Name: "mycluster"}, sts))
	require.Equal(t, int32(5), *sts.Spec.Replicas)
}

func TestScaleServersMissingStatefulSet(t *testing.T) {
	manager, _ := newTestManager(t)
	cluster := newTestCluster("mycluster", "testns")

	// Scaling a cluster whose StatefulSet is gone is a no-op, not an error;
	// the teardown path relies on this.
	require.NoError(t, manager.ScaleServers(context.Background(), cluster, 0))
}

func TestCleanupScalesDownAndRemovesPDB(t *testing.T) {
	manager, c := newTestManager(t)
	cluster := newTestCluster("mycluster", "testns")
	ctx := context.Background()

	require.NoError(t, manager.EnsureAll(ctx, logr.Discard(), cluster))
	require.NoError(t, manager.Cleanup(ctx, logr.Discard(), cluster))

	sts := &appsv1.StatefulSet{}
	require.NoError(t, c.Get(ctx, types.NamespacedName{Namespace: "testns", Name: "mycluster"}, sts))
	require.Equal(t, int32(0), *sts.Spec.Replicas)

	pdb := &policyv1.PodDisruptionBudget{}
	err := c.Get(ctx, types.NamespacedName{Namespace: "testns", Name: "mycluster-pdb"}, pdb)
	require.Error(t, err)

	// Cleanup is idempotent.
	require.NoError(t, manager.Cleanup(ctx, logr.Discard(), cluster))
}
