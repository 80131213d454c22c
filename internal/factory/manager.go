// Package factory creates and maintains the Kubernetes resources that make
// up an InnoDB cluster: configuration, secrets, services, the server
// StatefulSet, the pod disruption budget, and the router deployment.
//
// Resource creation is strictly ordered so that everything a later resource
// mounts or references already exists when it is applied. All resources are
// owned by the cluster object and garbage collected with it.
package factory

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	appsv1 "k8s.io/api/apps/v1"
	policyv1 "k8s.io/api/policy/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	mysqlv2 "github.com/mysql-cluster/innodb-operator/api/v2"
	"github.com/mysql-cluster/innodb-operator/internal/constants"
	operatorerrors "github.com/mysql-cluster/innodb-operator/internal/errors"
)

const fieldOwner = "mysql-innodbcluster-operator"

// Manager builds and applies the dependent resources of an InnoDBCluster.
type Manager struct {
	client client.Client
	scheme *runtime.Scheme
}

// NewManager constructs a Manager. The scheme is used to set owner
// references on created resources for garbage collection.
func NewManager(c client.Client, scheme *runtime.Scheme) *Manager {
	return &Manager{client: c, scheme: scheme}
}

// EnsureAll creates or updates every dependent resource of the cluster, in
// dependency order. It is idempotent; re-running it against an existing
// cluster converges without duplicating work. Generated secrets are never
// overwritten once created.
func (m *Manager) EnsureAll(ctx context.Context, logger logr.Logger, cluster *mysqlv2.InnoDBCluster) error {
	type step struct {
		name string
		fn   func(context.Context, *mysqlv2.InnoDBCluster) error
	}

	steps := []step{
		{"initconf", m.ensureInitConf},
		{"cluster secret", m.ensureClusterSecret},
		{"router secret", m.ensureRouterSecret},
		{"service", m.ensureService},
		{"statefulset", m.ensureStatefulSet},
		{"pod disruption budget", m.ensurePDB},
		{"router service", m.ensureRouterService},
		{"router deployment", m.ensureRouterDeployment},
		{"backup secret", m.ensureBackupSecret},
	}

	for _, s := range steps {
		if err := s.fn(ctx, cluster); err != nil {
			return fmt.Errorf("failed to ensure %s for InnoDBCluster %s/%s: %w",
				s.name, cluster.Namespace, cluster.Name, err)
		}
		logger.V(1).Info("Ensured dependent resource", "resource", s.name)
	}

	return nil
}

// ScaleServers sets the server StatefulSet replica count. Used both for
// spec.instances changes and for the scale-to-zero pass during cluster
// teardown.
func (m *Manager) ScaleServers(ctx context.Context, cluster *mysqlv2.InnoDBCluster, replicas int32) error {
	sts := &appsv1.StatefulSet{}
	key := types.NamespacedName{Namespace: cluster.Namespace, Name: StatefulSetName(cluster)}
	if err := m.client.Get(ctx, key, sts); err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to get StatefulSet %s: %w", key.Name, err)
	}

	if sts.Spec.Replicas != nil && *sts.Spec.Replicas == replicas {
		return nil
	}

	sts.Spec.Replicas = &replicas
	if err := m.client.Update(ctx, sts); err != nil {
		if apierrors.IsConflict(err) {
			return operatorerrors.Temporary(0, "conflict scaling StatefulSet %s: %v", key.Name, err)
		}
		return fmt.Errorf("failed to scale StatefulSet %s: %w", key.Name, err)
	}
	return nil
}

// ScaleRouters sets the router Deployment replica count. Missing deployment
// is not an error; clusters with router.instances == 0 never get one.
func (m *Manager) ScaleRouters(ctx context.Context, cluster *mysqlv2.InnoDBCluster, replicas int32) error {
	deploy := &appsv1.Deployment{}
	key := types.NamespacedName{Namespace: cluster.Namespace, Name: RouterDeploymentName(cluster)}
	if err := m.client.Get(ctx, key, deploy); err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to get router Deployment %s: %w", key.Name, err)
	}

	if deploy.Spec.Replicas != nil && *deploy.Spec.Replicas == replicas {
		return nil
	}

	deploy.Spec.Replicas = &replicas
	if err := m.client.Update(ctx, deploy); err != nil {
		if apierrors.IsConflict(err) {
			return operatorerrors.Temporary(0, "conflict scaling router Deployment %s: %v", key.Name, err)
		}
		return fmt.Errorf("failed to scale router Deployment %s: %w", key.Name, err)
	}
	return nil
}

// Cleanup prepares a deleted cluster for teardown. The server StatefulSet
// is scaled to zero so that pods terminate one by one and their membership
// finalizers are processed; the disruption budget is removed so nothing
// blocks the drain. The remaining dependents are garbage collected through
// owner references.
func (m *Manager) Cleanup(ctx context.Context, logger logr.Logger, cluster *mysqlv2.InnoDBCluster) error {
	logger.Info("Tearing down dependent resources for deleted InnoDBCluster")

	if err := m.ScaleServers(ctx, cluster, 0); err != nil {
		return err
	}
	if err := m.ScaleRouters(ctx, cluster, 0); err != nil {
		return err
	}

	pdb := &policyv1.PodDisruptionBudget{}
	pdb.Namespace = cluster.Namespace
	pdb.Name = PDBName(cluster)
	if err := m.client.Delete(ctx, pdb); err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete PodDisruptionBudget %s: %w", pdb.Name, err)
	}

	return nil
}

// applyResource creates or updates a resource with Server-Side Apply. The
// object must carry TypeMeta, Name, and Namespace.
func (m *Manager) applyResource(ctx context.Context, obj client.Object, cluster *mysqlv2.InnoDBCluster) error {
	if err := controllerutil.SetControllerReference(cluster, obj, m.scheme); err != nil {
		return fmt.Errorf("failed to set owner reference: %w", err)
	}

	patchOpts := []client.PatchOption{
		client.ForceOwnership,
		client.FieldOwner(fieldOwner),
	}

	if err := m.client.Patch(ctx, obj, client.Apply, patchOpts...); err != nil {
		if apierrors.IsConflict(err) || operatorerrors.IsTransientConnection(err) {
			return operatorerrors.Temporary(0, "transient failure applying %s/%s: %v", obj.GetNamespace(), obj.GetName(), err)
		}
		return fmt.Errorf("failed to apply resource %s/%s: %w", obj.GetNamespace(), obj.GetName(), err)
	}

	return nil
}

// createIfAbsent creates the object and swallows AlreadyExists. Used for
// secrets whose generated contents must survive repeated reconciles.
func (m *Manager) createIfAbsent(ctx context.Context, obj client.Object, cluster *mysqlv2.InnoDBCluster) error {
	if err := controllerutil.SetControllerReference(cluster, obj, m.scheme); err != nil {
		return fmt.Errorf("failed to set owner reference: %w", err)
	}

	if err := m.client.Create(ctx, obj); err != nil {
		if apierrors.IsAlreadyExists(err) {
			return nil
		}
		if operatorerrors.IsTransientConnection(err) {
			return operatorerrors.Temporary(0, "transient failure creating %s/%s: %v", obj.GetNamespace(), obj.GetName(), err)
		}
		return fmt.Errorf("failed to create resource %s/%s: %w", obj.GetNamespace(), obj.GetName(), err)
	}

	return nil
}

// Name helpers for the cluster's dependent resources.

func InitConfName(cluster *mysqlv2.InnoDBCluster) string {
	return cluster.Name + constants.SuffixInitConf
}

func ClusterSecretName(cluster *mysqlv2.InnoDBCluster) string {
	return cluster.Name + constants.SuffixPrivSecret
}

func RouterSecretName(cluster *mysqlv2.InnoDBCluster) string {
	return cluster.Name + constants.SuffixRouterSecret
}

func BackupSecretName(cluster *mysqlv2.InnoDBCluster) string {
	return cluster.Name + constants.SuffixBackupSecret
}

func ServiceName(cluster *mysqlv2.InnoDBCluster) string {
	return cluster.Name + constants.SuffixInstances
}

func StatefulSetName(cluster *mysqlv2.InnoDBCluster) string {
	return cluster.Name
}

func PDBName(cluster *mysqlv2.InnoDBCluster) string {
	return cluster.Name + constants.SuffixPDB
}

func RouterServiceName(cluster *mysqlv2.InnoDBCluster) string {
	return cluster.Name + constants.SuffixRouterService
}

func RouterDeploymentName(cluster *mysqlv2.InnoDBCluster) string {
	return cluster.Name + constants.SuffixRouterDeploy
}

func clusterLabels(cluster *mysqlv2.InnoDBCluster) map[string]string {
	return map[string]string{
		constants.LabelAppName:      constants.LabelValueAppNameMySQL,
		constants.LabelAppInstance:  cluster.Name,
		constants.LabelAppManagedBy: constants.LabelValueManagedByOperator,
		constants.LabelCluster:      cluster.Name,
	}
}

func serverSelectorLabels(cluster *mysqlv2.InnoDBCluster) map[string]string {
	return map[string]string{
		constants.LabelCluster:   cluster.Name,
		constants.LabelComponent: constants.LabelValueComponentServer,
	}
}

func routerSelectorLabels(cluster *mysqlv2.InnoDBCluster) map[string]string {
	return map[string]string{
		constants.LabelCluster:   cluster.Name,
		constants.LabelComponent: constants.LabelValueComponentRouter,
	}
}
