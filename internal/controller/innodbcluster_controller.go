/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	appsv1 "k8s.io/api/apps/v1"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	policyv1 "k8s.io/api/policy/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/tools/record"
	"k8s.io/client-go/util/workqueue"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	mysqlv2 "github.com/mysql-cluster/innodb-operator/api/v2"
	backupmanager "github.com/mysql-cluster/innodb-operator/internal/backup"
	"github.com/mysql-cluster/innodb-operator/internal/constants"
	operatorerrors "github.com/mysql-cluster/innodb-operator/internal/errors"
	"github.com/mysql-cluster/innodb-operator/internal/factory"
	"github.com/mysql-cluster/innodb-operator/internal/innodbcluster"
	"github.com/mysql-cluster/innodb-operator/internal/operationlock"
)

// GroupWatcher is the part of the group monitor the reconcilers drive.
type GroupWatcher interface {
	Watch(ctx context.Context, cluster types.NamespacedName)
	Forget(cluster types.NamespacedName)
}

// InnoDBClusterReconciler reconciles an InnoDBCluster object.
type InnoDBClusterReconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Recorder record.EventRecorder
	Locks    *operationlock.Set
	Factory  *factory.Manager
	Backups  *backupmanager.Scheduler
	Clusters *innodbcluster.Controller
	Monitor  GroupWatcher
}

// +kubebuilder:rbac:groups=mysql.oracle.com,resources=innodbclusters,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=mysql.oracle.com,resources=innodbclusters/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=mysql.oracle.com,resources=innodbclusters/finalizers,verbs=update
// +kubebuilder:rbac:groups="",resources=secrets,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups="",resources=configmaps,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups="",resources=services,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups="",resources=pods,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups="",resources=events,verbs=create;patch
// +kubebuilder:rbac:groups=apps,resources=statefulsets;deployments,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=batch,resources=cronjobs,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=policy,resources=poddisruptionbudgets,verbs=get;list;watch;create;update;patch;delete

// Reconcile handles cluster creation, spec changes, and deletion. Spec
// changes are dispatched field by field against the last applied spec
// recorded in an annotation, so each change is handled exactly once even
// across operator restarts.
func (r *InnoDBClusterReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithValues(
		"cluster_namespace", req.Namespace,
		"cluster_name", req.Name,
		"controller", "innodbcluster",
	)

	start := time.Now()
	defer func() {
		NewReconcileMetrics(req.Namespace, req.Name, "innodbcluster").
			ObserveDuration(time.Since(start).Seconds())
	}()

	cluster := &mysqlv2.InnoDBCluster{}
	if err := r.Get(ctx, req.NamespacedName, cluster); err != nil {
		if apierrors.IsNotFound(err) {
			r.forgetCluster(req.NamespacedName)
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, fmt.Errorf("failed to get InnoDBCluster %s/%s: %w", req.Namespace, req.Name, err)
	}

	if cluster.Deleting() {
		return r.reconcileDeletion(ctx, logger, cluster)
	}

	if !controllerutil.ContainsFinalizer(cluster, mysqlv2.InnoDBClusterFinalizer) {
		controllerutil.AddFinalizer(cluster, mysqlv2.InnoDBClusterFinalizer)
		if err := r.Update(ctx, cluster); err != nil {
			return ctrl.Result{}, fmt.Errorf("failed to add finalizer to InnoDBCluster %s/%s: %w", cluster.Namespace, cluster.Name, err)
		}
		// Requeue to observe the resource with the finalizer attached.
		return ctrl.Result{}, nil
	}

	if err := cluster.Spec.Validate(); err != nil {
		return r.handleInvalidSpec(ctx, logger, cluster, err)
	}

	release := r.Locks.Lock(req.NamespacedName, "")
	defer release()

	applied, hasApplied := loadAppliedSpec(cluster)

	var err error
	deferred := false
	if !hasApplied {
		err = r.reconcileCreate(ctx, logger, cluster)
	} else {
		deferred, err = r.dispatchSpecChanges(ctx, logger, cluster, applied)
	}
	if err != nil {
		return r.mapError(ctx, logger, cluster, err)
	}

	// Changes skipped because the cluster is not bootstrapped yet keep the
	// old snapshot, so the diff replays once the create-time lands.
	if !deferred {
		if err := r.saveAppliedSpec(ctx, cluster); err != nil {
			return r.mapError(ctx, logger, cluster, err)
		}
	}

	if cluster.Ready() {
		r.Monitor.Watch(ctx, req.NamespacedName)
		if err := r.Clusters.ProbeStatusIfNeeded(ctx, cluster); err != nil {
			return r.mapError(ctx, logger, cluster, err)
		}
		NewClusterMetrics(cluster.Namespace, cluster.Name).
			SetStatus(cluster.Status.Cluster.Status, cluster.Status.Cluster.OnlineInstances)
	}

	return ctrl.Result{}, nil
}

// HandleGroupViewChange is the callback the group monitor fires when a
// watched cluster's membership changes. It runs outside the reconcile loop
// and takes the operation lock itself.
func (r *InnoDBClusterReconciler) HandleGroupViewChange(ctx context.Context, key types.NamespacedName, viewID string) {
	logger := log.FromContext(ctx).WithValues(
		"cluster_namespace", key.Namespace,
		"cluster_name", key.Name,
		"view_id", viewID,
	)

	cluster := &mysqlv2.InnoDBCluster{}
	if err := r.Get(ctx, key, cluster); err != nil {
		if !apierrors.IsNotFound(err) {
			logger.Error(err, "Failed to get cluster for group view change")
		}
		return
	}
	if cluster.Deleting() {
		return
	}

	NewClusterMetrics(key.Namespace, key.Name).RecordViewChange()

	release := r.Locks.Lock(key, "")
	defer release()

	if err := r.Clusters.OnGroupViewChange(ctx, cluster, viewID); err != nil {
		// The next poll or pod event picks it up; view changes carry no
		// payload worth retrying for.
		logger.V(1).Info("Group view change handling failed", "error", err.Error())
		return
	}

	NewClusterMetrics(key.Namespace, key.Name).
		SetStatus(cluster.Status.Cluster.Status, cluster.Status.Cluster.OnlineInstances)
}

// reconcileCreate brings up every dependent resource of a new cluster, in
// order, and records the initial status. Backup schedules wait until the
// cluster has bootstrapped; creating their CronJobs earlier would let a
// backup fire against an empty group.
func (r *InnoDBClusterReconciler) reconcileCreate(ctx context.Context, logger logr.Logger, cluster *mysqlv2.InnoDBCluster) error {
	logger.Info("Creating dependent resources for new InnoDBCluster")

	if err := r.Factory.EnsureAll(ctx, logger, cluster); err != nil {
		return err
	}

	// Requeues while backup schedules wait for bootstrap re-enter this
	// path; the condition, status and event fire once.
	if !meta.IsStatusConditionTrue(cluster.Status.Conditions, string(mysqlv2.ConditionResourcesCreated)) {
		meta.SetStatusCondition(&cluster.Status.Conditions, metav1.Condition{
			Type:               string(mysqlv2.ConditionResourcesCreated),
			Status:             metav1.ConditionTrue,
			ObservedGeneration: cluster.Generation,
			Reason:             "ResourcesCreated",
			Message:            "All dependent resources created",
		})
		if cluster.Status.Cluster.Status == "" {
			cluster.Status.Cluster.Status = mysqlv2.ClusterStatusPending
		}
		cluster.Status.OperatorVersion = constants.OperatorVersionTag
		if err := r.Status().Update(ctx, cluster); err != nil {
			return fmt.Errorf("failed to update status of InnoDBCluster %s/%s: %w", cluster.Namespace, cluster.Name, err)
		}

		r.Recorder.Eventf(cluster, corev1.EventTypeNormal, "ResourcesCreated",
			"Created dependent resources for InnoDBCluster %s", cluster.Name)
	}

	if len(cluster.Spec.BackupSchedules) > 0 {
		if !cluster.Ready() {
			return operatorerrors.Temporary(constants.RetryClusterNotReady,
				"cluster %s not ready, delaying backup schedule creation", cluster.Name)
		}
		if err := r.Backups.EnsureSchedules(ctx, logger, cluster, nil, cluster.Spec.BackupSchedules); err != nil {
			return err
		}
	}

	return nil
}

// dispatchSpecChanges compares the live spec against the last applied one
// and invokes one handler per changed field. Until the cluster has a
// create-time every handler except the backup one produces no mutation to
// dependent objects; deferred changes report true so the snapshot is held
// back and the diff replays once bootstrap completes.
func (r *InnoDBClusterReconciler) dispatchSpecChanges(ctx context.Context, logger logr.Logger, cluster *mysqlv2.InnoDBCluster, applied *mysqlv2.InnoDBClusterSpec) (bool, error) {
	spec := &cluster.Spec
	ready := cluster.Ready()
	deferred := false

	if applied.Instances != spec.Instances {
		logger.Info("Instance count changed", "from", applied.Instances, "to", spec.Instances, "ready", ready)
		if ready {
			r.Recorder.Eventf(cluster, corev1.EventTypeNormal, "Scaling",
				"Scaling servers from %d to %d", applied.Instances, spec.Instances)
			if err := r.Factory.ScaleServers(ctx, cluster, spec.Instances); err != nil {
				return false, err
			}
		} else {
			deferred = true
		}
	}

	if applied.Router.Instances != spec.Router.Instances {
		logger.Info("Router instance count changed", "from", applied.Router.Instances, "to", spec.Router.Instances, "ready", ready)
		if ready {
			if err := r.Factory.ScaleRouters(ctx, cluster, spec.Router.Instances); err != nil {
				return false, err
			}
		} else {
			deferred = true
		}
	}

	if applied.ServerVersion() != spec.ServerVersion() {
		if ready {
			if err := r.Clusters.OnServerVersionChange(ctx, logger, cluster, applied.ServerVersion(), spec.ServerVersion()); err != nil {
				return false, err
			}
		} else {
			logger.Info("Deferring version change on unbootstrapped cluster",
				"from", applied.ServerVersion(), "to", spec.ServerVersion())
			deferred = true
		}
	}

	if applied.ServerImage() != spec.ServerImage() && applied.ServerVersion() == spec.ServerVersion() {
		if ready {
			if err := r.Clusters.OnServerImageChange(ctx, logger, cluster, applied.ServerImage(), spec.ServerImage()); err != nil {
				return false, err
			}
		} else {
			logger.Info("Deferring image change on unbootstrapped cluster",
				"from", applied.ServerImage(), "to", spec.ServerImage())
			deferred = true
		}
	}

	if applied.RouterImage() != spec.RouterImage() {
		logger.Info("Router image changed", "from", applied.RouterImage(), "to", spec.RouterImage(), "ready", ready)
		if ready {
			if err := r.Factory.EnsureAll(ctx, logger, cluster); err != nil {
				return false, err
			}
		} else {
			deferred = true
		}
	}

	if applied.PullPolicy() != spec.PullPolicy() {
		logger.Info("Image pull policy changed", "from", applied.PullPolicy(), "to", spec.PullPolicy(), "ready", ready)
		if ready {
			if err := r.Factory.EnsureAll(ctx, logger, cluster); err != nil {
				return false, err
			}
		} else {
			deferred = true
		}
	}

	if applied.SecretName != spec.SecretName {
		logger.Info("Cluster secret changed", "from", applied.SecretName, "to", spec.SecretName, "ready", ready)
		if ready {
			if err := r.Factory.EnsureAll(ctx, logger, cluster); err != nil {
				return false, err
			}
		} else {
			deferred = true
		}
	}

	if backupConfigChanged(applied, spec) {
		if !ready {
			return false, operatorerrors.Temporary(constants.RetryClusterNotReady,
				"cluster %s not ready, delaying backup schedule update", cluster.Name)
		}
		if err := r.Backups.EnsureSchedules(ctx, logger, cluster, applied.BackupSchedules, cluster.Spec.BackupSchedules); err != nil {
			return false, err
		}
	}

	return deferred, nil
}

func backupConfigChanged(applied, spec *mysqlv2.InnoDBClusterSpec) bool {
	a, _ := json.Marshal(struct {
		Profiles  []mysqlv2.BackupProfile
		Schedules []mysqlv2.BackupScheduleSpec
	}{applied.BackupProfiles, applied.BackupSchedules})
	b, _ := json.Marshal(struct {
		Profiles  []mysqlv2.BackupProfile
		Schedules []mysqlv2.BackupScheduleSpec
	}{spec.BackupProfiles, spec.BackupSchedules})
	return string(a) != string(b)
}

// reconcileDeletion drains the cluster and releases the finalizer once all
// server pods are gone.
func (r *InnoDBClusterReconciler) reconcileDeletion(ctx context.Context, logger logr.Logger, cluster *mysqlv2.InnoDBCluster) (ctrl.Result, error) {
	if !controllerutil.ContainsFinalizer(cluster, mysqlv2.InnoDBClusterFinalizer) {
		return ctrl.Result{}, nil
	}

	key := types.NamespacedName{Namespace: cluster.Namespace, Name: cluster.Name}
	release := r.Locks.Lock(key, "")
	defer release()

	if err := r.Factory.Cleanup(ctx, logger, cluster); err != nil {
		return r.mapError(ctx, logger, cluster, err)
	}

	pods := &corev1.PodList{}
	err := r.List(ctx, pods,
		client.InNamespace(cluster.Namespace),
		client.MatchingLabels{
			constants.LabelCluster:   cluster.Name,
			constants.LabelComponent: constants.LabelValueComponentServer,
		})
	if err != nil {
		return ctrl.Result{}, fmt.Errorf("failed to list pods of InnoDBCluster %s/%s: %w", cluster.Namespace, cluster.Name, err)
	}
	if len(pods.Items) > 0 {
		logger.Info("Waiting for server pods to terminate", "remaining", len(pods.Items))
		return ctrl.Result{RequeueAfter: constants.RetryClusterNotReady}, nil
	}

	controllerutil.RemoveFinalizer(cluster, mysqlv2.InnoDBClusterFinalizer)
	if err := r.Update(ctx, cluster); err != nil {
		return ctrl.Result{}, fmt.Errorf("failed to remove finalizer from InnoDBCluster %s/%s: %w", cluster.Namespace, cluster.Name, err)
	}

	r.forgetCluster(key)
	logger.Info("InnoDBCluster teardown complete")
	return ctrl.Result{}, nil
}

// forgetCluster drops all process-local state of a deleted cluster.
func (r *InnoDBClusterReconciler) forgetCluster(key types.NamespacedName) {
	r.Monitor.Forget(key)
	r.Clusters.Forget(key)
	r.Locks.Forget(key)
	NewClusterMetrics(key.Namespace, key.Name).Clear()
}

func (r *InnoDBClusterReconciler) handleInvalidSpec(ctx context.Context, logger logr.Logger, cluster *mysqlv2.InnoDBCluster, err error) (ctrl.Result, error) {
	logger.Info("InnoDBCluster spec is invalid", "error", err.Error())
	r.Recorder.Eventf(cluster, corev1.EventTypeWarning, "InvalidSpec", "Spec is invalid: %v", err)
	NewReconcileMetrics(cluster.Namespace, cluster.Name, "innodbcluster").IncrementError("InvalidSpec")

	cluster.Status.Cluster.Status = mysqlv2.ClusterStatusInvalid
	if statusErr := r.Status().Update(ctx, cluster); statusErr != nil {
		return ctrl.Result{}, fmt.Errorf("failed to record invalid spec on InnoDBCluster %s/%s: %w", cluster.Namespace, cluster.Name, statusErr)
	}

	// Diagnostic, not retryable; wait for the user to fix the spec but
	// re-examine in case an edit raced with this reconcile.
	return ctrl.Result{RequeueAfter: constants.RequeueSpecInvalid}, nil
}

// mapError converts handler errors into reconcile results: temporary
// errors requeue with their delay, invalid-spec errors are reported and
// parked, everything else goes back to the workqueue for backoff.
func (r *InnoDBClusterReconciler) mapError(ctx context.Context, logger logr.Logger, cluster *mysqlv2.InnoDBCluster, err error) (ctrl.Result, error) {
	if operatorerrors.IsInvalidSpec(err) {
		return r.handleInvalidSpec(ctx, logger, cluster, err)
	}
	if requeue, delay := operatorerrors.ShouldRequeue(err); requeue {
		logger.V(1).Info("Requeueing after temporary condition", "delay", delay.String(), "reason", err.Error())
		return ctrl.Result{RequeueAfter: delay}, nil
	}
	NewReconcileMetrics(cluster.Namespace, cluster.Name, "innodbcluster").IncrementError("Error")
	return ctrl.Result{}, err
}

// loadAppliedSpec decodes the last-applied-spec annotation. A missing or
// unreadable annotation means the cluster has not completed its create
// handling yet.
func loadAppliedSpec(cluster *mysqlv2.InnoDBCluster) (*mysqlv2.InnoDBClusterSpec, bool) {
	raw, ok := cluster.Annotations[mysqlv2.AnnotationAppliedSpec]
	if !ok || raw == "" {
		return nil, false
	}
	spec := &mysqlv2.InnoDBClusterSpec{}
	if err := json.Unmarshal([]byte(raw), spec); err != nil {
		return nil, false
	}
	return spec, true
}

// saveAppliedSpec records the current spec as handled. Written only after
// all change handlers succeeded, so failed changes are re-dispatched.
func (r *InnoDBClusterReconciler) saveAppliedSpec(ctx context.Context, cluster *mysqlv2.InnoDBCluster) error {
	raw, err := json.Marshal(&cluster.Spec)
	if err != nil {
		return fmt.Errorf("failed to encode applied spec: %w", err)
	}
	if cluster.Annotations[mysqlv2.AnnotationAppliedSpec] == string(raw) {
		return nil
	}
	if cluster.Annotations == nil {
		cluster.Annotations = make(map[string]string)
	}
	cluster.Annotations[mysqlv2.AnnotationAppliedSpec] = string(raw)
	if err := r.Update(ctx, cluster); err != nil {
		if apierrors.IsConflict(err) {
			return operatorerrors.Temporary(0, "conflict saving applied spec of cluster %s: %v", cluster.Name, err)
		}
		return fmt.Errorf("failed to save applied spec of InnoDBCluster %s/%s: %w", cluster.Namespace, cluster.Name, err)
	}
	return nil
}

// SetupWithManager sets up the controller with the Manager. Owned watches
// cover every dependent resource kind so drift triggers reconciliation.
func (r *InnoDBClusterReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&mysqlv2.InnoDBCluster{}).
		Owns(&appsv1.StatefulSet{}).
		Owns(&appsv1.Deployment{}).
		Owns(&corev1.Service{}).
		Owns(&corev1.ConfigMap{}).
		Owns(&corev1.Secret{}).
		Owns(&policyv1.PodDisruptionBudget{}).
		Owns(&batchv1.CronJob{}).
		WithOptions(controller.Options{
			MaxConcurrentReconciles: 3,
			RateLimiter:             workqueue.NewTypedItemExponentialFailureRateLimiter[ctrl.Request](1*time.Second, 60*time.Second),
		}).
		Named("innodbcluster").
		Complete(r)
}
