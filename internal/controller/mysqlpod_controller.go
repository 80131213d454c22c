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
	"fmt"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/builder"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/predicate"

	mysqlv2 "github.com/mysql-cluster/innodb-operator/api/v2"
	"github.com/mysql-cluster/innodb-operator/internal/constants"
	operatorerrors "github.com/mysql-cluster/innodb-operator/internal/errors"
	"github.com/mysql-cluster/innodb-operator/internal/innodbcluster"
	"github.com/mysql-cluster/innodb-operator/internal/member"
	"github.com/mysql-cluster/innodb-operator/internal/operationlock"
	"github.com/mysql-cluster/innodb-operator/internal/podstate"
)

// probeRetryAttempts bounds the in-handler retry loop used when a pod event
// finds the whole group unreachable.
const probeRetryAttempts = 3

// MySQLPodReconciler watches the server pods of all InnoDB clusters and
// classifies each event as pod-created, pod-changed, or pod-deleted for the
// cluster controller.
type MySQLPodReconciler struct {
	client.Client
	Scheme   *runtime.Scheme
	Locks    *operationlock.Set
	Pods     *podstate.Tracker
	Clusters *innodbcluster.Controller

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// +kubebuilder:rbac:groups="",resources=pods,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups="",resources=pods/status,verbs=get

// Reconcile classifies a server pod event and hands it to the cluster
// controller under the cluster's operation lock.
func (r *MySQLPodReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithValues(
		"pod", req.Name,
		"namespace", req.Namespace,
		"controller", "mysqlpod",
	)

	start := time.Now()
	defer func() {
		NewReconcileMetrics(req.Namespace, req.Name, "mysqlpod").
			ObserveDuration(time.Since(start).Seconds())
	}()

	pod := &corev1.Pod{}
	if err := r.Get(ctx, req.NamespacedName, pod); err != nil {
		if apierrors.IsNotFound(err) {
			r.Pods.Forget(req.NamespacedName)
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, fmt.Errorf("failed to get pod %s/%s: %w", req.Namespace, req.Name, err)
	}

	mp := member.Wrap(pod)
	clusterKey, err := mp.ClusterKey()
	if err != nil {
		// Not one of ours after all; the predicate should have filtered it.
		logger.V(1).Info("Ignoring pod without cluster label")
		return ctrl.Result{}, nil
	}

	cluster := &mysqlv2.InnoDBCluster{}
	if err := r.Get(ctx, clusterKey, cluster); err != nil {
		if apierrors.IsNotFound(err) {
			return r.handleOrphan(ctx, logger, mp, req.NamespacedName)
		}
		return ctrl.Result{}, fmt.Errorf("failed to get InnoDBCluster %s: %w", clusterKey, err)
	}

	if mp.Deleting() {
		return r.handlePodDeleted(ctx, logger, cluster, mp, req.NamespacedName)
	}

	if !mp.IsConfigured() {
		// The sidecar has not finished local setup. Nothing can be done
		// with this pod yet.
		logger.V(1).Info("Pod not yet configured, retrying")
		return ctrl.Result{RequeueAfter: constants.RetrySidecarNotConfigured}, nil
	}

	if !r.Pods.Seen(req.NamespacedName) {
		return r.handlePodCreated(ctx, logger, cluster, mp, req.NamespacedName)
	}
	return r.handlePodEvent(ctx, logger, cluster, mp, req.NamespacedName)
}

func (r *MySQLPodReconciler) handlePodCreated(ctx context.Context, logger logr.Logger, cluster *mysqlv2.InnoDBCluster, mp *member.Pod, key types.NamespacedName) (ctrl.Result, error) {
	logger.Info("New configured server pod")

	clusterKey := types.NamespacedName{Namespace: cluster.Namespace, Name: cluster.Name}
	release := r.Locks.Lock(clusterKey, mp.Name)
	defer release()

	if err := r.Clusters.OnPodCreated(ctx, cluster, mp); err != nil {
		return r.mapError(logger, key, err)
	}

	r.Pods.Observe(key, mp.ServerRestarts())
	return ctrl.Result{}, nil
}

// handlePodEvent deals with updates on already known pods: restart
// detection and periodic status refresh. The status refresh retries
// in-handler when the whole group is unreachable, because by the time a
// requeue fires the situation that triggered the event is gone.
func (r *MySQLPodReconciler) handlePodEvent(ctx context.Context, logger logr.Logger, cluster *mysqlv2.InnoDBCluster, mp *member.Pod, key types.NamespacedName) (ctrl.Result, error) {
	clusterKey := types.NamespacedName{Namespace: cluster.Namespace, Name: cluster.Name}
	release := r.Locks.Lock(clusterKey, mp.Name)
	defer release()

	// Restart detection waits until the kubelet reports the pod running
	// with every container ready; a mid-crash-loop event is just noise.
	if mp.Status.Phase == corev1.PodRunning && mp.ContainersReady() {
		if restarted := r.Pods.Observe(key, mp.ServerRestarts()); restarted {
			logger.Info("Server container restarted", "restarts", mp.ServerRestarts())
			NewClusterMetrics(cluster.Namespace, cluster.Name).RecordInstanceRestart()
			if err := r.Clusters.OnPodRestarted(ctx, cluster, mp); err != nil {
				return r.mapError(logger, key, err)
			}
			return ctrl.Result{}, nil
		}
	}

	var err error
	for attempt := 0; attempt < probeRetryAttempts; attempt++ {
		err = r.Clusters.ProbeStatusIfNeeded(ctx, cluster)
		if !operatorerrors.IsTemporary(err) {
			break
		}
		delay := operatorerrors.Delay(err)
		logger.V(1).Info("Probe found no reachable members, retrying in-handler", "attempt", attempt+1, "delay", delay.String())
		if serr := r.doSleep(ctx, delay); serr != nil {
			return ctrl.Result{}, nil
		}
	}
	if err != nil {
		return r.mapError(logger, key, err)
	}
	return ctrl.Result{}, nil
}

func (r *MySQLPodReconciler) handlePodDeleted(ctx context.Context, logger logr.Logger, cluster *mysqlv2.InnoDBCluster, mp *member.Pod, key types.NamespacedName) (ctrl.Result, error) {
	if !mp.HasMembershipFinalizer() {
		// Already processed; the pod is waiting on other finalizers.
		r.Pods.Forget(key)
		return ctrl.Result{}, nil
	}

	logger.Info("Server pod deleted")

	clusterKey := types.NamespacedName{Namespace: cluster.Namespace, Name: cluster.Name}
	release := r.Locks.Lock(clusterKey, mp.Name)
	defer release()

	if err := r.Clusters.OnPodDeleted(ctx, cluster, mp); err != nil {
		return r.mapError(logger, key, err)
	}

	r.Pods.Forget(key)
	return ctrl.Result{}, nil
}

// handleOrphan releases the membership finalizer of a pod whose cluster
// object is already gone, so the pod does not hang in Terminating forever.
func (r *MySQLPodReconciler) handleOrphan(ctx context.Context, logger logr.Logger, mp *member.Pod, key types.NamespacedName) (ctrl.Result, error) {
	r.Pods.Forget(key)

	if mp.Deleting() && mp.RemoveMembershipFinalizer() {
		logger.Info("Releasing finalizer of orphaned server pod")
		if err := r.Update(ctx, mp.Pod); err != nil && !apierrors.IsNotFound(err) {
			return ctrl.Result{}, fmt.Errorf("failed to release finalizer of orphaned pod %s: %w", mp.Name, err)
		}
	}
	return ctrl.Result{}, nil
}

func (r *MySQLPodReconciler) mapError(logger logr.Logger, key types.NamespacedName, err error) (ctrl.Result, error) {
	if requeue, delay := operatorerrors.ShouldRequeue(err); requeue {
		logger.V(1).Info("Requeueing pod event", "delay", delay.String(), "reason", err.Error())
		return ctrl.Result{RequeueAfter: delay}, nil
	}
	NewReconcileMetrics(key.Namespace, key.Name, "mysqlpod").IncrementError("Error")
	return ctrl.Result{}, err
}

func (r *MySQLPodReconciler) doSleep(ctx context.Context, d time.Duration) error {
	if r.sleep != nil {
		return r.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SetupWithManager registers the pod watch, filtered down to server pods.
func (r *MySQLPodReconciler) SetupWithManager(mgr ctrl.Manager) error {
	serverPods, err := predicate.LabelSelectorPredicate(metav1.LabelSelector{
		MatchLabels: map[string]string{
			constants.LabelComponent: constants.LabelValueComponentServer,
		},
	})
	if err != nil {
		return err
	}

	return ctrl.NewControllerManagedBy(mgr).
		For(&corev1.Pod{}, builder.WithPredicates(serverPods)).
		WithOptions(controller.Options{
			MaxConcurrentReconciles: 5,
		}).
		Named("mysqlpod").
		Complete(r)
}
