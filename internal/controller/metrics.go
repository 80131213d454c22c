package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	mysqlv2 "github.com/mysql-cluster/innodb-operator/api/v2"
)

var (
	reconcileDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mysql_operator",
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of reconciliation loops in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"namespace", "name", "controller"},
	)

	reconcileErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mysql_operator",
			Name:      "reconcile_errors_total",
			Help:      "Total number of reconciliation errors",
		},
		[]string{"namespace", "name", "controller", "reason"},
	)

	clusterStatusGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mysql_operator",
			Name:      "cluster_status",
			Help:      "Current diagnosed status of an InnoDBCluster (1 = active status)",
		},
		[]string{"namespace", "name", "status"},
	)

	clusterOnlineInstancesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mysql_operator",
			Name:      "cluster_online_instances",
			Help:      "Number of ONLINE members of an InnoDBCluster",
		},
		[]string{"namespace", "name"},
	)

	groupViewChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mysql_operator",
			Name:      "group_view_changes_total",
			Help:      "Total number of group membership view changes observed",
		},
		[]string{"namespace", "name"},
	)

	instanceRestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mysql_operator",
			Name:      "instance_restarts_total",
			Help:      "Total number of detected mysqld container restarts",
		},
		[]string{"namespace", "name"},
	)
)

func init() {
	metrics.Registry.MustRegister(
		reconcileDurationHistogram,
		reconcileErrorsTotal,
		clusterStatusGauge,
		clusterOnlineInstancesGauge,
		groupViewChangesTotal,
		instanceRestartsTotal,
	)
}

// ReconcileMetrics records reconcile-level metrics for one controller and
// cluster.
type ReconcileMetrics struct {
	namespace  string
	name       string
	controller string
}

// NewReconcileMetrics creates a new ReconcileMetrics instance.
func NewReconcileMetrics(namespace, name, controller string) *ReconcileMetrics {
	return &ReconcileMetrics{namespace: namespace, name: name, controller: controller}
}

// ObserveDuration records the duration of a reconcile loop in seconds.
func (m *ReconcileMetrics) ObserveDuration(durationSeconds float64) {
	reconcileDurationHistogram.
		WithLabelValues(m.namespace, m.name, m.controller).
		Observe(durationSeconds)
}

// IncrementError increments the reconcile error counter. Reason values must
// stay low-cardinality.
func (m *ReconcileMetrics) IncrementError(reason string) {
	reconcileErrorsTotal.
		WithLabelValues(m.namespace, m.name, m.controller, reason).
		Inc()
}

// ClusterMetrics records per-cluster state metrics.
type ClusterMetrics struct {
	namespace string
	name      string
}

// NewClusterMetrics creates a new ClusterMetrics instance.
func NewClusterMetrics(namespace, name string) *ClusterMetrics {
	return &ClusterMetrics{namespace: namespace, name: name}
}

// SetStatus records the diagnosed status. The gauge is set to 1 for the
// current status; stale series age out of Prometheus retention.
func (m *ClusterMetrics) SetStatus(status mysqlv2.ClusterDiagStatus, onlineInstances int32) {
	clusterStatusGauge.
		WithLabelValues(m.namespace, m.name, string(status)).
		Set(1.0)
	clusterOnlineInstancesGauge.
		WithLabelValues(m.namespace, m.name).
		Set(float64(onlineInstances))
}

// RecordInstanceRestart counts one detected server container restart.
func (m *ClusterMetrics) RecordInstanceRestart() {
	instanceRestartsTotal.
		WithLabelValues(m.namespace, m.name).
		Inc()
}

// RecordViewChange counts one group membership change.
func (m *ClusterMetrics) RecordViewChange() {
	groupViewChangesTotal.
		WithLabelValues(m.namespace, m.name).
		Inc()
}

// Clear removes per-cluster series after cluster deletion.
func (m *ClusterMetrics) Clear() {
	clusterOnlineInstancesGauge.DeleteLabelValues(m.namespace, m.name)
	groupViewChangesTotal.DeleteLabelValues(m.namespace, m.name)
	instanceRestartsTotal.DeleteLabelValues(m.namespace, m.name)
	clusterStatusGauge.DeletePartialMatch(prometheus.Labels{
		"namespace": m.namespace,
		"name":      m.name,
	})
}
