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

package main

import (
	"crypto/tls"
	"flag"
	"os"

	// Import all Kubernetes client auth plugins (e.g. Azure, GCP, OIDC, etc.)
	// to ensure that exec-entrypoint and run can make use of them.
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/metrics/filters"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	mysqlv2 "github.com/mysql-cluster/innodb-operator/api/v2"
	"github.com/mysql-cluster/innodb-operator/internal/backup"
	"github.com/mysql-cluster/innodb-operator/internal/controller"
	"github.com/mysql-cluster/innodb-operator/internal/diagnose"
	"github.com/mysql-cluster/innodb-operator/internal/factory"
	"github.com/mysql-cluster/innodb-operator/internal/innodbcluster"
	"github.com/mysql-cluster/innodb-operator/internal/monitor"
	"github.com/mysql-cluster/innodb-operator/internal/mysql"
	"github.com/mysql-cluster/innodb-operator/internal/operationlock"
	"github.com/mysql-cluster/innodb-operator/internal/podstate"
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(mysqlv2.AddToScheme(scheme))
}

func main() {
	var metricsAddr string
	var enableLeaderElection bool
	var probeAddr string
	var secureMetrics bool
	var enableHTTP2 bool
	var tlsOpts []func(*tls.Config)

	flag.StringVar(&metricsAddr, "metrics-bind-address", ":8443", "The address the metrics endpoint binds to.")
	flag.StringVar(&probeAddr, "health-probe-bind-address", ":8081", "The address the probe endpoint binds to.")
	flag.BoolVar(&enableLeaderElection, "leader-elect", false,
		"Enable leader election for controller manager. "+
			"Enabling this will ensure there is only one active controller manager.")
	flag.BoolVar(&secureMetrics, "metrics-secure", true,
		"If set, the metrics endpoint is served securely via HTTPS. Use --metrics-secure=false to use HTTP instead.")
	flag.BoolVar(&enableHTTP2, "enable-http2", false,
		"If set, HTTP/2 will be enabled for the metrics server")

	opts := zap.Options{
		Development: true,
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	// if the enable-http2 flag is false (the default), http/2 should be disabled
	// due to its vulnerabilities. More specifically, disabling http/2 will
	// prevent from being vulnerable to the HTTP/2 Stream Cancellation and
	// Rapid Reset CVEs. For more information see:
	// - https://github.com/advisories/GHSA-qppj-fm5r-hxr3
	// - https://github.com/advisories/GHSA-4374-p667-p6c8
	disableHTTP2 := func(c *tls.Config) {
		setupLog.Info("disabling http/2")
		c.NextProtos = []string{"http/1.1"}
	}

	if !enableHTTP2 {
		tlsOpts = append(tlsOpts, disableHTTP2)
	}

	metricsServerOptions := metricsserver.Options{
		BindAddress:   metricsAddr,
		SecureServing: secureMetrics,
		TLSOpts:       tlsOpts,
	}

	if secureMetrics {
		// FilterProvider is used to protect the metrics endpoint with authn/authz.
		metricsServerOptions.FilterProvider = filters.WithAuthenticationAndAuthorization
	}

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsServerOptions,
		HealthProbeBindAddress: probeAddr,
		LeaderElection:         enableLeaderElection,
		LeaderElectionID:       "innodbcluster-operator-leader.mysql.oracle.com",
	})
	if err != nil {
		setupLog.Error(err, "unable to start manager")
		os.Exit(1)
	}

	// Administrative MySQL credentials used by the sidecar account. The
	// per-cluster password lives in the cluster's generated secret; the
	// operator itself reaches instances with the account configured at
	// deploy time.
	creds := mysql.Credentials{
		User:     os.Getenv("MYSQL_OPERATOR_ADMIN_USER"),
		Password: os.Getenv("MYSQL_OPERATOR_ADMIN_PASSWORD"),
	}
	if creds.User == "" {
		creds.User = "mysqladmin"
	}

	locks := operationlock.NewSet()
	pods := podstate.NewTracker()
	resources := factory.NewManager(mgr.GetClient(), mgr.GetScheme())
	backups := backup.NewScheduler(mgr.GetClient(), mgr.GetScheme())
	admin := mysql.NewSQLAdmin(creds)
	prober := diagnose.NewGroupProber(mgr.GetClient(), admin, ctrl.Log.WithName("diagnose"))
	clusters := innodbcluster.NewController(
		mgr.GetClient(),
		resources,
		prober,
		admin,
		mgr.GetEventRecorderFor("innodbcluster-operator"),
		ctrl.Log.WithName("innodbcluster"),
	)

	clusterReconciler := &controller.InnoDBClusterReconciler{
		Client:   mgr.GetClient(),
		Scheme:   mgr.GetScheme(),
		Recorder: mgr.GetEventRecorderFor("innodbcluster-operator"),
		Locks:    locks,
		Factory:  resources,
		Backups:  backups,
		Clusters: clusters,
	}

	groupMonitor := monitor.NewGroupMonitor(
		mgr.GetClient(),
		admin,
		clusterReconciler.HandleGroupViewChange,
		ctrl.Log.WithName("monitor"),
	)
	clusterReconciler.Monitor = groupMonitor

	if err := clusterReconciler.SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "InnoDBCluster")
		os.Exit(1)
	}

	podReconciler := &controller.MySQLPodReconciler{
		Client:   mgr.GetClient(),
		Scheme:   mgr.GetScheme(),
		Locks:    locks,
		Pods:     pods,
		Clusters: clusters,
	}
	if err := podReconciler.SetupWithManager(mgr); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "MySQLPod")
		os.Exit(1)
	}

	// The monitor only runs on the leader so view changes are reported by
	// the instance that can also act on them.
	if err := mgr.Add(groupMonitor); err != nil {
		setupLog.Error(err, "unable to add group monitor")
		os.Exit(1)
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up health check")
		os.Exit(1)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up ready check")
		os.Exit(1)
	}

	setupLog.Info("starting manager")
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		setupLog.Error(err, "problem running manager")
		os.Exit(1)
	}
}
