package factory

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	mysqlv2 "github.com/mysql-cluster/innodb-operator/api/v2"
)

const (
	configFileKey     = "my.cnf.in"
	livenessScriptKey = "livenessprobe.sh"
	readinessProbeKey = "readinessprobe.sh"
)

// configTemplate is the server configuration template rendered into the
// initconf ConfigMap. The sidecar substitutes the per-pod server_id (base
// server id plus pod ordinal) before handing the file to mysqld.
var configTemplate = template.Must(template.New("my.cnf").Parse(`# Generated by the MySQL operator. Do not edit.
[mysqld]
server_id=@@SERVER_ID@@
report_host=@@HOSTNAME@@.{{ .ServiceName }}.{{ .Namespace }}.svc.cluster.local
datadir=/var/lib/mysql
loose_mysqlx_socket=/var/run/mysqld/mysqlx.sock
socket=/var/run/mysqld/mysql.sock
local-infile=1

plugin_load_add=auth_socket.so
loose_auth_socket=FORCE_PLUS_PERMANENT

skip_log_error
log_error_verbosity=3

enforce_gtid_consistency=ON
gtid_mode=ON
skip_replica_start=1

[mysql-operator]
base_server_id={{ .BaseServerID }}
cluster_name={{ .ClusterName }}
instances={{ .Instances }}
`))

type configParams struct {
	ClusterName  string
	Namespace    string
	ServiceName  string
	BaseServerID uint32
	Instances    int32
}

const livenessScript = `#!/bin/bash
# Succeeds once mysqld answers on its local socket.
exec mysqladmin --defaults-extra-file=/etc/my.cnf.d/.localroot.cnf ping
`

const readinessScript = `#!/bin/bash
# Ready only when the server reports itself as part of the group.
exec mysql --defaults-extra-file=/etc/my.cnf.d/.localroot.cnf \
  -e "SELECT 1 FROM performance_schema.replication_group_members WHERE member_host = @@report_host AND member_state IN ('ONLINE','RECOVERING')" \
  | grep -q 1
`

// ensureInitConf renders and applies the configuration ConfigMap mounted by
// every server pod. It is the first dependent resource; the StatefulSet
// cannot start without it.
func (m *Manager) ensureInitConf(ctx context.Context, cluster *mysqlv2.InnoDBCluster) error {
	var buf bytes.Buffer
	err := configTemplate.Execute(&buf, configParams{
		ClusterName:  cluster.Name,
		Namespace:    cluster.Namespace,
		ServiceName:  ServiceName(cluster),
		BaseServerID: cluster.Spec.BaseServerID,
		Instances:    cluster.Spec.Instances,
	})
	if err != nil {
		return fmt.Errorf("failed to render server configuration: %w", err)
	}

	cm := &corev1.ConfigMap{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "ConfigMap"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      InitConfName(cluster),
			Namespace: cluster.Namespace,
			Labels:    clusterLabels(cluster),
		},
		Data: map[string]string{
			configFileKey:     buf.String(),
			livenessScriptKey: livenessScript,
			readinessProbeKey: readinessScript,
		},
	}

	return m.applyResource(ctx, cm, cluster)
}
