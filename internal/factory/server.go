package factory

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	policyv1 "k8s.io/api/policy/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"

	mysqlv2 "github.com/mysql-cluster/innodb-operator/api/v2"
	"github.com/mysql-cluster/innodb-operator/internal/constants"
)

// Server-side ports. 33061 is the group replication communication port and
// stays unexposed on the service.
const (
	PortMySQL  = int32(3306)
	PortMySQLX = int32(33060)
	PortGRXCom = int32(33061)

	dataVolumeName     = "datadir"
	initConfVolumeName = "initconfdir"
	runVolumeName      = "rundir"

	initConfMountPath = "/mnt/initconf"
	dataMountPath     = "/var/lib/mysql"
	runMountPath      = "/var/run/mysqld"

	defaultDataVolumeSize = "2Gi"
)

// ensureService applies the headless service that gives each server pod a
// stable DNS identity. Group replication seeds and report_host values are
// built from these names.
func (m *Manager) ensureService(ctx context.Context, cluster *mysqlv2.InnoDBCluster) error {
	svc := &corev1.Service{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      ServiceName(cluster),
			Namespace: cluster.Namespace,
			Labels:    clusterLabels(cluster),
		},
		Spec: corev1.ServiceSpec{
			ClusterIP:                corev1.ClusterIPNone,
			PublishNotReadyAddresses: true,
			Selector:                 serverSelectorLabels(cluster),
			Ports: []corev1.ServicePort{
				{Name: "mysql", Port: PortMySQL, TargetPort: intstr.FromInt32(PortMySQL)},
				{Name: "mysqlx", Port: PortMySQLX, TargetPort: intstr.FromInt32(PortMySQLX)},
			},
		},
	}

	return m.applyResource(ctx, svc, cluster)
}

// ensureStatefulSet applies the server StatefulSet. Pod identity matters:
// the ordinal feeds the server_id and the first pod bootstraps the group,
// so the update strategy stays OrderedReady.
func (m *Manager) ensureStatefulSet(ctx context.Context, cluster *mysqlv2.InnoDBCluster) error {
	labels := make(map[string]string, 8)
	for k, v := range clusterLabels(cluster) {
		labels[k] = v
	}
	labels[constants.LabelComponent] = constants.LabelValueComponentServer

	sts := &appsv1.StatefulSet{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "StatefulSet"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      StatefulSetName(cluster),
			Namespace: cluster.Namespace,
			Labels:    clusterLabels(cluster),
		},
		Spec: appsv1.StatefulSetSpec{
			ServiceName: ServiceName(cluster),
			Replicas:    ptr.To(cluster.Spec.Instances),
			Selector: &metav1.LabelSelector{
				MatchLabels: serverSelectorLabels(cluster),
			},
			PodManagementPolicy: appsv1.OrderedReadyPodManagement,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: labels,
				},
				Spec: corev1.PodSpec{
					ReadinessGates: []corev1.PodReadinessGate{
						{ConditionType: corev1.PodConditionType(constants.ReadinessGateConfigured)},
					},
					TerminationGracePeriodSeconds: ptr.To(int64(120)),
					Containers: []corev1.Container{
						serverContainer(cluster),
						sidecarContainer(cluster),
					},
					Volumes: []corev1.Volume{
						{
							Name: initConfVolumeName,
							VolumeSource: corev1.VolumeSource{
								ConfigMap: &corev1.ConfigMapVolumeSource{
									LocalObjectReference: corev1.LocalObjectReference{
										Name: InitConfName(cluster),
									},
									DefaultMode: ptr.To(int32(0o555)),
								},
							},
						},
						{
							Name: runVolumeName,
							VolumeSource: corev1.VolumeSource{
								EmptyDir: &corev1.EmptyDirVolumeSource{},
							},
						},
					},
				},
			},
			VolumeClaimTemplates: []corev1.PersistentVolumeClaim{
				{
					ObjectMeta: metav1.ObjectMeta{Name: dataVolumeName},
					Spec: corev1.PersistentVolumeClaimSpec{
						AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
						Resources: corev1.VolumeResourceRequirements{
							Requests: corev1.ResourceList{
								corev1.ResourceStorage: resource.MustParse(defaultDataVolumeSize),
							},
						},
					},
				},
			},
		},
	}

	return m.applyResource(ctx, sts, cluster)
}

func serverContainer(cluster *mysqlv2.InnoDBCluster) corev1.Container {
	return corev1.Container{
		Name:            constants.ContainerNameMySQL,
		Image:           cluster.Spec.ServerImage(),
		ImagePullPolicy: cluster.Spec.PullPolicy(),
		Args:            []string{"mysqld", "--user=mysql"},
		Env: []corev1.EnvVar{
			{Name: "MYSQL_UNIX_PORT", Value: runMountPath + "/mysql.sock"},
			{
				Name: "MYSQL_ROOT_PASSWORD",
				ValueFrom: &corev1.EnvVarSource{
					SecretKeyRef: &corev1.SecretKeySelector{
						LocalObjectReference: corev1.LocalObjectReference{Name: cluster.Spec.SecretName},
						Key:                  "rootPassword",
					},
				},
			},
		},
		Ports: []corev1.ContainerPort{
			{Name: "mysql", ContainerPort: PortMySQL},
			{Name: "mysqlx", ContainerPort: PortMySQLX},
			{Name: "gr-xcom", ContainerPort: PortGRXCom},
		},
		VolumeMounts: []corev1.VolumeMount{
			{Name: dataVolumeName, MountPath: dataMountPath},
			{Name: initConfVolumeName, MountPath: initConfMountPath, ReadOnly: true},
			{Name: runVolumeName, MountPath: runMountPath},
		},
		StartupProbe: &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				Exec: &corev1.ExecAction{Command: []string{initConfMountPath + "/" + livenessScriptKey}},
			},
			PeriodSeconds:    5,
			FailureThreshold: 60,
		},
		LivenessProbe: &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				Exec: &corev1.ExecAction{Command: []string{initConfMountPath + "/" + livenessScriptKey}},
			},
			PeriodSeconds:    15,
			FailureThreshold: 10,
		},
		ReadinessProbe: &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				Exec: &corev1.ExecAction{Command: []string{initConfMountPath + "/" + readinessProbeKey}},
			},
			PeriodSeconds:    5,
			FailureThreshold: 3,
		},
	}
}

// sidecarContainer runs the in-pod agent that configures the local server,
// joins it to the group, and flips the "configured" readiness gate.
func sidecarContainer(cluster *mysqlv2.InnoDBCluster) corev1.Container {
	return corev1.Container{
		Name:            constants.ContainerNameSidecar,
		Image:           cluster.Spec.ServerImage(),
		ImagePullPolicy: cluster.Spec.PullPolicy(),
		Command:         []string{"/usr/local/bin/mysql-sidecar"},
		Env: []corev1.EnvVar{
			{Name: "MYSQL_CLUSTER_NAME", Value: cluster.Name},
			{Name: "MYSQL_BASE_SERVER_ID", Value: fmt.Sprintf("%d", cluster.Spec.BaseServerID)},
			{
				Name: "MYSQL_POD_NAME",
				ValueFrom: &corev1.EnvVarSource{
					FieldRef: &corev1.ObjectFieldSelector{FieldPath: "metadata.name"},
				},
			},
			{
				Name: "MYSQL_ADMIN_PASSWORD",
				ValueFrom: &corev1.EnvVarSource{
					SecretKeyRef: &corev1.SecretKeySelector{
						LocalObjectReference: corev1.LocalObjectReference{Name: ClusterSecretName(cluster)},
						Key:                  KeyClusterAdminPassword,
					},
				},
			},
		},
		VolumeMounts: []corev1.VolumeMount{
			{Name: initConfVolumeName, MountPath: initConfMountPath, ReadOnly: true},
			{Name: runVolumeName, MountPath: runMountPath},
		},
	}
}

// ensurePDB applies a disruption budget allowing at most one voluntarily
// evicted server at a time, which is what a single-primary group tolerates
// without losing quorum at three members.
func (m *Manager) ensurePDB(ctx context.Context, cluster *mysqlv2.InnoDBCluster) error {
	pdb := &policyv1.PodDisruptionBudget{
		TypeMeta: metav1.TypeMeta{APIVersion: "policy/v1", Kind: "PodDisruptionBudget"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      PDBName(cluster),
			Namespace: cluster.Namespace,
			Labels:    clusterLabels(cluster),
		},
		Spec: policyv1.PodDisruptionBudgetSpec{
			MaxUnavailable: ptr.To(intstr.FromInt32(1)),
			Selector: &metav1.LabelSelector{
				MatchLabels: serverSelectorLabels(cluster),
			},
		},
	}

	return m.applyResource(ctx, pdb, cluster)
}
