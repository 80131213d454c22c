package factory

import (
	"context"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/utils/ptr"

	mysqlv2 "github.com/mysql-cluster/innodb-operator/api/v2"
	"github.com/mysql-cluster/innodb-operator/internal/constants"
)

// Router listener ports, classic and X protocol, read-write and read-only.
const (
	PortRouterRW  = int32(6446)
	PortRouterRO  = int32(6447)
	PortRouterXRW = int32(6448)
	PortRouterXRO = int32(6449)
)

// ensureRouterService applies the client-facing service in front of the
// router pods. It exists even when router.instances is zero so that client
// configuration stays stable across router scale changes.
func (m *Manager) ensureRouterService(ctx context.Context, cluster *mysqlv2.InnoDBCluster) error {
	svc := &corev1.Service{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      RouterServiceName(cluster),
			Namespace: cluster.Namespace,
			Labels:    clusterLabels(cluster),
		},
		Spec: corev1.ServiceSpec{
			Selector: routerSelectorLabels(cluster),
			Ports: []corev1.ServicePort{
				{Name: "mysql-rw", Port: PortRouterRW, TargetPort: intstr.FromInt32(PortRouterRW)},
				{Name: "mysql-ro", Port: PortRouterRO, TargetPort: intstr.FromInt32(PortRouterRO)},
				{Name: "mysqlx-rw", Port: PortRouterXRW, TargetPort: intstr.FromInt32(PortRouterXRW)},
				{Name: "mysqlx-ro", Port: PortRouterXRO, TargetPort: intstr.FromInt32(PortRouterXRO)},
			},
		},
	}

	return m.applyResource(ctx, svc, cluster)
}

// ensureRouterDeployment applies the router Deployment for clusters that
// request routers. It starts at zero replicas; routers cannot bootstrap
// against a group that has no online members, so the cluster controller
// scales it up once the cluster first reaches ONLINE.
func (m *Manager) ensureRouterDeployment(ctx context.Context, cluster *mysqlv2.InnoDBCluster) error {
	if cluster.Spec.Router.Instances <= 0 {
		return nil
	}

	replicas := int32(0)
	if cluster.Ready() {
		replicas = cluster.Spec.Router.Instances
	}

	labels := make(map[string]string, 8)
	for k, v := range clusterLabels(cluster) {
		labels[k] = v
	}
	labels[constants.LabelComponent] = constants.LabelValueComponentRouter

	deploy := &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      RouterDeploymentName(cluster),
			Namespace: cluster.Namespace,
			Labels:    clusterLabels(cluster),
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(replicas),
			Selector: &metav1.LabelSelector{
				MatchLabels: routerSelectorLabels(cluster),
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: labels,
				},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{
							Name:            "router",
							Image:           cluster.Spec.RouterImage(),
							ImagePullPolicy: cluster.Spec.PullPolicy(),
							Env: []corev1.EnvVar{
								{Name: "MYSQL_HOST", Value: ServiceName(cluster)},
								{Name: "MYSQL_PORT", Value: "3306"},
								{
									Name: "MYSQL_USER",
									ValueFrom: &corev1.EnvVarSource{
										SecretKeyRef: &corev1.SecretKeySelector{
											LocalObjectReference: corev1.LocalObjectReference{Name: RouterSecretName(cluster)},
											Key:                  KeyRouterUser,
										},
									},
								},
								{
									Name: "MYSQL_PASSWORD",
									ValueFrom: &corev1.EnvVarSource{
										SecretKeyRef: &corev1.SecretKeySelector{
											LocalObjectReference: corev1.LocalObjectReference{Name: RouterSecretName(cluster)},
											Key:                  KeyRouterPassword,
										},
									},
								},
							},
							Ports: []corev1.ContainerPort{
								{Name: "mysql-rw", ContainerPort: PortRouterRW},
								{Name: "mysql-ro", ContainerPort: PortRouterRO},
								{Name: "mysqlx-rw", ContainerPort: PortRouterXRW},
								{Name: "mysqlx-ro", ContainerPort: PortRouterXRO},
							},
						},
					},
				},
			},
		},
	}

	return m.applyResource(ctx, deploy, cluster)
}
