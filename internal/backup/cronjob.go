package backup

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"

	mysqlv2 "github.com/mysql-cluster/innodb-operator/api/v2"
	"github.com/mysql-cluster/innodb-operator/internal/constants"
	operatorerrors "github.com/mysql-cluster/innodb-operator/internal/errors"
	"github.com/mysql-cluster/innodb-operator/internal/factory"
)

const fieldOwner = "mysql-innodbcluster-operator"

// Scheduler owns the CronJobs backing a cluster's backup schedules.
type Scheduler struct {
	client client.Client
	scheme *runtime.Scheme
}

// NewScheduler constructs a Scheduler.
func NewScheduler(c client.Client, scheme *runtime.Scheme) *Scheduler {
	return &Scheduler{client: c, scheme: scheme}
}

// CronJobName returns the name of the CronJob backing one schedule entry.
func CronJobName(cluster *mysqlv2.InnoDBCluster, schedule *mysqlv2.BackupScheduleSpec) string {
	return cluster.Name + "-" + schedule.Name + "-cb"
}

// EnsureSchedules brings the set of CronJobs in line with the desired
// schedule list. Entries in old but not in new are deleted along with their
// CronJobs; everything in new is applied. Both lists may be nil.
func (s *Scheduler) EnsureSchedules(ctx context.Context, logger logr.Logger, cluster *mysqlv2.InnoDBCluster, old, desired []mysqlv2.BackupScheduleSpec) error {
	keep := make(map[string]bool, len(desired))
	for i := range desired {
		keep[desired[i].Name] = true
	}

	for i := range old {
		if keep[old[i].Name] {
			continue
		}
		cj := &batchv1.CronJob{}
		cj.Namespace = cluster.Namespace
		cj.Name = CronJobName(cluster, &old[i])
		if err := s.client.Delete(ctx, cj); err != nil && !apierrors.IsNotFound(err) {
			return fmt.Errorf("failed to delete CronJob %s: %w", cj.Name, err)
		}
		logger.Info("Removed backup schedule", "schedule", old[i].Name)
	}

	for i := range desired {
		if err := s.applyCronJob(ctx, cluster, &desired[i]); err != nil {
			return err
		}
	}

	return nil
}

func (s *Scheduler) applyCronJob(ctx context.Context, cluster *mysqlv2.InnoDBCluster, schedule *mysqlv2.BackupScheduleSpec) error {
	if err := ValidateSchedule(schedule.Schedule); err != nil {
		return operatorerrors.WrapInvalidSpec(err)
	}

	cj := buildCronJob(cluster, schedule)
	if err := controllerutil.SetControllerReference(cluster, cj, s.scheme); err != nil {
		return fmt.Errorf("failed to set owner reference: %w", err)
	}

	patchOpts := []client.PatchOption{
		client.ForceOwnership,
		client.FieldOwner(fieldOwner),
	}
	if err := s.client.Patch(ctx, cj, client.Apply, patchOpts...); err != nil {
		if apierrors.IsConflict(err) || operatorerrors.IsTransientConnection(err) {
			return operatorerrors.Temporary(0, "transient failure applying CronJob %s: %v", cj.Name, err)
		}
		return fmt.Errorf("failed to apply CronJob %s: %w", cj.Name, err)
	}

	return nil
}

func buildCronJob(cluster *mysqlv2.InnoDBCluster, schedule *mysqlv2.BackupScheduleSpec) *batchv1.CronJob {
	labels := map[string]string{
		constants.LabelAppName:      constants.LabelValueAppNameMySQL,
		constants.LabelAppInstance:  cluster.Name,
		constants.LabelAppManagedBy: constants.LabelValueManagedByOperator,
		constants.LabelCluster:      cluster.Name,
	}

	return &batchv1.CronJob{
		TypeMeta: metav1.TypeMeta{APIVersion: "batch/v1", Kind: "CronJob"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      CronJobName(cluster, schedule),
			Namespace: cluster.Namespace,
			Labels:    labels,
		},
		Spec: batchv1.CronJobSpec{
			Schedule: schedule.Schedule,
			Suspend:  ptr.To(!schedule.Enabled),
			// A missed window means the cluster was down; a stale dump is
			// worse than waiting for the next one.
			ConcurrencyPolicy: batchv1.ForbidConcurrent,
			JobTemplate: batchv1.JobTemplateSpec{
				Spec: batchv1.JobSpec{
					BackoffLimit: ptr.To(int32(3)),
					Template: corev1.PodTemplateSpec{
						ObjectMeta: metav1.ObjectMeta{Labels: labels},
						Spec: corev1.PodSpec{
							RestartPolicy: corev1.RestartPolicyNever,
							Containers: []corev1.Container{
								backupContainer(cluster, schedule),
							},
						},
					},
				},
			},
		},
	}
}

func backupContainer(cluster *mysqlv2.InnoDBCluster, schedule *mysqlv2.BackupScheduleSpec) corev1.Container {
	return corev1.Container{
		Name:            "backup",
		Image:           cluster.Spec.ServerImage(),
		ImagePullPolicy: cluster.Spec.PullPolicy(),
		Command:         []string{"/usr/local/bin/mysql-backup"},
		Args: []string{
			"--cluster", cluster.Name,
			"--profile", schedule.BackupProfileName,
		},
		Env: []corev1.EnvVar{
			{Name: "MYSQL_HOST", Value: factory.ServiceName(cluster)},
			{Name: "MYSQL_PORT", Value: "3306"},
			{
				Name: "MYSQL_USER",
				ValueFrom: &corev1.EnvVarSource{
					SecretKeyRef: &corev1.SecretKeySelector{
						LocalObjectReference: corev1.LocalObjectReference{Name: factory.BackupSecretName(cluster)},
						Key:                  factory.KeyBackupUser,
					},
				},
			},
			{
				Name: "MYSQL_PASSWORD",
				ValueFrom: &corev1.EnvVarSource{
					SecretKeyRef: &corev1.SecretKeySelector{
						LocalObjectReference: corev1.LocalObjectReference{Name: factory.BackupSecretName(cluster)},
						Key:                  factory.KeyBackupPassword,
					},
				},
			},
		},
	}
}
