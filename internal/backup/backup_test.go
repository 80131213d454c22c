package backup

import (
	"context"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
	batchv1 "k8s.io/api/batch/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	mysqlv2 "github.com/mysql-cluster/innodb-operator/api/v2"
	operatorerrors "github.com/mysql-cluster/innodb-operator/internal/errors"
)

func TestValidateSchedule(t *testing.T) {
	require.NoError(t, ValidateSchedule("0 3 * * *"))
	require.Error(t, ValidateSchedule("not a cron expr"))
	// Every minute is below the minimum interval.
	require.Error(t, ValidateSchedule("* * * * *"))
}

func TestNextRun(t *testing.T) {
	from := time.Date(2024, 5, 1, 2, 0, 0, 0, time.UTC)
	next, err := NextRun("0 3 * * *", from)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC), next)
}

func newScheduleCluster() *mysqlv2.InnoDBCluster {
	return &mysqlv2.InnoDBCluster{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "mycluster",
			Namespace: "testns",
			UID:       "test-uid",
		},
		Spec: mysqlv2.InnoDBClusterSpec{
			SecretName: "mypwds",
			Instances:  3,
			BackupProfiles: []mysqlv2.BackupProfile{
				{Name: "nightly"},
			},
		},
	}
}

func TestEnsureSchedulesCreatesAndRemoves(t *testing.T) {
	scheme := runtime.NewScheme()
	require.NoError(t, clientgoscheme.AddToScheme(scheme))
	require.NoError(t, mysqlv2.AddToScheme(scheme))
	c := fake.NewClientBuilder().WithScheme(scheme).Build()
	s := NewScheduler(c, scheme)

	cluster := newScheduleCluster()
	ctx := context.Background()

	nightly := mysqlv2.BackupScheduleSpec{
		Name:              "nightly",
		Schedule:          "0 3 * * *",
		BackupProfileName: "nightly",
		Enabled:           true,
	}
	weekly := mysqlv2.BackupScheduleSpec{
		Name:              "weekly",
		Schedule:          "0 4 * * 0",
		BackupProfileName: "nightly",
		Enabled:           false,
	}

	require.NoError(t, s.EnsureSchedules(ctx, logr.Discard(), cluster, nil,
		[]mysqlv2.BackupScheduleSpec{nightly, weekly}))

	cj := &batchv1.CronJob{}
	require.NoError(t, c.Get(ctx, types.NamespacedName{Namespace: "testns", Name: "mycluster-nightly-cb"}, cj))
	require.Equal(t, "0 3 * * *", cj.Spec.Schedule)
	require.False(t, *cj.Spec.Suspend)

	require.NoError(t, c.Get(ctx, types.NamespacedName{Namespace: "testns", Name: "mycluster-weekly-cb"}, cj))
	require.True(t, *cj.Spec.Suspend, "disabled schedules are created suspended")

	// Dropping weekly from the desired list removes its CronJob.
	require.NoError(t, s.EnsureSchedules(ctx, logr.Discard(), cluster,
		[]mysqlv2.BackupScheduleSpec{nightly, weekly},
		[]mysqlv2.BackupScheduleSpec{nightly}))

	err := c.Get(ctx, types.NamespacedName{Namespace: "testns", Name: "mycluster-weekly-cb"}, cj)
	require.Error(t, err)
	require.NoError(t, c.Get(ctx, types.NamespacedName{Namespace: "testns", Name: "mycluster-nightly-cb"}, cj))
}

func TestEnsureSchedulesRejectsBadExpression(t *testing.T) {
	scheme := runtime.NewScheme()
	require.NoError(t, clientgoscheme.AddToScheme(scheme))
	require.NoError(t, mysqlv2.AddToScheme(scheme))
	c := fake.NewClientBuilder().WithScheme(scheme).Build()
	s := NewScheduler(c, scheme)

	bad := mysqlv2.BackupScheduleSpec{
		Name:              "bad",
		Schedule:          "every day at dawn",
		BackupProfileName: "nightly",
		Enabled:           true,
	}

	err := s.EnsureSchedules(context.Background(), logr.Discard(), newScheduleCluster(), nil,
		[]mysqlv2.BackupScheduleSpec{bad})
	require.Error(t, err)
	require.True(t, operatorerrors.IsInvalidSpec(err))
}
