package diagnose

import (
	"testing"

	"github.com/stretchr/testify/require"

	mysqlv2 "github.com/mysql-cluster/innodb-operator/api/v2"
	"github.com/mysql-cluster/innodb-operator/internal/mysql"
)

func groupView(viewID string, states ...mysql.MemberState) *mysql.GroupView {
	v := &mysql.GroupView{ViewID: viewID, SinglePrimary: true}
	for i, s := range states {
		m := mysql.Member{
			ServerUUID: string(rune('a' + i)),
			Host:       "mycluster-0.mycluster-instances.testns.svc.cluster.local",
			Port:       3306,
			State:      s,
			Role:       mysql.RoleSecondary,
		}
		if i == 0 {
			m.Role = mysql.RolePrimary
		}
		v.Members = append(v.Members, m)
	}
	return v
}

func TestCondenseOnline(t *testing.T) {
	v := groupView("1:42", mysql.MemberOnline, mysql.MemberOnline, mysql.MemberOnline)
	r := Condense(3, []*mysql.GroupView{v, v, v}, 0)

	require.Equal(t, mysqlv2.ClusterStatusOnline, r.Status)
	require.Equal(t, int32(3), r.OnlineInstances)
	require.NotEmpty(t, r.PrimaryAddress)
}

func TestCondenseOnlinePartial(t *testing.T) {
	v := groupView("1:42", mysql.MemberOnline, mysql.MemberOnline, mysql.MemberRecovering)
	r := Condense(3, []*mysql.GroupView{v, v}, 0)

	require.Equal(t, mysqlv2.ClusterStatusOnlinePartial, r.Status)
	require.Equal(t, int32(2), r.OnlineInstances)
}

func TestCondenseOnlineUncertain(t *testing.T) {
	v := groupView("1:42", mysql.MemberOnline, mysql.MemberOnline, mysql.MemberUnreachable)
	r := Condense(3, []*mysql.GroupView{v, v}, 1)

	require.Equal(t, mysqlv2.ClusterStatusOnlineUncertain, r.Status)
	require.True(t, r.Uncertain())
}

func TestCondenseOffline(t *testing.T) {
	// All members answer but none runs group replication.
	stopped := &mysql.GroupView{}
	r := Condense(3, []*mysql.GroupView{stopped, stopped, stopped}, 0)
	require.Equal(t, mysqlv2.ClusterStatusOffline, r.Status)

	r = Condense(3, []*mysql.GroupView{stopped}, 2)
	require.Equal(t, mysqlv2.ClusterStatusOfflineUncertain, r.Status)
}

func TestCondenseUnknown(t *testing.T) {
	r := Condense(3, nil, 3)
	require.Equal(t, mysqlv2.ClusterStatusUnknown, r.Status)
	require.True(t, r.Uncertain())
}

func TestCondenseNoQuorum(t *testing.T) {
	v := groupView("1:42", mysql.MemberOnline, mysql.MemberUnreachable, mysql.MemberUnreachable)
	r := Condense(3, []*mysql.GroupView{v}, 0)
	require.Equal(t, mysqlv2.ClusterStatusNoQuorum, r.Status)

	r = Condense(3, []*mysql.GroupView{v}, 2)
	require.Equal(t, mysqlv2.ClusterStatusNoQuorumUncertain, r.Status)
}

func TestCondenseSplitBrain(t *testing.T) {
	// Two partitions that both believe they have quorum.
	a := groupView("1:42", mysql.MemberOnline, mysql.MemberOnline)
	b := groupView("2:99", mysql.MemberOnline, mysql.MemberOnline)
	r := Condense(4, []*mysql.GroupView{a, b}, 0)
	require.Equal(t, mysqlv2.ClusterStatusSplitBrain, r.Status)

	r = Condense(4, []*mysql.GroupView{a, b}, 1)
	require.Equal(t, mysqlv2.ClusterStatusSplitBrainUncertain, r.Status)
}
