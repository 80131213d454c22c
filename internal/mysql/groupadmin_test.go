package mysql

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func view(states ...MemberState) *GroupView {
	v := &GroupView{ViewID: "1:100", SinglePrimary: true}
	for i, s := range states {
		m := Member{
			ServerUUID: string(rune('a' + i)),
			Host:       "mycluster-0",
			Port:       3306,
			State:      s,
			Role:       RoleSecondary,
		}
		if i == 0 {
			m.Role = RolePrimary
		}
		v.Members = append(v.Members, m)
	}
	return v
}

func TestOnlineMembers(t *testing.T) {
	require.Equal(t, 0, (&GroupView{}).OnlineMembers())
	require.Equal(t, 2, view(MemberOnline, MemberOnline, MemberRecovering).OnlineMembers())
}

func TestPrimary(t *testing.T) {
	v := view(MemberOnline, MemberOnline)
	p := v.Primary()
	require.NotNil(t, p)
	require.Equal(t, RolePrimary, p.Role)

	// An offline primary does not count.
	v.Members[0].State = MemberError
	require.Nil(t, v.Primary())
}

func TestQuorum(t *testing.T) {
	require.False(t, (&GroupView{}).Quorum())
	require.True(t, view(MemberOnline, MemberOnline, MemberUnreachable).Quorum())
	require.False(t, view(MemberOnline, MemberUnreachable, MemberUnreachable).Quorum())
	require.True(t, view(MemberOnline, MemberRecovering, MemberUnreachable).Quorum())
}
