// Package mysql talks group-replication administration to the database
// servers. It is the only package that opens SQL connections; everything
// above it works with the GroupView it returns.
package mysql

import (
	"context"
	"time"
)

// MemberState is a member's state as reported by the group itself.
type MemberState string

const (
	MemberOnline      MemberState = "ONLINE"
	MemberRecovering  MemberState = "RECOVERING"
	MemberUnreachable MemberState = "UNREACHABLE"
	MemberOffline     MemberState = "OFFLINE"
	MemberError       MemberState = "ERROR"
)

// MemberRole distinguishes the primary from secondaries in single-primary
// mode.
type MemberRole string

const (
	RolePrimary   MemberRole = "PRIMARY"
	RoleSecondary MemberRole = "SECONDARY"
)

// Member is one row of the group membership as seen from one server.
type Member struct {
	ServerUUID string
	Host       string
	Port       int
	State      MemberState
	Role       MemberRole
}

// GroupView is the membership of the replication group as observed from a
// single member. Views from different members can disagree during
// partitions; diagnosis has to compare them.
type GroupView struct {
	// ViewID changes whenever the group membership changes. It is the
	// signal the group monitor watches.
	ViewID string

	// Source is the address of the member this view was read from.
	Source string

	// SinglePrimary reports the group's primary mode.
	SinglePrimary bool

	Members []Member

	// ObservedAt is when the view was read.
	ObservedAt time.Time
}

// OnlineMembers counts members the view reports as ONLINE.
func (v *GroupView) OnlineMembers() int {
	n := 0
	for i := range v.Members {
		if v.Members[i].State == MemberOnline {
			n++
		}
	}
	return n
}

// Primary returns the primary member, or nil when the view has none.
func (v *GroupView) Primary() *Member {
	for i := range v.Members {
		if v.Members[i].Role == RolePrimary && v.Members[i].State == MemberOnline {
			return &v.Members[i]
		}
	}
	return nil
}

// Quorum reports whether the ONLINE plus RECOVERING members form a majority
// of the view.
func (v *GroupView) Quorum() bool {
	if len(v.Members) == 0 {
		return false
	}
	active := 0
	for i := range v.Members {
		switch v.Members[i].State {
		case MemberOnline, MemberRecovering:
			active++
		}
	}
	return active*2 > len(v.Members)
}

// GroupAdmin performs administrative operations against the replication
// group. Implementations must be safe for concurrent use; the group monitor
// and the cluster controller both hold one.
type GroupAdmin interface {
	// FetchGroupView reads the group membership as seen by the server at
	// addr ("host:port").
	FetchGroupView(ctx context.Context, addr string) (*GroupView, error)

	// RemoveInstance removes the server at memberAddr from the group
	// metadata, going through the server at addr. Removal of an already
	// absent member is not an error.
	RemoveInstance(ctx context.Context, addr, memberAddr string) error

	// RejoinInstance restarts group replication on the server at addr so
	// it rejoins the running group. The server keeps its recovery
	// configuration; no reprovisioning happens here.
	RejoinInstance(ctx context.Context, addr string) error

	// RebootFromCompleteOutage restarts group replication on the server at
	// addr after a full outage, using it as the new bootstrap seed.
	RebootFromCompleteOutage(ctx context.Context, addr string) error
}
