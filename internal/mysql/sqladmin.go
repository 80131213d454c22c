package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	operatorerrors "github.com/mysql-cluster/innodb-operator/internal/errors"
)

const (
	connectTimeout = 5 * time.Second
	readTimeout    = 10 * time.Second
)

// Credentials is the administrative account used for group operations.
type Credentials struct {
	User     string
	Password string
}

// SQLAdmin implements GroupAdmin over plain SQL connections using the
// performance_schema replication tables. Connections are opened per call;
// the members we talk to restart too often for pooling to pay off.
type SQLAdmin struct {
	creds Credentials
}

// NewSQLAdmin constructs a SQLAdmin with the given credentials.
func NewSQLAdmin(creds Credentials) *SQLAdmin {
	return &SQLAdmin{creds: creds}
}

func (a *SQLAdmin) open(addr string) (*sql.DB, error) {
	cfg := mysql.NewConfig()
	cfg.User = a.creds.User
	cfg.Passwd = a.creds.Password
	cfg.Net = "tcp"
	cfg.Addr = addr
	cfg.Timeout = connectTimeout
	cfg.ReadTimeout = readTimeout
	cfg.InterpolateParams = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open connection to %s: %w", addr, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// FetchGroupView reads the group membership from one member.
func (a *SQLAdmin) FetchGroupView(ctx context.Context, addr string) (*GroupView, error) {
	db, err := a.open(addr)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	view := &GroupView{
		Source:     addr,
		ObservedAt: time.Now(),
	}

	row := db.QueryRowContext(ctx,
		`SELECT view_id FROM performance_schema.replication_group_member_stats
		 WHERE member_id = @@server_uuid`)
	if err := row.Scan(&view.ViewID); err != nil {
		if err == sql.ErrNoRows {
			// Group replication not running on this member.
			return view, nil
		}
		return nil, classify(addr, "read view id", err)
	}

	row = db.QueryRowContext(ctx,
		`SELECT @@group_replication_single_primary_mode`)
	if err := row.Scan(&view.SinglePrimary); err != nil {
		return nil, classify(addr, "read primary mode", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT member_id, member_host, member_port, member_state, member_role
		 FROM performance_schema.replication_group_members`)
	if err != nil {
		return nil, classify(addr, "read members", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m Member
		var port sql.NullInt64
		var state, role sql.NullString
		if err := rows.Scan(&m.ServerUUID, &m.Host, &port, &state, &role); err != nil {
			return nil, classify(addr, "scan member", err)
		}
		m.Port = int(port.Int64)
		m.State = MemberState(state.String)
		m.Role = MemberRole(role.String)
		view.Members = append(view.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(addr, "read members", err)
	}

	return view, nil
}

// RemoveInstance drops a member from the group metadata via the metadata
// schema's stored procedures. Unknown members are ignored.
func (a *SQLAdmin) RemoveInstance(ctx context.Context, addr, memberAddr string) error {
	db, err := a.open(addr)
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.ExecContext(ctx,
		`DELETE FROM mysql_innodb_cluster_metadata.instances WHERE address = ?`, memberAddr)
	if err != nil {
		if merr, ok := err.(*mysql.MySQLError); ok && merr.Number == 1146 {
			// Metadata schema not created yet; nothing to remove.
			return nil
		}
		return classify(addr, fmt.Sprintf("remove instance %s", memberAddr), err)
	}
	return nil
}

// RejoinInstance starts group replication on a member that dropped out,
// typically after a server container restart.
func (a *SQLAdmin) RejoinInstance(ctx context.Context, addr string) error {
	db, err := a.open(addr)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `START GROUP_REPLICATION`); err != nil {
		if merr, ok := err.(*mysql.MySQLError); ok && merr.Number == 3093 {
			// The member is already part of a group.
			return nil
		}
		return classify(addr, "rejoin instance", err)
	}
	return nil
}

// RebootFromCompleteOutage bootstraps the group again on the given member.
func (a *SQLAdmin) RebootFromCompleteOutage(ctx context.Context, addr string) error {
	db, err := a.open(addr)
	if err != nil {
		return err
	}
	defer db.Close()

	stmts := []string{
		`SET GLOBAL group_replication_bootstrap_group = ON`,
		`START GROUP_REPLICATION`,
		`SET GLOBAL group_replication_bootstrap_group = OFF`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return classify(addr, "reboot from outage", err)
		}
	}
	return nil
}

// classify wraps SQL errors, tagging connection-level failures as temporary
// so callers retry instead of failing the handler.
func classify(addr, op string, err error) error {
	if operatorerrors.IsTransientConnection(err) || err == mysql.ErrInvalidConn || err == sql.ErrConnDone {
		return operatorerrors.Temporary(0, "%s on %s: %v", op, addr, err)
	}
	return fmt.Errorf("%s on %s: %w", op, addr, err)
}
