package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"peopleops.org/internal/auth"
)

type loginLogStore struct {
	db *sql.DB
}

func (s *loginLogStore) Append(ctx context.Context, entry *auth.LoginLog) error {
	_, err := s.db.ExecContext(ctx, `
		insert into login_logs (id, user_id, username, ip_address, user_agent,
			successful, failure_reason, login_time)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, nullString(entry.UserID), entry.Username, nullString(entry.IPAddress),
		nullString(entry.UserAgent), entry.Successful, nullString(entry.FailureReason), entry.LoginTime)
	return err
}

func (s *loginLogStore) ForUser(ctx context.Context, userID string, limit, offset int) ([]auth.LoginLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, user_id, username, ip_address, user_agent, successful, failure_reason, login_time
		from login_logs
		where user_id = $1
		order by login_time desc
		limit $2 offset $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.LoginLog
	for rows.Next() {
		var (
			l         auth.LoginLog
			uid       sql.NullString
			ip, agent sql.NullString
			reason    sql.NullString
		)
		if err := rows.Scan(&l.ID, &uid, &l.Username, &ip, &agent, &l.Successful, &reason, &l.LoginTime); err != nil {
			return nil, err
		}
		l.UserID = stringPtr(uid)
		l.IPAddress = stringPtr(ip)
		l.UserAgent = stringPtr(agent)
		l.FailureReason = stringPtr(reason)
		result = append(result, l)
	}
	return result, rows.Err()
}

func (s *loginLogStore) CountFailedSince(ctx context.Context, username string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		select count(*) from login_logs
		where username = $1 and successful = false and login_time >= $2
	`, username, since).Scan(&count)
	return count, err
}

type auditLogStore struct {
	db *sql.DB
}

func (s *auditLogStore) Append(ctx context.Context, entry *auth.AuditLog) error {
	oldJSON, err := marshalValues(entry.OldValues)
	if err != nil {
		return fmt.Errorf("encode old values: %w", err)
	}
	newJSON, err := marshalValues(entry.NewValues)
	if err != nil {
		return fmt.Errorf("encode new values: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_logs (id, table_name, record_id, action, old_values, new_values,
			changed_by, ip_address, user_agent, changed_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, entry.ID, entry.TableName, entry.RecordID, entry.Action, oldJSON, newJSON,
		nullString(entry.ChangedBy), nullString(entry.IPAddress), nullString(entry.UserAgent), entry.ChangedAt)
	return err
}

const auditSelect = `
	select id, table_name, record_id, action, old_values, new_values,
		changed_by, ip_address, user_agent, changed_at
	from audit_logs
`

func (s *auditLogStore) ForRecord(ctx context.Context, tableName, recordID string, limit, offset int) ([]auth.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, auditSelect+`
		where table_name = $1 and record_id = $2
		order by changed_at desc
		limit $3 offset $4
	`, tableName, recordID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditLogs(rows)
}

func (s *auditLogStore) ForTable(ctx context.Context, tableName string, limit, offset int) ([]auth.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, auditSelect+`
		where table_name = $1
		order by changed_at desc
		limit $2 offset $3
	`, tableName, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditLogs(rows)
}

func (s *auditLogStore) ForUser(ctx context.Context, changedBy string, limit, offset int) ([]auth.AuditLog, error) {
	rows, err := s.db.QueryContext(ctx, auditSelect+`
		where changed_by = $1
		order by changed_at desc
		limit $2 offset $3
	`, changedBy, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAuditLogs(rows)
}

func scanAuditLogs(rows *sql.Rows) ([]auth.AuditLog, error) {
	var result []auth.AuditLog
	for rows.Next() {
		var (
			e              auth.AuditLog
			oldRaw, newRaw []byte
			by, ip, agent  sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.TableName, &e.RecordID, &e.Action, &oldRaw, &newRaw,
			&by, &ip, &agent, &e.ChangedAt); err != nil {
			return nil, err
		}
		if len(oldRaw) > 0 {
			if err := json.Unmarshal(oldRaw, &e.OldValues); err != nil {
				return nil, err
			}
		}
		if len(newRaw) > 0 {
			if err := json.Unmarshal(newRaw, &e.NewValues); err != nil {
				return nil, err
			}
		}
		e.ChangedBy = stringPtr(by)
		e.IPAddress = stringPtr(ip)
		e.UserAgent = stringPtr(agent)
		result = append(result, e)
	}
	return result, rows.Err()
}

func marshalValues(values map[string]any) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}
	return json.Marshal(values)
}

type sessionStore struct {
	db *sql.DB
}

func (s *sessionStore) Revoke(ctx context.Context, sessionID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into revoked_sessions (session_id, user_id, revoked_at)
		values ($1, $2, now())
		on conflict (session_id) do nothing
	`, sessionID, userID)
	return err
}

func (s *sessionStore) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx, `
		select exists (select 1 from revoked_sessions where session_id = $1)
	`, sessionID).Scan(&revoked)
	return revoked, err
}
