package hipaa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odonto/odonto/internal/platform/db"
)

// PGAuditLog stores the audit trail in the audit_access_log table.
type PGAuditLog struct {
	pool *pgxpool.Pool
}

func NewPGAuditLog(pool *pgxpool.Pool) *PGAuditLog {
	return &PGAuditLog{pool: pool}
}

const auditCols = `id, sequence, recorded_at, user_id, user_role, patient_id, action,
	data_accessed, session_id, outcome, reason, flags, hash, prev_hash`

// Append takes a table lock for the duration of the insert so concurrent
// writers, including other processes, extend the chain one at a time.
func (l *PGAuditLog) Append(ctx context.Context, e *AuditEntry) error {
	return db.InTx(ctx, l.pool, func(ctx context.Context) error {
		conn := db.Conn(ctx, l.pool)
		if _, err := conn.Exec(ctx, `LOCK TABLE audit_access_log IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("lock audit log: %w", err)
		}

		var (
			lastSeq  int64
			lastHash string
			lastAt   time.Time
		)
		err := conn.QueryRow(ctx,
			`SELECT sequence, hash, recorded_at FROM audit_access_log ORDER BY sequence DESC LIMIT 1`,
		).Scan(&lastSeq, &lastHash, &lastAt)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("read audit chain head: %w", err)
		}

		seal(e, lastSeq+1, lastHash, lastAt)
		_, err = conn.Exec(ctx, `
			INSERT INTO audit_access_log (`+auditCols+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9,''),$10,NULLIF($11,''),$12,$13,NULLIF($14,''))`,
			e.ID, e.Sequence, e.Timestamp, e.UserID, e.Role, nullableUUID(e.PatientID), e.Action,
			e.DataAccessed, e.SessionID, string(e.Outcome), e.Reason, nonNilFlags(e.Flags), e.Hash, e.PrevHash,
		)
		if err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
		return nil
	})
}

func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func nonNilFlags(flags []string) []string {
	if flags == nil {
		return []string{}
	}
	return flags
}

func scanAuditEntry(row pgx.Row) (*AuditEntry, error) {
	var (
		e         AuditEntry
		patientID *uuid.UUID
		sessionID *string
		reason    *string
		prevHash  *string
		outcome   string
	)
	err := row.Scan(&e.ID, &e.Sequence, &e.Timestamp, &e.UserID, &e.Role, &patientID, &e.Action,
		&e.DataAccessed, &sessionID, &outcome, &reason, &e.Flags, &e.Hash, &prevHash)
	if err != nil {
		return nil, err
	}
	e.Timestamp = e.Timestamp.UTC()
	e.Outcome = Outcome(outcome)
	if patientID != nil {
		e.PatientID = *patientID
	}
	if sessionID != nil {
		e.SessionID = *sessionID
	}
	if reason != nil {
		e.Reason = *reason
	}
	if prevHash != nil {
		e.PrevHash = *prevHash
	}
	if len(e.Flags) == 0 {
		e.Flags = nil
	}
	return &e, nil
}

func (f AuditFilter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.Since != nil {
		add("recorded_at >= $%d", *f.Since)
	}
	if f.Until != nil {
		add("recorded_at < $%d", *f.Until)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (l *PGAuditLog) List(ctx context.Context, f AuditFilter) ([]*AuditEntry, int, error) {
	conn := db.Conn(ctx, l.pool)
	where, args := f.where()

	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM audit_access_log`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}

	query := `SELECT ` + auditCols + ` FROM audit_access_log` + where + ` ORDER BY sequence`
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// Verify walks the whole table in sequence order.
func (l *PGAuditLog) Verify(ctx context.Context) (VerifyResult, error) {
	rows, err := db.Conn(ctx, l.pool).Query(ctx,
		`SELECT `+auditCols+` FROM audit_access_log ORDER BY sequence`)
	if err != nil {
		return VerifyResult{}, fmt.Errorf("read audit chain: %w", err)
	}
	defer rows.Close()

	v := newChainVerifier()
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return VerifyResult{}, err
		}
		if !v.check(e) {
			break
		}
	}
	return v.result, rows.Err()
}

func (l *PGAuditLog) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := db.Conn(ctx, l.pool).Exec(ctx,
		`DELETE FROM audit_access_log WHERE recorded_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge audit entries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
