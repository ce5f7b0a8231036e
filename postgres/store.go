// Package postgres provides the shared durable backend for checkpoints, the
// human review queue, and the audit log, for deployments where multiple
// processes work the same review queue.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/deepnoodle-ai/payflow"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
    checkpoint_id TEXT PRIMARY KEY,
    workflow_id   TEXT NOT NULL,
    invoice_id    TEXT NOT NULL,
    state_json    JSONB NOT NULL,
    paused_reason TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL DEFAULT 'PENDING',
    decision      TEXT,
    reviewer_id   TEXT,
    notes         TEXT,
    created_at    TIMESTAMPTZ NOT NULL,
    decided_at    TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_workflow ON checkpoints(workflow_id);
CREATE INDEX IF NOT EXISTS idx_checkpoints_status ON checkpoints(status);

CREATE TABLE IF NOT EXISTS human_review_queue (
    checkpoint_id   TEXT PRIMARY KEY REFERENCES checkpoints(checkpoint_id),
    invoice_id      TEXT NOT NULL,
    vendor_name     TEXT NOT NULL,
    amount          DOUBLE PRECISION NOT NULL,
    currency        TEXT NOT NULL DEFAULT '',
    reason_for_hold TEXT NOT NULL DEFAULT '',
    review_url      TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL,
    status          TEXT NOT NULL DEFAULT 'PENDING'
);

CREATE INDEX IF NOT EXISTS idx_review_queue_status ON human_review_queue(status);

CREATE TABLE IF NOT EXISTS audit_log (
    id           BIGSERIAL PRIMARY KEY,
    workflow_id  TEXT NOT NULL,
    stage        TEXT NOT NULL,
    action       TEXT NOT NULL,
    details_json JSONB,
    created_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_workflow ON audit_log(workflow_id);
`

// Store is a payflow.CheckpointStore and payflow.AuditLog backed by
// PostgreSQL.
type Store struct {
	db *sql.DB
}

var (
	_ payflow.CheckpointStore = (*Store)(nil)
	_ payflow.AuditLog        = (*Store)(nil)
)

// Open connects to the database named by dsn and ensures the schema exists.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create persists a checkpoint and its review queue entry in one transaction.
func (s *Store) Create(ctx context.Context, checkpoint *payflow.Checkpoint, entry *payflow.ReviewQueueEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkpoint tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkpoints (
            checkpoint_id, workflow_id, invoice_id, state_json,
            paused_reason, status, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		checkpoint.ID,
		checkpoint.WorkflowID,
		checkpoint.InvoiceID,
		string(checkpoint.State),
		checkpoint.PausedReason,
		string(checkpoint.Status),
		checkpoint.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO human_review_queue (
            checkpoint_id, invoice_id, vendor_name, amount, currency,
            reason_for_hold, review_url, created_at, status
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.CheckpointID,
		entry.InvoiceID,
		entry.VendorName,
		entry.Amount,
		entry.Currency,
		entry.ReasonForHold,
		entry.ReviewURL,
		entry.CreatedAt,
		string(entry.Status),
	)
	if err != nil {
		return fmt.Errorf("insert review queue entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

// Get returns a checkpoint by id, or payflow.ErrNotFound.
func (s *Store) Get(ctx context.Context, checkpointID string) (*payflow.Checkpoint, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT checkpoint_id, workflow_id, invoice_id, state_json, paused_reason,
                status, decision, reviewer_id, notes, created_at, decided_at
           FROM checkpoints WHERE checkpoint_id = $1`, checkpointID)

	var (
		cp        payflow.Checkpoint
		stateJSON []byte
		status    string
		decision  sql.NullString
		reviewer  sql.NullString
		notes     sql.NullString
		decidedAt sql.NullTime
	)
	err := row.Scan(&cp.ID, &cp.WorkflowID, &cp.InvoiceID, &stateJSON, &cp.PausedReason,
		&status, &decision, &reviewer, &notes, &cp.CreatedAt, &decidedAt)
	if err == sql.ErrNoRows {
		return nil, payflow.NewNotFoundError(checkpointID)
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", checkpointID, err)
	}

	cp.State = json.RawMessage(stateJSON)
	cp.Status = payflow.CheckpointStatus(status)
	cp.Decision = payflow.Decision(decision.String)
	cp.ReviewerID = reviewer.String
	cp.Notes = notes.String
	if decidedAt.Valid {
		cp.DecidedAt = decidedAt.Time.UTC()
	}
	cp.CreatedAt = cp.CreatedAt.UTC()
	return &cp, nil
}

// Resolve transitions a PENDING checkpoint to RESOLVED with the decision.
// The guarded UPDATE is the compare-and-swap: exactly one concurrent
// resolver changes the row.
func (s *Store) Resolve(ctx context.Context, checkpointID string, decision payflow.Decision, reviewerID, notes string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin resolve tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE checkpoints
            SET status = $1, decision = $2, reviewer_id = $3, notes = $4, decided_at = NOW()
          WHERE checkpoint_id = $5 AND status = $6`,
		string(payflow.CheckpointResolved),
		string(decision),
		reviewerID,
		notes,
		checkpointID,
		string(payflow.CheckpointPending),
	)
	if err != nil {
		return fmt.Errorf("resolve checkpoint %s: %w", checkpointID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve checkpoint %s: %w", checkpointID, err)
	}
	if affected == 0 {
		var status string
		err := tx.QueryRowContext(ctx,
			"SELECT status FROM checkpoints WHERE checkpoint_id = $1", checkpointID).Scan(&status)
		if err == sql.ErrNoRows {
			return payflow.NewNotFoundError(checkpointID)
		}
		if err != nil {
			return fmt.Errorf("resolve checkpoint %s: %w", checkpointID, err)
		}
		return payflow.NewAlreadyResolvedError(checkpointID)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE human_review_queue SET status = $1 WHERE checkpoint_id = $2",
		string(payflow.CheckpointResolved), checkpointID)
	if err != nil {
		return fmt.Errorf("update review queue %s: %w", checkpointID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit resolve: %w", err)
	}
	return nil
}

// ListPending returns PENDING queue entries, most recent first.
func (s *Store) ListPending(ctx context.Context) ([]payflow.ReviewQueueEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT checkpoint_id, invoice_id, vendor_name, amount, currency,
                reason_for_hold, review_url, created_at, status
           FROM human_review_queue
          WHERE status = $1
          ORDER BY created_at DESC, checkpoint_id DESC`,
		string(payflow.CheckpointPending))
	if err != nil {
		return nil, fmt.Errorf("list pending reviews: %w", err)
	}
	defer rows.Close()

	var out []payflow.ReviewQueueEntry
	for rows.Next() {
		var (
			entry  payflow.ReviewQueueEntry
			status string
		)
		if err := rows.Scan(&entry.CheckpointID, &entry.InvoiceID, &entry.VendorName,
			&entry.Amount, &entry.Currency, &entry.ReasonForHold, &entry.ReviewURL,
			&entry.CreatedAt, &status); err != nil {
			return nil, fmt.Errorf("scan review entry: %w", err)
		}
		entry.Status = payflow.CheckpointStatus(status)
		entry.CreatedAt = entry.CreatedAt.UTC()
		out = append(out, entry)
	}
	return out, rows.Err()
}

// ListResolved returns resolved reviews joined with queue metadata, most
// recently decided first.
func (s *Store) ListResolved(ctx context.Context) ([]payflow.DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.checkpoint_id, c.invoice_id, q.vendor_name, q.amount, q.currency,
                c.decision, c.notes, c.reviewer_id, c.decided_at
           FROM checkpoints c
           JOIN human_review_queue q ON q.checkpoint_id = c.checkpoint_id
          WHERE c.status = $1
          ORDER BY c.decided_at DESC, c.checkpoint_id DESC`,
		string(payflow.CheckpointResolved))
	if err != nil {
		return nil, fmt.Errorf("list resolved reviews: %w", err)
	}
	defer rows.Close()

	var out []payflow.DecisionRecord
	for rows.Next() {
		var (
			record    payflow.DecisionRecord
			decision  sql.NullString
			notes     sql.NullString
			reviewer  sql.NullString
			decidedAt sql.NullTime
		)
		if err := rows.Scan(&record.CheckpointID, &record.InvoiceID, &record.VendorName,
			&record.Amount, &record.Currency, &decision, &notes, &reviewer, &decidedAt); err != nil {
			return nil, fmt.Errorf("scan decision record: %w", err)
		}
		record.Decision = payflow.Decision(decision.String)
		record.Notes = notes.String
		record.ReviewerID = reviewer.String
		if decidedAt.Valid {
			record.DecidedAt = decidedAt.Time.UTC()
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// Append records an audit entry. Entries are never updated or deleted.
func (s *Store) Append(ctx context.Context, entry payflow.AuditEntry) error {
	var detailsJSON any
	if len(entry.Details) > 0 {
		data, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		detailsJSON = string(data)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (workflow_id, stage, action, details_json, created_at)
         VALUES ($1, $2, $3, $4, $5)`,
		entry.WorkflowID,
		entry.Stage,
		entry.Action,
		detailsJSON,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListByWorkflow returns a workflow's audit entries ordered by timestamp
// ascending, insertion order breaking ties.
func (s *Store) ListByWorkflow(ctx context.Context, workflowID string) ([]payflow.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT workflow_id, stage, action, details_json, created_at
           FROM audit_log
          WHERE workflow_id = $1
          ORDER BY created_at ASC, id ASC`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []payflow.AuditEntry
	for rows.Next() {
		var (
			entry       payflow.AuditEntry
			detailsJSON sql.NullString
		)
		if err := rows.Scan(&entry.WorkflowID, &entry.Stage, &entry.Action,
			&detailsJSON, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if detailsJSON.Valid && detailsJSON.String != "" {
			if err := json.Unmarshal([]byte(detailsJSON.String), &entry.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		entry.Timestamp = entry.Timestamp.UTC()
		out = append(out, entry)
	}
	return out, rows.Err()
}
