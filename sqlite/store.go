// Package sqlite provides the embedded durable backend for checkpoints, the
// human review queue, and the audit log.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/deepnoodle-ai/payflow"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; existing databases must be recreated after a bump.
const schemaVersion = 1

// Store is a payflow.CheckpointStore and payflow.AuditLog backed by a single
// SQLite database file.
type Store struct {
	db   *sql.DB
	path string
}

var (
	_ payflow.CheckpointStore = (*Store)(nil)
	_ payflow.AuditLog        = (*Store)(nil)
)

// Open initializes or connects to the database at path and verifies the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("schema version mismatch: database has version %d, expected %d (delete the database to recreate)",
			version, schemaVersion)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
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
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		checkpoint.ID,
		checkpoint.WorkflowID,
		checkpoint.InvoiceID,
		string(checkpoint.State),
		checkpoint.PausedReason,
		string(checkpoint.Status),
		checkpoint.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO human_review_queue (
            checkpoint_id, invoice_id, vendor_name, amount, currency,
            reason_for_hold, review_url, created_at, status
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.CheckpointID,
		entry.InvoiceID,
		entry.VendorName,
		entry.Amount,
		entry.Currency,
		entry.ReasonForHold,
		entry.ReviewURL,
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
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
           FROM checkpoints WHERE checkpoint_id = ?`, checkpointID)

	var (
		cp        payflow.Checkpoint
		stateJSON string
		status    string
		decision  sql.NullString
		reviewer  sql.NullString
		notes     sql.NullString
		createdAt string
		decidedAt sql.NullString
	)
	err := row.Scan(&cp.ID, &cp.WorkflowID, &cp.InvoiceID, &stateJSON, &cp.PausedReason,
		&status, &decision, &reviewer, &notes, &createdAt, &decidedAt)
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
	if cp.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("checkpoint %s created_at: %w", checkpointID, err)
	}
	if decidedAt.Valid {
		if cp.DecidedAt, err = parseTimestamp(decidedAt.String); err != nil {
			return nil, fmt.Errorf("checkpoint %s decided_at: %w", checkpointID, err)
		}
	}
	return &cp, nil
}

// Resolve transitions a PENDING checkpoint to RESOLVED with the decision,
// mirroring the status onto the queue entry in the same transaction. The
// guarded UPDATE is the compare-and-swap: exactly one concurrent resolver
// changes the row.
func (s *Store) Resolve(ctx context.Context, checkpointID string, decision payflow.Decision, reviewerID, notes string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin resolve tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE checkpoints
            SET status = ?, decision = ?, reviewer_id = ?, notes = ?, decided_at = ?
          WHERE checkpoint_id = ? AND status = ?`,
		string(payflow.CheckpointResolved),
		string(decision),
		reviewerID,
		notes,
		time.Now().UTC().Format(time.RFC3339Nano),
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
			"SELECT status FROM checkpoints WHERE checkpoint_id = ?", checkpointID).Scan(&status)
		if err == sql.ErrNoRows {
			return payflow.NewNotFoundError(checkpointID)
		}
		if err != nil {
			return fmt.Errorf("resolve checkpoint %s: %w", checkpointID, err)
		}
		return payflow.NewAlreadyResolvedError(checkpointID)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE human_review_queue SET status = ? WHERE checkpoint_id = ?",
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
          WHERE status = ?
          ORDER BY created_at DESC, checkpoint_id DESC`,
		string(payflow.CheckpointPending))
	if err != nil {
		return nil, fmt.Errorf("list pending reviews: %w", err)
	}
	defer rows.Close()

	var out []payflow.ReviewQueueEntry
	for rows.Next() {
		var (
			entry     payflow.ReviewQueueEntry
			createdAt string
			status    string
		)
		if err := rows.Scan(&entry.CheckpointID, &entry.InvoiceID, &entry.VendorName,
			&entry.Amount, &entry.Currency, &entry.ReasonForHold, &entry.ReviewURL,
			&createdAt, &status); err != nil {
			return nil, fmt.Errorf("scan review entry: %w", err)
		}
		entry.Status = payflow.CheckpointStatus(status)
		if entry.CreatedAt, err = parseTimestamp(createdAt); err != nil {
			return nil, fmt.Errorf("review entry %s created_at: %w", entry.CheckpointID, err)
		}
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
          WHERE c.status = ?
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
			decidedAt sql.NullString
		)
		if err := rows.Scan(&record.CheckpointID, &record.InvoiceID, &record.VendorName,
			&record.Amount, &record.Currency, &decision, &notes, &reviewer, &decidedAt); err != nil {
			return nil, fmt.Errorf("scan decision record: %w", err)
		}
		record.Decision = payflow.Decision(decision.String)
		record.Notes = notes.String
		record.ReviewerID = reviewer.String
		if decidedAt.Valid {
			if record.DecidedAt, err = parseTimestamp(decidedAt.String); err != nil {
				return nil, fmt.Errorf("decision %s decided_at: %w", record.CheckpointID, err)
			}
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
         VALUES (?, ?, ?, ?, ?)`,
		entry.WorkflowID,
		entry.Stage,
		entry.Action,
		detailsJSON,
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
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
          WHERE workflow_id = ?
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
			createdAt   string
		)
		if err := rows.Scan(&entry.WorkflowID, &entry.Stage, &entry.Action,
			&detailsJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if detailsJSON.Valid && detailsJSON.String != "" {
			if err := json.Unmarshal([]byte(detailsJSON.String), &entry.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		if entry.Timestamp, err = parseTimestamp(createdAt); err != nil {
			return nil, fmt.Errorf("audit entry created_at: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func parseTimestamp(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
