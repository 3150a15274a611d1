/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the full compliance.Store surface (obligations, instances,
  alerts, sweep state) using SQLite. In production, the same patterns apply
  to PostgreSQL - only minor SQL dialect differences.

IMMUTABILITY ENFORCEMENT:
  ApplyReconciliation re-checks instance statuses INSIDE its transaction
  before deleting anything. A fulfilled instance named for deletion aborts
  the whole transaction; partial reconciliation never reaches disk.

KEY TABLES:
  obligations: Reporting requirement definitions with their recurrence rule
  instances:   Period-instances, UNIQUE(obligation_id, period_key)
  alerts:      Raised notifications, FK cascade with their instance
  sweep_state: Single-row last-sweep marker

INDEXES:
  - idx_instances_obligation:      per-obligation listing (hot path)
  - idx_instances_status_due:      the alert sweep's pending scan
  - idx_alerts_dedupe:             per-day alert dedupe lookups

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/compliance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := compliance.NewService(store, schedule.SystemClock())

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - compliance/store.go:       Interface definitions
  - compliance/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/compliance-engine/compliance"
	"github.com/warp/compliance-engine/schedule"
)

// Store implements compliance.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Obligations (reporting requirement definitions)
	CREATE TABLE IF NOT EXISTS obligations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		legal_basis TEXT,
		preparer_id TEXT,
		supervisor_id TEXT,
		required_format TEXT,
		instructions_link TEXT,
		cadence TEXT NOT NULL,
		due_day INTEGER NOT NULL,
		due_month INTEGER NOT NULL,
		grace_days INTEGER NOT NULL DEFAULT 0,
		valid_from TEXT,
		valid_to TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_obligations_entity
		ON obligations(entity_id);

	-- Period-instances: one row per (obligation, period)
	CREATE TABLE IF NOT EXISTS instances (
		id TEXT PRIMARY KEY,
		obligation_id TEXT NOT NULL REFERENCES obligations(id) ON DELETE CASCADE,
		period_key TEXT NOT NULL,
		due_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		submitted_at TEXT,
		deviation_days INTEGER NOT NULL DEFAULT 0,
		evidence_link TEXT,
		report_link TEXT,
		notes TEXT,
		submitted_by TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(obligation_id, period_key)
	);

	CREATE INDEX IF NOT EXISTS idx_instances_obligation
		ON instances(obligation_id, due_date);

	-- The alert sweep scans unfulfilled instances ordered by deadline
	CREATE INDEX IF NOT EXISTS idx_instances_status_due
		ON instances(status, due_date);

	-- Alerts cascade away with their instance
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		instance_id TEXT NOT NULL REFERENCES instances(id) ON DELETE CASCADE,
		recipient_id TEXT NOT NULL,
		tier TEXT NOT NULL,
		color TEXT,
		subject TEXT,
		message TEXT,
		sent_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_dedupe
		ON alerts(instance_id, recipient_id, tier, DATE(sent_at));

	-- Single-row last-sweep marker
	CREATE TABLE IF NOT EXISTS sweep_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		last_run TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// OBLIGATION STORE
// =============================================================================

// SaveObligation inserts or updates an obligation.
func (s *Store) SaveObligation(ctx context.Context, ob compliance.Obligation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO obligations
		(id, name, entity_id, legal_basis, preparer_id, supervisor_id,
		 required_format, instructions_link, cadence, due_day, due_month,
		 grace_days, valid_from, valid_to, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			entity_id = excluded.entity_id,
			legal_basis = excluded.legal_basis,
			preparer_id = excluded.preparer_id,
			supervisor_id = excluded.supervisor_id,
			required_format = excluded.required_format,
			instructions_link = excluded.instructions_link,
			cadence = excluded.cadence,
			due_day = excluded.due_day,
			due_month = excluded.due_month,
			grace_days = excluded.grace_days,
			valid_from = excluded.valid_from,
			valid_to = excluded.valid_to,
			active = excluded.active,
			updated_at = excluded.updated_at
	`

	rec := ob.Recurrence.WithDefaults()
	_, err := s.db.ExecContext(ctx, query,
		ob.ID, ob.Name, ob.EntityID, ob.LegalBasis, ob.PreparerID, ob.SupervisorID,
		ob.RequiredFormat, ob.InstructionsLink,
		rec.Cadence.String(), rec.DueDay, rec.DueMonth, rec.GraceDays,
		nullDate(rec.ValidFrom), nullDate(rec.ValidTo), rec.Active,
		ob.CreatedAt.UTC().Format(time.RFC3339), ob.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save obligation: %w", err)
	}
	return nil
}

const obligationColumns = `id, name, entity_id, legal_basis, preparer_id, supervisor_id,
	required_format, instructions_link, cadence, due_day, due_month,
	grace_days, valid_from, valid_to, active, created_at, updated_at`

// GetObligation retrieves an obligation by ID.
func (s *Store) GetObligation(ctx context.Context, id string) (*compliance.Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+obligationColumns+" FROM obligations WHERE id = ?", id)

	ob, err := scanObligation(row)
	if err == sql.ErrNoRows {
		return nil, compliance.ErrObligationNotFound
	}
	if err != nil {
		return nil, err
	}
	return ob, nil
}

// ListObligations returns all obligations ordered by name.
func (s *Store) ListObligations(ctx context.Context) ([]compliance.Obligation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+obligationColumns+" FROM obligations ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var obligations []compliance.Obligation
	for rows.Next() {
		ob, err := scanObligation(rows)
		if err != nil {
			return nil, err
		}
		obligations = append(obligations, *ob)
	}
	return obligations, rows.Err()
}

// DeleteObligation removes an obligation; instances and alerts cascade.
func (s *Store) DeleteObligation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM obligations WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return compliance.ErrObligationNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObligation(row rowScanner) (*compliance.Obligation, error) {
	var (
		ob                   compliance.Obligation
		legalBasis           sql.NullString
		preparerID           sql.NullString
		supervisorID         sql.NullString
		requiredFormat       sql.NullString
		instructionsLink     sql.NullString
		cadence              string
		validFrom, validTo   sql.NullString
		createdAt, updatedAt string
	)

	err := row.Scan(
		&ob.ID, &ob.Name, &ob.EntityID, &legalBasis, &preparerID, &supervisorID,
		&requiredFormat, &instructionsLink,
		&cadence, &ob.Recurrence.DueDay, &ob.Recurrence.DueMonth, &ob.Recurrence.GraceDays,
		&validFrom, &validTo, &ob.Recurrence.Active,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	ob.LegalBasis = legalBasis.String
	ob.PreparerID = preparerID.String
	ob.SupervisorID = supervisorID.String
	ob.RequiredFormat = requiredFormat.String
	ob.InstructionsLink = instructionsLink.String

	ob.Recurrence.Cadence, err = schedule.ParseCadence(cadence)
	if err != nil {
		return nil, fmt.Errorf("obligation %s: %w", ob.ID, err)
	}
	if validFrom.Valid {
		ob.Recurrence.ValidFrom, err = schedule.ParseDate(validFrom.String)
		if err != nil {
			return nil, fmt.Errorf("obligation %s: %w", ob.ID, err)
		}
	}
	if validTo.Valid {
		ob.Recurrence.ValidTo, err = schedule.ParseDate(validTo.String)
		if err != nil {
			return nil, fmt.Errorf("obligation %s: %w", ob.ID, err)
		}
	}
	ob.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	ob.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &ob, nil
}

// =============================================================================
// INSTANCE STORE
// =============================================================================

const instanceColumns = `id, obligation_id, period_key, due_date, status,
	submitted_at, deviation_days, evidence_link, report_link, notes,
	submitted_by, created_at, updated_at`

// SaveInstance inserts or updates a period-instance.
func (s *Store) SaveInstance(ctx context.Context, inst compliance.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveInstanceTx(ctx, s.db, inst)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) saveInstanceTx(ctx context.Context, db execer, inst compliance.Instance) error {
	query := `
		INSERT INTO instances
		(id, obligation_id, period_key, due_date, status, submitted_at,
		 deviation_days, evidence_link, report_link, notes, submitted_by,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			submitted_at = excluded.submitted_at,
			deviation_days = excluded.deviation_days,
			evidence_link = excluded.evidence_link,
			report_link = excluded.report_link,
			notes = excluded.notes,
			submitted_by = excluded.submitted_by,
			updated_at = excluded.updated_at
	`

	var submittedAt *string
	if inst.SubmittedAt != nil {
		t := inst.SubmittedAt.UTC().Format(time.RFC3339)
		submittedAt = &t
	}

	_, err := db.ExecContext(ctx, query,
		inst.ID, inst.ObligationID, string(inst.PeriodKey), inst.DueDate.String(),
		string(inst.Status), submittedAt, inst.DeviationDays,
		inst.EvidenceLink, inst.ReportLink, inst.Notes, inst.SubmittedBy,
		inst.CreatedAt.UTC().Format(time.RFC3339), inst.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return compliance.ErrDuplicatePeriod
		}
		return fmt.Errorf("failed to save instance: %w", err)
	}
	return nil
}

// GetInstance retrieves an instance by ID.
func (s *Store) GetInstance(ctx context.Context, id string) (*compliance.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+instanceColumns+" FROM instances WHERE id = ?", id)

	inst, err := scanInstance(row)
	if err == sql.ErrNoRows {
		return nil, compliance.ErrInstanceNotFound
	}
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// ListInstances returns an obligation's instances ordered by due date.
func (s *Store) ListInstances(ctx context.Context, obligationID string) ([]compliance.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + instanceColumns + ` FROM instances
		WHERE obligation_id = ?
		ORDER BY due_date ASC, id ASC`

	return s.queryInstances(ctx, query, obligationID)
}

// ListAllInstances returns every instance across all obligations.
func (s *Store) ListAllInstances(ctx context.Context) ([]compliance.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + instanceColumns + ` FROM instances
		ORDER BY due_date ASC, id ASC`

	return s.queryInstances(ctx, query)
}

// ListPendingInstances returns every unfulfilled instance, for the sweep.
func (s *Store) ListPendingInstances(ctx context.Context) ([]compliance.Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + instanceColumns + ` FROM instances
		WHERE status = 'pending'
		ORDER BY due_date ASC, id ASC`

	return s.queryInstances(ctx, query)
}

func (s *Store) queryInstances(ctx context.Context, query string, args ...any) ([]compliance.Instance, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}
	defer rows.Close()

	var instances []compliance.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, *inst)
	}
	return instances, rows.Err()
}

func scanInstance(row rowScanner) (*compliance.Instance, error) {
	var (
		inst                 compliance.Instance
		periodKey            string
		dueDate              string
		status               string
		submittedAt          sql.NullString
		evidenceLink         sql.NullString
		reportLink           sql.NullString
		notes                sql.NullString
		submittedBy          sql.NullString
		createdAt, updatedAt string
	)

	err := row.Scan(
		&inst.ID, &inst.ObligationID, &periodKey, &dueDate, &status,
		&submittedAt, &inst.DeviationDays, &evidenceLink, &reportLink,
		&notes, &submittedBy, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	inst.PeriodKey = schedule.PeriodKey(periodKey)
	inst.Status = schedule.ParseStatus(status)
	inst.DueDate, err = schedule.ParseDate(dueDate)
	if err != nil {
		return nil, fmt.Errorf("instance %s: %w", inst.ID, err)
	}
	if submittedAt.Valid {
		t, _ := time.Parse(time.RFC3339, submittedAt.String)
		inst.SubmittedAt = &t
	}
	inst.EvidenceLink = evidenceLink.String
	inst.ReportLink = reportLink.String
	inst.Notes = notes.String
	inst.SubmittedBy = submittedBy.String
	inst.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	inst.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &inst, nil
}

// ApplyReconciliation applies a delta atomically. The fulfilled-instance
// re-check runs inside the transaction so a submission committed after the
// delta was computed still aborts the whole unit.
func (s *Store) ApplyReconciliation(ctx context.Context, obligationID string, deleteIDs []string, insert []compliance.Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range deleteIDs {
		var periodKey, status string
		err := tx.QueryRowContext(ctx,
			"SELECT period_key, status FROM instances WHERE id = ?", id,
		).Scan(&periodKey, &status)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return err
		}
		if schedule.ParseStatus(status).Fulfilled() {
			return &schedule.ImmutableInstanceError{
				InstanceID: id,
				PeriodKey:  schedule.PeriodKey(periodKey),
				Status:     schedule.ParseStatus(status),
			}
		}
		// Alerts cascade via the FK.
		if _, err := tx.ExecContext(ctx, "DELETE FROM instances WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete instance %s: %w", id, err)
		}
	}

	for _, inst := range insert {
		if inst.ObligationID == "" {
			inst.ObligationID = obligationID
		}
		if err := s.saveInstanceTx(ctx, tx, inst); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// =============================================================================
// ALERT STORE
// =============================================================================

// SaveAlert records a raised alert.
func (s *Store) SaveAlert(ctx context.Context, a compliance.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO alerts (id, instance_id, recipient_id, tier, color, subject, message, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.InstanceID, a.RecipientID, a.Tier, a.Color,
		a.Subject, a.Message, a.SentAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// ListAlerts returns the alerts raised for an instance, oldest first.
func (s *Store) ListAlerts(ctx context.Context, instanceID string) ([]compliance.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, instance_id, recipient_id, tier, color, subject, message, sent_at
		FROM alerts WHERE instance_id = ? ORDER BY sent_at ASC, id ASC`, instanceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []compliance.Alert
	for rows.Next() {
		var a compliance.Alert
		var color, subject, message sql.NullString
		var sentAt string
		if err := rows.Scan(&a.ID, &a.InstanceID, &a.RecipientID, &a.Tier,
			&color, &subject, &message, &sentAt); err != nil {
			return nil, err
		}
		a.Color = color.String
		a.Subject = subject.String
		a.Message = message.String
		a.SentAt, _ = time.Parse(time.RFC3339, sentAt)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// AlertExistsOn reports whether the same tier was already raised for this
// instance and recipient on the given day.
func (s *Store) AlertExistsOn(ctx context.Context, instanceID, recipientID, tier string, day schedule.Date) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM alerts
		WHERE instance_id = ? AND recipient_id = ? AND tier = ? AND DATE(sent_at) = ?`,
		instanceID, recipientID, tier, day.String(),
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// SWEEP STATE
// =============================================================================

// LastSweepRun returns the last completed sweep time, zero if none.
func (s *Store) LastSweepRun(ctx context.Context) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var lastRun string
	err := s.db.QueryRowContext(ctx,
		"SELECT last_run FROM sweep_state WHERE id = 1").Scan(&lastRun)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, lastRun)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt sweep_state: %w", err)
	}
	return t, nil
}

// SetLastSweepRun records the sweep's completion time.
func (s *Store) SetLastSweepRun(ctx context.Context, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sweep_state (id, last_run) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET last_run = excluded.last_run`,
		at.UTC().Format(time.RFC3339),
	)
	return err
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"alerts", "instances", "obligations", "sweep_state"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions

func nullDate(d schedule.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
