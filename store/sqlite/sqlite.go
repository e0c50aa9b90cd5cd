/*
Package sqlite provides the SQLite-backed Store implementation.

PURPOSE:
  Persists employees, absence requests, adjustments, penalization records,
  coverage thresholds, and holidays. In production, the same patterns apply
  to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  employees:            Roster with the live balance and an optimistic
                        locking version
  absence_requests:     Requests with JSON-encoded dates and the layered
                        cancellation history in one row
  balance_adjustments:  Immutable manual corrections
  penalization_records: One row per (employee, year), upserted
  coverage_thresholds:  Per-role minimum staffing counts
  annual_excess_hours:  Configured excess-hours figure per year
  holidays:             Organization-wide holidays

CONCURRENCY:
  Balance mutations go through ApplyBalanceDelta, which bumps the version
  column and fails with ErrConcurrencyConflict on a stale read. Compound
  operations run inside WithTx (BEGIN .. COMMIT/ROLLBACK).

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/absence.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - absence/store.go: Interface definitions
  - store/memory/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/staffo/absence-engine/absence"
	"github.com/staffo/absence-engine/engine"
)

// Store implements absence.TxStore using SQLite.
type Store struct {
	db *sql.DB
	queries
}

var _ absence.TxStore = (*Store)(nil)

// New creates and migrates a SQLite store. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, queries: queries{db: db}}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL,
		balance_hours INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS absence_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		requested_dates TEXT NOT NULL,
		requested_hours INTEGER NOT NULL DEFAULT 0,
		is_sale INTEGER NOT NULL DEFAULT 0,
		cancellations TEXT NOT NULL DEFAULT '[]',
		requester_comment TEXT NOT NULL DEFAULT '',
		admin_comment TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		decided_at TEXT,
		decided_by TEXT NOT NULL DEFAULT '',
		first_date TEXT,
		last_date TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee
		ON absence_requests(employee_id);
	CREATE INDEX IF NOT EXISTS idx_requests_date_span
		ON absence_requests(first_date, last_date);

	CREATE TABLE IF NOT EXISTS balance_adjustments (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL REFERENCES employees(id),
		date TEXT NOT NULL,
		mode TEXT NOT NULL,
		amount_hours INTEGER NOT NULL,
		reason TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_adjustments_employee
		ON balance_adjustments(employee_id, created_at);

	CREATE TABLE IF NOT EXISTS penalization_records (
		employee_id TEXT NOT NULL REFERENCES employees(id),
		year INTEGER NOT NULL,
		hours_applied INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, year)
	);

	CREATE TABLE IF NOT EXISTS coverage_thresholds (
		role TEXT PRIMARY KEY,
		min_count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS annual_excess_hours (
		year INTEGER PRIMARY KEY,
		hours INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		name TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_date ON holidays(date);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. If fn returns an error
// the transaction is rolled back, otherwise it is committed.
func (s *Store) WithTx(ctx context.Context, fn func(absence.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	view := &txStore{queries: queries{db: tx}}
	if err := fn(view); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// txStore is the Store view handed to WithTx callbacks.
type txStore struct {
	queries
}

var _ absence.Store = (*txStore)(nil)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries carries every statement, shared by Store and txStore.
type queries struct {
	db dbtx
}

type scanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (q queries) SaveEmployee(ctx context.Context, emp absence.Employee) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, email, role, balance_hours, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			balance_hours = excluded.balance_hours,
			version = excluded.version`,
		emp.ID, emp.Name, emp.Email, emp.Role, int(emp.BalanceHours), emp.Version,
		emp.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (q queries) GetEmployee(ctx context.Context, id string) (*absence.Employee, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT id, name, email, role, balance_hours, version, created_at
		FROM employees WHERE id = ?`, id)
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", engine.ErrEmployeeNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return emp, nil
}

func (q queries) ListEmployees(ctx context.Context) ([]absence.Employee, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, name, email, role, balance_hours, version, created_at
		FROM employees ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []absence.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *emp)
	}
	return out, rows.Err()
}

func scanEmployee(row scanner) (*absence.Employee, error) {
	var emp absence.Employee
	var balance int
	var createdAt string
	if err := row.Scan(&emp.ID, &emp.Name, &emp.Email, &emp.Role, &balance, &emp.Version, &createdAt); err != nil {
		return nil, err
	}
	emp.BalanceHours = engine.Hours(balance)
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse employee created_at: %w", err)
	}
	emp.CreatedAt = t
	return &emp, nil
}

// ApplyBalanceDelta adds delta to the employee's balance, guarded by the
// version column. A stale expectedVersion yields ErrConcurrencyConflict.
func (q queries) ApplyBalanceDelta(ctx context.Context, employeeID string, delta engine.Hours, expectedVersion int64) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE employees
		SET balance_hours = balance_hours + ?, version = version + 1
		WHERE id = ? AND version = ?`,
		int(delta), employeeID, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a missing employee from a stale version.
		var exists int
		if err := q.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM employees WHERE id = ?`, employeeID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("%w: %s", engine.ErrEmployeeNotFound, employeeID)
		}
		return fmt.Errorf("%w: stale balance read for employee %s (expected version %d)",
			engine.ErrConcurrencyConflict, employeeID, expectedVersion)
	}
	return nil
}

// =============================================================================
// REQUESTS
// =============================================================================

// cancellationJSON is the row encoding of one cancellation event.
type cancellationJSON struct {
	Dates  []string `json:"dates,omitempty"`
	At     string   `json:"at"`
	Reason string   `json:"reason,omitempty"`
}

func (q queries) SaveRequest(ctx context.Context, req engine.AbsenceRequest) error {
	dates := make([]string, len(req.RequestedDates))
	for i, d := range req.RequestedDates {
		dates[i] = d.String()
	}
	datesJSON, err := json.Marshal(dates)
	if err != nil {
		return err
	}

	cancels := make([]cancellationJSON, len(req.Cancellations))
	for i, c := range req.Cancellations {
		cj := cancellationJSON{At: c.At.UTC().Format(time.RFC3339), Reason: c.Reason}
		for _, d := range c.Dates {
			cj.Dates = append(cj.Dates, d.String())
		}
		cancels[i] = cj
	}
	cancelsJSON, err := json.Marshal(cancels)
	if err != nil {
		return err
	}

	var decidedAt any
	if req.DecidedAt != nil {
		decidedAt = req.DecidedAt.UTC().Format(time.RFC3339)
	}

	// Denormalized span columns back the overlap query.
	var firstDate, lastDate any
	if sorted := engine.SortDates(req.RequestedDates); len(sorted) > 0 {
		firstDate = sorted[0].String()
		lastDate = sorted[len(sorted)-1].String()
	}

	_, err = q.db.ExecContext(ctx, `
		INSERT INTO absence_requests
			(id, employee_id, kind, status, requested_dates, requested_hours, is_sale,
			 cancellations, requester_comment, admin_comment, created_at, decided_at,
			 decided_by, first_date, last_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			cancellations = excluded.cancellations,
			admin_comment = excluded.admin_comment,
			decided_at = excluded.decided_at,
			decided_by = excluded.decided_by`,
		req.ID, req.EmployeeID, string(req.Kind), string(req.Status),
		string(datesJSON), int(req.RequestedHours), boolToInt(req.IsSale),
		string(cancelsJSON), req.RequesterComment, req.AdminComment,
		req.CreatedAt.UTC().Format(time.RFC3339), decidedAt, req.DecidedBy,
		firstDate, lastDate)
	return err
}

const requestColumns = `id, employee_id, kind, status, requested_dates, requested_hours,
	is_sale, cancellations, requester_comment, admin_comment, created_at, decided_at, decided_by`

func (q queries) GetRequest(ctx context.Context, id string) (*engine.AbsenceRequest, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM absence_requests WHERE id = ?`, id)
	req, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", engine.ErrRequestNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (q queries) ListRequestsByEmployee(ctx context.Context, employeeID string) ([]engine.AbsenceRequest, error) {
	return q.queryRequests(ctx,
		`SELECT `+requestColumns+` FROM absence_requests
		 WHERE employee_id = ? ORDER BY created_at, id`, employeeID)
}

func (q queries) ListRequestsOverlapping(ctx context.Context, period engine.Period) ([]engine.AbsenceRequest, error) {
	return q.queryRequests(ctx,
		`SELECT `+requestColumns+` FROM absence_requests
		 WHERE first_date IS NOT NULL AND first_date <= ? AND last_date >= ?
		 ORDER BY created_at, id`,
		period.End.String(), period.Start.String())
}

func (q queries) queryRequests(ctx context.Context, query string, args ...any) ([]engine.AbsenceRequest, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.AbsenceRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func scanRequest(row scanner) (*engine.AbsenceRequest, error) {
	var req engine.AbsenceRequest
	var kind, status, datesJSON, cancelsJSON, createdAt string
	var requestedHours, isSale int
	var decidedAt sql.NullString

	if err := row.Scan(&req.ID, &req.EmployeeID, &kind, &status, &datesJSON,
		&requestedHours, &isSale, &cancelsJSON, &req.RequesterComment,
		&req.AdminComment, &createdAt, &decidedAt, &req.DecidedBy); err != nil {
		return nil, err
	}

	req.Kind = engine.RequestKind(kind)
	req.Status = engine.RequestStatus(status)
	req.RequestedHours = engine.Hours(requestedHours)
	req.IsSale = isSale != 0

	var dates []string
	if err := json.Unmarshal([]byte(datesJSON), &dates); err != nil {
		return nil, fmt.Errorf("decode requested dates: %w", err)
	}
	for _, s := range dates {
		d, err := engine.ParseDate(s)
		if err != nil {
			return nil, fmt.Errorf("decode requested dates: %w", err)
		}
		req.RequestedDates = append(req.RequestedDates, d)
	}

	var cancels []cancellationJSON
	if err := json.Unmarshal([]byte(cancelsJSON), &cancels); err != nil {
		return nil, fmt.Errorf("decode cancellations: %w", err)
	}
	for _, cj := range cancels {
		c := engine.Cancellation{Reason: cj.Reason}
		at, err := time.Parse(time.RFC3339, cj.At)
		if err != nil {
			return nil, fmt.Errorf("decode cancellation time: %w", err)
		}
		c.At = at
		for _, s := range cj.Dates {
			d, err := engine.ParseDate(s)
			if err != nil {
				return nil, fmt.Errorf("decode cancellation dates: %w", err)
			}
			c.Dates = append(c.Dates, d)
		}
		req.Cancellations = append(req.Cancellations, c)
	}

	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse request created_at: %w", err)
	}
	req.CreatedAt = t

	if decidedAt.Valid {
		t, err := time.Parse(time.RFC3339, decidedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse request decided_at: %w", err)
		}
		req.DecidedAt = &t
	}
	return &req, nil
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

func (q queries) SaveAdjustment(ctx context.Context, adj engine.BalanceAdjustment) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO balance_adjustments (id, employee_id, date, mode, amount_hours, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		adj.ID, adj.EmployeeID, adj.Date.String(), string(adj.Mode),
		int(adj.AmountHours), adj.Reason, adj.CreatedAt.UTC().Format(time.RFC3339))
	return err
}

func (q queries) ListAdjustmentsByEmployee(ctx context.Context, employeeID string) ([]engine.BalanceAdjustment, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, employee_id, date, mode, amount_hours, reason, created_at
		FROM balance_adjustments WHERE employee_id = ? ORDER BY created_at, id`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.BalanceAdjustment
	for rows.Next() {
		var adj engine.BalanceAdjustment
		var date, mode, createdAt string
		var amount int
		if err := rows.Scan(&adj.ID, &adj.EmployeeID, &date, &mode, &amount, &adj.Reason, &createdAt); err != nil {
			return nil, err
		}
		d, err := engine.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("parse adjustment date: %w", err)
		}
		adj.Date = d
		adj.Mode = engine.AdjustmentMode(mode)
		adj.AmountHours = engine.Hours(amount)
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse adjustment created_at: %w", err)
		}
		adj.CreatedAt = t
		out = append(out, adj)
	}
	return out, rows.Err()
}

// =============================================================================
// PENALIZATION RECORDS
// =============================================================================

// GetPenalization returns nil, nil when no record exists for the year.
func (q queries) GetPenalization(ctx context.Context, employeeID string, year int) (*engine.PenalizationRecord, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT employee_id, year, hours_applied, created_at, updated_at
		FROM penalization_records WHERE employee_id = ? AND year = ?`, employeeID, year)

	var rec engine.PenalizationRecord
	var hours int
	var createdAt, updatedAt string
	err := row.Scan(&rec.EmployeeID, &rec.Year, &hours, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.HoursApplied = engine.Hours(hours)
	if rec.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse penalization created_at: %w", err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parse penalization updated_at: %w", err)
	}
	return &rec, nil
}

func (q queries) UpsertPenalization(ctx context.Context, rec engine.PenalizationRecord) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO penalization_records (employee_id, year, hours_applied, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, year) DO UPDATE SET
			hours_applied = excluded.hours_applied,
			updated_at = excluded.updated_at`,
		rec.EmployeeID, rec.Year, int(rec.HoursApplied),
		rec.CreatedAt.UTC().Format(time.RFC3339), rec.UpdatedAt.UTC().Format(time.RFC3339))
	return err
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func (q queries) GetThresholds(ctx context.Context) (engine.CoverageThresholdConfig, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT role, min_count FROM coverage_thresholds`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(engine.CoverageThresholdConfig)
	for rows.Next() {
		var role string
		var minCount int
		if err := rows.Scan(&role, &minCount); err != nil {
			return nil, err
		}
		out[role] = minCount
	}
	return out, rows.Err()
}

func (q queries) SetThreshold(ctx context.Context, role string, minCount int) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO coverage_thresholds (role, min_count) VALUES (?, ?)
		ON CONFLICT(role) DO UPDATE SET min_count = excluded.min_count`,
		role, minCount)
	return err
}

func (q queries) DeleteThreshold(ctx context.Context, role string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM coverage_thresholds WHERE role = ?`, role)
	return err
}

// GetAnnualExcessHours returns nil, nil when the year is not configured.
func (q queries) GetAnnualExcessHours(ctx context.Context, year int) (*engine.Hours, error) {
	row := q.db.QueryRowContext(ctx, `SELECT hours FROM annual_excess_hours WHERE year = ?`, year)
	var hours int
	err := row.Scan(&hours)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	h := engine.Hours(hours)
	return &h, nil
}

func (q queries) SetAnnualExcessHours(ctx context.Context, year int, hours engine.Hours) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO annual_excess_hours (year, hours) VALUES (?, ?)
		ON CONFLICT(year) DO UPDATE SET hours = excluded.hours`,
		year, int(hours))
	return err
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (q queries) SaveHoliday(ctx context.Context, h engine.Holiday) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO holidays (id, date, name) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET date = excluded.date, name = excluded.name`,
		h.ID, h.Date.String(), h.Name)
	return err
}

func (q queries) ListHolidays(ctx context.Context, year int) ([]engine.Holiday, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, date, name FROM holidays
		WHERE date >= ? AND date <= ? ORDER BY date`,
		fmt.Sprintf("%04d-01-01", year), fmt.Sprintf("%04d-12-31", year))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.Holiday
	for rows.Next() {
		var h engine.Holiday
		var date string
		if err := rows.Scan(&h.ID, &date, &h.Name); err != nil {
			return nil, err
		}
		d, err := engine.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("parse holiday date: %w", err)
		}
		h.Date = d
		out = append(out, h)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
