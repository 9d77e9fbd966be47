package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/cloudcycle/cloudcycle/pkg/engine"
	"github.com/cloudcycle/cloudcycle/pkg/telemetry"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a requested run does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
	cfg  Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: opens a distinct database.
	if isMemory(cfg.Path) {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{
		path: cfg.Path,
		cfg:  cfg,
	}, nil
}

// Open creates, initializes and migrates a store in one call.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(Config{Path: path})
	if err != nil {
		return nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	sep := "?"
	if strings.Contains(s.path, "?") {
		sep = "&"
	}
	dsn := s.path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if !isMemory(s.path) {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SaveRun inserts or updates a run header.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *engine.RunRecord) error {
	query := `
		INSERT INTO runs (id, state, provider, region, started_at, completed_at, exit_code, abort_reason, trace_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			completed_at = excluded.completed_at,
			exit_code = excluded.exit_code,
			abort_reason = excluded.abort_reason,
			trace_id = excluded.trace_id,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		string(run.State),
		run.Provider,
		run.Region,
		run.StartedAt.UTC(),
		utcPtr(run.CompletedAt),
		run.ExitCode,
		run.AbortReason,
		run.TraceID,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*engine.RunRecord, error) {
	query := `
		SELECT id, state, provider, region, started_at, completed_at, exit_code, abort_reason, trace_id
		FROM runs
		WHERE id = ?
	`

	run, err := scanRun(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*engine.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, state, provider, region, started_at, completed_at, exit_code, abort_reason, trace_id
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*engine.RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// DeleteRun deletes a run together with its resources and results.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM events WHERE run_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete run events: %w", err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*engine.RunRecord, error) {
	run := &engine.RunRecord{}
	var state string
	var exitCode sql.NullInt64
	var completedAt sql.NullTime
	if err := row.Scan(
		&run.ID,
		&state,
		&run.Provider,
		&run.Region,
		&run.StartedAt,
		&completedAt,
		&exitCode,
		&run.AbortReason,
		&run.TraceID,
	); err != nil {
		return nil, err
	}
	run.State = engine.RunState(state)
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}
	return run, nil
}

// SaveDescriptor upserts the latest snapshot of a descriptor.
func (s *SQLiteStore) SaveDescriptor(ctx context.Context, runID string, d engine.Descriptor) error {
	handle, err := json.Marshal(d.Handle)
	if err != nil {
		return fmt.Errorf("failed to encode handle: %w", err)
	}

	query := `
		INSERT INTO resources (run_id, kind, id, state, handle, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, kind, id) DO UPDATE SET
			state = excluded.state,
			handle = excluded.handle,
			updated_at = excluded.updated_at
	`

	created, updated := d.CreatedAt, d.UpdatedAt
	if created.IsZero() {
		created = time.Now()
	}
	if updated.IsZero() {
		updated = created
	}
	_, err = s.db.ExecContext(ctx, query,
		runID,
		string(d.Kind),
		d.ID,
		string(d.State),
		string(handle),
		created.UTC(),
		updated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save descriptor: %w", err)
	}
	return nil
}

// ListResources returns every resource recorded for a run in creation order.
func (s *SQLiteStore) ListResources(ctx context.Context, runID string) ([]*ResourceRecord, error) {
	query := `
		SELECT run_id, kind, id, state, handle, created_at, updated_at
		FROM resources
		WHERE run_id = ?
		ORDER BY created_at, rowid
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	resources := []*ResourceRecord{}
	for rows.Next() {
		r := &ResourceRecord{}
		var kind, state, handle string
		if err := rows.Scan(&r.RunID, &kind, &r.ID, &state, &handle, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		r.Kind = engine.Kind(kind)
		r.State = engine.State(state)
		if err := json.Unmarshal([]byte(handle), &r.Handle); err != nil {
			return nil, fmt.Errorf("failed to decode handle for %s/%s: %w", kind, r.ID, err)
		}
		resources = append(resources, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resources: %w", err)
	}
	return resources, nil
}

// SaveResult appends an operation result. Results are keyed by run and sequence number.
func (s *SQLiteStore) SaveResult(ctx context.Context, runID string, seq int, r engine.OperationResult) error {
	query := `
		INSERT INTO operation_results (run_id, seq, step, success, detail, error, resource_kind, resource_id, at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var kind, id string
	if r.Resource != nil {
		kind, id = string(r.Resource.Kind), r.Resource.ID
	}
	at := r.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, query,
		runID,
		seq,
		r.Step,
		r.Success,
		r.Detail,
		r.Error(),
		kind,
		id,
		at.UTC(),
		r.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// ListResults returns the results of a run in sequence order.
func (s *SQLiteStore) ListResults(ctx context.Context, runID string) ([]*ResultRecord, error) {
	query := `
		SELECT run_id, seq, step, success, detail, error, resource_kind, resource_id, at, duration_ms
		FROM operation_results
		WHERE run_id = ?
		ORDER BY seq
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	results := []*ResultRecord{}
	for rows.Next() {
		r := &ResultRecord{}
		var kind string
		var durationMs int64
		if err := rows.Scan(&r.RunID, &r.Seq, &r.Step, &r.Success, &r.Detail, &r.Error, &kind, &r.ResourceID, &r.At, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		r.ResourceKind = engine.Kind(kind)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	return results, nil
}

// AppendEvent appends an event to the log.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *EventRecord) error {
	data := "{}"
	if len(event.Data) > 0 {
		b, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("failed to encode event data: %w", err)
		}
		data = string(b)
	}

	query := `
		INSERT INTO events (id, run_id, type, level, source, resource_id, message, data, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.RunID,
		event.Type,
		event.Level,
		event.Source,
		event.ResourceID,
		event.Message,
		data,
		event.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// ListEvents returns up to limit events of a run in publication order.
func (s *SQLiteStore) ListEvents(ctx context.Context, runID string, limit int) ([]*EventRecord, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `
		SELECT id, run_id, type, level, source, resource_id, message, data, timestamp
		FROM events
		WHERE run_id = ?
		ORDER BY timestamp, rowid
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []*EventRecord{}
	for rows.Next() {
		e := &EventRecord{}
		var data string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Type, &e.Level, &e.Source, &e.ResourceID, &e.Message, &data, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if data != "" && data != "{}" {
			if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
				return nil, fmt.Errorf("failed to decode event data: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// EventSubscriber returns a telemetry subscriber that appends every event to
// the ledger. Write failures are logged and otherwise ignored.
func (s *SQLiteStore) EventSubscriber(logger *telemetry.Logger) telemetry.EventSubscriber {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	return func(event telemetry.Event) {
		rec := &EventRecord{
			ID:         event.ID,
			RunID:      event.RunID,
			Type:       event.Type,
			Level:      event.Level,
			Source:     event.Source,
			ResourceID: event.ResourceID,
			Message:    event.Message,
			Data:       event.Data,
			Timestamp:  event.Timestamp,
		}
		if err := s.AppendEvent(context.Background(), rec); err != nil {
			logger.WithError(err).Warn("failed to persist event")
		}
	}
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
