package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/openfroyo/extconf/pkg/engine"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory journal.
const MemoryPath = ":memory:"

// SQLiteStore implements the Journal interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
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

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 2
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	// Every connection to :memory: is a separate database.
	if cfg.Path == MemoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Init opens the database and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate&_time_format=sqlite", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return engine.NewIOError("failed to open journal", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return engine.NewIOError("failed to ping journal "+s.cfg.Path, err)
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

// Migrate brings the schema up to date.
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

// RecordResolution stores r. ID and CreatedAt are assigned when empty,
// and SnapshotDigest is computed from Region.
func (s *SQLiteStore) RecordResolution(ctx context.Context, r *Resolution) error {
	if r.Package == "" || r.Profile == "" {
		return fmt.Errorf("resolution needs a package and a profile")
	}
	if r.Status == "" {
		r.Status = ResolutionSucceeded
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = r.CreatedAt
	}

	blob, digest, err := encodeSnapshot(r.Region)
	if err != nil {
		return err
	}
	r.SnapshotDigest = digest

	query := `
		INSERT INTO resolutions (
			id, package, profile, config_path, fingerprint, status, error, error_class,
			injected_types, snapshot, snapshot_digest, program_digest,
			started_at, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		r.ID,
		r.Package,
		r.Profile,
		r.ConfigPath,
		r.Fingerprint,
		r.Status,
		r.Error,
		r.ErrorClass,
		r.InjectedTypes,
		blob,
		r.SnapshotDigest,
		r.ProgramDigest,
		r.StartedAt.UTC(),
		r.Duration.Milliseconds(),
		r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record resolution: %w", err)
	}

	return nil
}

// GetResolution retrieves a resolution with its region snapshot. id may
// be any unambiguous prefix of a stored ID.
func (s *SQLiteStore) GetResolution(ctx context.Context, id string) (*Resolution, error) {
	if id == "" {
		return nil, engine.NewLookupError("resolution ID is required", nil)
	}

	query := `
		SELECT ` + summaryColumns + `, snapshot
		FROM resolutions
		WHERE id LIKE ? || '%' ESCAPE '\'
		LIMIT 2
	`

	rows, err := s.db.QueryContext(ctx, query, escapeLike(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get resolution: %w", err)
	}
	defer rows.Close()

	var found []*Resolution
	var blob []byte
	for rows.Next() {
		r := &Resolution{}
		dest := append(summaryDest(r), &blob)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan resolution: %w", err)
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resolutions: %w", err)
	}

	switch len(found) {
	case 0:
		return nil, engine.NewLookupError("resolution not found: "+id, nil)
	case 1:
	default:
		return nil, engine.NewLookupError(fmt.Sprintf("resolution ID prefix %q is ambiguous", id), nil)
	}

	r := found[0]
	if r.Region, err = decodeSnapshot(blob); err != nil {
		return nil, err
	}
	return r, nil
}

// ListResolutions lists resolutions newest first, without their snapshots.
func (s *SQLiteStore) ListResolutions(ctx context.Context, filter Filter) ([]*Resolution, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Package != "" {
		where = append(where, "package = ?")
		args = append(args, filter.Package)
	}
	if filter.Profile != "" {
		where = append(where, "profile = ?")
		args = append(args, filter.Profile)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + summaryColumns + ` FROM resolutions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY started_at DESC, created_at DESC`

	// LIMIT -1 is unbounded in SQLite.
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list resolutions: %w", err)
	}
	defer rows.Close()

	resolutions := []*Resolution{}
	for rows.Next() {
		r := &Resolution{}
		if err := rows.Scan(summaryDest(r)...); err != nil {
			return nil, fmt.Errorf("failed to scan resolution: %w", err)
		}
		resolutions = append(resolutions, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resolutions: %w", err)
	}

	return resolutions, nil
}

// LatestResolution returns the most recent successful resolution of a
// package profile, snapshot included.
func (s *SQLiteStore) LatestResolution(ctx context.Context, pkg, profile string) (*Resolution, error) {
	query := `
		SELECT id
		FROM resolutions
		WHERE package = ? AND profile = ? AND status = ?
		ORDER BY started_at DESC, created_at DESC
		LIMIT 1
	`

	var id string
	err := s.db.QueryRowContext(ctx, query, pkg, profile, ResolutionSucceeded).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, engine.NewLookupError(fmt.Sprintf("no successful resolution of %s/%s", pkg, profile), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest resolution: %w", err)
	}

	return s.GetResolution(ctx, id)
}

// PruneResolutions deletes resolutions started before the given time.
func (s *SQLiteStore) PruneResolutions(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM resolutions WHERE started_at < ?`

	result, err := s.db.ExecContext(ctx, query, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune resolutions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

const summaryColumns = `id, package, profile, config_path, fingerprint, status, error, error_class,
		injected_types, snapshot_digest, program_digest, started_at, duration_ms, created_at`

// summaryDest returns scan targets matching summaryColumns.
func summaryDest(r *Resolution) []interface{} {
	return []interface{}{
		&r.ID,
		&r.Package,
		&r.Profile,
		&r.ConfigPath,
		&r.Fingerprint,
		&r.Status,
		&r.Error,
		&r.ErrorClass,
		&r.InjectedTypes,
		&r.SnapshotDigest,
		&r.ProgramDigest,
		&r.StartedAt,
		(*durationMillis)(&r.Duration),
		&r.CreatedAt,
	}
}

// durationMillis scans an integer column of milliseconds.
type durationMillis time.Duration

func (d *durationMillis) Scan(src interface{}) error {
	switch v := src.(type) {
	case int64:
		*d = durationMillis(time.Duration(v) * time.Millisecond)
	case nil:
		*d = 0
	default:
		return fmt.Errorf("unexpected duration type %T", src)
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
