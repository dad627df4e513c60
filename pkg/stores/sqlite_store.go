package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

var _ Store = (*SQLiteStore)(nil)

// Config holds SQLite store configuration.
type Config struct {
	Path            string        `mapstructure:"path" yaml:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime" validate:"gte=0"`
}

// NewSQLiteStore creates a new SQLite store instance. Call Init and Migrate
// before use.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// Every connection to :memory: is a distinct database.
	if cfg.Path == MemoryPath {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
	}

	return &SQLiteStore{cfg: cfg}, nil
}

// Open creates, initializes and migrates a store.
func Open(ctx context.Context, cfg Config) (*SQLiteStore, error) {
	s, err := NewSQLiteStore(cfg)
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

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := s.cfg.Path
	if dsn != MemoryPath {
		dsn = fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.cfg.Path)
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

// Close closes the database connection.
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

// HealthCheck verifies the database is reachable.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Put archives v, computing its checksum when unset.
func (s *SQLiteStore) Put(ctx context.Context, v *ArchivedVersion, overwrite bool) error {
	if v.Name == "" || v.Version == "" {
		return fmt.Errorf("archived version requires a name and a version")
	}
	if v.Checksum == "" {
		v.Checksum = Checksum(v.Document)
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM archived_versions WHERE name = ? AND version = ?)`,
		v.Name, v.Version,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check archived version: %w", err)
	}
	if exists && !overwrite {
		return fmt.Errorf("%s:%s: %w", v.Name, v.Version, ErrExists)
	}

	query := `
		INSERT INTO archived_versions (name, version, document, checksum, element_count, origin, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name, version) DO UPDATE SET
			document = excluded.document,
			checksum = excluded.checksum,
			element_count = excluded.element_count,
			origin = excluded.origin,
			created_at = excluded.created_at
	`
	_, err = tx.ExecContext(ctx, query,
		v.Name,
		v.Version,
		v.Document,
		v.Checksum,
		v.ElementCount,
		v.Origin,
		v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store archived version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit archived version: %w", err)
	}
	return nil
}

// Get retrieves an archived version with its document.
func (s *SQLiteStore) Get(ctx context.Context, name, version string) (*ArchivedVersion, error) {
	query := `
		SELECT name, version, document, checksum, element_count, origin, created_at
		FROM archived_versions
		WHERE name = ? AND version = ?
	`

	v := &ArchivedVersion{}
	err := s.db.QueryRowContext(ctx, query, name, version).Scan(
		&v.Name,
		&v.Version,
		&v.Document,
		&v.Checksum,
		&v.ElementCount,
		&v.Origin,
		&v.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s:%s: %w", name, version, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get archived version: %w", err)
	}

	return v, nil
}

// List returns archived versions, newest first.
func (s *SQLiteStore) List(ctx context.Context, name string) ([]VersionInfo, error) {
	query := `
		SELECT name, version, checksum, element_count, origin, created_at
		FROM archived_versions
	`
	var args []interface{}
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY created_at DESC, name, version`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived versions: %w", err)
	}
	defer rows.Close()

	var infos []VersionInfo
	for rows.Next() {
		var info VersionInfo
		if err := rows.Scan(
			&info.Name,
			&info.Version,
			&info.Checksum,
			&info.ElementCount,
			&info.Origin,
			&info.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan archived version: %w", err)
		}
		infos = append(infos, info)
	}

	return infos, rows.Err()
}

// Delete removes an archived version.
func (s *SQLiteStore) Delete(ctx context.Context, name, version string) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM archived_versions WHERE name = ? AND version = ?`, name, version)
	if err != nil {
		return fmt.Errorf("failed to delete archived version: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s:%s: %w", name, version, ErrNotFound)
	}
	return nil
}
