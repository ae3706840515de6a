package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/conneroisu/codecraft/internal/errors"
	"github.com/conneroisu/codecraft/internal/progress"
	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver
)

// Dialect selects SQL syntax differences between drivers.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// CurrentSchemaVersion is the latest sqlite schema version.
const CurrentSchemaVersion = 1

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS user_projects (
  id          TEXT PRIMARY KEY,
  user_id     TEXT NOT NULL,
  title       TEXT NOT NULL,
  description TEXT,
  html_code   TEXT NOT NULL,
  css_code    TEXT NOT NULL,
  js_code     TEXT NOT NULL,
  is_public   INTEGER NOT NULL DEFAULT 0,
  created_at  INTEGER NOT NULL,
  updated_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_user_projects_owner_updated
ON user_projects(user_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS course_progress (
  id                  TEXT PRIMARY KEY,
  user_id             TEXT NOT NULL,
  course_id           TEXT NOT NULL,
  lesson_id           TEXT NOT NULL,
  completed           INTEGER NOT NULL DEFAULT 0,
  progress_percentage INTEGER NOT NULL DEFAULT 0,
  created_at          INTEGER NOT NULL,
  updated_at          INTEGER NOT NULL,
  UNIQUE (user_id, course_id, lesson_id)
);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS user_projects (
  id          TEXT PRIMARY KEY,
  user_id     TEXT NOT NULL,
  title       TEXT NOT NULL,
  description TEXT,
  html_code   TEXT NOT NULL,
  css_code    TEXT NOT NULL,
  js_code     TEXT NOT NULL,
  is_public   BOOLEAN NOT NULL DEFAULT FALSE,
  created_at  BIGINT NOT NULL,
  updated_at  BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_user_projects_owner_updated
ON user_projects(user_id, updated_at DESC);

CREATE TABLE IF NOT EXISTS course_progress (
  id                  TEXT PRIMARY KEY,
  user_id             TEXT NOT NULL,
  course_id           TEXT NOT NULL,
  lesson_id           TEXT NOT NULL,
  completed           BOOLEAN NOT NULL DEFAULT FALSE,
  progress_percentage INTEGER NOT NULL DEFAULT 0,
  created_at          BIGINT NOT NULL,
  updated_at          BIGINT NOT NULL,
  UNIQUE (user_id, course_id, lesson_id)
);
`

const projectColumns = `id, user_id, title, description, html_code, css_code, js_code, is_public, created_at, updated_at`

// SQLStore persists projects and progress in a SQL database. Timestamps are
// stored as unix milliseconds so both dialects share one scan path.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// OpenSQLite opens (creating if needed) the database file at path and
// migrates it.
func OpenSQLite(path string) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, apperrors.WrapInternal(err, "failed to create database directory")
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperrors.WrapNetwork(err, string(DialectSQLite), "failed to open database")
	}

	store, err := NewSQLStore(db, DialectSQLite)
	if err != nil {
		db.Close()
		return nil, err
	}
	_ = os.Chmod(path, 0o600)
	return store, nil
}

// OpenPostgres connects to dsn, verifies the connection and migrates.
func OpenPostgres(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, apperrors.WrapNetwork(err, string(DialectPostgres), "failed to open database")
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, apperrors.WrapNetwork(err, string(DialectPostgres), "failed to connect")
	}

	store, err := NewSQLStore(db, DialectPostgres)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLStore wraps an open database and applies migrations.
func NewSQLStore(db *sql.DB, dialect Dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: dialect, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// WithClock replaces the clock used for timestamps.
func (s *SQLStore) WithClock(now func() time.Time) *SQLStore {
	s.now = now
	return s
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return s.transport(err, "database unreachable")
	}
	return nil
}

// DB exposes the underlying handle.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) migrate() error {
	switch s.dialect {
	case DialectSQLite:
		version, err := s.userVersion()
		if err != nil {
			return err
		}
		if version < 1 {
			if _, err := s.db.Exec(sqliteSchema); err != nil {
				return apperrors.WrapInternal(err, "migration 1 failed")
			}
			if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", CurrentSchemaVersion)); err != nil {
				return apperrors.WrapInternal(err, "failed to set schema version")
			}
		}
		return nil
	case DialectPostgres:
		if _, err := s.db.Exec(postgresSchema); err != nil {
			return apperrors.WrapInternal(err, "schema creation failed")
		}
		return nil
	default:
		return apperrors.NewConfigError(apperrors.ErrCodeConfigInvalid,
			fmt.Sprintf("unsupported SQL dialect %q", s.dialect))
	}
}

func (s *SQLStore) userVersion() (int, error) {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, apperrors.WrapInternal(err, "failed to read schema version")
	}
	return version, nil
}

// rebind rewrites ? placeholders as $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) transport(err error, message string) error {
	return apperrors.WrapNetwork(err, string(s.dialect), message)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (StoredProject, error) {
	var (
		p                    StoredProject
		description          sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Title, &description,
		&p.HTMLCode, &p.CSSCode, &p.JSCode, &p.IsPublic, &createdAt, &updatedAt); err != nil {
		return StoredProject{}, err
	}
	if description.Valid {
		d := description.String
		p.Description = &d
	}
	p.CreatedAt = time.UnixMilli(createdAt).UTC()
	p.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return p, nil
}

func nullable(d *string) any {
	if d == nil {
		return nil
	}
	return *d
}

// List returns the owner's projects, most recently updated first.
func (s *SQLStore) List(ctx context.Context, ownerID string) ([]StoredProject, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+projectColumns+` FROM user_projects WHERE user_id = ? ORDER BY updated_at DESC, id DESC`),
		ownerID)
	if err != nil {
		return nil, s.transport(err, "failed to list projects")
	}
	defer rows.Close()

	out := make([]StoredProject, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, s.transport(err, "failed to scan project")
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, s.transport(err, "failed to list projects")
	}
	return out, nil
}

// Get returns one project.
func (s *SQLStore) Get(ctx context.Context, projectID string) (StoredProject, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+projectColumns+` FROM user_projects WHERE id = ?`), projectID)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredProject{}, notFound(projectID)
	}
	if err != nil {
		return StoredProject{}, s.transport(err, "failed to load project")
	}
	return p, nil
}

// Create inserts a project with a fresh ULID.
func (s *SQLStore) Create(ctx context.Context, ownerID string, np NewProject) (StoredProject, error) {
	if err := ValidateNew(ownerID, np); err != nil {
		return StoredProject{}, err
	}
	now := s.now().Truncate(time.Millisecond)
	p := StoredProject{
		ID:          newID(),
		OwnerID:     ownerID,
		Title:       strings.TrimSpace(np.Title),
		Description: normalizeDescription(np.Description),
		HTMLCode:    np.HTMLCode,
		CSSCode:     np.CSSCode,
		JSCode:      np.JSCode,
		IsPublic:    np.IsPublic,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO user_projects (`+projectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		p.ID, p.OwnerID, p.Title, nullable(p.Description), p.HTMLCode, p.CSSCode, p.JSCode,
		p.IsPublic, now.UnixMilli(), now.UnixMilli())
	if err != nil {
		return StoredProject{}, s.transport(err, "failed to create project")
	}
	return p, nil
}

// Update applies a patch and bumps updated_at.
func (s *SQLStore) Update(ctx context.Context, projectID string, patch ProjectPatch) (StoredProject, error) {
	if err := ValidatePatch(patch); err != nil {
		return StoredProject{}, err
	}

	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if patch.Title != nil {
		add("title", strings.TrimSpace(*patch.Title))
	}
	if patch.Description != nil {
		add("description", nullable(normalizeDescription(patch.Description)))
	}
	if patch.HTMLCode != nil {
		add("html_code", *patch.HTMLCode)
	}
	if patch.CSSCode != nil {
		add("css_code", *patch.CSSCode)
	}
	if patch.JSCode != nil {
		add("js_code", *patch.JSCode)
	}
	if patch.IsPublic != nil {
		add("is_public", *patch.IsPublic)
	}
	add("updated_at", s.now().UnixMilli())
	args = append(args, projectID)

	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE user_projects SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
	if err != nil {
		return StoredProject{}, s.transport(err, "failed to update project")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return StoredProject{}, notFound(projectID)
	}
	return s.Get(ctx, projectID)
}

// Delete removes a project.
func (s *SQLStore) Delete(ctx context.Context, projectID string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM user_projects WHERE id = ?`), projectID)
	if err != nil {
		return s.transport(err, "failed to delete project")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(projectID)
	}
	return nil
}

// ListProgress returns the owner's lesson progress.
func (s *SQLStore) ListProgress(ctx context.Context, ownerID string) ([]progress.LessonProgress, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT id, user_id, course_id, lesson_id, completed, progress_percentage, updated_at
		 FROM course_progress WHERE user_id = ? ORDER BY course_id, lesson_id`), ownerID)
	if err != nil {
		return nil, s.transport(err, "failed to list progress")
	}
	defer rows.Close()

	out := make([]progress.LessonProgress, 0)
	for rows.Next() {
		var (
			p         progress.LessonProgress
			updatedAt int64
		)
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.CourseID, &p.LessonID,
			&p.Completed, &p.Percentage, &updatedAt); err != nil {
			return nil, s.transport(err, "failed to scan progress")
		}
		p.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, s.transport(err, "failed to list progress")
	}
	return out, nil
}

// UpsertProgress inserts or updates the row keyed by owner, course and
// lesson.
func (s *SQLStore) UpsertProgress(ctx context.Context, p progress.LessonProgress) error {
	now := s.now().UnixMilli()
	updated := now
	if !p.UpdatedAt.IsZero() {
		updated = p.UpdatedAt.UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO course_progress
		   (id, user_id, course_id, lesson_id, completed, progress_percentage, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, course_id, lesson_id) DO UPDATE SET
		   completed = excluded.completed,
		   progress_percentage = excluded.progress_percentage,
		   updated_at = excluded.updated_at`),
		newID(), p.OwnerID, p.CourseID, p.LessonID, p.Completed, p.Percentage, now, updated)
	if err != nil {
		return s.transport(err, "failed to update progress")
	}
	return nil
}

var (
	_ Adapter        = (*SQLStore)(nil)
	_ progress.Store = (*SQLStore)(nil)
)
