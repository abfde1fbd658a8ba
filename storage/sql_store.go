package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"survey-dashboard/models"
	"survey-dashboard/utils"
)

// Supported SQL drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// SQLStore persists survey responses and the district boundary in
// PostgreSQL or SQLite.
type SQLStore struct {
	db     *sql.DB
	driver string
	logger *utils.Logger
}

// OpenSQLStore connects to the database, retrying the initial ping with
// back-off, runs schema migrations and returns a ready-to-use SQLStore.
func OpenSQLStore(ctx context.Context, driver, dsn string, retry *utils.RetryConfig, logger *utils.Logger) (*SQLStore, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("sql: unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", driver, err)
	}
	if driver == DriverSQLite {
		// one connection keeps ":memory:" databases shared and serialises writers
		db.SetMaxOpenConns(1)
	}

	if retry == nil {
		retry = &utils.RetryConfig{MaxAttempts: 1, Logger: logger}
	}
	if err := retry.Do(ctx, driver+" ping", db.PingContext); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", driver, err)
	}

	s := &SQLStore{db: db, driver: driver, logger: logger}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: migrate: %w", driver, err)
	}

	logger.Info("[storage] Connected to %s", driver)
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	answersType := "TEXT"
	if s.driver == DriverPostgres {
		answersType = "JSONB"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS survey_responses (
			id          TEXT PRIMARY KEY,
			answers     ` + answersType + ` NOT NULL,
			source      TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL,
			created_by  TEXT NOT NULL DEFAULT '',
			updated_at  TEXT,
			updated_by  TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_survey_responses_created_at ON survey_responses(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_survey_responses_source ON survey_responses(source)`,
		`CREATE TABLE IF NOT EXISTS district_boundary (
			id          INTEGER PRIMARY KEY,
			doc         TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// rebind rewrites ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
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

const selectColumns = `SELECT id, answers, source, created_at, created_by, updated_at, updated_by FROM survey_responses`

func (s *SQLStore) List(ctx context.Context) ([]*models.StoredResponse, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("%s: list: %w", s.driver, err)
	}
	defer rows.Close()

	var out []*models.StoredResponse
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", s.driver, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) Get(ctx context.Context, id string) (*models.StoredResponse, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(selectColumns+` WHERE id = ?`), id)
	r, err := scanResponse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: get %s: %w", s.driver, id, err)
	}
	return r, nil
}

func (s *SQLStore) Create(ctx context.Context, r *models.StoredResponse) error {
	prepareNew(r)
	if err := s.insert(ctx, s.db, r); err != nil {
		return fmt.Errorf("%s: create: %w", s.driver, err)
	}
	return nil
}

func (s *SQLStore) Update(ctx context.Context, id string, answers map[string]string, updatedBy string) error {
	payload, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("%s: encode answers: %w", s.driver, err)
	}
	res, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE survey_responses SET answers = ?, updated_at = ?, updated_by = ? WHERE id = ?`),
		string(payload), formatTime(time.Now().UTC()), updatedBy, id)
	if err != nil {
		return fmt.Errorf("%s: update %s: %w", s.driver, id, err)
	}
	return expectOne(res)
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM survey_responses WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("%s: delete %s: %w", s.driver, id, err)
	}
	return expectOne(res)
}

// ImportMany inserts rows in one transaction.
func (s *SQLStore) ImportMany(ctx context.Context, rows []*models.StoredResponse) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: begin import: %w", s.driver, err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, r := range rows {
		prepareNew(r)
		if err := s.insert(ctx, tx, r); err != nil {
			return 0, fmt.Errorf("%s: import row %d: %w", s.driver, i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%s: commit import: %w", s.driver, err)
	}
	s.logger.Info("[storage] Imported %d survey responses", len(rows))
	return len(rows), nil
}

// SaveBoundary replaces the stored boundary document.
func (s *SQLStore) SaveBoundary(ctx context.Context, doc []byte) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO district_boundary (id, doc, updated_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at
	`), string(doc), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("%s: save boundary: %w", s.driver, err)
	}
	return nil
}

func (s *SQLStore) LoadBoundary(ctx context.Context) ([]byte, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM district_boundary WHERE id = 1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoBoundary
	}
	if err != nil {
		return nil, fmt.Errorf("%s: load boundary: %w", s.driver, err)
	}
	return []byte(doc), nil
}

func (s *SQLStore) DeleteBoundary(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM district_boundary WHERE id = 1`); err != nil {
		return fmt.Errorf("%s: delete boundary: %w", s.driver, err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) insert(ctx context.Context, ex execer, r *models.StoredResponse) error {
	payload, err := json.Marshal(r.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	_, err = ex.ExecContext(ctx, s.rebind(`
		INSERT INTO survey_responses (id, answers, source, created_at, created_by, updated_by)
		VALUES (?, ?, ?, ?, ?, ?)
	`), r.ID, string(payload), r.Source, formatTime(r.CreatedAt), r.CreatedBy, r.UpdatedBy)
	if isDuplicateKey(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
	}
	return err
}

func isDuplicateKey(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "UNIQUE")
		}
	}
	return false
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResponse(sc scanner) (*models.StoredResponse, error) {
	var (
		r         models.StoredResponse
		answers   []byte
		createdAt string
		updatedAt sql.NullString
	)
	if err := sc.Scan(&r.ID, &answers, &r.Source, &createdAt, &r.CreatedBy, &updatedAt, &r.UpdatedBy); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(answers, &r.Answers); err != nil {
		return nil, fmt.Errorf("decode answers of %s: %w", r.ID, err)
	}
	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at of %s: %w", r.ID, err)
	}
	r.CreatedAt = t
	if updatedAt.Valid && updatedAt.String != "" {
		u, err := time.Parse(time.RFC3339Nano, updatedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse updated_at of %s: %w", r.ID, err)
		}
		r.UpdatedAt = &u
	}
	return &r, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
