package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/amosWeiskopf/pagesmith/internal/models"
)

// ErrNotFound is returned by Get when no row has the requested id.
var ErrNotFound = errors.New("result not found")

const schema = `
CREATE TABLE IF NOT EXISTS url_results (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	url            TEXT    NOT NULL,
	title          TEXT    NOT NULL,
	html_version   TEXT    NOT NULL,
	h1             INTEGER NOT NULL DEFAULT 0,
	h2             INTEGER NOT NULL DEFAULT 0,
	h3             INTEGER NOT NULL DEFAULT 0,
	h4             INTEGER NOT NULL DEFAULT 0,
	h5             INTEGER NOT NULL DEFAULT 0,
	h6             INTEGER NOT NULL DEFAULT 0,
	internal_links INTEGER NOT NULL DEFAULT 0,
	external_links INTEGER NOT NULL DEFAULT 0,
	has_login_form INTEGER NOT NULL DEFAULT 0,
	broken_links   TEXT    NOT NULL DEFAULT '[]',
	created_at     INTEGER NOT NULL
);`

const selectColumns = `SELECT id, url, title, html_version, h1, h2, h3, h4, h5, h6,
	internal_links, external_links, has_login_form, broken_links, created_at
FROM url_results`

// Store persists analysis results in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and ensures the schema exists.
// ":memory:" gives a private in-memory database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save appends a report and returns the stored row with its assigned id and
// creation time.
func (s *Store) Save(ctx context.Context, report *models.PageReport) (models.Result, error) {
	result := models.NewResult(report)
	result.CreatedAt = time.UnixMilli(s.now().UnixMilli()).UTC()

	broken, err := json.Marshal(result.BrokenLinks)
	if err != nil {
		return models.Result{}, fmt.Errorf("encode broken links: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO url_results
		   (url, title, html_version, h1, h2, h3, h4, h5, h6,
		    internal_links, external_links, has_login_form, broken_links, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.URL, result.Title, result.HTMLVersion,
		result.H1, result.H2, result.H3, result.H4, result.H5, result.H6,
		result.InternalLinks, result.ExternalLinks, result.HasLoginForm,
		string(broken), result.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return models.Result{}, fmt.Errorf("insert result: %w", err)
	}

	result.ID, err = res.LastInsertId()
	if err != nil {
		return models.Result{}, fmt.Errorf("read result id: %w", err)
	}
	return result, nil
}

// List returns every stored result in ascending id order.
func (s *Store) List(ctx context.Context) ([]models.Result, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	results := []models.Result{}
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

// Get returns the result with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (models.Result, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	result, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Result{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return result, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(row scanner) (models.Result, error) {
	var (
		result    models.Result
		broken    string
		createdAt int64
	)
	err := row.Scan(
		&result.ID, &result.URL, &result.Title, &result.HTMLVersion,
		&result.H1, &result.H2, &result.H3, &result.H4, &result.H5, &result.H6,
		&result.InternalLinks, &result.ExternalLinks, &result.HasLoginForm,
		&broken, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Result{}, err
		}
		return models.Result{}, fmt.Errorf("scan result: %w", err)
	}

	if err := json.Unmarshal([]byte(broken), &result.BrokenLinks); err != nil {
		return models.Result{}, fmt.Errorf("decode broken links for id %d: %w", result.ID, err)
	}
	if result.BrokenLinks == nil {
		result.BrokenLinks = []models.LinkStatus{}
	}
	result.CreatedAt = time.UnixMilli(createdAt).UTC()
	return result, nil
}
