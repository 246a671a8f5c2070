package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go driver, no CGO
)

const sqliteExt = ".db"

// SQLiteProvider stores one SQLite database per name under dir. Each
// database holds the documents, their fields, and an FTS5 table of the
// code-tokenized text fields. WAL mode lets status readers run next to a
// build in another process.
type SQLiteProvider struct {
	dir string

	mu      sync.Mutex
	indexes map[string]*sqliteIndex
	closed  bool
}

// NewSQLiteProvider creates a provider rooted at dir.
func NewSQLiteProvider(dir string) *SQLiteProvider {
	return &SQLiteProvider{
		dir:     dir,
		indexes: make(map[string]*sqliteIndex),
	}
}

// Name implements Provider.
func (p *SQLiteProvider) Name() string { return "sqlite" }

// Open implements Provider.
func (p *SQLiteProvider) Open(name string) (Index, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	s, ok := p.indexes[name]
	if !ok {
		s = &sqliteIndex{
			path:      filepath.Join(p.dir, name+sqliteExt),
			stopWords: BuildStopWordMap(DefaultCodeStopWords),
		}
		p.indexes[name] = s
	}
	return s, nil
}

// Close closes every open database.
func (p *SQLiteProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for _, s := range p.indexes {
		if err := s.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type sqliteIndex struct {
	path      string
	stopWords map[string]struct{}

	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

func (s *sqliteIndex) NewDocument(id string) *Document {
	return DefaultFactory.NewDocument(id)
}

func (s *sqliteIndex) Exists(_ context.Context) (bool, error) {
	return fileExists(s.path), nil
}

func (s *sqliteIndex) CreateIfNotExists(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.db != nil && fileExists(s.path) {
		return nil
	}
	return s.openLocked(ctx, true)
}

func (s *sqliteIndex) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("failed to close database before delete: %w", err)
		}
		s.db = nil
	}
	for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete %s: %w", p, err)
		}
	}
	return nil
}

func (s *sqliteIndex) DeleteDocuments(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.handleLocked(ctx)
	if errors.Is(err, ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	for _, table := range []string{"fts_content", "document_fields", "documents"} {
		q := fmt.Sprintf("DELETE FROM %s WHERE doc_id IN (%s)", table, placeholders)
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// SaveDocuments upserts by deleting any previous rows for each id inside
// the same transaction; FTS5 tables do not support REPLACE.
func (s *sqliteIndex) SaveDocuments(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.handleLocked(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`DELETE FROM fts_content WHERE doc_id = ?`,
		`DELETE FROM document_fields WHERE doc_id = ?`,
		`INSERT OR REPLACE INTO documents(doc_id, updated_at) VALUES (?, ?)`,
		`INSERT INTO document_fields(doc_id, name, value) VALUES (?, ?, ?)`,
		`INSERT INTO fts_content(doc_id, content) VALUES (?, ?)`,
	}
	prepared := make([]*sql.Stmt, len(stmts))
	for i, q := range stmts {
		st, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer st.Close()
		prepared[i] = st
	}
	delFTS, delFields, upsertDoc, insField, insFTS := prepared[0], prepared[1], prepared[2], prepared[3], prepared[4]

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, doc := range docs {
		if _, err := delFTS.ExecContext(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to clear document %s: %w", doc.ID, err)
		}
		if _, err := delFields.ExecContext(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to clear fields of %s: %w", doc.ID, err)
		}
		if _, err := upsertDoc.ExecContext(ctx, doc.ID, now); err != nil {
			return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
		}

		var text []string
		for _, name := range doc.FieldNames() {
			value := formatValue(doc.Fields[name])
			if _, err := insField.ExecContext(ctx, doc.ID, name, value); err != nil {
				return fmt.Errorf("failed to save field %s of %s: %w", name, doc.ID, err)
			}
			if _, ok := doc.Fields[name].(string); ok {
				text = append(text, value)
			}
		}

		tokens := FilterStopWords(TokenizeCode(strings.Join(text, "\n")), s.stopWords)
		if _, err := insFTS.ExecContext(ctx, doc.ID, strings.Join(tokens, " ")); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}
	return tx.Commit()
}

func (s *sqliteIndex) DocumentCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.handleLocked(ctx)
	if errors.Is(err, ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

func (s *sqliteIndex) Fields(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.handleLocked(ctx)
	if errors.Is(err, ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT DISTINCT name FROM document_fields ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query fields: %w", err)
	}
	defer rows.Close()

	fields := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan field: %w", err)
		}
		fields = append(fields, name)
	}
	return fields, rows.Err()
}

// Search runs an FTS5 match over the code-tokenized text and returns
// matching ids, best first.
func (s *sqliteIndex) Search(ctx context.Context, query string, limit int) ([]string, error) {
	tokens := FilterStopWords(TokenizeCode(query), s.stopWords)
	if len(tokens) == 0 {
		return []string{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.handleLocked(ctx)
	if errors.Is(err, ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx,
		`SELECT doc_id FROM fts_content WHERE content MATCH ? ORDER BY bm25(fts_content) LIMIT ?`,
		strings.Join(tokens, " "), limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// handleLocked returns an open database, opening an existing file lazily.
func (s *sqliteIndex) handleLocked(ctx context.Context) (*sql.DB, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if !fileExists(s.path) {
		if s.db != nil {
			_ = s.db.Close()
			s.db = nil
		}
		return nil, ErrNotExist
	}
	if s.db == nil {
		if err := s.openLocked(ctx, false); err != nil {
			return nil, err
		}
	}
	return s.db, nil
}

func (s *sqliteIndex) openLocked(ctx context.Context, create bool) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := validateSQLiteIntegrity(s.path); err != nil {
		slog.Warn("sqlite_index_corrupted",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
		for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
			if rmErr := os.Remove(p); rmErr != nil && !os.IsNotExist(rmErr) {
				return fmt.Errorf("index corrupted at %s and cannot remove: %w", s.path, rmErr)
			}
		}
		slog.Info("sqlite_index_cleared",
			slog.String("path", s.path),
			slog.String("reason", "corruption detected, rebuild required"))
		if !create {
			return ErrNotExist
		}
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// One writer per database; the scope lock already serializes builds.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	s.db = db
	return nil
}

// Release closes the database; the next call reopens it.
func (s *sqliteIndex) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeDBLocked(false)
}

func (s *sqliteIndex) closeDBLocked(checkpoint bool) error {
	if s.db == nil {
		return nil
	}
	if checkpoint {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *sqliteIndex) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return s.closeDBLocked(true)
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS documents (
	doc_id     TEXT PRIMARY KEY,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS document_fields (
	doc_id TEXT NOT NULL,
	name   TEXT NOT NULL,
	value  TEXT,
	PRIMARY KEY (doc_id, name)
);

CREATE INDEX IF NOT EXISTS idx_document_fields_name ON document_fields(name);

CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
	doc_id UNINDEXED,
	content,
	tokenize='unicode61'
);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

// validateSQLiteIntegrity reports a corrupt database file. A missing file
// is not corrupt.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}
	return nil
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case []string:
		return strings.Join(x, " ")
	default:
		return fmt.Sprint(x)
	}
}

var _ Index = (*sqliteIndex)(nil)
