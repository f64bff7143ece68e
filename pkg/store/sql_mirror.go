package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/pnku766-alt/fusionintel-core/pkg/audit"
)

// Dialect selects SQL placeholder syntax and DDL.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_mirror (
	sequence INTEGER PRIMARY KEY,
	artifact_id TEXT NOT NULL,
	ts_utc TEXT NOT NULL,
	line TEXT NOT NULL,
	record_hash TEXT NOT NULL,
	prev_hash TEXT NOT NULL,
	entry_hash TEXT NOT NULL UNIQUE
);`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS audit_mirror (
	sequence BIGINT PRIMARY KEY,
	artifact_id TEXT NOT NULL,
	ts_utc TEXT NOT NULL,
	line TEXT NOT NULL,
	record_hash TEXT NOT NULL,
	prev_hash TEXT NOT NULL,
	entry_hash TEXT NOT NULL UNIQUE
);`

// SQLMirror is an audit.Sink over database/sql.
type SQLMirror struct {
	db      *sql.DB
	dialect Dialect
	name    string
	mu      sync.Mutex
}

// OpenSQLite opens (creating if needed) a SQLite database file.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	return db, nil
}

// OpenPostgres opens a Postgres pool for dsn and pings it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewSQLiteMirror migrates db and returns a mirror named "sqlite".
func NewSQLiteMirror(ctx context.Context, db *sql.DB) (*SQLMirror, error) {
	m := &SQLMirror{db: db, dialect: DialectSQLite, name: "sqlite"}
	if err := m.migrate(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// NewPostgresMirror migrates db and returns a mirror named "postgres".
func NewPostgresMirror(ctx context.Context, db *sql.DB) (*SQLMirror, error) {
	m := &SQLMirror{db: db, dialect: DialectPostgres, name: "postgres"}
	if err := m.migrate(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SQLMirror) migrate(ctx context.Context) error {
	schema := sqliteSchema
	if m.dialect == DialectPostgres {
		schema = postgresSchema
	}
	if _, err := m.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate %s mirror: %w", m.name, err)
	}
	return nil
}

// rebind rewrites '?' placeholders for the dialect.
func (m *SQLMirror) rebind(query string) string {
	if m.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Name implements audit.Sink.
func (m *SQLMirror) Name() string { return m.name }

// Mirror appends rec to the chain inside one transaction.
func (m *SQLMirror) Mirror(ctx context.Context, rec audit.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.append(ctx, rec); err != nil {
		return &audit.WriteFailure{Path: m.name, Err: err}
	}
	return nil
}

func (m *SQLMirror) append(ctx context.Context, rec audit.Record) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var (
		lastSeq  uint64
		prevHash = GenesisHash
	)
	err = tx.QueryRowContext(ctx, "SELECT sequence, entry_hash FROM audit_mirror ORDER BY sequence DESC LIMIT 1").
		Scan(&lastSeq, &prevHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	seq := lastSeq + 1
	entryHash, err := computeEntryHash(seq, rec.Hash, prevHash)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, m.rebind(`
		INSERT INTO audit_mirror (sequence, artifact_id, ts_utc, line, record_hash, prev_hash, entry_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		seq, rec.Event.ArtifactID, rec.Event.TSUTC, string(rec.Line), rec.Hash, prevHash, entryHash,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Entries returns the whole chain in sequence order.
func (m *SQLMirror) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT sequence, artifact_id, ts_utc, line, record_hash, prev_hash, entry_hash
		FROM audit_mirror
		ORDER BY sequence ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Sequence, &e.ArtifactID, &e.TSUTC, &e.Line, &e.RecordHash, &e.PrevHash, &e.EntryHash); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// VerifyChain re-reads the table and checks every link.
func (m *SQLMirror) VerifyChain(ctx context.Context) error {
	entries, err := m.Entries(ctx)
	if err != nil {
		return err
	}
	return VerifyEntries(entries)
}
