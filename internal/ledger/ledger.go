package ledger

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/refinery-project/refinery/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Ledger is the durable registry of issues, revisions, and run state.
type Ledger struct {
	db     *sql.DB
	passes []model.PassConfig
	now    func() time.Time
}

// Open creates or opens the ledger database at path. The pass table is used
// to classify issues added without an explicit pass. Idempotent.
func Open(path string, passes []model.PassConfig) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open ledger: connect: %w", err)
	}

	// SQLite supports one writer at a time; pinning the pool to a single
	// connection avoids SQLITE_BUSY on interleaved statements.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("open ledger: apply schema: %w", err)
	}

	if len(passes) == 0 {
		passes = model.DefaultPasses()
	}
	return &Ledger{db: db, passes: passes, now: time.Now}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Passes returns the pass configuration the ledger classifies against.
func (l *Ledger) Passes() []model.PassConfig {
	return l.passes
}

// SetNow overrides the timestamp source. Tests use this for deterministic
// created_at values.
func (l *Ledger) SetNow(now func() time.Time) {
	l.now = now
}

func (l *Ledger) timestamp() string {
	return l.now().UTC().Format(time.RFC3339Nano)
}
