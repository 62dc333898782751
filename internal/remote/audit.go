package remote

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gabe/botpool/internal/models"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	ts          TEXT    NOT NULL,
	channel_id  INTEGER NOT NULL,
	command     TEXT    NOT NULL,
	args        TEXT    NOT NULL DEFAULT '',
	authorized  INTEGER NOT NULL,
	result      TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
`

// AuditEntry is one logged command
type AuditEntry struct {
	ID         int64     `json:"id"`
	At         time.Time `json:"at"`
	ChannelID  int64     `json:"channel_id"`
	Command    string    `json:"command"`
	Args       string    `json:"args,omitempty"`
	Authorized bool      `json:"authorized"`
	Result     string    `json:"result,omitempty"`
}

// Audit is the sqlite command log
type Audit struct {
	db *sql.DB
}

// OpenAudit opens or creates the audit database at path
func OpenAudit(path string) (*Audit, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(auditSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create audit schema: %w", err)
	}
	return &Audit{db: db}, nil
}

// Record logs cmd and the outcome of handling it
func (a *Audit) Record(ctx context.Context, cmd models.Command, result string) error {
	at := cmd.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}
	authorized := 0
	if cmd.Authorized {
		authorized = 1
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO events (ts, channel_id, command, args, authorized, result) VALUES (?, ?, ?, ?, ?, ?)`,
		at.UTC().Format(time.RFC3339Nano), cmd.ChannelID, cmd.Name, strings.Join(cmd.Args, " "), authorized, result)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Recent returns the last n entries, newest first
func (a *Audit) Recent(ctx context.Context, n int) ([]AuditEntry, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT id, ts, channel_id, command, args, authorized, result FROM events ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			e          AuditEntry
			ts         string
			authorized int
		)
		if err := rows.Scan(&e.ID, &ts, &e.ChannelID, &e.Command, &e.Args, &authorized, &e.Result); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.At, _ = time.Parse(time.RFC3339Nano, ts)
		e.Authorized = authorized == 1
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database
func (a *Audit) Close() error {
	return a.db.Close()
}
