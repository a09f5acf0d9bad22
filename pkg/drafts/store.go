// Package drafts is the local autosave store for unsaved editor work.
// Backed by an embedded libSQL database, it is written by the editor on
// dirty mutations and never synchronizes with the server: a draft is a
// crash-recovery artifact, not a preset.
package drafts

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/hexlane/reconchain/pkg/schema"
)

// Draft is one autosaved working copy. WorkflowID is empty for work
// that has never been persisted as a preset.
type Draft struct {
	WorkflowID string
	Title      string
	Snapshot   schema.GraphSnapshot
	SavedAt    time.Time
}

// Store persists drafts in a local libSQL database.
type Store struct {
	db *sql.DB
}

// NewStore opens the draft database at the given path. The path should
// be a file URI, e.g. "file:/path/to/drafts.db".
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Connection-level PRAGMAs. Some return rows, hence QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Migrate applies pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// SaveDraft upserts the draft for a workflow (one draft per workflow,
// including the one anonymous slot for never-saved work).
func (s *Store) SaveDraft(ctx context.Context, workflowID, title string, snap schema.GraphSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "encode draft snapshot").WithCause(err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO drafts (workflow_id, title, snapshot, saved_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(workflow_id) DO UPDATE SET title=excluded.title, snapshot=excluded.snapshot, saved_at=excluded.saved_at`,
		workflowID, title, string(data), time.Now().UTC(),
	)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "save draft").WithCause(err)
	}
	return nil
}

// LatestDraft returns the draft for a workflow, or NOT_FOUND.
func (s *Store) LatestDraft(ctx context.Context, workflowID string) (*Draft, error) {
	d := &Draft{}
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT workflow_id, title, snapshot, saved_at FROM drafts WHERE workflow_id = ?`, workflowID,
	).Scan(&d.WorkflowID, &d.Title, &data, &d.SavedAt)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no draft for workflow %q", workflowID)
	}
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "load draft").WithCause(err)
	}
	if err := json.Unmarshal([]byte(data), &d.Snapshot); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "decode draft snapshot").WithCause(err)
	}
	return d, nil
}

// DeleteDraft removes the draft for a workflow. Deleting an absent
// draft is not an error: the editor clears drafts blindly after saves.
func (s *Store) DeleteDraft(ctx context.Context, workflowID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE workflow_id = ?`, workflowID)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "delete draft").WithCause(err)
	}
	return nil
}

// PruneOlderThan deletes drafts not touched within the given age and
// returns how many were removed.
func (s *Store) PruneOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)
	res, err := s.db.ExecContext(ctx, `DELETE FROM drafts WHERE saved_at < ?`, cutoff)
	if err != nil {
		return 0, schema.NewError(schema.ErrCodeStore, "prune drafts").WithCause(err)
	}
	return res.RowsAffected()
}
