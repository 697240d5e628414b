// Package audit keeps a cross-session archive of exported spend reports.
//
// The live tracker is in-memory and its report file is the only thing a
// session leaves behind. The archive ingests those files into SQLite so
// spend can be queried across sessions, long after the ledgers are gone.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tommybebe/novel-to-toon/pkg/models"
	"github.com/tommybebe/novel-to-toon/pkg/report"
)

// Archive stores imported reports in a dedicated SQLite database.
type Archive struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the archive database and creates the schema.
func Open(dbPath string) (*Archive, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open archive db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive db: %w", err)
	}

	return &Archive{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS report_sessions (
		session_id     TEXT PRIMARY KEY,
		started_at     DATETIME NOT NULL,
		imported_at    DATETIME NOT NULL,
		total_calls    INTEGER NOT NULL,
		total_cost_usd REAL NOT NULL,
		source_path    TEXT NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS report_calls (
		session_id         TEXT NOT NULL,
		seq                INTEGER NOT NULL,
		timestamp          DATETIME NOT NULL,
		model              TEXT NOT NULL,
		operation_tag      TEXT NOT NULL,
		phase              TEXT NOT NULL DEFAULT '',
		scene_id           TEXT NOT NULL DEFAULT '',
		resolution         TEXT NOT NULL DEFAULT '',
		is_batch           INTEGER NOT NULL,
		megapixels         REAL NOT NULL DEFAULT 0,
		prompt_tokens      INTEGER NOT NULL,
		output_tokens      INTEGER NOT NULL,
		cached_tokens      INTEGER NOT NULL,
		cost_usd           REAL NOT NULL,
		fallback_pricing   INTEGER NOT NULL,
		status             TEXT NOT NULL,
		generation_time_ms INTEGER NOT NULL,
		error_message      TEXT NOT NULL DEFAULT '',
		tags               TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (session_id, seq)
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_calls_model ON report_calls(model)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_calls_phase ON report_calls(phase)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_calls_time ON report_calls(timestamp)`)
	return err
}

// ImportFile loads a report file and imports it.
func (a *Archive) ImportFile(ctx context.Context, path string) (int, error) {
	rep, err := report.Load(path)
	if err != nil {
		return 0, err
	}
	return a.Import(ctx, rep, path)
}

// Import ingests one report, replacing any earlier import of the same
// session. The report is verified against its own calls first; inconsistent
// files are rejected.
func (a *Archive) Import(ctx context.Context, rep *report.Report, sourcePath string) (int, error) {
	if err := rep.Verify(); err != nil {
		return 0, fmt.Errorf("refusing import of %s: %w", rep.Summary.SessionID, err)
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO report_sessions
		 (session_id, started_at, imported_at, total_calls, total_cost_usd, source_path)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rep.Summary.SessionID, rep.Summary.StartedAt, a.now(),
		rep.Summary.TotalCalls, rep.Summary.TotalCostUSD, sourcePath,
	)
	if err != nil {
		return 0, fmt.Errorf("import session: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM report_calls WHERE session_id = ?`, rep.Summary.SessionID); err != nil {
		return 0, fmt.Errorf("clear session calls: %w", err)
	}

	for i, c := range rep.Calls {
		tags := ""
		if len(c.Tags) > 0 {
			data, err := json.Marshal(c.Tags)
			if err != nil {
				return 0, fmt.Errorf("encode tags for call %d: %w", i+1, err)
			}
			tags = string(data)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO report_calls
			 (session_id, seq, timestamp, model, operation_tag, phase, scene_id,
			  resolution, is_batch, megapixels, prompt_tokens, output_tokens,
			  cached_tokens, cost_usd, fallback_pricing, status, generation_time_ms,
			  error_message, tags)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rep.Summary.SessionID, i+1, c.Timestamp, c.Model, c.OperationTag,
			c.Phase, c.SceneID, string(c.Resolution), c.Batch, c.Megapixels,
			c.PromptTokens, c.OutputTokens, c.CachedTokens, c.CostUSD,
			c.FallbackPricing, string(c.Status), c.GenerationTimeMS, c.ErrorMessage,
			tags,
		)
		if err != nil {
			return 0, fmt.Errorf("import call %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return len(rep.Calls), nil
}

// Sessions returns all imported sessions, most recent first.
func (a *Archive) Sessions(ctx context.Context) ([]models.ArchiveSession, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT session_id, started_at, imported_at, total_calls, total_cost_usd, source_path
		 FROM report_sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.ArchiveSession
	for rows.Next() {
		var s models.ArchiveSession
		if err := rows.Scan(&s.SessionID, &s.StartedAt, &s.ImportedAt,
			&s.TotalCalls, &s.TotalCostUSD, &s.SourcePath); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// TotalsByModel aggregates archived spend per model, biggest spender first.
func (a *Archive) TotalsByModel(ctx context.Context) ([]models.ArchiveTotal, error) {
	return a.totals(ctx,
		`SELECT model, COUNT(*), SUM(cost_usd) FROM report_calls
		 GROUP BY model ORDER BY SUM(cost_usd) DESC, model`)
}

// TotalsByPhase aggregates archived spend per phase, biggest spender first.
// Untagged calls count under "unspecified".
func (a *Archive) TotalsByPhase(ctx context.Context) ([]models.ArchiveTotal, error) {
	return a.totals(ctx,
		`SELECT COALESCE(NULLIF(phase, ''), 'unspecified'), COUNT(*), SUM(cost_usd)
		 FROM report_calls
		 GROUP BY 1 ORDER BY SUM(cost_usd) DESC, 1`)
}

// TotalsByDay aggregates archived spend per calendar day, most recent first.
func (a *Archive) TotalsByDay(ctx context.Context) ([]models.ArchiveTotal, error) {
	return a.totals(ctx,
		`SELECT date(timestamp), COUNT(*), SUM(cost_usd) FROM report_calls
		 GROUP BY 1 ORDER BY 1 DESC`)
}

func (a *Archive) totals(ctx context.Context, query string) ([]models.ArchiveTotal, error) {
	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("archive totals: %w", err)
	}
	defer rows.Close()

	var totals []models.ArchiveTotal
	for rows.Next() {
		var t models.ArchiveTotal
		var key sql.NullString
		if err := rows.Scan(&key, &t.Calls, &t.CostUSD); err != nil {
			return nil, fmt.Errorf("scan archive total: %w", err)
		}
		t.Key = key.String
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// GrandTotal aggregates every archived call.
func (a *Archive) GrandTotal(ctx context.Context) (models.ArchiveTotal, error) {
	var t models.ArchiveTotal
	t.Key = "all sessions"
	err := a.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(cost_usd), 0) FROM report_calls`,
	).Scan(&t.Calls, &t.CostUSD)
	if err != nil {
		return models.ArchiveTotal{}, fmt.Errorf("archive grand total: %w", err)
	}
	return t, nil
}

// Cleanup deletes sessions that started before the retention window, along
// with their calls. Returns the number of sessions removed.
func (a *Archive) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := a.now().AddDate(0, 0, -retentionDays)

	if _, err := a.db.ExecContext(ctx,
		`DELETE FROM report_calls WHERE session_id IN
		 (SELECT session_id FROM report_sessions WHERE started_at < ?)`, cutoff); err != nil {
		return 0, fmt.Errorf("archive cleanup calls: %w", err)
	}
	res, err := a.db.ExecContext(ctx,
		`DELETE FROM report_sessions WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("archive cleanup sessions: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (a *Archive) Close() error {
	return a.db.Close()
}
