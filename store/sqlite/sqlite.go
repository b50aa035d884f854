// Package sqlite provides SQLite-backed implementations of the core stores.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/snow-ghost/healer/core"
)

// Store wraps one SQLite database holding errors, attempts, patterns and
// the decision log.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
// Use ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS errors (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		severity TEXT NOT NULL,
		message TEXT NOT NULL,
		context TEXT,
		status TEXT NOT NULL DEFAULT 'open',
		resolution_note TEXT,
		created_at DATETIME NOT NULL,
		seq INTEGER
	);

	CREATE TABLE IF NOT EXISTS attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		error_id TEXT NOT NULL,
		strategy TEXT NOT NULL,
		attempt_number INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		confidence REAL NOT NULL,
		description TEXT,
		duration_ms INTEGER NOT NULL,
		timestamp DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS patterns (
		name TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		description TEXT,
		confidence REAL NOT NULL,
		success_count INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0,
		last_used_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS decisions (
		id TEXT PRIMARY KEY,
		scenario_category TEXT NOT NULL,
		option_ids TEXT NOT NULL,
		chosen_id TEXT,
		confidence REAL NOT NULL,
		successful INTEGER,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_errors_category ON errors(category);
	CREATE INDEX IF NOT EXISTS idx_errors_status ON errors(status);
	CREATE INDEX IF NOT EXISTS idx_attempts_error ON attempts(error_id);
	CREATE INDEX IF NOT EXISTS idx_patterns_category ON patterns(category);
	CREATE INDEX IF NOT EXISTS idx_decisions_scenario ON decisions(scenario_category);
	`
	_, err := s.db.Exec(query)
	return err
}

// encodeContext flattens the context map into "k=v" lines; values never
// contain newlines at the store boundary.
func encodeContext(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	parts := make([]string, 0, len(m))
	for k, v := range m {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, "\n")
}

func decodeContext(s string) map[string]string {
	if s == "" {
		return nil
	}
	m := make(map[string]string)
	for _, line := range strings.Split(s, "\n") {
		if k, v, ok := strings.Cut(line, "="); ok {
			m[k] = v
		}
	}
	return m
}

// Query returns error records matching the filter, oldest first.
func (s *Store) Query(ctx context.Context, filter core.ErrorFilter) ([]core.ErrorRecord, error) {
	query := "SELECT id, category, severity, message, context, status, created_at FROM errors WHERE 1=1"
	args := make([]any, 0, 3)

	if filter.Category != nil {
		query += " AND category = ?"
		args = append(args, string(*filter.Category))
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, string(*filter.Status))
	}
	if filter.Keyword != "" {
		query += " AND LOWER(message) LIKE ?"
		args = append(args, "%"+strings.ToLower(filter.Keyword)+"%")
	}
	query += " ORDER BY created_at ASC, seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []core.ErrorRecord
	for rows.Next() {
		var rec core.ErrorRecord
		var contextBlob sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Category, &rec.Severity, &rec.Message, &contextBlob, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Context = decodeContext(contextBlob.String)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Insert stores a new error record.
func (s *Store) Insert(ctx context.Context, rec core.ErrorRecord) (core.ErrorRecord, error) {
	if _, err := core.ParseCategory(string(rec.Category)); err != nil {
		return core.ErrorRecord{}, err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = core.StatusOpen
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO errors (id, category, severity, message, context, status, created_at, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq),0)+1 FROM errors))`,
		rec.ID, string(rec.Category), string(rec.Severity), rec.Message,
		encodeContext(rec.Context), string(rec.Status), rec.CreatedAt)
	if err != nil {
		return core.ErrorRecord{}, fmt.Errorf("insert error record: %w", err)
	}
	return rec, nil
}

// Resolve transitions a record to resolved; doing so twice is an error.
func (s *Store) Resolve(ctx context.Context, id string, note string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE errors SET status = ?, resolution_note = ? WHERE id = ? AND status = ?",
		string(core.StatusResolved), note, id, string(core.StatusOpen))
	if err != nil {
		return fmt.Errorf("resolve %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var status string
		err := s.db.QueryRowContext(ctx, "SELECT status FROM errors WHERE id = ?", id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("resolve %s: %w", id, core.ErrNotFound)
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("resolve %s: %w", id, core.ErrAlreadyFinal)
	}
	return nil
}

// AppendAttempt records one healing attempt.
func (s *Store) AppendAttempt(ctx context.Context, attempt core.HealingAttempt) error {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM errors WHERE id = ?", attempt.ErrorID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("append attempt for %s: %w", attempt.ErrorID, core.ErrNotFound)
	}
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO attempts (error_id, strategy, attempt_number, outcome, confidence, description, duration_ms, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ErrorID, string(attempt.Strategy), attempt.AttemptNumber, string(attempt.Outcome),
		attempt.Confidence, attempt.Description, attempt.Duration.Milliseconds(), attempt.Timestamp)
	if err != nil {
		return fmt.Errorf("append attempt: %w", err)
	}
	return nil
}

// Get returns the named pattern or (nil, nil) when absent.
func (s *Store) Get(ctx context.Context, name string) (*core.Pattern, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT name, category, description, confidence, success_count, failure_count, last_used_at FROM patterns WHERE name = ?",
		name)
	p, err := scanPattern(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPattern(row rowScanner) (*core.Pattern, error) {
	var p core.Pattern
	var desc sql.NullString
	var lastUsed sql.NullTime
	if err := row.Scan(&p.Name, &p.Category, &desc, &p.Confidence, &p.SuccessCount, &p.FailureCount, &lastUsed); err != nil {
		return nil, err
	}
	p.Description = desc.String
	if lastUsed.Valid {
		p.LastUsedAt = lastUsed.Time
	}
	return &p, nil
}

// FindByCategory returns the category's patterns, highest confidence first.
func (s *Store) FindByCategory(ctx context.Context, category core.Category) ([]core.Pattern, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, category, description, confidence, success_count, failure_count, last_used_at FROM patterns WHERE category = ? ORDER BY confidence DESC, name ASC",
		string(category))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patterns []core.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, *p)
	}
	return patterns, rows.Err()
}

// Upsert stores or replaces a pattern.
func (s *Store) Upsert(ctx context.Context, p core.Pattern) error {
	if p.Name == "" {
		return fmt.Errorf("pattern name is required")
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("pattern %s confidence %.3f out of [0,1]", p.Name, p.Confidence)
	}
	var lastUsed any
	if !p.LastUsedAt.IsZero() {
		lastUsed = p.LastUsedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO patterns (name, category, description, confidence, success_count, failure_count, last_used_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   category = excluded.category,
		   description = excluded.description,
		   confidence = excluded.confidence,
		   success_count = excluded.success_count,
		   failure_count = excluded.failure_count,
		   last_used_at = excluded.last_used_at`,
		p.Name, string(p.Category), p.Description, p.Confidence, p.SuccessCount, p.FailureCount, lastUsed)
	if err != nil {
		return fmt.Errorf("upsert pattern %s: %w", p.Name, err)
	}
	return nil
}

// IncrementCounters bumps the outcome counters and the last-used stamp.
func (s *Store) IncrementCounters(ctx context.Context, name string, success bool) error {
	column := "failure_count"
	if success {
		column = "success_count"
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE patterns SET "+column+" = "+column+" + 1, last_used_at = ? WHERE name = ?",
		time.Now(), name)
	if err != nil {
		return fmt.Errorf("increment counters for %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("increment counters for %s: %w", name, core.ErrNotFound)
	}
	return nil
}

// InsertDecision appends a decision log entry.
func (s *Store) InsertDecision(ctx context.Context, entry core.DecisionLogEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("decision log entry id is required")
	}
	var successful any
	if entry.Successful != nil {
		successful = *entry.Successful
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, scenario_category, option_ids, chosen_id, confidence, successful, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ScenarioCategory, strings.Join(entry.OptionIDs, ","),
		entry.ChosenID, entry.Confidence, successful, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("insert decision %s: %w", entry.ID, err)
	}
	return nil
}

// RecordOutcome closes the feedback loop for a logged decision.
func (s *Store) RecordOutcome(ctx context.Context, decisionID, chosenID string, successful bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE decisions SET chosen_id = ?, successful = ? WHERE id = ?",
		chosenID, successful, decisionID)
	if err != nil {
		return fmt.Errorf("record outcome for %s: %w", decisionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("record outcome for %s: %w", decisionID, core.ErrNotFound)
	}
	return nil
}

// HistoricalWeights computes per-option success rates from closed decisions
// in the given scenario category.
func (s *Store) HistoricalWeights(ctx context.Context, scenarioCategory string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chosen_id,
		        COUNT(*) AS total,
		        SUM(CASE WHEN successful THEN 1 ELSE 0 END) AS wins
		 FROM decisions
		 WHERE scenario_category = ? AND successful IS NOT NULL AND chosen_id != ''
		 GROUP BY chosen_id`,
		scenarioCategory)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	weights := make(map[string]float64)
	for rows.Next() {
		var id string
		var total, wins int
		if err := rows.Scan(&id, &total, &wins); err != nil {
			return nil, err
		}
		if total > 0 {
			weights[id] = float64(wins) / float64(total)
		}
	}
	return weights, rows.Err()
}

// Seed inserts patterns that are not already present.
func (s *Store) Seed(ctx context.Context, patterns []core.Pattern) error {
	for _, p := range patterns {
		existing, err := s.Get(ctx, p.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := s.Upsert(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// ErrorStoreView narrows Store to core.ErrorStore.
func (s *Store) ErrorStoreView() core.ErrorStore { return s }

// PatternStoreView narrows Store to core.PatternStore.
func (s *Store) PatternStoreView() core.PatternStore { return s }

// DecisionLogView adapts Store to core.DecisionLog.
func (s *Store) DecisionLogView() core.DecisionLog { return decisionLogView{s} }

type decisionLogView struct{ s *Store }

func (v decisionLogView) Insert(ctx context.Context, entry core.DecisionLogEntry) error {
	return v.s.InsertDecision(ctx, entry)
}

func (v decisionLogView) RecordOutcome(ctx context.Context, decisionID, chosenID string, successful bool) error {
	return v.s.RecordOutcome(ctx, decisionID, chosenID, successful)
}

func (v decisionLogView) HistoricalWeights(ctx context.Context, scenarioCategory string) (map[string]float64, error) {
	return v.s.HistoricalWeights(ctx, scenarioCategory)
}
