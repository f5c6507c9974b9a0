// Package store persists generation history and the accepted-listing memory
// in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/valpere/listforge/internal"
	"github.com/valpere/listforge/internal/evaluation"
	"github.com/valpere/listforge/internal/orchestrator"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serialises writers; a single connection avoids SQLITE_BUSY
	// under concurrent requests.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS generation_requests (
		id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		language TEXT NOT NULL,
		title TEXT NOT NULL,
		input TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS generation_attempts (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		html TEXT NOT NULL,
		evaluation TEXT NOT NULL,
		total_score INTEGER NOT NULL,
		accepted BOOLEAN DEFAULT FALSE,
		failing_criteria TEXT,
		latency_ms INTEGER,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (request_id) REFERENCES generation_requests(id)
	);

	CREATE TABLE IF NOT EXISTS generation_outcomes (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		attempt_count INTEGER NOT NULL,
		html TEXT,
		evaluation TEXT,
		total_score INTEGER,
		failed_criteria_log TEXT NOT NULL,
		reason TEXT,
		detected_language TEXT,
		cached BOOLEAN DEFAULT FALSE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (request_id) REFERENCES generation_requests(id)
	);

	-- listing_memory keeps accepted listings for identical requests
	CREATE TABLE IF NOT EXISTS listing_memory (
		id TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		language TEXT NOT NULL,
		html TEXT NOT NULL,
		evaluation TEXT NOT NULL,
		detected_language TEXT,
		usage_count INTEGER DEFAULT 1,
		invalidated BOOLEAN DEFAULT FALSE,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(fingerprint, language)
	);

	CREATE INDEX IF NOT EXISTS idx_attempts_request ON generation_attempts(request_id);
	CREATE INDEX IF NOT EXISTS idx_requests_created ON generation_requests(created_at);
	CREATE INDEX IF NOT EXISTS idx_memory_lookup ON listing_memory(fingerprint, language);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) SaveRequest(ctx context.Context, req internal.GenerationRequest) error {
	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generation_requests (id, fingerprint, language, title, input, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		req.ID, req.Fingerprint, req.Language, req.Title, req.Input, ts)
	return err
}

func (s *Store) SaveAttempt(ctx context.Context, a internal.GenerationAttempt) error {
	eval, err := json.Marshal(a.Evaluation)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation: %w", err)
	}
	failing, err := json.Marshal(a.FailingCriteria)
	if err != nil {
		return fmt.Errorf("failed to encode failing criteria: %w", err)
	}
	ts := a.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	id := fmt.Sprintf("%s_%d", a.RequestID, a.Attempt)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO generation_attempts (id, request_id, attempt, html, evaluation, total_score, accepted, failing_criteria, latency_ms, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, a.RequestID, a.Attempt, a.HTML, string(eval), a.Evaluation.TotalScore, a.Accepted, string(failing), a.LatencyMs, ts)
	return err
}

func (s *Store) SaveOutcome(ctx context.Context, o internal.GenerationOutcome) error {
	var eval sql.NullString
	var score sql.NullInt64
	if o.Evaluation != nil {
		b, err := json.Marshal(o.Evaluation)
		if err != nil {
			return fmt.Errorf("failed to encode evaluation: %w", err)
		}
		eval = sql.NullString{String: string(b), Valid: true}
		score = sql.NullInt64{Int64: int64(o.Evaluation.TotalScore), Valid: true}
	}
	log := o.FailedCriteriaLog
	if log == nil {
		log = []orchestrator.AttemptEntry{}
	}
	logJSON, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to encode attempt log: %w", err)
	}
	ts := o.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	id := fmt.Sprintf("%s_outcome", o.RequestID)
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO generation_outcomes (id, request_id, status, attempt_count, html, evaluation, total_score, failed_criteria_log, reason, detected_language, cached, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, o.RequestID, o.Status, o.AttemptCount, o.HTML, eval, score, string(logJSON), o.Reason, o.DetectedLanguage, o.Cached, ts)
	return err
}

// Run is a request with everything recorded about it.
type Run struct {
	Request  internal.GenerationRequest   `json:"request"`
	Attempts []internal.GenerationAttempt `json:"attempts"`
	Outcome  *internal.GenerationOutcome  `json:"outcome,omitempty"`
}

// GetRun returns the request, its attempts in order and its outcome, which
// is nil while the run is in flight.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	run := &Run{Attempts: []internal.GenerationAttempt{}}

	err := s.db.QueryRowContext(ctx,
		`SELECT id, fingerprint, language, title, input, created_at FROM generation_requests WHERE id = ?`, id).
		Scan(&run.Request.ID, &run.Request.Fingerprint, &run.Request.Language, &run.Request.Title, &run.Request.Input, &run.Request.Timestamp)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT attempt, html, evaluation, accepted, failing_criteria, latency_ms, created_at FROM generation_attempts WHERE request_id = ? ORDER BY attempt`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		a := internal.GenerationAttempt{RequestID: id}
		var eval string
		var failing sql.NullString
		if err := rows.Scan(&a.Attempt, &a.HTML, &eval, &a.Accepted, &failing, &a.LatencyMs, &a.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(eval), &a.Evaluation); err != nil {
			return nil, fmt.Errorf("attempt %d: failed to decode evaluation: %w", a.Attempt, err)
		}
		if failing.Valid && failing.String != "" && failing.String != "null" {
			if err := json.Unmarshal([]byte(failing.String), &a.FailingCriteria); err != nil {
				return nil, fmt.Errorf("attempt %d: failed to decode failing criteria: %w", a.Attempt, err)
			}
		}
		run.Attempts = append(run.Attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out, err := s.getOutcome(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Outcome = out
	return run, nil
}

func (s *Store) getOutcome(ctx context.Context, requestID string) (*internal.GenerationOutcome, error) {
	o := internal.GenerationOutcome{RequestID: requestID}
	var html, eval, reason, detected sql.NullString
	var logJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT status, attempt_count, html, evaluation, failed_criteria_log, reason, detected_language, cached, created_at FROM generation_outcomes WHERE request_id = ?`, requestID).
		Scan(&o.Status, &o.AttemptCount, &html, &eval, &logJSON, &reason, &detected, &o.Cached, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	o.HTML = html.String
	o.Reason = reason.String
	o.DetectedLanguage = detected.String
	if eval.Valid && eval.String != "" {
		var rec evaluation.Record
		if err := json.Unmarshal([]byte(eval.String), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode outcome evaluation: %w", err)
		}
		o.Evaluation = &rec
	}
	if err := json.Unmarshal([]byte(logJSON), &o.FailedCriteriaLog); err != nil {
		return nil, fmt.Errorf("failed to decode attempt log: %w", err)
	}
	return &o, nil
}

// RunSummary is one row of the history listing. Status is empty for runs
// without an outcome.
type RunSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Language     string    `json:"language"`
	Status       string    `json:"status"`
	AttemptCount int       `json:"attempt_count"`
	TotalScore   *int      `json:"total_score,omitempty"`
	Cached       bool      `json:"cached"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.title, r.language, COALESCE(o.status, ''), COALESCE(o.attempt_count, 0), o.total_score, COALESCE(o.cached, FALSE), r.created_at
		FROM generation_requests r
		LEFT JOIN generation_outcomes o ON o.request_id = r.id
		ORDER BY r.created_at DESC, r.id
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []RunSummary{}
	for rows.Next() {
		var r RunSummary
		var score sql.NullInt64
		if err := rows.Scan(&r.ID, &r.Title, &r.Language, &r.Status, &r.AttemptCount, &score, &r.Cached, &r.CreatedAt); err != nil {
			return nil, err
		}
		if score.Valid {
			v := int(score.Int64)
			r.TotalScore = &v
		}
		results = append(results, r)
	}

	return results, rows.Err()
}

// Stats summarises history and listing memory.
type Stats struct {
	Requests        int            `json:"requests"`
	ByStatus        map[string]int `json:"by_status"`
	AverageAttempts float64        `json:"average_attempts"`
	AverageScore    float64        `json:"average_score"`
	MemoryEntries   int            `json:"memory_entries"`
	MemoryActive    int            `json:"memory_active"`
	MemoryUsage     int            `json:"memory_usage"`
}

func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByStatus: map[string]int{}}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM generation_requests`).Scan(&stats.Requests); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM generation_outcomes GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		stats.ByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(AVG(attempt_count), 0),
			COALESCE(AVG(total_score), 0)
		FROM generation_outcomes WHERE status IN (?, ?)`,
		internal.StatusAccepted, internal.StatusRejected).Scan(&stats.AverageAttempts, &stats.AverageScore)
	if err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN NOT invalidated THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(usage_count), 0)
		FROM listing_memory`).Scan(
		&stats.MemoryEntries,
		&stats.MemoryActive,
		&stats.MemoryUsage,
	)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ClearHistory removes every request, attempt and outcome.
func (s *Store) ClearHistory(ctx context.Context) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for _, q := range []string{`DELETE FROM generation_attempts`, `DELETE FROM generation_outcomes`} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return 0, err
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM generation_requests`)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// GetCachedListing returns the accepted listing for an identical request
// and bumps its usage count. Invalidated entries are misses.
func (s *Store) GetCachedListing(ctx context.Context, fingerprint, lang string) (*internal.CachedListing, bool, error) {
	l := internal.CachedListing{Fingerprint: fingerprint, Language: lang}
	var eval string
	var detected sql.NullString
	var invalidated bool

	err := s.db.QueryRowContext(ctx,
		`SELECT html, evaluation, detected_language, invalidated, created_at FROM listing_memory WHERE fingerprint = ? AND language = ?`,
		fingerprint, lang).Scan(&l.HTML, &eval, &detected, &invalidated, &l.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if invalidated {
		return nil, false, nil
	}
	if err := json.Unmarshal([]byte(eval), &l.Evaluation); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached evaluation: %w", err)
	}
	l.DetectedLanguage = detected.String

	_, err = s.db.ExecContext(ctx,
		`UPDATE listing_memory SET usage_count = usage_count + 1, last_used = ? WHERE fingerprint = ? AND language = ?`,
		time.Now(), fingerprint, lang)

	return &l, true, err
}

// SaveListing stores or replaces the listing for its fingerprint and
// language, clearing any invalidation.
func (s *Store) SaveListing(ctx context.Context, l internal.CachedListing) error {
	eval, err := json.Marshal(l.Evaluation)
	if err != nil {
		return fmt.Errorf("failed to encode evaluation: %w", err)
	}
	id := fmt.Sprintf("mem_%d", time.Now().UnixNano())
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO listing_memory (id, fingerprint, language, html, evaluation, detected_language, usage_count, invalidated, last_used, created_at) VALUES (?, ?, ?, ?, ?, ?, 1, FALSE, ?, ?)`,
		id, l.Fingerprint, l.Language, l.HTML, string(eval), l.DetectedLanguage, time.Now(), time.Now())
	return err
}

// InvalidateListing marks the listing for fingerprint and lang stale.
func (s *Store) InvalidateListing(ctx context.Context, fingerprint, lang string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE listing_memory SET invalidated = TRUE WHERE fingerprint = ? AND language = ?`, fingerprint, lang)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("listing %s/%s: %w", lang, fingerprint, ErrNotFound)
	}
	return nil
}

// MemoryEntry is a row from the listing_memory table.
type MemoryEntry struct {
	ID          string    `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Language    string    `json:"language"`
	UsageCount  int       `json:"usage_count"`
	Invalidated bool      `json:"invalidated"`
	LastUsed    time.Time `json:"last_used"`
}

// ListMemory returns listing memory entries ordered by most recently used.
func (s *Store) ListMemory(ctx context.Context) ([]MemoryEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, fingerprint, language, usage_count, invalidated, last_used FROM listing_memory ORDER BY last_used DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []MemoryEntry
	for rows.Next() {
		var e MemoryEntry
		if err := rows.Scan(&e.ID, &e.Fingerprint, &e.Language, &e.UsageCount, &e.Invalidated, &e.LastUsed); err != nil {
			return nil, err
		}
		results = append(results, e)
	}

	return results, rows.Err()
}

// ClearMemory removes all listing memory entries.
func (s *Store) ClearMemory(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM listing_memory`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}
