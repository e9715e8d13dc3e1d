package metricstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lingolabs/lingo-core/internal/config"
)

// SessionSummary is the per-session latency record flushed when a session
// stops. Only aggregate timings are stored, never transcript content.
type SessionSummary struct {
	ID              int64
	SessionID       string
	MeetingURL      string
	SourceLanguage  string
	TargetLanguages string
	Chunks          int
	RecognitionMean int64
	RecognitionP50  int64
	TranslationMean int64
	TranslationP50  int64
	SynthesisMean   int64
	SynthesisP50    int64
	TotalMean       int64
	TotalP50        int64
	CreatedAt       time.Time
}

// Store wraps a SQLite-backed latency summary store. In ephemeral mode every
// write is a no-op and reads return nothing.
type Store struct {
	db    *sql.DB
	cfg   config.MetricStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the store according to config.
func Open(ctx context.Context, cfg config.MetricStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("metric store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS session_metrics (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    meeting_url TEXT,
    source_language TEXT,
    target_languages TEXT,
    chunks INTEGER NOT NULL DEFAULT 0,
    recognition_mean_ms INTEGER NOT NULL DEFAULT 0,
    recognition_p50_ms INTEGER NOT NULL DEFAULT 0,
    translation_mean_ms INTEGER NOT NULL DEFAULT 0,
    translation_p50_ms INTEGER NOT NULL DEFAULT 0,
    synthesis_mean_ms INTEGER NOT NULL DEFAULT 0,
    synthesis_p50_ms INTEGER NOT NULL DEFAULT 0,
    total_mean_ms INTEGER NOT NULL DEFAULT 0,
    total_p50_ms INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_metrics_created ON session_metrics(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SaveSummary writes one session's flushed latency summary.
func (s *Store) SaveSummary(ctx context.Context, sum SessionSummary) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	if sum.CreatedAt.IsZero() {
		sum.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_metrics(
		     session_id, meeting_url, source_language, target_languages, chunks,
		     recognition_mean_ms, recognition_p50_ms,
		     translation_mean_ms, translation_p50_ms,
		     synthesis_mean_ms, synthesis_p50_ms,
		     total_mean_ms, total_p50_ms, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.SessionID, sum.MeetingURL, sum.SourceLanguage, sum.TargetLanguages, sum.Chunks,
		sum.RecognitionMean, sum.RecognitionP50,
		sum.TranslationMean, sum.TranslationP50,
		sum.SynthesisMean, sum.SynthesisP50,
		sum.TotalMean, sum.TotalP50, sum.CreatedAt)
	return err
}

// ListSummaries retrieves up to limit summaries, newest first.
func (s *Store) ListSummaries(ctx context.Context, limit int) ([]SessionSummary, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, meeting_url, source_language, target_languages, chunks,
		        recognition_mean_ms, recognition_p50_ms,
		        translation_mean_ms, translation_p50_ms,
		        synthesis_mean_ms, synthesis_p50_ms,
		        total_mean_ms, total_p50_ms, created_at
		 FROM session_metrics ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		var created string
		if err := rows.Scan(&sum.ID, &sum.SessionID, &sum.MeetingURL, &sum.SourceLanguage,
			&sum.TargetLanguages, &sum.Chunks,
			&sum.RecognitionMean, &sum.RecognitionP50,
			&sum.TranslationMean, &sum.TranslationP50,
			&sum.SynthesisMean, &sum.SynthesisP50,
			&sum.TotalMean, &sum.TotalP50, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			sum.CreatedAt = ts
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// Prune applies configured retention, called on startup.
func (s *Store) Prune(ctx context.Context) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM session_metrics WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM session_metrics WHERE id IN (
			SELECT id FROM session_metrics ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
