package metricstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/lingolabs/lingo-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.MetricStoreConfig{RetentionMode: "ephemeral"}
	ms, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = ms.Close() })

	if err := ms.SaveSummary(context.Background(), SessionSummary{SessionID: "s-1"}); err != nil {
		t.Fatalf("save summary: %v", err)
	}
	summaries, err := ms.ListSummaries(context.Background(), 10)
	if err != nil {
		t.Fatalf("list summaries: %v", err)
	}
	if len(summaries) != 0 {
		t.Fatalf("expected ephemeral store to retain nothing, got %d", len(summaries))
	}
}

func TestSaveAndList(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.MetricStoreConfig{Path: filepath.Join(tmp, "metrics.db"), RetentionMode: "persistent"}
	ms, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open metric store: %v", err)
	}
	t.Cleanup(func() { _ = ms.Close() })

	sum := SessionSummary{
		SessionID:       "session-123",
		MeetingURL:      "https://meet.example/abc",
		SourceLanguage:  "ja",
		TargetLanguages: "zh-Hant-TW,fr",
		Chunks:          42,
		RecognitionMean: 180,
		RecognitionP50:  160,
		TranslationMean: 95,
		TranslationP50:  90,
		SynthesisMean:   210,
		SynthesisP50:    200,
		TotalMean:       490,
		TotalP50:        470,
	}
	if err := ms.SaveSummary(context.Background(), sum); err != nil {
		t.Fatalf("save summary: %v", err)
	}

	summaries, err := ms.ListSummaries(context.Background(), 10)
	if err != nil {
		t.Fatalf("list summaries: %v", err)
	}
	if len(summaries) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(summaries))
	}
	got := summaries[0]
	if got.SessionID != "session-123" || got.Chunks != 42 || got.TotalP50 != 470 {
		t.Fatalf("unexpected summary: %+v", got)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.MetricStoreConfig{Path: filepath.Join(tmp, "metrics.db"), RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1}
	ms, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open metric store: %v", err)
	}
	t.Cleanup(func() { _ = ms.Close() })

	ms.clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := ms.SaveSummary(context.Background(), SessionSummary{SessionID: "old-session"}); err != nil {
		t.Fatalf("save old summary: %v", err)
	}

	ms.clock = func() time.Time { return time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := ms.SaveSummary(context.Background(), SessionSummary{SessionID: "new-session"}); err != nil {
		t.Fatalf("save new summary: %v", err)
	}
	if err := ms.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	summaries, err := ms.ListSummaries(context.Background(), 10)
	if err != nil {
		t.Fatalf("list summaries: %v", err)
	}
	if len(summaries) != 1 || summaries[0].SessionID != "new-session" {
		t.Fatalf("expected only new-session to survive, got %+v", summaries)
	}
}
