package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/lingolabs/lingo-core/internal/language"
	"github.com/lingolabs/lingo-core/internal/latency"
	"github.com/lingolabs/lingo-core/internal/metrics"
	"github.com/lingolabs/lingo-core/internal/protocol"
	"github.com/lingolabs/lingo-core/internal/stt"
	"github.com/lingolabs/lingo-core/internal/translate"
	"github.com/lingolabs/lingo-core/internal/tts"
)

// Checkpoint names within one chunk's processing.
const (
	markRecognitionStart = "recognition_start"
	markRecognitionEnd   = "recognition_end"
	markTranslationStart = "translation_start"
	markTranslationEnd   = "translation_end"
	markSynthesisStart   = "synthesis_start"
	markSynthesisEnd     = "synthesis_end"
)

// EmitFunc receives every event the pipeline produces, in emission order.
type EmitFunc func(protocol.Event)

// Deps are the collaborators injected at construction. Production and test
// doubles are supplied the same way; there is no runtime toggling.
type Deps struct {
	Transcriber stt.Transcriber
	Translator  translate.Translator
	Synthesizer tts.Synthesizer
	Emit        EmitFunc
	Logger      *slog.Logger
	Collectors  *metrics.Collectors // optional
	// ResultTimeout bounds the wait for a recognition result per chunk.
	ResultTimeout time.Duration
}

// Session owns one meeting engagement's end-to-end processing: chunks in,
// ordered multi-language events out.
//
// Chunks for one session must be submitted sequentially; ProcessChunk does not
// return until the chunk has settled (success, partial short-circuit, or a
// caught error), so a caller that delivers chunks on a single goroutine
// preserves ordering for free.
type Session struct {
	cfg         protocol.SessionConfig
	targets     []language.Language
	transcriber stt.Transcriber
	translator  translate.Translator
	synthesizer tts.Synthesizer
	emit        EmitFunc
	log         *slog.Logger
	agg         *metrics.Aggregator
	collectors  *metrics.Collectors
	stageHist   otelmetric.Float64Histogram
	timeout     time.Duration

	mu      sync.Mutex
	active  bool
	latency protocol.LatencyMetrics
	speaker string
	source  language.Language
}

// New validates the session config, applies per-session voice overrides, and
// returns an inactive pipeline.
func New(cfg protocol.SessionConfig, deps Deps) (*Session, error) {
	if cfg.MeetingURL == "" {
		return nil, errors.New("pipeline: meeting url must not be empty")
	}
	if len(cfg.TargetLanguages) == 0 {
		return nil, errors.New("pipeline: at least one target language is required")
	}
	for _, lang := range cfg.TargetLanguages {
		if !language.IsSupported(lang) {
			return nil, fmt.Errorf("pipeline: unsupported target language %q", lang)
		}
	}
	if deps.Transcriber == nil || deps.Translator == nil || deps.Synthesizer == nil {
		return nil, errors.New("pipeline: all adapters must be supplied")
	}
	if deps.Emit == nil {
		return nil, errors.New("pipeline: emit callback must be supplied")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := deps.ResultTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	for lang, settings := range cfg.Voices {
		deps.Synthesizer.SetVoice(lang, settings)
	}

	hist, err := otel.Meter("lingo-core/pipeline").Float64Histogram(
		"lingo.pipeline.stage.duration",
		otelmetric.WithUnit("ms"),
		otelmetric.WithDescription("Per-chunk pipeline stage durations"),
	)
	if err != nil {
		return nil, fmt.Errorf("pipeline: create stage histogram: %w", err)
	}

	return &Session{
		cfg:         cfg,
		targets:     language.Dedup(cfg.TargetLanguages),
		transcriber: deps.Transcriber,
		translator:  deps.Translator,
		synthesizer: deps.Synthesizer,
		emit:        deps.Emit,
		log:         logger.With(slog.String("component", "pipeline")),
		agg:         metrics.NewAggregator(),
		collectors:  deps.Collectors,
		stageHist:   hist,
		timeout:     timeout,
	}, nil
}

// Start transitions the session to active. Starting an already-active session
// is an error; callers must not start twice.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return errors.New("pipeline: session already active")
	}
	s.active = true
	s.log.Info("session started",
		slog.String("meeting_url", s.cfg.MeetingURL),
		slog.Int("targets", len(s.targets)),
		slog.Bool("voice", s.cfg.VoiceEnabled),
		slog.Bool("subtitles", s.cfg.SubtitlesEnabled))
	return nil
}

// Stop transitions to inactive and flushes the aggregated metrics to a
// summary. It is idempotent: stopping again flushes an already-empty
// aggregator and returns an empty summary.
func (s *Session) Stop() map[string]metrics.StageSummary {
	s.mu.Lock()
	wasActive := s.active
	s.active = false
	s.mu.Unlock()

	summary := s.agg.Summary()
	s.agg.Reset()
	if wasActive {
		s.log.Info("session stopped", slog.Int("stages", len(summary)))
	}
	return summary
}

// State returns a read-only snapshot; the live state is never exposed.
func (s *Session) State() protocol.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return protocol.SessionState{
		Active:         s.active,
		Latency:        s.latency,
		CurrentSpeaker: s.speaker,
	}
}

// ProcessChunk drives one chunk through recognition, translation fan-out, and
// synthesis fan-out. Failures in any stage are contained here: the chunk is
// dropped, an error event is emitted, and the next chunk starts clean.
func (s *Session) ProcessChunk(ctx context.Context, chunk protocol.AudioChunk) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if !active {
		return
	}

	if len(chunk.PCM) == 0 {
		s.emitError(errors.New("audio chunk has no payload"))
		return
	}

	tracker := latency.NewTracker()
	if err := s.process(ctx, tracker, chunk); err != nil {
		s.log.Warn("chunk dropped", slog.String("error", err.Error()))
		if s.collectors != nil {
			s.collectors.ChunksDropped.Inc()
		}
		s.emitError(err)
	}
}

func (s *Session) process(ctx context.Context, tracker *latency.Tracker, chunk protocol.AudioChunk) error {
	tracker.Checkpoint(markRecognitionStart)
	recognition, err := s.recognize(ctx, chunk)
	if err != nil {
		return err
	}
	if !recognition.Final {
		s.emitEvent(protocol.Event{
			Kind:        protocol.EventPartialRecognition,
			Recognition: &recognition,
		})
		return nil
	}
	tracker.Checkpoint(markRecognitionEnd)

	s.emitEvent(protocol.Event{
		Kind:        protocol.EventFinalRecognition,
		Recognition: &recognition,
	})

	tracker.Checkpoint(markTranslationStart)
	translations, err := s.translator.TranslateAll(ctx, recognition.Text, recognition.Language, s.targets)
	if err != nil {
		return err
	}
	tracker.Checkpoint(markTranslationEnd)
	s.emitEvent(protocol.Event{
		Kind:         protocol.EventTranslations,
		Translations: translations,
	})

	if s.cfg.VoiceEnabled {
		tracker.Checkpoint(markSynthesisStart)
		audio, err := s.synthesizer.SynthesizeAll(ctx, translations)
		if err != nil {
			return err
		}
		tracker.Checkpoint(markSynthesisEnd)
		s.emitEvent(protocol.Event{
			Kind:  protocol.EventSynthesizedAudio,
			Audio: audio,
		})
	}

	if s.cfg.SubtitlesEnabled {
		s.emitEvent(protocol.Event{
			Kind:         protocol.EventSubtitles,
			Translations: translations,
		})
	}

	s.finishChunk(ctx, tracker, recognition)
	return nil
}

// recognize submits the chunk and waits for the adapter's next recognition
// event, bounded by the configured timeout.
func (s *Session) recognize(ctx context.Context, chunk protocol.AudioChunk) (protocol.RecognitionResult, error) {
	if err := s.transcriber.SendChunk(chunk); err != nil {
		return protocol.RecognitionResult{}, err
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()
	select {
	case res, ok := <-s.transcriber.Results():
		if !ok {
			return protocol.RecognitionResult{}, errors.New("recognition stream closed")
		}
		return res, nil
	case err, ok := <-s.transcriber.Errors():
		if !ok {
			return protocol.RecognitionResult{}, errors.New("recognition stream closed")
		}
		return protocol.RecognitionResult{}, err
	case <-timer.C:
		return protocol.RecognitionResult{}, fmt.Errorf("recognition timed out after %s", s.timeout)
	case <-ctx.Done():
		return protocol.RecognitionResult{}, ctx.Err()
	}
}

func (s *Session) finishChunk(ctx context.Context, tracker *latency.Tracker, recognition protocol.RecognitionResult) {
	recognitionDur := tracker.Duration(markRecognitionStart, markRecognitionEnd)
	translation := tracker.Duration(markTranslationStart, markTranslationEnd)
	synthesis := tracker.Duration(markSynthesisStart, markSynthesisEnd)
	total := tracker.Total()

	s.agg.Add(metrics.BucketRecognition, recognitionDur)
	s.agg.Add(metrics.BucketTranslation, translation)
	if s.cfg.VoiceEnabled {
		s.agg.Add(metrics.BucketSynthesis, synthesis)
	}
	s.agg.Add(metrics.BucketTotal, total)

	s.observeStage(ctx, metrics.BucketRecognition, recognitionDur)
	s.observeStage(ctx, metrics.BucketTranslation, translation)
	if s.cfg.VoiceEnabled {
		s.observeStage(ctx, metrics.BucketSynthesis, synthesis)
	}
	s.observeStage(ctx, metrics.BucketTotal, total)
	if s.collectors != nil {
		s.collectors.ChunksProcessed.Inc()
	}

	s.mu.Lock()
	s.latency = protocol.LatencyMetrics{
		RecognitionMS: recognitionDur.Milliseconds(),
		TranslationMS: translation.Milliseconds(),
		SynthesisMS:   synthesis.Milliseconds(),
		TotalMS:       total.Milliseconds(),
	}
	if recognition.Speaker != "" {
		s.speaker = recognition.Speaker
	}
	s.source = recognition.Language
	s.mu.Unlock()
}

// LastSourceLanguage returns the detected source language of the most recent
// completed chunk, or empty before any final recognition.
func (s *Session) LastSourceLanguage() language.Language {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

func (s *Session) observeStage(ctx context.Context, stage string, d time.Duration) {
	s.stageHist.Record(ctx, float64(d.Milliseconds()),
		otelmetric.WithAttributes(attribute.String("stage", stage)))
	if s.collectors != nil {
		s.collectors.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// emitEvent stamps and forwards an event, re-checking the active flag so a
// stop racing an in-flight chunk cannot post stale events.
func (s *Session) emitEvent(evt protocol.Event) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if !active {
		return
	}
	evt.Timestamp = time.Now().UTC()
	s.emit(evt)
}

func (s *Session) emitError(err error) {
	s.emitEvent(protocol.Event{
		Kind:  protocol.EventError,
		Error: err.Error(),
	})
}
