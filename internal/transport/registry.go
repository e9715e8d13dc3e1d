package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/lingolabs/lingo-core/internal/bus"
	"github.com/lingolabs/lingo-core/internal/config"
	"github.com/lingolabs/lingo-core/internal/language"
	"github.com/lingolabs/lingo-core/internal/metrics"
	"github.com/lingolabs/lingo-core/internal/metricstore"
	"github.com/lingolabs/lingo-core/internal/pipeline"
	"github.com/lingolabs/lingo-core/internal/protocol"
	"github.com/lingolabs/lingo-core/internal/stt"
	"github.com/lingolabs/lingo-core/internal/translate"
	"github.com/lingolabs/lingo-core/internal/tts"
)

// createResponse answers a session-create request.
type createResponse struct {
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// stopResponse answers a session-stop request with the flushed latency
// summary.
type stopResponse struct {
	SessionID string                          `json:"session_id"`
	Summary   map[string]metrics.StageSummary `json:"summary,omitempty"`
	Error     string                          `json:"error,omitempty"`
}

type liveSession struct {
	id          string
	cfg         protocol.SessionConfig
	pipeline    *pipeline.Session
	transcriber stt.Transcriber
	subAudio    *nats.Subscription
	subStop     *nats.Subscription
	created     time.Time
}

// Service owns the session registry. It listens for session lifecycle
// requests on the bus, runs one pipeline per session, and forwards pipeline
// events back out as JSON.
type Service struct {
	cfg        config.Config
	bus        *bus.Client
	store      *metricstore.Store
	collectors *metrics.Collectors
	log        *slog.Logger

	subCreate *nats.Subscription
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*liveSession

	activeGauge otelmetric.Int64ObservableGauge
	gaugeReg    otelmetric.Registration
}

func NewService(parent context.Context, cfg config.Config, busClient *bus.Client, store *metricstore.Store, collectors *metrics.Collectors, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:        cfg,
		bus:        busClient,
		store:      store,
		collectors: collectors,
		log:        logger.With(slog.String("component", "transport")),
		ctx:        ctx,
		cancel:     cancel,
		sessions:   make(map[string]*liveSession),
	}
	if err := s.initMetrics(); err != nil {
		s.log.Warn("failed to initialize metrics", slogError(err))
	}
	return s
}

func (s *Service) initMetrics() error {
	meter := otel.Meter("lingo-core/transport")
	gauge, err := meter.Int64ObservableGauge("lingo.sessions.active",
		otelmetric.WithDescription("Number of live translation sessions"))
	if err != nil {
		return err
	}
	reg, err := meter.RegisterCallback(func(_ context.Context, obs otelmetric.Observer) error {
		s.mu.Lock()
		count := int64(len(s.sessions))
		s.mu.Unlock()
		obs.ObserveInt64(gauge, count)
		return nil
	}, gauge)
	if err != nil {
		return err
	}
	s.activeGauge = gauge
	s.gaugeReg = reg
	return nil
}

func (s *Service) Start() error {
	sub, err := s.bus.Subscribe(protocol.SubjectSessionCreate, s.handleCreate)
	if err != nil {
		return err
	}
	s.subCreate = sub
	s.log.Info("session registry listening", slog.String("subject", protocol.SubjectSessionCreate))
	return nil
}

// Close drains the create subscription, then stops and persists every live
// session.
func (s *Service) Close() {
	s.cancel()
	if s.subCreate != nil {
		_ = s.subCreate.Drain()
	}

	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if _, err := s.stopSession(id); err != nil {
			s.log.Warn("failed to stop session on close", slog.String("session_id", id), slogError(err))
		}
	}
	if s.gaugeReg != nil {
		_ = s.gaugeReg.Unregister()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return s.subCreate != nil && s.subCreate.IsValid()
}

// SessionCount reports the number of live sessions.
func (s *Service) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) handleCreate(msg *nats.Msg) {
	var cfg protocol.SessionConfig
	if err := json.Unmarshal(msg.Data, &cfg); err != nil {
		s.collectors.MalformedMessages.Inc()
		s.log.Warn("rejected malformed session-create payload", slogError(err))
		s.respond(msg, createResponse{Error: "malformed session config"})
		return
	}

	id, err := s.createSession(cfg)
	if err != nil {
		s.log.Warn("session create failed", slogError(err))
		s.respond(msg, createResponse{Error: err.Error()})
		return
	}
	s.respond(msg, createResponse{SessionID: id})
}

func (s *Service) createSession(cfg protocol.SessionConfig) (string, error) {
	id := uuid.NewString()

	transcriber, translator, synthesizer, err := s.newAdapters(cfg)
	if err != nil {
		return "", err
	}
	if err := transcriber.Connect(s.ctx); err != nil {
		return "", fmt.Errorf("connect transcriber: %w", err)
	}

	sess, err := pipeline.New(cfg, pipeline.Deps{
		Transcriber:   transcriber,
		Translator:    translator,
		Synthesizer:   synthesizer,
		Emit:          s.eventPublisher(id),
		Logger:        s.log.With(slog.String("session_id", id)),
		Collectors:    s.collectors,
		ResultTimeout: time.Duration(s.cfg.STT.ResultTimeoutMS) * time.Millisecond,
	})
	if err != nil {
		transcriber.Disconnect()
		return "", err
	}

	live := &liveSession{
		id:          id,
		cfg:         cfg,
		pipeline:    sess,
		transcriber: transcriber,
		created:     time.Now().UTC(),
	}

	// Chunks arrive on a single subscription, so NATS dispatches them to the
	// handler one at a time and the pipeline sees them in publish order.
	subAudio, err := s.bus.Subscribe(protocol.SubjectSessionAudio(id), s.audioHandler(live))
	if err != nil {
		transcriber.Disconnect()
		return "", err
	}
	subStop, err := s.bus.Subscribe(protocol.SubjectSessionStop(id), s.stopHandler(id))
	if err != nil {
		_ = subAudio.Drain()
		transcriber.Disconnect()
		return "", err
	}
	live.subAudio = subAudio
	live.subStop = subStop

	if err := sess.Start(); err != nil {
		_ = subAudio.Drain()
		_ = subStop.Drain()
		transcriber.Disconnect()
		return "", err
	}

	s.mu.Lock()
	s.sessions[id] = live
	s.mu.Unlock()

	s.collectors.SessionsCreated.Inc()
	s.collectors.ActiveSessions.Inc()
	s.log.Info("session created",
		slog.String("session_id", id),
		slog.String("meeting_url", cfg.MeetingURL),
		slog.Int("targets", len(cfg.TargetLanguages)))
	return id, nil
}

func (s *Service) audioHandler(live *liveSession) nats.MsgHandler {
	return func(msg *nats.Msg) {
		var chunk protocol.AudioChunk
		if err := json.Unmarshal(msg.Data, &chunk); err != nil {
			s.collectors.MalformedMessages.Inc()
			s.log.Warn("rejected malformed audio chunk",
				slog.String("session_id", live.id), slogError(err))
			return
		}
		live.pipeline.ProcessChunk(s.ctx, chunk)
	}
}

func (s *Service) stopHandler(id string) nats.MsgHandler {
	return func(msg *nats.Msg) {
		summary, err := s.stopSession(id)
		if err != nil {
			s.respond(msg, stopResponse{SessionID: id, Error: err.Error()})
			return
		}
		s.respond(msg, stopResponse{SessionID: id, Summary: summary})
	}
}

// stopSession flushes the pipeline, persists the latency summary, and tears
// down the session's subscriptions. Stopping an unknown session is an error;
// stopping twice hits that path and stays harmless.
func (s *Service) stopSession(id string) (map[string]metrics.StageSummary, error) {
	s.mu.Lock()
	live, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown session %s", id)
	}

	summary := live.pipeline.Stop()
	live.transcriber.Disconnect()
	if live.subAudio != nil {
		_ = live.subAudio.Drain()
	}
	if live.subStop != nil {
		_ = live.subStop.Drain()
	}

	s.collectors.SessionsStopped.Inc()
	s.collectors.ActiveSessions.Dec()

	if err := s.persistSummary(live, summary); err != nil {
		s.log.Warn("failed to persist session summary",
			slog.String("session_id", id), slogError(err))
	}

	s.log.Info("session stopped", slog.String("session_id", id))
	return summary, nil
}

func (s *Service) persistSummary(live *liveSession, summary map[string]metrics.StageSummary) error {
	if s.store == nil {
		return nil
	}
	targets := make([]string, 0, len(live.cfg.TargetLanguages))
	for _, lang := range live.cfg.TargetLanguages {
		targets = append(targets, string(lang))
	}
	record := metricstore.SessionSummary{
		SessionID:       live.id,
		MeetingURL:      live.cfg.MeetingURL,
		SourceLanguage:  string(live.pipeline.LastSourceLanguage()),
		TargetLanguages: strings.Join(targets, ","),
		Chunks:          summary[metrics.BucketTotal].Samples,
		RecognitionMean: summary[metrics.BucketRecognition].Mean.Milliseconds(),
		RecognitionP50:  summary[metrics.BucketRecognition].Median.Milliseconds(),
		TranslationMean: summary[metrics.BucketTranslation].Mean.Milliseconds(),
		TranslationP50:  summary[metrics.BucketTranslation].Median.Milliseconds(),
		SynthesisMean:   summary[metrics.BucketSynthesis].Mean.Milliseconds(),
		SynthesisP50:    summary[metrics.BucketSynthesis].Median.Milliseconds(),
		TotalMean:       summary[metrics.BucketTotal].Mean.Milliseconds(),
		TotalP50:        summary[metrics.BucketTotal].Median.Milliseconds(),
		CreatedAt:       live.created,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.store.SaveSummary(ctx, record)
}

// eventPublisher forwards one session's pipeline events to its event subject
// tree, fanned out by kind so subscribers can pick the streams they want.
func (s *Service) eventPublisher(id string) pipeline.EmitFunc {
	return func(evt protocol.Event) {
		subject := protocol.SubjectSessionEvents(id, evt.Kind)
		if err := s.bus.PublishJSON(subject, evt); err != nil {
			s.log.Warn("failed to publish session event",
				slog.String("session_id", id),
				slog.String("kind", string(evt.Kind)),
				slogError(err))
		}
	}
}

// newAdapters builds the stage adapters for one session from the runtime
// config mode switches.
func (s *Service) newAdapters(sessionCfg protocol.SessionConfig) (stt.Transcriber, translate.Translator, tts.Synthesizer, error) {
	var transcriber stt.Transcriber
	switch s.cfg.STT.Mode {
	case "exec":
		t, err := stt.NewExecTranscriber(s.cfg.STT, s.log)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("build exec transcriber: %w", err)
		}
		transcriber = t
	case "mock", "":
		transcriber = stt.NewMockTranscriber(language.Language(s.cfg.STT.FallbackLanguage))
	default:
		return nil, nil, nil, fmt.Errorf("unknown stt mode %q", s.cfg.STT.Mode)
	}

	var translator translate.Translator
	switch s.cfg.Translate.Mode {
	case "http":
		t := translate.NewHTTPTranslator(s.cfg.Translate)
		if sessionCfg.GlossaryID != "" {
			t = t.WithGlossary(sessionCfg.GlossaryID)
		}
		translator = t
	case "mock", "":
		translator = translate.NewMockTranslator()
	default:
		return nil, nil, nil, fmt.Errorf("unknown translate mode %q", s.cfg.Translate.Mode)
	}

	var synthesizer tts.Synthesizer
	switch s.cfg.TTS.Mode {
	case "http":
		synthesizer = tts.NewHTTPSynthesizer(s.cfg.TTS)
	case "mock", "":
		synthesizer = tts.NewMockSynthesizer(s.cfg.TTS)
	default:
		return nil, nil, nil, fmt.Errorf("unknown tts mode %q", s.cfg.TTS.Mode)
	}

	return transcriber, translator, synthesizer, nil
}

func (s *Service) respond(msg *nats.Msg, v any) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		s.log.Warn("failed to marshal response", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.log.Warn("failed to respond", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
