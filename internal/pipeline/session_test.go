package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lingolabs/lingo-core/internal/config"
	"github.com/lingolabs/lingo-core/internal/language"
	"github.com/lingolabs/lingo-core/internal/protocol"
	"github.com/lingolabs/lingo-core/internal/stt"
	"github.com/lingolabs/lingo-core/internal/translate"
	"github.com/lingolabs/lingo-core/internal/tts"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []protocol.Event
}

func (r *eventRecorder) emit(evt protocol.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *eventRecorder) kinds() []protocol.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]protocol.EventKind, len(r.events))
	for i, evt := range r.events {
		kinds[i] = evt.Kind
	}
	return kinds
}

func (r *eventRecorder) byKind(kind protocol.EventKind) []protocol.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.Event
	for _, evt := range r.events {
		if evt.Kind == kind {
			out = append(out, evt)
		}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func ttsTestConfig() config.TTSConfig {
	return config.TTSConfig{
		Mode:       "mock",
		SampleRate: 22050,
		Channels:   1,
		Voices: map[string]config.VoiceConfig{
			"ja":         {Voice: "hikari", Stability: 0.5, Similarity: 0.7},
			"zh-Hant-TW": {Voice: "meilin", Stability: 0.5, Similarity: 0.7},
			"fr":         {Voice: "camille", Stability: 0.5, Similarity: 0.7},
		},
	}
}

func sessionConfig() protocol.SessionConfig {
	return protocol.SessionConfig{
		MeetingURL:       "https://meet.example/abc-defg-hij",
		TargetLanguages:  []language.Language{language.Japanese, language.ChineseTraditional, language.French},
		VoiceEnabled:     true,
		SubtitlesEnabled: true,
	}
}

type fixture struct {
	session     *Session
	recorder    *eventRecorder
	transcriber *stt.MockTranscriber
	translator  *translate.MockTranslator
	synthesizer *tts.MockSynthesizer
}

func newFixture(t *testing.T, cfg protocol.SessionConfig) *fixture {
	t.Helper()
	recorder := &eventRecorder{}
	transcriber := stt.NewMockTranscriber(language.Japanese)
	translator := translate.NewMockTranslator()
	synthesizer := tts.NewMockSynthesizer(ttsTestConfig())

	session, err := New(cfg, Deps{
		Transcriber:   transcriber,
		Translator:    translator,
		Synthesizer:   synthesizer,
		Emit:          recorder.emit,
		Logger:        testLogger(),
		ResultTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := transcriber.Connect(context.Background()); err != nil {
		t.Fatalf("connect transcriber: %v", err)
	}
	return &fixture{
		session:     session,
		recorder:    recorder,
		transcriber: transcriber,
		translator:  translator,
		synthesizer: synthesizer,
	}
}

func finalResult(text string, lang language.Language) protocol.RecognitionResult {
	return protocol.RecognitionResult{
		Text:       text,
		Language:   lang,
		Final:      true,
		Confidence: 0.92,
		Timestamp:  time.Now().UTC(),
	}
}

func TestProcessChunkFullFlow(t *testing.T) {
	f := newFixture(t, sessionConfig())
	f.transcriber.Script = func(protocol.AudioChunk) []protocol.RecognitionResult {
		return []protocol.RecognitionResult{finalResult("こんにちは", language.Japanese)}
	}
	if err := f.session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.session.ProcessChunk(context.Background(), protocol.AudioChunk{PCM: []byte{1, 2, 3, 4}, Timestamp: time.Now()})

	want := []protocol.EventKind{
		protocol.EventFinalRecognition,
		protocol.EventTranslations,
		protocol.EventSynthesizedAudio,
		protocol.EventSubtitles,
	}
	got := f.recorder.kinds()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}
	for _, evt := range f.recorder.byKind(protocol.EventFinalRecognition) {
		if evt.Timestamp.IsZero() {
			t.Fatal("expected emitted event to carry a timestamp")
		}
	}

	// Source language is excluded; order follows configuration.
	translations := f.recorder.byKind(protocol.EventTranslations)[0].Translations
	if len(translations) != 2 {
		t.Fatalf("expected 2 translations, got %d", len(translations))
	}
	if translations[0].TargetLanguage != language.ChineseTraditional || translations[1].TargetLanguage != language.French {
		t.Fatalf("unexpected translation order: %v, %v", translations[0].TargetLanguage, translations[1].TargetLanguage)
	}

	audio := f.recorder.byKind(protocol.EventSynthesizedAudio)[0].Audio
	if len(audio) != 2 {
		t.Fatalf("expected 2 synthesis results, got %d", len(audio))
	}

	subtitles := f.recorder.byKind(protocol.EventSubtitles)[0].Translations
	if len(subtitles) != 2 {
		t.Fatalf("expected subtitles to carry the translation sequence, got %d", len(subtitles))
	}

	state := f.session.State()
	if !state.Active {
		t.Fatal("expected active state")
	}
	if state.Latency.TotalMS < 0 {
		t.Fatalf("expected non-negative total latency, got %d", state.Latency.TotalMS)
	}
	if got := f.session.LastSourceLanguage(); got != language.Japanese {
		t.Fatalf("expected detected source ja, got %q", got)
	}

	summary := f.session.Stop()
	for _, bucket := range []string{"recognition", "translation", "synthesis", "total"} {
		if summary[bucket].Samples != 1 {
			t.Fatalf("expected 1 sample in %s bucket, got %d", bucket, summary[bucket].Samples)
		}
	}
}

func TestLastSourceLanguageEmptyBeforeFirstChunk(t *testing.T) {
	f := newFixture(t, sessionConfig())
	if got := f.session.LastSourceLanguage(); got != "" {
		t.Fatalf("expected no detected source before processing, got %q", got)
	}
}

func TestProcessChunkInactiveNoOp(t *testing.T) {
	f := newFixture(t, sessionConfig())
	invoked := false
	f.transcriber.Script = func(protocol.AudioChunk) []protocol.RecognitionResult {
		invoked = true
		return []protocol.RecognitionResult{finalResult("x", language.Japanese)}
	}

	f.session.ProcessChunk(context.Background(), protocol.AudioChunk{PCM: []byte{1}})

	if invoked {
		t.Fatal("expected no adapter call on inactive session")
	}
	if len(f.recorder.kinds()) != 0 {
		t.Fatalf("expected no events, got %v", f.recorder.kinds())
	}
}

func TestPartialRecognitionShortCircuits(t *testing.T) {
	f := newFixture(t, sessionConfig())
	f.transcriber.Script = func(protocol.AudioChunk) []protocol.RecognitionResult {
		return []protocol.RecognitionResult{{Text: "こん", Language: language.Japanese, Final: false}}
	}
	if err := f.session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.session.ProcessChunk(context.Background(), protocol.AudioChunk{PCM: []byte{1, 2}})

	kinds := f.recorder.kinds()
	if len(kinds) != 1 || kinds[0] != protocol.EventPartialRecognition {
		t.Fatalf("expected only partial-recognition, got %v", kinds)
	}

	// Partial chunks record no latency samples.
	summary := f.session.Stop()
	if len(summary) != 0 {
		t.Fatalf("expected empty summary after partial-only chunk, got %v", summary)
	}
}

func TestVoiceDisabledSubtitlesEnabled(t *testing.T) {
	cfg := sessionConfig()
	cfg.VoiceEnabled = false
	f := newFixture(t, cfg)
	f.transcriber.Script = func(protocol.AudioChunk) []protocol.RecognitionResult {
		return []protocol.RecognitionResult{finalResult("bonjour à tous", language.French)}
	}
	if err := f.session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.session.ProcessChunk(context.Background(), protocol.AudioChunk{PCM: []byte{1, 2}})

	if events := f.recorder.byKind(protocol.EventSynthesizedAudio); len(events) != 0 {
		t.Fatalf("expected no synthesized-audio event, got %d", len(events))
	}
	subtitles := f.recorder.byKind(protocol.EventSubtitles)
	if len(subtitles) != 1 {
		t.Fatalf("expected subtitles event, got %d", len(subtitles))
	}
	if len(subtitles[0].Translations) != 2 {
		t.Fatalf("expected full translation sequence in subtitles, got %d", len(subtitles[0].Translations))
	}
}

func TestTranslationFailureDropsChunk(t *testing.T) {
	f := newFixture(t, sessionConfig())
	f.transcriber.Script = func(protocol.AudioChunk) []protocol.RecognitionResult {
		return []protocol.RecognitionResult{finalResult("こんにちは", language.Japanese)}
	}
	f.translator.Fail = map[language.Language]error{language.French: errors.New("backend rejected fr")}
	if err := f.session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.session.ProcessChunk(context.Background(), protocol.AudioChunk{PCM: []byte{1, 2}})

	if events := f.recorder.byKind(protocol.EventTranslations); len(events) != 0 {
		t.Fatalf("expected no translations event, got %d", len(events))
	}
	errEvents := f.recorder.byKind(protocol.EventError)
	if len(errEvents) != 1 {
		t.Fatalf("expected one error event, got %d", len(errEvents))
	}
	if errEvents[0].Error == "" {
		t.Fatal("expected error message in event")
	}

	// The next chunk processes cleanly.
	f.translator.Fail = nil
	f.session.ProcessChunk(context.Background(), protocol.AudioChunk{PCM: []byte{3, 4}})
	if events := f.recorder.byKind(protocol.EventTranslations); len(events) != 1 {
		t.Fatalf("expected recovery on next chunk, got %d translations events", len(events))
	}
}

func TestStopTwice(t *testing.T) {
	f := newFixture(t, sessionConfig())
	if err := f.session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	f.session.ProcessChunk(context.Background(), protocol.AudioChunk{PCM: []byte{1}})

	first := f.session.Stop()
	if first["total"].Samples != 1 {
		t.Fatalf("expected 1 total sample in first flush, got %d", first["total"].Samples)
	}
	second := f.session.Stop()
	if len(second) != 0 {
		t.Fatalf("expected empty second flush, got %v", second)
	}
}

func TestStartTwiceErrors(t *testing.T) {
	f := newFixture(t, sessionConfig())
	if err := f.session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := f.session.Start(); err == nil {
		t.Fatal("expected error on second start")
	}
}

func TestStateSnapshotIsCopy(t *testing.T) {
	f := newFixture(t, sessionConfig())
	if err := f.session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	state := f.session.State()
	state.Active = false
	state.CurrentSpeaker = "intruder"

	if got := f.session.State(); !got.Active || got.CurrentSpeaker == "intruder" {
		t.Fatalf("snapshot mutation leaked into session: %+v", got)
	}
}

func TestEmptyChunkRejectedBeforeAdapters(t *testing.T) {
	f := newFixture(t, sessionConfig())
	invoked := false
	f.transcriber.Script = func(protocol.AudioChunk) []protocol.RecognitionResult {
		invoked = true
		return nil
	}
	if err := f.session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.session.ProcessChunk(context.Background(), protocol.AudioChunk{})

	if invoked {
		t.Fatal("expected no adapter call for empty chunk")
	}
	if events := f.recorder.byKind(protocol.EventError); len(events) != 1 {
		t.Fatalf("expected one error event, got %v", f.recorder.kinds())
	}
}

func TestRecognitionTimeout(t *testing.T) {
	f := newFixture(t, sessionConfig())
	f.transcriber.Script = func(protocol.AudioChunk) []protocol.RecognitionResult { return nil }
	f.session.timeout = 30 * time.Millisecond
	if err := f.session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.session.ProcessChunk(context.Background(), protocol.AudioChunk{PCM: []byte{1}})

	if events := f.recorder.byKind(protocol.EventError); len(events) != 1 {
		t.Fatalf("expected timeout error event, got %v", f.recorder.kinds())
	}
}

func TestRecognitionErrorChannel(t *testing.T) {
	f := newFixture(t, sessionConfig())
	f.transcriber.Script = func(protocol.AudioChunk) []protocol.RecognitionResult { return nil }
	f.transcriber.EmitError(errors.New("stream reset"))
	if err := f.session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.session.ProcessChunk(context.Background(), protocol.AudioChunk{PCM: []byte{1}})

	events := f.recorder.byKind(protocol.EventError)
	if len(events) != 1 || events[0].Error != "stream reset" {
		t.Fatalf("expected stream reset error event, got %v", events)
	}
}

func TestNoStaleEventsAfterStop(t *testing.T) {
	f := newFixture(t, sessionConfig())
	f.transcriber.Script = func(protocol.AudioChunk) []protocol.RecognitionResult {
		// Simulate a stop racing the in-flight chunk.
		f.session.Stop()
		return []protocol.RecognitionResult{finalResult("late", language.Japanese)}
	}
	if err := f.session.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	f.session.ProcessChunk(context.Background(), protocol.AudioChunk{PCM: []byte{1}})

	if kinds := f.recorder.kinds(); len(kinds) != 0 {
		t.Fatalf("expected no events after stop, got %v", kinds)
	}
}

type voiceRecorder struct {
	tts.Synthesizer
	mu    sync.Mutex
	calls map[language.Language]protocol.VoiceSettings
}

func (v *voiceRecorder) SetVoice(lang language.Language, settings protocol.VoiceSettings) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls[lang] = settings
	v.Synthesizer.SetVoice(lang, settings)
}

func TestSessionVoicesAppliedAtConstruction(t *testing.T) {
	stability := 0.8
	cfg := sessionConfig()
	cfg.Voices = map[language.Language]protocol.VoiceSettings{
		language.French: {VoiceID: "juliette", Stability: &stability},
	}

	recorder := &voiceRecorder{
		Synthesizer: tts.NewMockSynthesizer(ttsTestConfig()),
		calls:       make(map[language.Language]protocol.VoiceSettings),
	}
	_, err := New(cfg, Deps{
		Transcriber: stt.NewMockTranscriber(language.Japanese),
		Translator:  translate.NewMockTranslator(),
		Synthesizer: recorder,
		Emit:        func(protocol.Event) {},
		Logger:      testLogger(),
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	applied, ok := recorder.calls[language.French]
	if !ok {
		t.Fatal("expected voice override applied at construction")
	}
	if applied.VoiceID != "juliette" {
		t.Fatalf("unexpected voice settings: %+v", applied)
	}
}

func TestNewValidation(t *testing.T) {
	deps := Deps{
		Transcriber: stt.NewMockTranscriber(language.Japanese),
		Translator:  translate.NewMockTranslator(),
		Synthesizer: tts.NewMockSynthesizer(ttsTestConfig()),
		Emit:        func(protocol.Event) {},
		Logger:      testLogger(),
	}

	cfg := sessionConfig()
	cfg.MeetingURL = ""
	if _, err := New(cfg, deps); err == nil {
		t.Fatal("expected error for missing meeting url")
	}

	cfg = sessionConfig()
	cfg.TargetLanguages = nil
	if _, err := New(cfg, deps); err == nil {
		t.Fatal("expected error for empty target languages")
	}

	cfg = sessionConfig()
	cfg.TargetLanguages = []language.Language{"de"}
	if _, err := New(cfg, deps); err == nil {
		t.Fatal("expected error for unsupported target language")
	}

	cfg = sessionConfig()
	broken := deps
	broken.Emit = nil
	if _, err := New(cfg, broken); err == nil {
		t.Fatal("expected error for missing emit callback")
	}
}
