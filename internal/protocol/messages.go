package protocol

import (
	"time"

	"github.com/lingolabs/lingo-core/internal/language"
)

// AudioChunk is one unit of captured meeting audio submitted for recognition.
type AudioChunk struct {
	PCM       []byte    `json:"pcm"`
	Timestamp time.Time `json:"timestamp"`
	Speaker   string    `json:"speaker,omitempty"`
}

// RecognitionResult is a recognizer transcript. Partial results are transient
// and superseded; only final results progress downstream.
type RecognitionResult struct {
	Text       string            `json:"text"`
	Language   language.Language `json:"language"`
	Final      bool              `json:"final"`
	Confidence float64           `json:"confidence"`
	Timestamp  time.Time         `json:"timestamp"`
	Speaker    string            `json:"speaker,omitempty"`
}

// TranslationResult is one translated rendering of a final transcript.
type TranslationResult struct {
	SourceText     string            `json:"source_text"`
	TranslatedText string            `json:"translated_text"`
	SourceLanguage language.Language `json:"source_language"`
	TargetLanguage language.Language `json:"target_language"`
	Confidence     float64           `json:"confidence"`
	Timestamp      time.Time         `json:"timestamp"`
	Interim        bool              `json:"interim,omitempty"`
}

// SynthesisResult carries synthesized speech for one target language.
type SynthesisResult struct {
	Audio     []byte            `json:"audio"`
	Language  language.Language `json:"language"`
	Timestamp time.Time         `json:"timestamp"`
}

// VoiceSettings overrides a synthesis voice per language. Nil pointer fields
// mean "keep the current value".
type VoiceSettings struct {
	VoiceID    string   `json:"voice_id,omitempty"`
	Stability  *float64 `json:"stability,omitempty"`
	Similarity *float64 `json:"similarity,omitempty"`
}

// SessionConfig is supplied once at session creation and is immutable for the
// session's lifetime.
type SessionConfig struct {
	MeetingURL       string                              `json:"meeting_url"`
	TargetLanguages  []language.Language                 `json:"target_languages"`
	VoiceEnabled     bool                                `json:"voice_enabled"`
	SubtitlesEnabled bool                                `json:"subtitles_enabled"`
	Voices           map[language.Language]VoiceSettings `json:"voices,omitempty"`
	GlossaryID       string                              `json:"glossary_id,omitempty"`
}

// LatencyMetrics holds stage durations for the most recently completed chunk.
type LatencyMetrics struct {
	RecognitionMS int64 `json:"recognition_ms"`
	TranslationMS int64 `json:"translation_ms"`
	SynthesisMS   int64 `json:"synthesis_ms"`
	TotalMS       int64 `json:"total_ms"`
}

// SessionState is a read-only snapshot of a pipeline's current state.
type SessionState struct {
	Active         bool           `json:"active"`
	Latency        LatencyMetrics `json:"latency"`
	CurrentSpeaker string         `json:"current_speaker,omitempty"`
}

// EventKind names a pipeline stage transition surfaced to the transport.
type EventKind string

const (
	EventPartialRecognition EventKind = "partial-recognition"
	EventFinalRecognition   EventKind = "final-recognition"
	EventTranslations       EventKind = "translations"
	EventSynthesizedAudio   EventKind = "synthesized-audio"
	EventSubtitles          EventKind = "subtitles"
	EventError              EventKind = "error"
)

// Event is the envelope the pipeline emits to the transport layer. Exactly one
// payload field is set, matching Kind.
type Event struct {
	Kind         EventKind           `json:"kind"`
	Timestamp    time.Time           `json:"timestamp"`
	Recognition  *RecognitionResult  `json:"recognition,omitempty"`
	Translations []TranslationResult `json:"translations,omitempty"`
	Audio        []SynthesisResult   `json:"audio,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// NATS subjects for session traffic.
const (
	SubjectSessionCreate = "lingo.session.create"
	subjectSessionPrefix = "lingo.session."
)

func SubjectSessionAudio(sessionID string) string {
	return subjectSessionPrefix + sessionID + ".audio"
}

func SubjectSessionStop(sessionID string) string {
	return subjectSessionPrefix + sessionID + ".stop"
}

func SubjectSessionEvents(sessionID string, kind EventKind) string {
	return subjectSessionPrefix + sessionID + ".events." + string(kind)
}
