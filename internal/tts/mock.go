package tts

import (
	"context"
	"time"

	"github.com/lingolabs/lingo-core/internal/config"
	"github.com/lingolabs/lingo-core/internal/language"
	"github.com/lingolabs/lingo-core/internal/protocol"
)

// MockSynthesizer emits short silent WAV payloads, one per request.
type MockSynthesizer struct {
	sampleRate int
	channels   int
	voices     *voiceTable

	// Fail, when set, makes calls for the listed languages return an error.
	Fail map[language.Language]error
}

func NewMockSynthesizer(cfg config.TTSConfig) *MockSynthesizer {
	return &MockSynthesizer{
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		voices:     newVoiceTable(cfg.Voices),
	}
}

func (m *MockSynthesizer) Synthesize(_ context.Context, _ string, lang language.Language) (protocol.SynthesisResult, error) {
	if err := m.Fail[lang]; err != nil {
		return protocol.SynthesisResult{}, err
	}
	if _, err := m.voices.profile(lang); err != nil {
		return protocol.SynthesisResult{}, err
	}
	// 50ms of silence.
	sampleCount := m.sampleRate * m.channels / 20
	wavBytes, err := encodePCMToWAV(make([]byte, sampleCount*2), m.sampleRate, m.channels)
	if err != nil {
		return protocol.SynthesisResult{}, err
	}
	res := newResult(wavBytes, lang)
	res.Timestamp = time.Now().UTC()
	return res, nil
}

func (m *MockSynthesizer) SynthesizeAll(ctx context.Context, translations []protocol.TranslationResult) ([]protocol.SynthesisResult, error) {
	return fanOut(ctx, m, translations)
}

func (m *MockSynthesizer) SetVoice(lang language.Language, settings protocol.VoiceSettings) {
	m.voices.set(lang, settings)
}

var _ Synthesizer = (*MockSynthesizer)(nil)
