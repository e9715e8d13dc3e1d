package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lingolabs/lingo-core/internal/config"
	"github.com/lingolabs/lingo-core/internal/language"
	"github.com/lingolabs/lingo-core/internal/protocol"
)

// HTTPSynthesizer calls a speech-synthesis endpoint that accepts a JSON
// request and answers with raw 16-bit PCM. The adapter wraps the PCM into a
// WAV container before handing it downstream.
type HTTPSynthesizer struct {
	endpoint   string
	apiKey     string
	sampleRate int
	channels   int
	client     *http.Client
	voices     *voiceTable
}

type synthRequest struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	VoiceID    string  `json:"voice_id"`
	Stability  float64 `json:"stability"`
	Similarity float64 `json:"similarity"`
	SampleRate int     `json:"sample_rate"`
}

func NewHTTPSynthesizer(cfg config.TTSConfig) *HTTPSynthesizer {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSynthesizer{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		client:     &http.Client{Timeout: timeout},
		voices:     newVoiceTable(cfg.Voices),
	}
}

func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string, lang language.Language) (protocol.SynthesisResult, error) {
	profile, err := s.voices.profile(lang)
	if err != nil {
		return protocol.SynthesisResult{}, err
	}

	payload, err := json.Marshal(synthRequest{
		Text:       text,
		Language:   string(lang),
		VoiceID:    profile.VoiceID,
		Stability:  profile.Stability,
		Similarity: profile.Similarity,
		SampleRate: s.sampleRate,
	})
	if err != nil {
		return protocol.SynthesisResult{}, fmt.Errorf("encode synth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return protocol.SynthesisResult{}, fmt.Errorf("build synth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return protocol.SynthesisResult{}, fmt.Errorf("synth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return protocol.SynthesisResult{}, fmt.Errorf("synth backend returned %d: %s", resp.StatusCode, body)
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return protocol.SynthesisResult{}, fmt.Errorf("read synth response: %w", err)
	}
	wavBytes, err := encodePCMToWAV(pcm, s.sampleRate, s.channels)
	if err != nil {
		return protocol.SynthesisResult{}, err
	}
	return newResult(wavBytes, lang), nil
}

func (s *HTTPSynthesizer) SynthesizeAll(ctx context.Context, translations []protocol.TranslationResult) ([]protocol.SynthesisResult, error) {
	return fanOut(ctx, s, translations)
}

func (s *HTTPSynthesizer) SetVoice(lang language.Language, settings protocol.VoiceSettings) {
	s.voices.set(lang, settings)
}

var _ Synthesizer = (*HTTPSynthesizer)(nil)
