package tts

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lingolabs/lingo-core/internal/config"
	"github.com/lingolabs/lingo-core/internal/language"
	"github.com/lingolabs/lingo-core/internal/protocol"
)

func testTTSConfig() config.TTSConfig {
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

func TestMockSynthesizeProducesWAV(t *testing.T) {
	m := NewMockSynthesizer(testTTSConfig())
	res, err := m.Synthesize(context.Background(), "bonjour", language.French)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if res.Language != language.French {
		t.Fatalf("expected fr, got %s", res.Language)
	}
	if !bytes.HasPrefix(res.Audio, []byte("RIFF")) {
		t.Fatal("expected WAV container")
	}
}

func TestUnsupportedLanguage(t *testing.T) {
	cfg := testTTSConfig()
	delete(cfg.Voices, "fr")
	m := NewMockSynthesizer(cfg)
	if _, err := m.Synthesize(context.Background(), "bonjour", language.French); !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("expected ErrUnsupportedLanguage, got %v", err)
	}
}

func TestSetVoiceMergesSuppliedFields(t *testing.T) {
	m := NewMockSynthesizer(testTTSConfig())

	stability := 0.9
	m.SetVoice(language.Japanese, protocol.VoiceSettings{Stability: &stability})

	profile, err := m.voices.profile(language.Japanese)
	if err != nil {
		t.Fatalf("profile: %v", err)
	}
	if profile.Stability != 0.9 {
		t.Fatalf("expected stability merged, got %v", profile.Stability)
	}
	if profile.VoiceID != "hikari" {
		t.Fatalf("expected voice id untouched, got %q", profile.VoiceID)
	}
	if profile.Similarity != 0.7 {
		t.Fatalf("expected similarity untouched, got %v", profile.Similarity)
	}

	m.SetVoice(language.Japanese, protocol.VoiceSettings{VoiceID: "sora"})
	profile, _ = m.voices.profile(language.Japanese)
	if profile.VoiceID != "sora" || profile.Stability != 0.9 {
		t.Fatalf("expected only voice id changed, got %+v", profile)
	}
}

func TestFanOutOrderAndFailure(t *testing.T) {
	m := NewMockSynthesizer(testTTSConfig())
	translations := []protocol.TranslationResult{
		{TranslatedText: "你好", TargetLanguage: language.ChineseTraditional},
		{TranslatedText: "bonjour", TargetLanguage: language.French},
	}

	results, err := m.SynthesizeAll(context.Background(), translations)
	if err != nil {
		t.Fatalf("synthesize all: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Language != language.ChineseTraditional || results[1].Language != language.French {
		t.Fatalf("expected input order preserved, got %v then %v", results[0].Language, results[1].Language)
	}

	m.Fail = map[language.Language]error{language.French: errors.New("voice backend down")}
	if _, err := m.SynthesizeAll(context.Background(), translations); err == nil {
		t.Fatal("expected aggregate failure when one language fails")
	}
}

func TestHTTPSynthesizer(t *testing.T) {
	pcm := make([]byte, 2*220) // 10ms at 22050Hz mono
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if !bytes.Contains(body, []byte(`"voice_id":"camille"`)) {
			t.Errorf("expected voice profile in request, got %s", body)
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(pcm)
	}))
	defer server.Close()

	cfg := testTTSConfig()
	cfg.Mode = "http"
	cfg.Endpoint = server.URL
	cfg.TimeoutMS = 2000
	s := NewHTTPSynthesizer(cfg)

	res, err := s.Synthesize(context.Background(), "bonjour", language.French)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if !bytes.HasPrefix(res.Audio, []byte("RIFF")) {
		t.Fatal("expected WAV-wrapped audio")
	}
	if time.Since(res.Timestamp) > time.Minute {
		t.Fatalf("unexpected timestamp: %v", res.Timestamp)
	}
}
