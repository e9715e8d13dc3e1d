package tts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lingolabs/lingo-core/internal/config"
	"github.com/lingolabs/lingo-core/internal/language"
	"github.com/lingolabs/lingo-core/internal/protocol"
)

// ErrUnsupportedLanguage is returned when synthesis is requested for a
// language with no configured voice profile.
var ErrUnsupportedLanguage = errors.New("tts: unsupported language")

// VoiceProfile selects a voice identity and its synthesis parameters.
type VoiceProfile struct {
	VoiceID    string
	Stability  float64
	Similarity float64
}

// Synthesizer converts translated text into speech audio per target language.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, lang language.Language) (protocol.SynthesisResult, error)
	SynthesizeAll(ctx context.Context, translations []protocol.TranslationResult) ([]protocol.SynthesisResult, error)
	SetVoice(lang language.Language, settings protocol.VoiceSettings)
}

// voiceTable holds per-language voice profiles, mutable at runtime.
type voiceTable struct {
	mu     sync.RWMutex
	voices map[language.Language]VoiceProfile
}

func newVoiceTable(cfg map[string]config.VoiceConfig) *voiceTable {
	voices := make(map[language.Language]VoiceProfile, len(cfg))
	for lang, vc := range cfg {
		voices[language.Language(lang)] = VoiceProfile{
			VoiceID:    vc.Voice,
			Stability:  vc.Stability,
			Similarity: vc.Similarity,
		}
	}
	return &voiceTable{voices: voices}
}

func (t *voiceTable) profile(lang language.Language) (VoiceProfile, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	profile, ok := t.voices[lang]
	if !ok {
		return VoiceProfile{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, lang)
	}
	return profile, nil
}

// set merges only the supplied fields over the current profile for lang.
func (t *voiceTable) set(lang language.Language, settings protocol.VoiceSettings) {
	t.mu.Lock()
	defer t.mu.Unlock()
	profile := t.voices[lang]
	if settings.VoiceID != "" {
		profile.VoiceID = settings.VoiceID
	}
	if settings.Stability != nil {
		profile.Stability = *settings.Stability
	}
	if settings.Similarity != nil {
		profile.Similarity = *settings.Similarity
	}
	t.voices[lang] = profile
}

// fanOut joins one Synthesize call per translation, preserving input order.
// One failing language voids the batch, matching the pipeline's aggregate
// semantics.
func fanOut(ctx context.Context, s Synthesizer, translations []protocol.TranslationResult) ([]protocol.SynthesisResult, error) {
	if len(translations) == 0 {
		return nil, nil
	}
	results := make([]protocol.SynthesisResult, len(translations))
	errs := make([]error, len(translations))
	var wg sync.WaitGroup
	for i, tr := range translations {
		wg.Add(1)
		go func(i int, tr protocol.TranslationResult) {
			defer wg.Done()
			results[i], errs[i] = s.Synthesize(ctx, tr.TranslatedText, tr.TargetLanguage)
		}(i, tr)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("synthesize %s: %w", translations[i].TargetLanguage, err)
		}
	}
	return results, nil
}

func newResult(audio []byte, lang language.Language) protocol.SynthesisResult {
	return protocol.SynthesisResult{
		Audio:     audio,
		Language:  lang,
		Timestamp: time.Now().UTC(),
	}
}
