package translate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lingolabs/lingo-core/internal/language"
	"github.com/lingolabs/lingo-core/internal/protocol"
)

// Translator converts one piece of text for exactly one language pair.
// TranslateAll is the fan-out convenience: it translates to several targets
// concurrently, skipping any target equal to the source.
type Translator interface {
	Translate(ctx context.Context, text string, source, target language.Language) (protocol.TranslationResult, error)
	TranslateAll(ctx context.Context, text string, source language.Language, targets []language.Language) ([]protocol.TranslationResult, error)
}

// fanOut joins one Translate call per non-source target. Results keep the
// configured target order. Any single failure voids the whole batch; the join
// still waits for every call so no goroutine is leaked.
func fanOut(ctx context.Context, tr Translator, text string, source language.Language, targets []language.Language) ([]protocol.TranslationResult, error) {
	filtered := make([]language.Language, 0, len(targets))
	for _, target := range targets {
		if target == source {
			continue
		}
		filtered = append(filtered, target)
	}
	if len(filtered) == 0 {
		return nil, nil
	}

	results := make([]protocol.TranslationResult, len(filtered))
	errs := make([]error, len(filtered))
	var wg sync.WaitGroup
	for i, target := range filtered {
		wg.Add(1)
		go func(i int, target language.Language) {
			defer wg.Done()
			results[i], errs[i] = tr.Translate(ctx, text, source, target)
		}(i, target)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("translate to %s: %w", filtered[i], err)
		}
	}
	return results, nil
}

func newResult(text, translated string, source, target language.Language, confidence float64) protocol.TranslationResult {
	return protocol.TranslationResult{
		SourceText:     text,
		TranslatedText: translated,
		SourceLanguage: source,
		TargetLanguage: target,
		Confidence:     confidence,
		Timestamp:      time.Now().UTC(),
	}
}
