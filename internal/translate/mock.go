package translate

import (
	"context"
	"fmt"

	"github.com/lingolabs/lingo-core/internal/language"
	"github.com/lingolabs/lingo-core/internal/protocol"
)

// MockTranslator produces deterministic pseudo-translations for development
// and tests.
type MockTranslator struct {
	// Fail, when set, makes calls for the listed targets return an error.
	Fail map[language.Language]error
}

func NewMockTranslator() *MockTranslator {
	return &MockTranslator{}
}

func (m *MockTranslator) Translate(_ context.Context, text string, source, target language.Language) (protocol.TranslationResult, error) {
	if err := m.Fail[target]; err != nil {
		return protocol.TranslationResult{}, err
	}
	return newResult(text, fmt.Sprintf("[%s] %s", target, text), source, target, 1.0), nil
}

func (m *MockTranslator) TranslateAll(ctx context.Context, text string, source language.Language, targets []language.Language) ([]protocol.TranslationResult, error) {
	return fanOut(ctx, m, text, source, targets)
}

var _ Translator = (*MockTranslator)(nil)
