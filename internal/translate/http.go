package translate

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

// HTTPTranslator calls a JSON translation endpoint. The glossary identifier,
// when configured, rides along in every request; backends without glossary
// support for a pair are free to ignore it.
type HTTPTranslator struct {
	endpoint   string
	apiKey     string
	glossaryID string
	client     *http.Client
}

type translateRequest struct {
	Text       string `json:"text"`
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
	GlossaryID string `json:"glossary_id,omitempty"`
}

type translateResponse struct {
	TranslatedText string  `json:"translated_text"`
	Confidence     float64 `json:"confidence"`
}

func NewHTTPTranslator(cfg config.TranslateConfig) *HTTPTranslator {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPTranslator{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		glossaryID: cfg.GlossaryID,
		client:     &http.Client{Timeout: timeout},
	}
}

// WithGlossary returns a copy scoped to a session-specific glossary.
func (t *HTTPTranslator) WithGlossary(glossaryID string) *HTTPTranslator {
	clone := *t
	if glossaryID != "" {
		clone.glossaryID = glossaryID
	}
	return &clone
}

func (t *HTTPTranslator) Translate(ctx context.Context, text string, source, target language.Language) (protocol.TranslationResult, error) {
	payload, err := json.Marshal(translateRequest{
		Text:       text,
		SourceLang: string(source),
		TargetLang: string(target),
		GlossaryID: t.glossaryID,
	})
	if err != nil {
		return protocol.TranslationResult{}, fmt.Errorf("encode translate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return protocol.TranslationResult{}, fmt.Errorf("build translate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return protocol.TranslationResult{}, fmt.Errorf("translate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return protocol.TranslationResult{}, fmt.Errorf("translate backend returned %d: %s", resp.StatusCode, body)
	}

	var decoded translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return protocol.TranslationResult{}, fmt.Errorf("decode translate response: %w", err)
	}
	return newResult(text, decoded.TranslatedText, source, target, decoded.Confidence), nil
}

func (t *HTTPTranslator) TranslateAll(ctx context.Context, text string, source language.Language, targets []language.Language) ([]protocol.TranslationResult, error) {
	return fanOut(ctx, t, text, source, targets)
}

var _ Translator = (*HTTPTranslator)(nil)
