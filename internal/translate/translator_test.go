package translate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/lingolabs/lingo-core/internal/config"
	"github.com/lingolabs/lingo-core/internal/language"
)

func TestFanOutSkipsSourceKeepsOrder(t *testing.T) {
	m := NewMockTranslator()
	targets := []language.Language{language.Japanese, language.ChineseTraditional, language.French}

	results, err := m.TranslateAll(context.Background(), "こんにちは", language.Japanese, targets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].TargetLanguage != language.ChineseTraditional {
		t.Fatalf("expected first target zh-Hant-TW, got %s", results[0].TargetLanguage)
	}
	if results[1].TargetLanguage != language.French {
		t.Fatalf("expected second target fr, got %s", results[1].TargetLanguage)
	}
	for _, r := range results {
		if r.SourceText != "こんにちは" || r.SourceLanguage != language.Japanese {
			t.Fatalf("unexpected result: %+v", r)
		}
	}
}

func TestFanOutAllOrNothing(t *testing.T) {
	m := NewMockTranslator()
	m.Fail = map[language.Language]error{language.French: errors.New("quota exceeded")}

	results, err := m.TranslateAll(context.Background(), "hello",
		language.Japanese, []language.Language{language.ChineseTraditional, language.French})
	if err == nil {
		t.Fatal("expected error when one target fails")
	}
	if results != nil {
		t.Fatalf("expected nil results on failure, got %v", results)
	}
}

func TestFanOutNoTargets(t *testing.T) {
	m := NewMockTranslator()
	results, err := m.TranslateAll(context.Background(), "hello",
		language.French, []language.Language{language.French})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results when only target equals source, got %v", results)
	}
}

func TestHTTPTranslatorRequestShape(t *testing.T) {
	var mu sync.Mutex
	var seen []translateRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header")
		}
		var req translateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(translateResponse{
			TranslatedText: "bonjour",
			Confidence:     0.87,
		})
	}))
	defer server.Close()

	tr := NewHTTPTranslator(config.TranslateConfig{
		Mode:       "http",
		Endpoint:   server.URL,
		APIKey:     "test-key",
		GlossaryID: "gls-7",
		TimeoutMS:  2000,
	})

	res, err := tr.Translate(context.Background(), "こんにちは", language.Japanese, language.French)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if res.TranslatedText != "bonjour" || res.Confidence != 0.87 {
		t.Fatalf("unexpected result: %+v", res)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Fatalf("expected 1 request, got %d", len(seen))
	}
	if seen[0].GlossaryID != "gls-7" {
		t.Fatalf("expected glossary forwarded, got %q", seen[0].GlossaryID)
	}
	if seen[0].SourceLang != "ja" || seen[0].TargetLang != "fr" {
		t.Fatalf("unexpected language pair: %+v", seen[0])
	}
}

func TestHTTPTranslatorBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unsupported pair", http.StatusBadRequest)
	}))
	defer server.Close()

	tr := NewHTTPTranslator(config.TranslateConfig{Mode: "http", Endpoint: server.URL, TimeoutMS: 2000})
	if _, err := tr.Translate(context.Background(), "hi", language.Japanese, language.French); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestWithGlossary(t *testing.T) {
	tr := NewHTTPTranslator(config.TranslateConfig{Mode: "http", Endpoint: "http://x", GlossaryID: "default"})
	scoped := tr.WithGlossary("session-glossary")
	if scoped.glossaryID != "session-glossary" {
		t.Fatalf("expected scoped glossary, got %q", scoped.glossaryID)
	}
	if tr.glossaryID != "default" {
		t.Fatalf("expected original untouched, got %q", tr.glossaryID)
	}
	if unchanged := tr.WithGlossary(""); unchanged.glossaryID != "default" {
		t.Fatalf("expected empty override ignored, got %q", unchanged.glossaryID)
	}
}
