package stt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lingolabs/lingo-core/internal/language"
	"github.com/lingolabs/lingo-core/internal/protocol"
)

// MockTranscriber answers every chunk with a scripted result. The default
// script returns a final transcript in the fallback language, which is enough
// to drive the full pipeline in development mode.
type MockTranscriber struct {
	fallback language.Language
	results  chan protocol.RecognitionResult
	errs     chan error

	mu        sync.Mutex
	connected bool

	// Script, when set, produces the results for one submitted chunk.
	Script func(chunk protocol.AudioChunk) []protocol.RecognitionResult
}

func NewMockTranscriber(fallback language.Language) *MockTranscriber {
	return &MockTranscriber{
		fallback: fallback,
		results:  make(chan protocol.RecognitionResult, 16),
		errs:     make(chan error, 16),
	}
}

func (m *MockTranscriber) Connect(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

func (m *MockTranscriber) SendChunk(chunk protocol.AudioChunk) error {
	m.mu.Lock()
	connected := m.connected
	script := m.Script
	m.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	if script == nil {
		m.results <- protocol.RecognitionResult{
			Text:       fmt.Sprintf("[transcript length=%d]", len(chunk.PCM)),
			Language:   m.fallback,
			Final:      true,
			Confidence: 0.95,
			Timestamp:  time.Now().UTC(),
			Speaker:    chunk.Speaker,
		}
		return nil
	}
	for _, res := range script(chunk) {
		m.results <- res
	}
	return nil
}

func (m *MockTranscriber) Results() <-chan protocol.RecognitionResult { return m.results }

func (m *MockTranscriber) Errors() <-chan error { return m.errs }

// Emit injects a result without a corresponding chunk, for tests.
func (m *MockTranscriber) Emit(res protocol.RecognitionResult) { m.results <- res }

// EmitError injects an error, for tests.
func (m *MockTranscriber) EmitError(err error) { m.errs <- err }

func (m *MockTranscriber) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
}

var _ Transcriber = (*MockTranscriber)(nil)
