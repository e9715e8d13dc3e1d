package stt

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/lingolabs/lingo-core/internal/language"
	"github.com/lingolabs/lingo-core/internal/protocol"
)

var (
	// ErrNotConnected is returned by SendChunk while the streaming session is down.
	ErrNotConnected = errors.New("stt: not connected")
	// ErrReconnectExhausted is surfaced on the error channel once the adapter
	// gives up reconnecting. Callers must treat it as fatal for the session's
	// recognition stage and must not re-drive reconnection themselves.
	ErrReconnectExhausted = errors.New("stt: reconnect attempts exhausted")
)

// Transcriber maintains a streaming session with a recognition backend.
// Results are delivered on a channel rather than per call: every decoded
// backend message becomes either a recognition result or an error.
type Transcriber interface {
	Connect(ctx context.Context) error
	SendChunk(chunk protocol.AudioChunk) error
	Results() <-chan protocol.RecognitionResult
	Errors() <-chan error
	Disconnect()
}

// connState models disconnected -> connecting -> connected -> disconnected.
type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// newReconnectBackoff builds the retry schedule for a dropped connection:
// min(base*2^attempt, cap) with no jitter, so attempt n waits base*2^n.
func newReconnectBackoff(base, cap time.Duration) *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * base
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxInterval = cap
	bo.Reset()
	return bo
}

// DefaultAliases maps recognizer-reported codes into the closed language set.
// Unmapped codes fall back to the configured default language.
func DefaultAliases() map[string]language.Language {
	return map[string]language.Language{
		"ja-JP":       language.Japanese,
		"jpn":         language.Japanese,
		"zh":          language.ChineseTraditional,
		"zh-TW":       language.ChineseTraditional,
		"zh-Hant":     language.ChineseTraditional,
		"cmn-Hant-TW": language.ChineseTraditional,
		"fr-FR":       language.French,
		"fr-CA":       language.French,
		"fra":         language.French,
	}
}
