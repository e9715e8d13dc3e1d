package stt

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/mattn/go-shellwords"

	"github.com/lingolabs/lingo-core/internal/config"
	"github.com/lingolabs/lingo-core/internal/language"
	"github.com/lingolabs/lingo-core/internal/protocol"
)

// ExecTranscriber keeps a persistent recognizer subprocess alive and speaks
// newline-delimited JSON over its stdin/stdout. When the process exits without
// an explicit Disconnect, the adapter reconnects with exponential backoff up to
// a bounded attempt count.
type ExecTranscriber struct {
	cmdArgs  []string
	cfg      config.STTConfig
	log      *slog.Logger
	aliases  map[string]language.Language
	fallback language.Language

	results chan protocol.RecognitionResult
	errs    chan error
	quit    chan struct{}

	mu       sync.Mutex
	state    connState
	epoch    int
	attempts int
	bo       *backoff.ExponentialBackOff
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	closed   bool
	wg       sync.WaitGroup
}

type execFrame struct {
	PCMBase64  string `json:"pcm_base64"`
	Timestamp  string `json:"timestamp"`
	Speaker    string `json:"speaker,omitempty"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type execResult struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Final      bool    `json:"final"`
	Confidence float64 `json:"confidence"`
	Speaker    string  `json:"speaker,omitempty"`
}

func NewExecTranscriber(cfg config.STTConfig, log *slog.Logger) (*ExecTranscriber, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	return &ExecTranscriber{
		cmdArgs:  args,
		cfg:      cfg,
		log:      log.With(slog.String("component", "stt-exec")),
		aliases:  DefaultAliases(),
		fallback: language.Language(cfg.FallbackLanguage),
		results:  make(chan protocol.RecognitionResult, 16),
		errs:     make(chan error, 16),
		quit:     make(chan struct{}),
		bo:       newReconnectBackoff(time.Duration(cfg.ReconnectBaseMS)*time.Millisecond, time.Duration(cfg.ReconnectCapMS)*time.Millisecond),
		state:    stateDisconnected,
	}, nil
}

// Connect starts the recognizer process. A failure here is returned directly
// and is not retried: automatic reconnection only applies after a previously
// successful connection drops.
func (t *ExecTranscriber) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("stt: transcriber closed")
	}
	if t.state != stateDisconnected {
		return fmt.Errorf("stt: connect while %s", t.state)
	}
	t.epoch++
	t.state = stateConnecting
	if err := t.startProcessLocked(t.epoch); err != nil {
		t.state = stateDisconnected
		return err
	}
	t.state = stateConnected
	t.attempts = 0
	t.bo.Reset()
	return nil
}

// startProcessLocked spawns the subprocess and its stdout reader. Caller holds mu.
func (t *ExecTranscriber) startProcessLocked(epoch int) error {
	cmd := exec.Command(t.cmdArgs[0], t.cmdArgs[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stt stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stt stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start stt command: %w", err)
	}
	t.cmd = cmd
	t.stdin = stdin

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.readLoop(stdout, cmd, epoch)
	}()
	return nil
}

func (t *ExecTranscriber) readLoop(stdout io.Reader, cmd *exec.Cmd, epoch int) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var raw execResult
		if err := json.Unmarshal(line, &raw); err != nil {
			t.emitError(fmt.Errorf("decode stt message: %w", err))
			continue
		}
		t.emitResult(protocol.RecognitionResult{
			Text:       raw.Text,
			Language:   language.Normalize(raw.Language, t.aliases, t.fallback),
			Final:      raw.Final,
			Confidence: raw.Confidence,
			Timestamp:  time.Now().UTC(),
			Speaker:    raw.Speaker,
		})
	}
	err := cmd.Wait()
	t.handleDrop(epoch, err)
}

// handleDrop runs when the subprocess exits. An explicit Connect or Disconnect
// bumps the epoch, which supersedes any pending drop or scheduled reconnect.
func (t *ExecTranscriber) handleDrop(epoch int, cause error) {
	t.mu.Lock()
	if t.closed || epoch != t.epoch {
		t.mu.Unlock()
		return
	}
	t.state = stateDisconnected
	t.cmd = nil
	t.stdin = nil
	t.mu.Unlock()

	if cause != nil {
		t.log.Warn("stt stream dropped", slog.String("error", cause.Error()))
	} else {
		t.log.Warn("stt stream closed by backend")
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.reconnectLoop(epoch)
	}()
}

func (t *ExecTranscriber) reconnectLoop(epoch int) {
	for {
		t.mu.Lock()
		if t.closed || epoch != t.epoch || t.state != stateDisconnected {
			t.mu.Unlock()
			return
		}
		if t.attempts >= t.cfg.ReconnectMaxAttempts {
			t.mu.Unlock()
			t.log.Error("stt reconnect attempts exhausted", slog.Int("attempts", t.cfg.ReconnectMaxAttempts))
			t.emitError(ErrReconnectExhausted)
			return
		}
		delay := t.bo.NextBackOff()
		t.attempts++
		attempt := t.attempts
		t.mu.Unlock()

		t.log.Info("stt reconnect scheduled",
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay))
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-t.quit:
			// Explicit disconnect; do not wait out the backoff delay.
			timer.Stop()
			return
		}

		t.mu.Lock()
		if t.closed || epoch != t.epoch || t.state != stateDisconnected {
			t.mu.Unlock()
			return
		}
		t.state = stateConnecting
		err := t.startProcessLocked(epoch)
		if err != nil {
			t.state = stateDisconnected
			t.mu.Unlock()
			t.log.Warn("stt reconnect failed", slog.Int("attempt", attempt), slog.String("error", err.Error()))
			continue
		}
		t.state = stateConnected
		t.attempts = 0
		t.bo.Reset()
		t.mu.Unlock()
		t.log.Info("stt reconnected", slog.Int("attempt", attempt))
		return
	}
}

// SendChunk forwards chunk bytes over the live stream. The caller is
// responsible for checking readiness; a disconnected adapter fails fast.
func (t *ExecTranscriber) SendChunk(chunk protocol.AudioChunk) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != stateConnected || t.stdin == nil {
		return ErrNotConnected
	}
	frame := execFrame{
		PCMBase64:  base64.StdEncoding.EncodeToString(chunk.PCM),
		Timestamp:  chunk.Timestamp.UTC().Format(time.RFC3339Nano),
		Speaker:    chunk.Speaker,
		SampleRate: t.cfg.SampleRate,
		Channels:   t.cfg.Channels,
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode stt frame: %w", err)
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write stt frame: %w", err)
	}
	return nil
}

func (t *ExecTranscriber) Results() <-chan protocol.RecognitionResult { return t.results }

func (t *ExecTranscriber) Errors() <-chan error { return t.errs }

// Disconnect closes the stream and suppresses any automatic reconnect.
func (t *ExecTranscriber) Disconnect() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.epoch++
	t.state = stateDisconnected
	close(t.quit)
	stdin := t.stdin
	cmd := t.cmd
	t.stdin = nil
	t.cmd = nil
	t.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	t.wg.Wait()
}

func (t *ExecTranscriber) emitResult(res protocol.RecognitionResult) {
	select {
	case t.results <- res:
	default:
		t.log.Warn("stt result dropped, consumer too slow")
	}
}

func (t *ExecTranscriber) emitError(err error) {
	select {
	case t.errs <- err:
	default:
		t.log.Warn("stt error dropped, consumer too slow", slog.String("error", err.Error()))
	}
}

var _ Transcriber = (*ExecTranscriber)(nil)
