package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.STT.FallbackLanguage != "ja" {
		t.Fatalf("expected fallback ja, got %s", cfg.STT.FallbackLanguage)
	}
	if cfg.STT.ReconnectBaseMS != 1000 || cfg.STT.ReconnectCapMS != 30000 {
		t.Fatalf("unexpected reconnect defaults: %+v", cfg.STT)
	}
	if _, ok := cfg.TTS.Voices["zh-Hant-TW"]; !ok {
		t.Fatalf("expected default voice for zh-Hant-TW, got %v", cfg.TTS.Voices)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LINGO_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LINGO_BUS_EMBEDDED", "false")
	t.Setenv("LINGO_STT_MODE", "exec")
	t.Setenv("LINGO_STT_COMMAND", "recognizer --stream")
	t.Setenv("LINGO_STT_FALLBACK_LANGUAGE", "fr")
	t.Setenv("LINGO_STT_RECONNECT_MAX_ATTEMPTS", "7")
	t.Setenv("LINGO_TRANSLATE_MODE", "http")
	t.Setenv("LINGO_TRANSLATE_ENDPOINT", "http://localhost:9000/translate")
	t.Setenv("LINGO_TRANSLATE_GLOSSARY_ID", "gls-42")
	t.Setenv("LINGO_METRIC_STORE_RETENTION_MODE", "ephemeral")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Embedded {
		t.Fatal("expected embedded override false")
	}
	if cfg.STT.Mode != "exec" || cfg.STT.Command != "recognizer --stream" {
		t.Fatalf("expected stt override, got %+v", cfg.STT)
	}
	if cfg.STT.FallbackLanguage != "fr" {
		t.Fatalf("expected fallback override fr, got %s", cfg.STT.FallbackLanguage)
	}
	if cfg.STT.ReconnectMaxAttempts != 7 {
		t.Fatalf("expected max attempts 7, got %d", cfg.STT.ReconnectMaxAttempts)
	}
	if cfg.Translate.Mode != "http" || cfg.Translate.GlossaryID != "gls-42" {
		t.Fatalf("expected translate override, got %+v", cfg.Translate)
	}
	if cfg.MetricStore.RetentionMode != "ephemeral" {
		t.Fatalf("expected retention override, got %s", cfg.MetricStore.RetentionMode)
	}
}

func TestValidateRejectsExecWithoutCommand(t *testing.T) {
	t.Setenv("LINGO_STT_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for exec mode without command")
	}
}

func TestValidateRejectsUnknownFallback(t *testing.T) {
	t.Setenv("LINGO_STT_FALLBACK_LANGUAGE", "de")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unsupported fallback language")
	}
}
