package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/lingolabs/lingo-core/internal/language"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type STTConfig struct {
	Mode                 string `yaml:"mode"` // mock, exec
	Command              string `yaml:"command"`
	SampleRate           int    `yaml:"sample_rate"`
	Channels             int    `yaml:"channels"`
	FallbackLanguage     string `yaml:"fallback_language"`
	ResultTimeoutMS      int    `yaml:"result_timeout_ms"`
	ReconnectBaseMS      int    `yaml:"reconnect_base_ms"`
	ReconnectCapMS       int    `yaml:"reconnect_cap_ms"`
	ReconnectMaxAttempts int    `yaml:"reconnect_max_attempts"`
}

type TranslateConfig struct {
	Mode       string `yaml:"mode"` // mock, http
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	GlossaryID string `yaml:"glossary_id"`
	TimeoutMS  int    `yaml:"timeout_ms"`
}

type VoiceConfig struct {
	Voice      string  `yaml:"voice"`
	Stability  float64 `yaml:"stability"`
	Similarity float64 `yaml:"similarity"`
}

type TTSConfig struct {
	Mode       string                 `yaml:"mode"` // mock, http
	Endpoint   string                 `yaml:"endpoint"`
	APIKey     string                 `yaml:"api_key"`
	SampleRate int                    `yaml:"sample_rate"`
	Channels   int                    `yaml:"channels"`
	TimeoutMS  int                    `yaml:"timeout_ms"`
	Voices     map[string]VoiceConfig `yaml:"voices"`
}

type MetricStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"` // ephemeral, persistent
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
}

type Config struct {
	RuntimeName string            `yaml:"runtime_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	STT         STTConfig         `yaml:"stt"`
	Translate   TranslateConfig   `yaml:"translate"`
	TTS         TTSConfig         `yaml:"tts"`
	MetricStore MetricStoreConfig `yaml:"metric_store"`
}

func Default() Config {
	return Config{
		RuntimeName: "lingo-relay",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		STT: STTConfig{
			Mode:                 "mock",
			SampleRate:           16000,
			Channels:             1,
			FallbackLanguage:     string(language.Japanese),
			ResultTimeoutMS:      10000,
			ReconnectBaseMS:      1000,
			ReconnectCapMS:       30000,
			ReconnectMaxAttempts: 5,
		},
		Translate: TranslateConfig{
			Mode:      "mock",
			TimeoutMS: 10000,
		},
		TTS: TTSConfig{
			Mode:       "mock",
			SampleRate: 22050,
			Channels:   1,
			TimeoutMS:  15000,
			Voices: map[string]VoiceConfig{
				string(language.Japanese):           {Voice: "hikari", Stability: 0.55, Similarity: 0.75},
				string(language.ChineseTraditional): {Voice: "meilin", Stability: 0.55, Similarity: 0.75},
				string(language.French):             {Voice: "camille", Stability: 0.55, Similarity: 0.75},
			},
		},
		MetricStore: MetricStoreConfig{
			Path:          "./data/lingo-metrics.db",
			RetentionMode: "persistent",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LINGO_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LINGO_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LINGO_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LINGO_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LINGO_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LINGO_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LINGO_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "LINGO_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LINGO_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LINGO_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "LINGO_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LINGO_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LINGO_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LINGO_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LINGO_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LINGO_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.STT.Mode, "LINGO_STT_MODE")
	overrideString(&cfg.STT.Command, "LINGO_STT_COMMAND")
	overrideInt(&cfg.STT.SampleRate, "LINGO_STT_SAMPLE_RATE")
	overrideInt(&cfg.STT.Channels, "LINGO_STT_CHANNELS")
	overrideString(&cfg.STT.FallbackLanguage, "LINGO_STT_FALLBACK_LANGUAGE")
	overrideInt(&cfg.STT.ResultTimeoutMS, "LINGO_STT_RESULT_TIMEOUT_MS")
	overrideInt(&cfg.STT.ReconnectBaseMS, "LINGO_STT_RECONNECT_BASE_MS")
	overrideInt(&cfg.STT.ReconnectCapMS, "LINGO_STT_RECONNECT_CAP_MS")
	overrideInt(&cfg.STT.ReconnectMaxAttempts, "LINGO_STT_RECONNECT_MAX_ATTEMPTS")
	overrideString(&cfg.Translate.Mode, "LINGO_TRANSLATE_MODE")
	overrideString(&cfg.Translate.Endpoint, "LINGO_TRANSLATE_ENDPOINT")
	overrideString(&cfg.Translate.APIKey, "LINGO_TRANSLATE_API_KEY")
	overrideString(&cfg.Translate.GlossaryID, "LINGO_TRANSLATE_GLOSSARY_ID")
	overrideInt(&cfg.Translate.TimeoutMS, "LINGO_TRANSLATE_TIMEOUT_MS")
	overrideString(&cfg.TTS.Mode, "LINGO_TTS_MODE")
	overrideString(&cfg.TTS.Endpoint, "LINGO_TTS_ENDPOINT")
	overrideString(&cfg.TTS.APIKey, "LINGO_TTS_API_KEY")
	overrideInt(&cfg.TTS.SampleRate, "LINGO_TTS_SAMPLE_RATE")
	overrideInt(&cfg.TTS.Channels, "LINGO_TTS_CHANNELS")
	overrideInt(&cfg.TTS.TimeoutMS, "LINGO_TTS_TIMEOUT_MS")
	overrideString(&cfg.MetricStore.Path, "LINGO_METRIC_STORE_PATH")
	overrideString(&cfg.MetricStore.RetentionMode, "LINGO_METRIC_STORE_RETENTION_MODE")
	overrideInt(&cfg.MetricStore.RetentionDays, "LINGO_METRIC_STORE_RETENTION_DAYS")
	overrideInt(&cfg.MetricStore.MaxSessions, "LINGO_METRIC_STORE_MAX_SESSIONS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else if len(cfg.Bus.Servers) == 0 {
		return errors.New("bus.servers must not be empty when embedded mode is disabled")
	}
	switch cfg.STT.Mode {
	case "mock", "exec":
	default:
		return errors.New("stt.mode must be one of mock|exec")
	}
	if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
		return errors.New("stt.command must be set when mode=exec")
	}
	if cfg.STT.SampleRate <= 0 {
		return errors.New("stt.sample_rate must be positive")
	}
	if cfg.STT.Channels <= 0 {
		return errors.New("stt.channels must be positive")
	}
	if !language.IsSupported(language.Language(cfg.STT.FallbackLanguage)) {
		return fmt.Errorf("stt.fallback_language %q is not a supported language", cfg.STT.FallbackLanguage)
	}
	if cfg.STT.ReconnectBaseMS <= 0 {
		return errors.New("stt.reconnect_base_ms must be positive")
	}
	if cfg.STT.ReconnectCapMS < cfg.STT.ReconnectBaseMS {
		return errors.New("stt.reconnect_cap_ms must be >= stt.reconnect_base_ms")
	}
	if cfg.STT.ReconnectMaxAttempts <= 0 {
		return errors.New("stt.reconnect_max_attempts must be positive")
	}
	switch cfg.Translate.Mode {
	case "mock", "http":
	default:
		return errors.New("translate.mode must be one of mock|http")
	}
	if cfg.Translate.Mode == "http" && cfg.Translate.Endpoint == "" {
		return errors.New("translate.endpoint must be set when mode=http")
	}
	switch cfg.TTS.Mode {
	case "mock", "http":
	default:
		return errors.New("tts.mode must be one of mock|http")
	}
	if cfg.TTS.Mode == "http" && cfg.TTS.Endpoint == "" {
		return errors.New("tts.endpoint must be set when mode=http")
	}
	if cfg.TTS.SampleRate <= 0 {
		return errors.New("tts.sample_rate must be positive")
	}
	if cfg.TTS.Channels <= 0 {
		return errors.New("tts.channels must be positive")
	}
	for lang := range cfg.TTS.Voices {
		if !language.IsSupported(language.Language(lang)) {
			return fmt.Errorf("tts.voices contains unsupported language %q", lang)
		}
	}
	switch cfg.MetricStore.RetentionMode {
	case "ephemeral", "persistent":
	default:
		return errors.New("metric_store.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.MetricStore.RetentionMode == "persistent" && cfg.MetricStore.Path == "" {
		return errors.New("metric_store.path must not be empty when persistent")
	}
	if cfg.MetricStore.RetentionDays < 0 {
		return errors.New("metric_store.retention_days must be >= 0")
	}
	return nil
}
