// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/tidewatch/config.yaml",
	"/etc/tidewatch/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns the built-in defaults. The detector and alerting
// values are the documented policy defaults; see DESIGN.md.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8787,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{},
			RateLimitReqs:   300,
			RateLimitWindow: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Location: LocationConfig{
			Name:     "Coastal camera",
			Timezone: "Asia/Jakarta",
		},
		Stream: StreamConfig{
			URL:             "http://127.0.0.1:8080/stream.mjpg",
			Mode:            "mjpeg",
			ReadTimeout:     10 * time.Second,
			SampleInterval:  time.Second,
			InitialBackoff:  time.Second,
			MaxBackoff:      30 * time.Second,
			Jitter:          0.2,
			MaxReconnects:   10,
			MaxDecodeErrors: 5,
		},
		Detector: DetectorConfig{
			Analyzer:           "peakline",
			NormalBand:         0.3,
			ElevatedThreshold:  1.0,
			CriticalThreshold:  4.0,
			BaselineWindow:     time.Minute,
			SustainedDuration:  3 * time.Second,
			CriticalSustained:  0,
			MinBaselineSamples: 10,
			DegradedAfter:      5,
			TsunamiConsecutive: 12,
			PeakLine: PeakLineConfig{
				GradientThreshold: 40,
				MinEdgeFraction:   0.25,
				Calibration: []CalibrationPoint{
					{Y: 280, Height: 0.5, Level: "LOW"},
					{Y: 250, Height: 1.25, Level: "MEDIUM"},
					{Y: 230, Height: 2.5, Level: "HIGH"},
					{Y: 210, Height: 4.0, Level: "VERY_HIGH"},
					{Y: 180, Height: 6.0, Level: "EXTREME"},
				},
			},
		},
		ObsLog: ObsLogConfig{
			Path:             "./data/obslog",
			SyncWrites:       true,
			Compression:      true,
			BufferSize:       4096,
			GCInterval:       10 * time.Minute,
			GCRatio:          0.5,
			MemTableSize:     16 << 20,
			ValueLogFileSize: 64 << 20,
		},
		Alerting: AlertingConfig{
			QueueSize:      64,
			MaxAttempts:    4,
			BaseDelay:      2 * time.Second,
			MaxDelay:       30 * time.Second,
			AttemptTimeout: 15 * time.Second,
			ShutdownGrace:  10 * time.Second,
			Elevated:       RouteConfig{Channels: []string{"whatsapp"}, Cooldown: 5 * time.Minute},
			Critical:       RouteConfig{Channels: []string{"whatsapp", "sms", "tsunami"}, Cooldown: 5 * time.Minute},
			Tsunami:        RouteConfig{Channels: []string{"whatsapp", "sms", "tsunami"}, Cooldown: 30 * time.Minute},
			Earthquake:     RouteConfig{Channels: []string{"whatsapp", "sms"}, Cooldown: 30 * time.Minute},
			System:         RouteConfig{Channels: []string{"whatsapp"}, Cooldown: 15 * time.Minute},
		},
		Notify: NotifyConfig{
			Timeout:            15 * time.Second,
			RatePerSecond:      1,
			RateBurst:          5,
			BreakerMaxFailures: 5,
			BreakerOpenTimeout: time.Minute,
			Twilio: TwilioConfig{
				BaseURL: "https://api.twilio.com",
			},
			Telegram: TelegramConfig{
				BaseURL: "https://api.telegram.org",
			},
		},
		Quake: QuakeConfig{
			Enabled:          false,
			URL:              "https://data.bmkg.go.id/DataMKG/TEWS/autogempa.json",
			PollInterval:     5 * time.Minute,
			MinMagnitude:     5.0,
			TsunamiMagnitude: 6.0,
			MaxAge:           time.Hour,
		},
		Events: EventsConfig{
			Backend:     "memory",
			URL:         "nats://127.0.0.1:4222",
			EmbeddedDir: "./data/nats",
			Port:        4222,
			TopicPrefix: "tidewatch",
			BufferSize:  256,
		},
		Archive: ArchiveConfig{
			Enabled:   true,
			Path:      "./data/archive.duckdb",
			Interval:  time.Minute,
			BatchSize: 1000,
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// LoadWithKoanf loads configuration in three layers: struct defaults, the
// optional YAML file, then environment variables.
func LoadWithKoanf() (*Config, error) {
	return loadFrom(findConfigFile())
}

// LoadFile loads configuration using path as the config file. Used by the
// watcher so a reload reads the same file that changed.
func LoadFile(path string) (*Config, error) {
	return loadFrom(path)
}

func loadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// ConfigFilePath returns the config file that Load would read, or "".
func ConfigFilePath() string {
	return findConfigFile()
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths are split on commas when they arrive as strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"notify.whatsapp.to",
	"notify.sms.to",
	"notify.telegram.chat_ids",
	"alerting.elevated.channels",
	"alerting.critical.channels",
	"alerting.tsunami.channels",
	"alerting.earthquake.channels",
	"alerting.system.channels",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := splitList(s)
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

func splitList(s string) []string {
	raw := strings.Split(s, ",")
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envMappings maps environment variable names to koanf paths. Unmapped
// variables are ignored.
var envMappings = map[string]string{
	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_read_timeout":   "server.read_timeout",
	"http_write_timeout":  "server.write_timeout",
	"shutdown_timeout":    "server.shutdown_timeout",
	"cors_origins":        "server.cors_origins",
	"rate_limit_reqs":     "server.rate_limit_reqs",
	"rate_limit_window":   "server.rate_limit_window",
	"rate_limit_disabled": "server.rate_limit_disabled",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"location_name":      "location.name",
	"location_latitude":  "location.latitude",
	"location_longitude": "location.longitude",
	"location_timezone":  "location.timezone",

	"stream_url":               "stream.url",
	"stream_mode":              "stream.mode",
	"stream_read_timeout":      "stream.read_timeout",
	"stream_sample_interval":   "stream.sample_interval",
	"stream_initial_backoff":   "stream.initial_backoff",
	"stream_max_backoff":       "stream.max_backoff",
	"stream_jitter":            "stream.jitter",
	"stream_max_reconnects":    "stream.max_reconnects",
	"stream_max_decode_errors": "stream.max_decode_errors",

	"detector_normal_band":          "detector.normal_band",
	"detector_elevated_threshold":   "detector.elevated_threshold",
	"detector_critical_threshold":   "detector.critical_threshold",
	"detector_baseline_window":      "detector.baseline_window",
	"detector_sustained_duration":   "detector.sustained_duration",
	"detector_critical_sustained":   "detector.critical_sustained",
	"detector_min_baseline_samples": "detector.min_baseline_samples",
	"detector_degraded_after":       "detector.degraded_after",
	"detector_tsunami_consecutive":  "detector.tsunami_consecutive",

	"obslog_path":        "obslog.path",
	"obslog_sync_writes": "obslog.sync_writes",
	"obslog_buffer_size": "obslog.buffer_size",
	"obslog_gc_interval": "obslog.gc_interval",
	"obslog_retention":   "obslog.retention",

	"alert_queue_size":          "alerting.queue_size",
	"alert_max_attempts":        "alerting.max_attempts",
	"alert_base_delay":          "alerting.base_delay",
	"alert_max_delay":           "alerting.max_delay",
	"alert_attempt_timeout":     "alerting.attempt_timeout",
	"alert_shutdown_grace":      "alerting.shutdown_grace",
	"alert_elevated_channels":   "alerting.elevated.channels",
	"alert_elevated_cooldown":   "alerting.elevated.cooldown",
	"alert_critical_channels":   "alerting.critical.channels",
	"alert_critical_cooldown":   "alerting.critical.cooldown",
	"alert_tsunami_channels":    "alerting.tsunami.channels",
	"alert_tsunami_cooldown":    "alerting.tsunami.cooldown",
	"alert_earthquake_channels": "alerting.earthquake.channels",
	"alert_earthquake_cooldown": "alerting.earthquake.cooldown",
	"alert_system_channels":     "alerting.system.channels",
	"alert_system_cooldown":     "alerting.system.cooldown",

	"twilio_account_sid":          "notify.twilio.account_sid",
	"twilio_auth_token":           "notify.twilio.auth_token",
	"twilio_base_url":             "notify.twilio.base_url",
	"whatsapp_enabled":            "notify.whatsapp.enabled",
	"whatsapp_from":               "notify.whatsapp.from",
	"whatsapp_to":                 "notify.whatsapp.to",
	"sms_enabled":                 "notify.sms.enabled",
	"sms_from":                    "notify.sms.from",
	"sms_messaging_service_sid":   "notify.sms.messaging_service_sid",
	"sms_to":                      "notify.sms.to",
	"telegram_enabled":            "notify.telegram.enabled",
	"telegram_bot_token":          "notify.telegram.bot_token",
	"telegram_chat_ids":           "notify.telegram.chat_ids",
	"notify_timeout":              "notify.timeout",
	"notify_rate_per_second":      "notify.rate_per_second",
	"notify_rate_burst":           "notify.rate_burst",
	"notify_breaker_max_failures": "notify.breaker_max_failures",
	"notify_breaker_open_timeout": "notify.breaker_open_timeout",

	"quake_enabled":           "quake.enabled",
	"quake_url":               "quake.url",
	"quake_poll_interval":     "quake.poll_interval",
	"quake_min_magnitude":     "quake.min_magnitude",
	"quake_tsunami_magnitude": "quake.tsunami_magnitude",
	"quake_max_age":           "quake.max_age",

	"events_backend":      "events.backend",
	"events_url":          "events.url",
	"events_embedded":     "events.embedded",
	"events_embedded_dir": "events.embedded_dir",
	"events_port":         "events.port",

	"archive_enabled":  "archive.enabled",
	"archive_path":     "archive.path",
	"archive_interval": "archive.interval",
}

func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// WatchConfigFile calls onChange with the freshly loaded configuration every
// time the file at path changes. Reload failures are passed to onError and
// the previous configuration stays in effect.
func WatchConfigFile(path string, onChange func(*Config), onError func(error)) error {
	provider := file.Provider(path)
	return provider.Watch(func(_ interface{}, err error) {
		if err != nil {
			onError(fmt.Errorf("watch %s: %w", path, err))
			return
		}
		cfg, err := LoadFile(path)
		if err != nil {
			onError(err)
			return
		}
		onChange(cfg)
	})
}
