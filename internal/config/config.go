// Tidewatch - Coastal Wave Monitoring and Tsunami Alerting
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidewatch

package config

import (
	"time"
)

// Config holds the resolved configuration for the whole process.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Location   LocationConfig   `koanf:"location"`
	Stream     StreamConfig     `koanf:"stream"`
	Detector   DetectorConfig   `koanf:"detector"`
	ObsLog     ObsLogConfig     `koanf:"obslog"`
	Alerting   AlertingConfig   `koanf:"alerting"`
	Notify     NotifyConfig     `koanf:"notify"`
	Quake      QuakeConfig      `koanf:"quake"`
	Events     EventsConfig     `koanf:"events"`
	Archive    ArchiveConfig    `koanf:"archive"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"min=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error fatal disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// LocationConfig describes the monitored coastline. Included in status
// snapshots and every outgoing message.
type LocationConfig struct {
	Name      string  `koanf:"name"`
	Latitude  float64 `koanf:"latitude" validate:"latitude"`
	Longitude float64 `koanf:"longitude" validate:"longitude"`
	Timezone  string  `koanf:"timezone" validate:"timezone"`
}

// StreamConfig controls frame acquisition and reconnect behaviour.
type StreamConfig struct {
	// URL of the video source. http(s) for mjpeg and snapshot modes,
	// file:// for a directory of images replayed in name order.
	URL  string `koanf:"url" validate:"required"`
	Mode string `koanf:"mode" validate:"oneof=mjpeg snapshot file"`

	// ReadTimeout bounds a single frame read. A read that exceeds it is a
	// connection failure.
	ReadTimeout time.Duration `koanf:"read_timeout" validate:"gt=0"`

	// SampleInterval drops frames arriving sooner than this after the
	// previously delivered frame. Zero delivers every frame.
	SampleInterval time.Duration `koanf:"sample_interval" validate:"gte=0"`

	InitialBackoff  time.Duration `koanf:"initial_backoff" validate:"gt=0"`
	MaxBackoff      time.Duration `koanf:"max_backoff" validate:"gt=0"`
	Jitter          float64       `koanf:"jitter" validate:"gte=0,lte=1"`
	MaxReconnects   int           `koanf:"max_reconnects" validate:"min=1"`
	MaxDecodeErrors int           `koanf:"max_decode_errors" validate:"min=1"`
}

// DetectorConfig holds classification thresholds and analyzer tuning.
// Threshold and window fields are live-tunable through the config watcher.
type DetectorConfig struct {
	Analyzer string `koanf:"analyzer" validate:"oneof=peakline"`

	NormalBand         float64       `koanf:"normal_band" validate:"gte=0"`
	ElevatedThreshold  float64       `koanf:"elevated_threshold" validate:"gt=0"`
	CriticalThreshold  float64       `koanf:"critical_threshold" validate:"gt=0"`
	BaselineWindow     time.Duration `koanf:"baseline_window" validate:"gt=0"`
	SustainedDuration  time.Duration `koanf:"sustained_duration" validate:"gte=0"`
	CriticalSustained  time.Duration `koanf:"critical_sustained" validate:"gte=0"`
	MinBaselineSamples int           `koanf:"min_baseline_samples" validate:"min=1"`
	DegradedAfter      int           `koanf:"degraded_after" validate:"min=1"`
	TsunamiConsecutive int           `koanf:"tsunami_consecutive" validate:"min=0"`

	PeakLine PeakLineConfig `koanf:"peakline"`
}

// PeakLineConfig tunes the edge-based peak line analyzer.
type PeakLineConfig struct {
	// Region of interest in pixels. Zero width or height means the full frame.
	ROIX      int `koanf:"roi_x" validate:"min=0"`
	ROIY      int `koanf:"roi_y" validate:"min=0"`
	ROIWidth  int `koanf:"roi_width" validate:"min=0"`
	ROIHeight int `koanf:"roi_height" validate:"min=0"`

	GradientThreshold int     `koanf:"gradient_threshold" validate:"min=1,max=255"`
	MinEdgeFraction   float64 `koanf:"min_edge_fraction" validate:"gt=0,lte=1"`

	Calibration []CalibrationPoint `koanf:"calibration" validate:"dive"`
}

// CalibrationPoint maps a pixel row to a wave height in metres.
type CalibrationPoint struct {
	Y      float64 `koanf:"y"`
	Height float64 `koanf:"height" validate:"gte=0"`
	Level  string  `koanf:"level"`
}

// ObsLogConfig configures the BadgerDB observation log.
type ObsLogConfig struct {
	Path             string        `koanf:"path" validate:"required"`
	SyncWrites       bool          `koanf:"sync_writes"`
	Compression      bool          `koanf:"compression"`
	BufferSize       int           `koanf:"buffer_size" validate:"min=1"`
	GCInterval       time.Duration `koanf:"gc_interval" validate:"gt=0"`
	GCRatio          float64       `koanf:"gc_ratio" validate:"gt=0,lt=1"`
	// Retention is an opt-in BadgerDB TTL on stored records. Zero keeps
	// them forever; pruning is normally left to the operator.
	Retention        time.Duration `koanf:"retention" validate:"gte=0"`
	MemTableSize     int64         `koanf:"memtable_size" validate:"min=1048576"`
	ValueLogFileSize int64         `koanf:"vlog_size" validate:"min=1048576"`
}

// AlertingConfig configures the dispatcher.
type AlertingConfig struct {
	QueueSize      int           `koanf:"queue_size" validate:"min=1"`
	MaxAttempts    int           `koanf:"max_attempts" validate:"min=1,max=20"`
	BaseDelay      time.Duration `koanf:"base_delay" validate:"gt=0"`
	MaxDelay       time.Duration `koanf:"max_delay" validate:"gt=0"`
	AttemptTimeout time.Duration `koanf:"attempt_timeout" validate:"gt=0"`
	ShutdownGrace  time.Duration `koanf:"shutdown_grace" validate:"gte=0"`

	Elevated   RouteConfig `koanf:"elevated"`
	Critical   RouteConfig `koanf:"critical"`
	Tsunami    RouteConfig `koanf:"tsunami"`
	Earthquake RouteConfig `koanf:"earthquake"`
	System     RouteConfig `koanf:"system"`
}

// RouteConfig lists target channels and the cooldown for one severity.
type RouteConfig struct {
	Channels []string      `koanf:"channels"`
	Cooldown time.Duration `koanf:"cooldown" validate:"gte=0"`
}

// NotifyConfig configures notification providers.
type NotifyConfig struct {
	Timeout time.Duration `koanf:"timeout" validate:"gt=0"`

	// RatePerSecond and RateBurst bound outgoing sends per channel.
	RatePerSecond float64 `koanf:"rate_per_second" validate:"gt=0"`
	RateBurst     int     `koanf:"rate_burst" validate:"min=1"`

	BreakerMaxFailures uint32        `koanf:"breaker_max_failures" validate:"min=1"`
	BreakerOpenTimeout time.Duration `koanf:"breaker_open_timeout" validate:"gt=0"`

	Twilio   TwilioConfig    `koanf:"twilio"`
	WhatsApp WhatsAppConfig  `koanf:"whatsapp"`
	SMS      SMSConfig       `koanf:"sms"`
	Telegram TelegramConfig  `koanf:"telegram"`
	Webhooks []WebhookConfig `koanf:"webhooks" validate:"dive"`
}

// TwilioConfig holds shared Twilio credentials.
type TwilioConfig struct {
	AccountSID string `koanf:"account_sid"`
	AuthToken  string `koanf:"auth_token"`
	BaseURL    string `koanf:"base_url" validate:"omitempty,url"`
}

// WhatsAppConfig enables the Twilio WhatsApp channel.
type WhatsAppConfig struct {
	Enabled bool     `koanf:"enabled"`
	From    string   `koanf:"from"`
	To      []string `koanf:"to"`
}

// SMSConfig enables the Twilio SMS channel. MessagingServiceSID takes
// precedence over From when both are set.
type SMSConfig struct {
	Enabled             bool     `koanf:"enabled"`
	From                string   `koanf:"from"`
	MessagingServiceSID string   `koanf:"messaging_service_sid"`
	To                  []string `koanf:"to"`
}

// TelegramConfig enables the Telegram bot channel.
type TelegramConfig struct {
	Enabled  bool     `koanf:"enabled"`
	BotToken string   `koanf:"bot_token"`
	ChatIDs  []string `koanf:"chat_ids"`
	BaseURL  string   `koanf:"base_url" validate:"omitempty,url"`
}

// WebhookConfig defines a named JSON webhook channel, e.g. a siren
// controller used as the tsunami channel.
type WebhookConfig struct {
	Name    string            `koanf:"name" validate:"required"`
	URL     string            `koanf:"url" validate:"required,url"`
	Headers map[string]string `koanf:"headers"`
}

// QuakeConfig configures the BMKG earthquake feed poller.
type QuakeConfig struct {
	Enabled          bool          `koanf:"enabled"`
	URL              string        `koanf:"url" validate:"required,url"`
	PollInterval     time.Duration `koanf:"poll_interval" validate:"gte=10s"`
	MinMagnitude     float64       `koanf:"min_magnitude" validate:"gte=0"`
	TsunamiMagnitude float64       `koanf:"tsunami_magnitude" validate:"gte=0"`
	MaxAge           time.Duration `koanf:"max_age" validate:"gt=0"`
}

// EventsConfig configures the Watermill event bus.
type EventsConfig struct {
	Backend     string `koanf:"backend" validate:"oneof=none memory nats"`
	URL         string `koanf:"url"`
	Embedded    bool   `koanf:"embedded"`
	EmbeddedDir string `koanf:"embedded_dir"`
	Port        int    `koanf:"port" validate:"min=-1,max=65535"`
	TopicPrefix string `koanf:"topic_prefix" validate:"required"`
	BufferSize  int    `koanf:"buffer_size" validate:"min=1"`
}

// ArchiveConfig configures the DuckDB analytics archive.
type ArchiveConfig struct {
	Enabled   bool          `koanf:"enabled"`
	Path      string        `koanf:"path"`
	Interval  time.Duration `koanf:"interval" validate:"gt=0"`
	BatchSize int           `koanf:"batch_size" validate:"min=1"`
}

// SupervisorConfig mirrors supervisor.TreeConfig.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold" validate:"gt=0"`
	FailureDecay     float64       `koanf:"failure_decay" validate:"gt=0"`
	FailureBackoff   time.Duration `koanf:"failure_backoff" validate:"gt=0"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// Load reads configuration from defaults, the optional config file and the
// environment, in that order of precedence (lowest first).
func Load() (*Config, error) {
	return LoadWithKoanf()
}
