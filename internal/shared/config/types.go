// Package config loads engine configuration from YAML files and NUDGE_*
// environment variables.
package config

import "time"

// Config is the complete runtime configuration.
type Config struct {
	Store         StoreConfig         `mapstructure:"store" yaml:"store"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler" yaml:"scheduler"`
	Geofence      GeofenceConfig      `mapstructure:"geofence" yaml:"geofence"`
	Smart         SmartConfig         `mapstructure:"smart" yaml:"smart"`
	LLM           LLMConfig           `mapstructure:"llm" yaml:"llm"`
	Geocoder      GeocoderConfig      `mapstructure:"geocoder" yaml:"geocoder"`
	UserData      UserDataConfig      `mapstructure:"userdata" yaml:"userdata"`
	Server        ServerConfig        `mapstructure:"server" yaml:"server"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
}

// StoreConfig selects the key-value backend for engine state.
type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver" validate:"oneof=memory file sqlite"`
	Path   string `mapstructure:"path" yaml:"path" validate:"required_unless=Driver memory"`
}

// SchedulerConfig tunes the reminder scheduler.
type SchedulerConfig struct {
	// ImmediateDelay is added to "now" for notifications that should fire right away.
	ImmediateDelay time.Duration `mapstructure:"immediate_delay" yaml:"immediate_delay" validate:"gte=0"`
}

// GeofenceConfig tunes region monitoring and store auto-detection.
type GeofenceConfig struct {
	CooldownWindow         time.Duration `mapstructure:"cooldown_window" yaml:"cooldown_window" validate:"gt=0"`
	CooldownDistanceMeters float64       `mapstructure:"cooldown_distance_meters" yaml:"cooldown_distance_meters" validate:"gt=0"`
	PreviewLimit           int           `mapstructure:"preview_limit" yaml:"preview_limit" validate:"gt=0"`
	SampleInterval         time.Duration `mapstructure:"sample_interval" yaml:"sample_interval" validate:"gt=0"`
	SampleDistanceMeters   float64       `mapstructure:"sample_distance_meters" yaml:"sample_distance_meters" validate:"gte=0"`
	EventBuffer            int           `mapstructure:"event_buffer" yaml:"event_buffer" validate:"gte=0"`
}

// SmartConfig tunes the wake/bedtime/food-insight orchestrator.
type SmartConfig struct {
	ThrottleInterval time.Duration `mapstructure:"throttle_interval" yaml:"throttle_interval" validate:"gte=0"`
	DefaultWakeTime  string        `mapstructure:"default_wake_time" yaml:"default_wake_time" validate:"required"`
	DefaultBedTime   string        `mapstructure:"default_bed_time" yaml:"default_bed_time" validate:"required"`
	FoodAnalysisTTL  time.Duration `mapstructure:"food_analysis_ttl" yaml:"food_analysis_ttl" validate:"gt=0"`
	FoodLookbackDays int           `mapstructure:"food_lookback_days" yaml:"food_lookback_days" validate:"gt=0"`
}

// LLMConfig points at an OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	BaseURL    string        `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	Model      string        `mapstructure:"model" yaml:"model" validate:"required_if=Enabled true"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
	MaxRetries int           `mapstructure:"max_retries" yaml:"max_retries" validate:"gte=0"`
}

// GeocoderConfig points at a Nominatim-compatible reverse geocoding API.
type GeocoderConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	BaseURL   string        `mapstructure:"base_url" yaml:"base_url" validate:"omitempty,url"`
	UserAgent string        `mapstructure:"user_agent" yaml:"user_agent"`
	CacheSize int           `mapstructure:"cache_size" yaml:"cache_size" validate:"gt=0"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
}

// UserDataConfig locates the task/profile/food-journal source file.
type UserDataConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host       string `mapstructure:"host" yaml:"host"`
	Port       int    `mapstructure:"port" yaml:"port" validate:"gt=0,lt=65536"`
	EnableCORS bool   `mapstructure:"enable_cors" yaml:"enable_cors"`
	Debug      bool   `mapstructure:"debug" yaml:"debug"`
}

// ObservabilityConfig groups logging, metrics, and tracing.
type ObservabilityConfig struct {
	LogLevel  string        `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string        `mapstructure:"log_format" yaml:"log_format" validate:"oneof=json console"`
	Metrics   MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Tracing   TracingConfig `mapstructure:"tracing" yaml:"tracing"`
}

// MetricsConfig toggles the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// TracingConfig selects a span exporter.
type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
	Exporter       string  `mapstructure:"exporter" yaml:"exporter" validate:"omitempty,oneof=otlp zipkin"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint" yaml:"otlp_endpoint"`
	ZipkinEndpoint string  `mapstructure:"zipkin_endpoint" yaml:"zipkin_endpoint"`
	SampleRate     float64 `mapstructure:"sample_rate" yaml:"sample_rate" validate:"gte=0,lte=1"`
}
