package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultDir returns ~/.nudge, or ./.nudge when the home directory is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".nudge"
	}
	return filepath.Join(home, ".nudge")
}

// Default returns the built-in configuration.
func Default() Config {
	dir := DefaultDir()
	return Config{
		Store: StoreConfig{
			Driver: "file",
			Path:   filepath.Join(dir, "state.json"),
		},
		Scheduler: SchedulerConfig{
			ImmediateDelay: time.Second,
		},
		Geofence: GeofenceConfig{
			CooldownWindow:         30 * time.Minute,
			CooldownDistanceMeters: 500,
			PreviewLimit:           3,
			SampleInterval:         5 * time.Minute,
			SampleDistanceMeters:   100,
			EventBuffer:            32,
		},
		Smart: SmartConfig{
			ThrottleInterval: 12 * time.Hour,
			DefaultWakeTime:  "07:00",
			DefaultBedTime:   "22:00",
			FoodAnalysisTTL:  24 * time.Hour,
			FoodLookbackDays: 14,
		},
		LLM: LLMConfig{
			Enabled:    false,
			BaseURL:    "https://api.openai.com/v1",
			Model:      "gpt-4o-mini",
			Timeout:    10 * time.Second,
			MaxRetries: 1,
		},
		Geocoder: GeocoderConfig{
			Enabled:   false,
			BaseURL:   "https://nominatim.openstreetmap.org",
			UserAgent: "nudge/1.0",
			CacheSize: 512,
			Timeout:   5 * time.Second,
		},
		UserData: UserDataConfig{
			Path: filepath.Join(dir, "userdata.yaml"),
		},
		Server: ServerConfig{
			Host:       "127.0.0.1",
			Port:       8787,
			EnableCORS: true,
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "console",
			Metrics:   MetricsConfig{Enabled: true},
			Tracing: TracingConfig{
				Exporter:     "otlp",
				OTLPEndpoint: "localhost:4318",
				SampleRate:   1.0,
			},
		},
	}
}
