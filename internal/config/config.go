package config

import "time"

// Config is the root configuration for Vigil.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Producer  ProducerConfig  `yaml:"producer"`
	Broker    BrokerConfig    `yaml:"broker"`
	Stream    StreamConfig    `yaml:"stream"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type ServerConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	PublicURL string `yaml:"public_url"`
	LogLevel  string `yaml:"log_level"`
	LogFile   string `yaml:"log_file"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ArchiveConfig struct {
	// Dir is the directory the producer writes event_<id>.json records into.
	Dir string `yaml:"dir"`
}

type ProducerConfig struct {
	// Bin is the detector executable the supervisor launches.
	Bin         string            `yaml:"bin"`
	WorkDir     string            `yaml:"work_dir"`
	StopTimeout time.Duration     `yaml:"stop_timeout"`
	Env         map[string]string `yaml:"env"`
}

type BrokerConfig struct {
	// Capacity bounds the ring of recent announcements kept in memory.
	Capacity int `yaml:"capacity"`
}

type StreamConfig struct {
	// Keepalive is the idle interval between stream keep-alive messages.
	Keepalive time.Duration `yaml:"keepalive"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     8520,
			LogLevel: "info",
		},
		Database: DatabaseConfig{
			Path: "~/.config/vigil/vigil.db",
		},
		Archive: ArchiveConfig{
			Dir: "suspicious_events",
		},
		Producer: ProducerConfig{
			Bin:         "detector",
			StopTimeout: 5 * time.Second,
			Env: map[string]string{
				"DISPLAY": ":0",
			},
		},
		Broker: BrokerConfig{
			Capacity: 50,
		},
		Stream: StreamConfig{
			Keepalive: 20 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 300,
			Burst:             100,
		},
	}
}
