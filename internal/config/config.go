package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Auth struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"auth"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Room struct {
		GracePeriod   string `yaml:"grace_period"`
		SweepInterval string `yaml:"sweep_interval"`
		AutoCreate    *bool  `yaml:"auto_create"`
	} `yaml:"room"`
	Gateway struct {
		WriteTimeout string `yaml:"write_timeout"`
		SendBuffer   int    `yaml:"send_buffer"`
	} `yaml:"gateway"`
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// AutoCreateRooms reports the room auto-creation policy, defaulting to on.
func (c Config) AutoCreateRooms() bool {
	if c.Room.AutoCreate == nil {
		return true
	}
	return *c.Room.AutoCreate
}

// Duration parses a duration string or returns the fallback if empty or invalid.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
