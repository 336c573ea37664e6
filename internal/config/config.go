package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server ServerConfig `yaml:"server"`
	Watch  WatchConfig  `yaml:"watch"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxConnections int      `yaml:"max_connections"`
	SendBuffer     int      `yaml:"send_buffer"`
}

type WatchConfig struct {
	Dir       string        `yaml:"dir"`
	Suffix    string        `yaml:"suffix"`
	Debounce  time.Duration `yaml:"debounce"`
	QueueSize int           `yaml:"queue_size"`
}

// Default returns the built-in configuration used when no config file is
// given. Load starts from the same values so a partial file only overrides
// the keys it mentions.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:       8080,
			Host:       "127.0.0.1",
			SendBuffer: 100,
		},
		Watch: WatchConfig{
			Dir:       "scene",
			Suffix:    ".obj",
			Debounce:  100 * time.Millisecond,
			QueueSize: 100,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Watch.Dir == "" {
		return fmt.Errorf("watch.dir must not be empty")
	}
	if c.Watch.Suffix == "" {
		return fmt.Errorf("watch.suffix must not be empty")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	return nil
}
