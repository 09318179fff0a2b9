package fledge

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml"
)

const configPermission = 0o644

type Config struct {
	Client ClientConfig `toml:"client"`
	MQTT   MQTTConfig   `toml:"mqtt"`
}

type ClientConfig struct {
	ClientID  string `toml:"client_id"`
	Server    string `toml:"server"`
	Slice     string `toml:"slice"`
	ClientURL string `toml:"client_url"`
	Epochs    int    `toml:"epochs"`
}

type MQTTConfig struct {
	Address  string `toml:"address"`
	Username string `toml:"username"`
	Password string `toml:"password"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	var cfg Config
	if err := tree.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func SaveConfig(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, configPermission); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}
