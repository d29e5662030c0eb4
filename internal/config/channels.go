package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ChannelConfig is a tagged variant over the channel kind. Required fields are
// checked at load time so a bad declaration fails startup, not a send.
type ChannelConfig struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"` // "push" | "email"

	// push
	Webhook string `yaml:"webhook,omitempty"`

	// email
	APIKey string `yaml:"api_key,omitempty"`
	From   string `yaml:"from,omitempty"`
	To     string `yaml:"to,omitempty"`
}

type channelFile struct {
	Channels []ChannelConfig `yaml:"channels"`
}

// LoadChannels reads and validates the channel declarations. A missing file is
// not an error: the monitor then runs detection-only.
func LoadChannels(path string) ([]ChannelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading channel file: %w", err)
	}

	var f channelFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing channel file: %w", err)
	}

	seen := make(map[string]bool, len(f.Channels))
	for i, c := range f.Channels {
		if c.Name == "" {
			return nil, fmt.Errorf("channel %d: name is required", i)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("channel %q: duplicate name", c.Name)
		}
		seen[c.Name] = true

		switch c.Type {
		case "push":
			if c.Webhook == "" {
				return nil, fmt.Errorf("channel %q: webhook is required for push", c.Name)
			}
		case "email":
			if c.APIKey == "" {
				return nil, fmt.Errorf("channel %q: api_key is required for email", c.Name)
			}
			if c.To == "" {
				return nil, fmt.Errorf("channel %q: to is required for email", c.Name)
			}
		default:
			return nil, fmt.Errorf("channel %q: unknown type %q", c.Name, c.Type)
		}
	}
	return f.Channels, nil
}
