package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the optional kpcstrip.yaml document: every field is a pointer
// or nil-able so an absent or partial file still loads. The -k and -d
// flags take precedence over credentials_path and decompress; extra_pids
// are combined with the -p values, and the config ones are tried first.
type Config struct {
	CredentialsPath *string  `yaml:"credentials_path"`
	ExtraPIDs       []string `yaml:"extra_pids"`
	Decompress      *bool    `yaml:"decompress"`
}

// loadConfig reads path if it exists, returning a zero Config (all
// fields unset) when path is empty or the file is absent. A present file
// that fails to parse is an error.
func loadConfig(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}
