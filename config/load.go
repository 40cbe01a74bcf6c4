package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
	pkgerrors "github.com/pkg/errors"
)

// Load parses a TOML document, fills defaults and validates the result.
func Load(data []byte) (*TOMLConfig, error) {
	var cfg TOMLConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to parse engine config")
	}
	cfg.SetDefaults()
	if err := cfg.ValidateConfig(); err != nil {
		return nil, pkgerrors.Wrap(err, "invalid engine config")
	}
	return &cfg, nil
}

// LoadFile is Load for a file on disk.
func LoadFile(path string) (*TOMLConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read engine config %s", path)
	}
	return Load(data)
}
