package main

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"
)

// config is read from allosaur.toml.
type config struct {
	// DB is the bbolt file of the accumulator, relative to the config
	// file.
	DB string
	// MaxBatch bounds the changes per chunk of the threshold updates.
	MaxBatch int
	// Threshold is the number of replicas needed for an update.
	Threshold int
	Debug     int

	path string
}

func defaultConfig(path string) *config {
	return &config{
		DB:        "allosaur.db",
		MaxBatch:  16,
		Threshold: 2,
		path:      path,
	}
}

// loadConfig reads the config at path. A missing file gives the defaults.
func loadConfig(path string) (*config, error) {
	cfg := defaultConfig(path)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, xerrors.Errorf("reading %s: %v", path, err)
	}
	if cfg.MaxBatch < 1 || cfg.Threshold < 1 {
		return nil, xerrors.Errorf("%s: MaxBatch and Threshold must be positive", path)
	}
	return cfg, nil
}

func (cfg *config) save() error {
	f, err := os.Create(cfg.path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

func (cfg *config) dbPath() string {
	if filepath.IsAbs(cfg.DB) {
		return cfg.DB
	}
	return filepath.Join(filepath.Dir(cfg.path), cfg.DB)
}
