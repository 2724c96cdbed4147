package main

import (
	"errors"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/nearme-discovery/internal/config"
	"github.com/yourorg/nearme-discovery/internal/fetch"
)

// loadConfig reads the environment, layered over the YAML file named by
// CONFIG_FILE when set.
func loadConfig() (config.Config, error) {
	return config.LoadFile(os.Getenv("CONFIG_FILE"))
}

// buildSource creates the merchant feed: the remote store first, then the seed
// file, merged and cached.
func buildSource(cfg config.Config) (*fetch.MultiSource, error) {
	var sources []fetch.Source

	if cfg.StoreURL != "" {
		sources = append(sources, fetch.NewStoreClient(cfg.StoreURL, cfg.StoreAPIKey))
		logrus.WithField("url", cfg.StoreURL).Info("Merchant store source enabled")
	}

	if cfg.SeedFile != "" {
		sources = append(sources, fetch.NewFileSource(cfg.SeedFile))
		logrus.WithField("path", cfg.SeedFile).Info("Seed file source enabled")
	}

	if len(sources) == 0 {
		return nil, errors.New("set STORE_URL or SEED_FILE")
	}

	return fetch.NewMultiSource(cfg.CacheTTL, sources...), nil
}
