package main

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/art0007i/bonk-sticks-map-converter/internal/catalog"
	"github.com/art0007i/bonk-sticks-map-converter/internal/config"
	"github.com/art0007i/bonk-sticks-map-converter/internal/converter"
	"github.com/art0007i/bonk-sticks-map-converter/internal/history"
	"github.com/art0007i/bonk-sticks-map-converter/internal/logging"
	"github.com/art0007i/bonk-sticks-map-converter/internal/mapcache"
)

type commandContext struct {
	configFlag *string

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

// cliLogger writes to stderr so command output on stdout stays parseable.
func (c *commandContext) cliLogger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
	})
}

func (c *commandContext) openCache(logger *slog.Logger) (*mapcache.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return mapcache.NewFromConfig(cfg, logger)
}

// openHistory returns nil when the history ledger is disabled.
func (c *commandContext) openHistory() (*history.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.History.Enabled {
		return nil, nil
	}
	return history.Open(cfg)
}

func (c *commandContext) requireHistory() (*history.Store, error) {
	store, err := c.openHistory()
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("conversion history is disabled (set history.enabled = true)")
	}
	return store, nil
}

func (c *commandContext) newCatalog() (*catalog.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return catalog.New(
		cfg.Catalog.BaseURL,
		cfg.Catalog.UserAgent,
		catalog.WithTimeout(time.Duration(cfg.Catalog.TimeoutSeconds)*time.Second),
	)
}

// newConverter wires the catalog, cache, and optional history ledger. The
// returned cleanup closes the history database.
func (c *commandContext) newConverter(logger *slog.Logger, store *mapcache.Store) (*converter.Service, *history.Store, func(), error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	client, err := c.newCatalog()
	if err != nil {
		return nil, nil, nil, err
	}
	hist, err := c.openHistory()
	if err != nil {
		return nil, nil, nil, err
	}
	opts := []converter.Option{
		converter.WithLogger(logger),
		converter.WithPageSize(cfg.Catalog.PageSize),
	}
	cleanup := func() {}
	if hist != nil {
		opts = append(opts, converter.WithHistory(hist))
		cleanup = func() {
			if err := hist.Close(); err != nil {
				logger.Warn("close history", logging.Error(err))
			}
		}
	}
	return converter.New(client, store, opts...), hist, cleanup, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
