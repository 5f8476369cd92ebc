package cli

import (
	"sync"

	"ctxline/internal/config"
	"ctxline/internal/storage"
	"ctxline/pkg/logger"

	"github.com/rs/zerolog"
)

// CLIContext carries the per-invocation dependencies shared by commands.
type CLIContext struct {
	Config      *config.Config
	ConfigPath  string
	Logger      *zerolog.Logger
	storageOnce sync.Once
	storage     *storage.DB
	storagePath string
}

// NewCLIContext creates a CLI context.
func NewCLIContext(cfg *config.Config, configPath string, log *zerolog.Logger, storagePath string) *CLIContext {
	return &CLIContext{
		Config:      cfg,
		ConfigPath:  configPath,
		Logger:      log,
		storagePath: storagePath,
	}
}

// GetStorage opens the learned-state store lazily. Commands that never
// touch learned state never pay for the open.
func (c *CLIContext) GetStorage() (*storage.DB, error) {
	var err error
	c.storageOnce.Do(func() {
		c.storage, err = storage.Open(c.storagePath)
	})
	return c.storage, err
}

// Close releases held resources.
func (c *CLIContext) Close() error {
	if c.storage != nil {
		return c.storage.Close()
	}
	return nil
}

// Log returns the logger, falling back to the global one.
func (c *CLIContext) Log() *zerolog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.Get()
}
