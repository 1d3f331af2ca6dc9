package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/xkilldash9x/foodscout/api/schemas"
	"github.com/xkilldash9x/foodscout/internal/browser"
	"github.com/xkilldash9x/foodscout/internal/config"
	"github.com/xkilldash9x/foodscout/internal/cookiestore"
	"github.com/xkilldash9x/foodscout/internal/observability"
	"github.com/xkilldash9x/foodscout/internal/operator"
	"github.com/xkilldash9x/foodscout/internal/secrets"
	"github.com/xkilldash9x/foodscout/internal/store"
)

// Prompter is the operator channel plus the credential questions asked at startup.
type Prompter interface {
	schemas.Operator
	Prompt(ctx context.Context, question string) (string, error)
	Password(ctx context.Context, question string) (string, error)
	Interactive() bool
}

// Components holds everything one scrape needs.
type Components struct {
	Browser  schemas.BrowserManager
	Store    *cookiestore.Store
	Operator Prompter
	// Sink is nil unless sink.dsn is configured.
	Sink store.Sink
	// Fs receives diagnostic artifacts.
	Fs afero.Fs
}

// Shutdown releases the components in reverse order of creation.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()

	if c.Sink != nil {
		if err := c.Sink.Close(); err != nil {
			logger.Warn("Error closing result sink.", zap.Error(err))
		}
	}
	if c.Browser != nil {
		// The run context may already be cancelled; shutdown still needs time.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.Browser.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown.", zap.Error(err))
		}
	}
	logger.Debug("Components shut down.")
}

// ComponentFactory builds the components. Tests substitute their own.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config) (*Components, error)
	CookieStore(cfg *config.Config) (*cookiestore.Store, error)
}

type concreteFactory struct {
	fs afero.Fs
}

// NewComponentFactory returns the production factory, backed by the OS filesystem.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{fs: afero.NewOsFs()}
}

// CookieStore builds the session store, sealing values when configured to.
func (f *concreteFactory) CookieStore(cfg *config.Config) (*cookiestore.Store, error) {
	logger := observability.GetLogger()
	var opts []cookiestore.Option
	if cfg.Session.EncryptValues {
		provider := secrets.NewKeyringProvider(
			cfg.Session.KeyringService,
			cfg.Session.KeyringUser,
			secrets.NewFileKeyStore(f.fs, cfg.Session.FallbackKeyFile),
			logger,
		)
		cipher, err := secrets.NewCipher(provider)
		if err != nil {
			return nil, fmt.Errorf("failed to prepare session encryption: %w", err)
		}
		opts = append(opts, cookiestore.WithCipher(cipher))
	}
	return cookiestore.New(f.fs, cfg.Session.Dir, logger, opts...), nil
}

func (f *concreteFactory) Create(ctx context.Context, cfg *config.Config) (comps *Components, err error) {
	logger := observability.GetLogger()
	comps = &Components{Fs: f.fs}

	// Release whatever was built if a later step fails.
	defer func() {
		if err != nil {
			comps.Shutdown()
			comps = nil
		}
	}()

	if comps.Store, err = f.CookieStore(cfg); err != nil {
		return comps, err
	}
	if cfg.Sink.DSN != "" {
		if comps.Sink, err = store.Open(ctx, cfg.Sink.DSN, logger); err != nil {
			return comps, fmt.Errorf("failed to open result sink: %w", err)
		}
	}
	if comps.Browser, err = browser.NewManager(ctx, logger, cfg); err != nil {
		return comps, fmt.Errorf("failed to create browser manager: %w", err)
	}
	// Prompts go to stderr; stdout carries the results.
	comps.Operator = operator.NewTerminal(os.Stdin, os.Stderr, logger)
	return comps, nil
}
