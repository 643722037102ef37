package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/brandpilot/api/schemas"
	"github.com/xkilldash9x/brandpilot/internal/browser"
	"github.com/xkilldash9x/brandpilot/internal/config"
	"github.com/xkilldash9x/brandpilot/internal/login"
	"github.com/xkilldash9x/brandpilot/internal/observability"
	"github.com/xkilldash9x/brandpilot/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// storeProvider defines an interface for components that can open the record
// store. Tests inject a provider backed by pgxmock.
type storeProvider interface {
	Create(ctx context.Context, cfg config.Interface) (*store.Store, error)
}

// defaultStoreProvider connects to PostgreSQL using database.url.
type defaultStoreProvider struct{}

func (defaultStoreProvider) Create(ctx context.Context, cfg config.Interface) (*store.Store, error) {
	return store.Connect(ctx, cfg.Database(), observability.GetLogger())
}

// launcher starts a browser.
type launcher func(ctx context.Context, cfg config.BrowserConfig, headless bool, logger *zap.Logger) (schemas.Browser, error)

// runtime is everything a command touches outside the process.
type runtime struct {
	stores storeProvider
	launch launcher
	// exit ends the process after a run timeout.
	exit func(code int)
	// codes overrides the TOTP generator; nil uses the wall clock.
	codes login.CodeGenerator
}

func defaultRuntime() runtime {
	return runtime{
		stores: defaultStoreProvider{},
		launch: launchChrome,
		exit: func(code int) {
			observability.Sync()
			os.Exit(code)
		},
	}
}

func launchChrome(ctx context.Context, cfg config.BrowserConfig, headless bool, logger *zap.Logger) (schemas.Browser, error) {
	m, err := browser.Launch(ctx, cfg, headless, logger)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// writeJSON prints v as indented JSON followed by a newline.
func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
