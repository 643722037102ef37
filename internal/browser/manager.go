// Package browser drives a single Chrome process over the DevTools protocol.
package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/brandpilot/api/schemas"
	"github.com/xkilldash9x/brandpilot/internal/browser/stealth"
	"github.com/xkilldash9x/brandpilot/internal/config"
)

// Manager owns one browser process and hands out its tabs.
type Manager struct {
	log     *zap.Logger
	cfg     config.BrowserConfig
	persona stealth.Persona

	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu         sync.Mutex
	initialTab bool
	closed     bool
}

var _ schemas.Browser = (*Manager)(nil)

// Launch starts the browser and waits until it answers. The process is not
// tied to ctx: it lives until Close is called.
func Launch(ctx context.Context, cfg config.BrowserConfig, headless bool, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		log:     logger.Named("browser"),
		cfg:     cfg,
		persona: stealth.PersonaFromConfig(cfg),
	}

	opts := AllocatorOptions(cfg, headless, m.persona.UserAgent)
	m.allocCtx, m.allocCancel = chromedp.NewExecAllocator(Detach(ctx), opts...)

	ctxOpts := []chromedp.ContextOption{chromedp.WithErrorf(m.log.Sugar().Debugf)}
	if cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(m.log.Sugar().Debugf))
	}
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocCtx, ctxOpts...)

	timeout := cfg.LaunchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	launchCtx, cancel := CombineContext(m.browserCtx, ctx)
	defer cancel()
	launchCtx, cancelTimeout := context.WithTimeout(launchCtx, timeout)
	defer cancelTimeout()

	// The first Run starts the process and attaches the initial tab.
	if err := chromedp.Run(launchCtx, chromedp.Navigate("about:blank")); err != nil {
		m.browserCancel()
		m.allocCancel()
		return nil, schemas.NewError(schemas.ErrCodeBrowser, "launch_browser", "browser failed to start or respond", err)
	}

	m.log.Info("Browser launched", zap.Bool("headless", headless))
	return m, nil
}

// NewPage returns a tab with the stealth profile applied. The first call
// reuses the tab opened at launch.
func (m *Manager) NewPage(ctx context.Context) (schemas.Page, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, schemas.NewError(schemas.ErrCodeBrowser, "open_tab", "browser is closed", nil)
	}
	reuse := !m.initialTab
	m.initialTab = true
	m.mu.Unlock()

	tabCtx, cancel := m.browserCtx, context.CancelFunc(nil)
	if !reuse {
		tabCtx, cancel = chromedp.NewContext(m.browserCtx)
	}

	setupCtx, stop := CombineContext(tabCtx, ctx)
	defer stop()

	var tasks chromedp.Tasks
	if m.cfg.Stealth {
		tasks = append(tasks, stealth.Apply(m.persona, m.log))
	}
	if err := chromedp.Run(setupCtx, tasks...); err != nil {
		if cancel != nil {
			cancel()
		}
		return nil, schemas.NewError(schemas.ErrCodeBrowser, "open_tab", "failed to prepare tab", err)
	}

	return newPage(tabCtx, cancel, m.cfg.KeystrokeDelay, m.log), nil
}

// Close terminates the browser process. Later calls are no-ops.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		// Cancel on the first browser context closes the whole browser.
		done <- chromedp.Cancel(m.browserCtx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
		m.log.Warn("Graceful browser shutdown timed out, killing process")
	}
	m.browserCancel()
	m.allocCancel()
	m.log.Info("Browser closed")
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("browser: close: %w", err)
	}
	return nil
}

// AllocatorFlags returns the Chrome command line flags for a run, keyed by
// flag name without the leading dashes.
func AllocatorFlags(cfg config.BrowserConfig, headless bool) map[string]interface{} {
	flags := map[string]interface{}{
		"headless":               headless,
		"disable-blink-features": "AutomationControlled",
		"disable-extensions":     true,
		"disable-infobars":       true,
	}
	if cfg.Locale != "" {
		flags["lang"] = cfg.Locale
	}
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		flags["window-size"] = fmt.Sprintf("%d,%d", cfg.ViewportWidth, cfg.ViewportHeight)
	}
	if headless {
		flags["disable-gpu"] = true
	}
	if runtime.GOOS == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
	}
	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			flags[name] = parts[1]
		} else {
			flags[name] = true
		}
	}
	return flags
}

// AllocatorOptions starts from chromedp's defaults, drops the flag that
// announces automation, and adds AllocatorFlags.
func AllocatorOptions(cfg config.BrowserConfig, headless bool, userAgent string) []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption
	for _, opt := range chromedp.DefaultExecAllocatorOptions {
		opts = append(opts, opt)
	}
	// Flags are applied in order, so later values win.
	opts = append(opts, chromedp.Flag("enable-automation", false))

	flags := AllocatorFlags(cfg, headless)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}

	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}
