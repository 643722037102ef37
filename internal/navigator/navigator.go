// Package navigator opens brand pages in a signed-in browser.
package navigator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/brandpilot/api/schemas"
	"github.com/xkilldash9x/brandpilot/internal/browser"
	"github.com/xkilldash9x/brandpilot/internal/config"
)

// Opener hands out new tabs that share the signed-in session.
type Opener interface {
	NewPage(ctx context.Context) (schemas.Page, error)
}

// Navigator visits brand URLs.
type Navigator struct {
	cfg       config.NavigatorConfig
	landmarks []string
	poll      time.Duration
	log       *zap.Logger
}

// New returns a Navigator that confirms a brand page by waiting for any of
// landmarks, checking every poll.
func New(cfg config.NavigatorConfig, landmarks []string, poll time.Duration, logger *zap.Logger) *Navigator {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Navigator{cfg: cfg, landmarks: landmarks, poll: poll, log: logger.Named("navigator")}
}

// Single moves the signed-in page to target and returns the URL it settled
// on. A brand without a URL leaves the page where it is.
func (n *Navigator) Single(ctx context.Context, page schemas.Page, target schemas.BrandTarget) (string, error) {
	log := n.log.With(zap.String("brand", target.BrandName))
	if strings.TrimSpace(target.BrandURL) == "" {
		log.Warn("Brand has no URL, staying on the current page.")
	} else {
		navCtx, cancel := context.WithTimeout(ctx, n.cfg.LandmarkWait)
		err := page.Navigate(navCtx, target.BrandURL)
		cancel()
		if err != nil {
			return "", schemas.NewError(schemas.ErrCodeNavigation, "navigate_brand",
				fmt.Sprintf("failed to open brand %q", target.BrandName), err)
		}
		if err := browser.Sleep(ctx, n.cfg.Settle); err != nil {
			return "", schemas.NewError(schemas.ErrCodeNavigation, "navigate_brand", "interrupted while settling", err)
		}
	}

	final, err := page.URL(ctx)
	if err != nil {
		return "", schemas.NewError(schemas.ErrCodeNavigation, "navigate_brand", "failed to read the final url", err)
	}
	log.Info("Brand page reached.", zap.String("requested", target.BrandURL), zap.String("final", final))
	return final, nil
}

// ProcessBatch visits every target in its own tab and returns one outcome
// per target, in input order. A failing brand never stops the others.
func (n *Navigator) ProcessBatch(ctx context.Context, opener Opener, targets []schemas.BrandTarget) []schemas.BrandOutcome {
	out := make([]schemas.BrandOutcome, len(targets))

	// A plain group: per-brand errors are outcomes, not group errors, so no
	// sibling is ever cancelled.
	var g errgroup.Group
	g.SetLimit(n.cfg.Concurrency)
	for i, t := range targets {
		if strings.TrimSpace(t.BrandURL) == "" {
			n.log.Info("Skipping brand without URL.", zap.String("brand", t.BrandName))
			out[i] = schemas.Skipped(t.BrandName)
			continue
		}
		g.Go(func() error {
			out[i] = n.visit(ctx, opener, t)
			return nil
		})
	}
	_ = g.Wait()

	ok, failed := 0, 0
	for _, o := range out {
		switch o.Status {
		case schemas.OutcomeOK:
			ok++
		case schemas.OutcomeError:
			failed++
		}
	}
	n.log.Info("Brand batch finished.", zap.Int("total", len(out)), zap.Int("ok", ok), zap.Int("failed", failed))
	return out
}

func (n *Navigator) visit(ctx context.Context, opener Opener, t schemas.BrandTarget) schemas.BrandOutcome {
	log := n.log.With(zap.String("brand", t.BrandName))

	page, err := opener.NewPage(ctx)
	if err != nil {
		log.Warn("Could not open a tab for brand.", zap.Error(err))
		return schemas.Failed(t.BrandName, err)
	}
	defer func() {
		if err := page.Close(context.WithoutCancel(ctx)); err != nil {
			log.Debug("Closing brand tab failed.", zap.Error(err))
		}
	}()

	navCtx, cancel := context.WithTimeout(ctx, n.cfg.LandmarkWait)
	err = page.Navigate(navCtx, t.BrandURL)
	cancel()
	if err != nil {
		log.Warn("Brand navigation failed.", zap.Error(err))
		return schemas.Failed(t.BrandName, schemas.NewError(schemas.ErrCodeNavigation, "navigate_brand", "navigation failed", err))
	}

	if err := n.waitForLandmark(ctx, page); err != nil {
		log.Warn("Brand page did not confirm the session.", zap.Error(err))
		return schemas.Failed(t.BrandName, err)
	}

	final, err := page.URL(ctx)
	if err != nil {
		return schemas.Failed(t.BrandName, schemas.NewError(schemas.ErrCodeNavigation, "navigate_brand", "failed to read the final url", err))
	}
	log.Info("Brand page confirmed.", zap.String("final", final))
	return schemas.Reached(t.BrandName, final)
}

func (n *Navigator) waitForLandmark(ctx context.Context, page schemas.Page) error {
	err := browser.Poll(ctx, n.poll, n.cfg.LandmarkWait, func(ctx context.Context) (bool, error) {
		for _, sel := range n.landmarks {
			visible, err := page.Visible(ctx, sel)
			if err != nil && ctx.Err() != nil {
				return false, ctx.Err()
			}
			if visible {
				return true, nil
			}
		}
		return false, nil
	})
	if errors.Is(err, browser.ErrWaitTimeout) {
		return schemas.NewError(schemas.ErrCodeNavigation, "landmark",
			fmt.Sprintf("no signed-in landmark within %s", n.cfg.LandmarkWait), nil)
	}
	if err != nil {
		return schemas.NewError(schemas.ErrCodeNavigation, "landmark", "interrupted", err)
	}
	return nil
}
