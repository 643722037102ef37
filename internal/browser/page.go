package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/brandpilot/api/schemas"
)

// cdpPage is a schemas.Page backed by one chromedp target.
type cdpPage struct {
	tabCtx context.Context
	// cancel closes the tab. It is nil for the initial tab, whose
	// cancellation would close the browser.
	cancel  context.CancelFunc
	typing  *rate.Limiter
	log     *zap.Logger
	closeMu sync.Mutex
	closed  bool
}

var _ schemas.Page = (*cdpPage)(nil)

func newPage(tabCtx context.Context, cancel context.CancelFunc, keystrokeDelay time.Duration, logger *zap.Logger) *cdpPage {
	return &cdpPage{
		tabCtx: tabCtx,
		cancel: cancel,
		typing: newKeystrokeLimiter(keystrokeDelay),
		log:    logger.Named("page"),
	}
}

// newKeystrokeLimiter allows one key per delay. A zero delay types as fast as
// the protocol allows.
func newKeystrokeLimiter(delay time.Duration) *rate.Limiter {
	if delay <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(delay), 1)
}

func (p *cdpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(p.tabCtx, ctx)
	defer cancel()
	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (p *cdpPage) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (p *cdpPage) URL(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

// quote renders s as a JavaScript string literal.
func quote(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

// elementScript evaluates body with el bound to the first match of selector.
// Invalid selectors and missing elements evaluate to fallback.
func elementScript(selector, body, fallback string) string {
	return fmt.Sprintf(`(() => {
  let el;
  try { el = document.querySelector(%s); } catch (e) { return %s; }
  if (!el) return %s;
  %s
})()`, quote(selector), fallback, fallback, body)
}

const visibleBody = `const style = window.getComputedStyle(el);
  if (style.display === 'none' || style.visibility === 'hidden' || style.opacity === '0') return false;
  const rect = el.getBoundingClientRect();
  return rect.width > 0 && rect.height > 0;`

func (p *cdpPage) evalBool(ctx context.Context, script string) (bool, error) {
	var out bool
	if err := p.run(ctx, chromedp.Evaluate(script, &out)); err != nil {
		return false, err
	}
	return out, nil
}

func (p *cdpPage) Visible(ctx context.Context, selector string) (bool, error) {
	return p.evalBool(ctx, elementScript(selector, visibleBody, "false"))
}

func (p *cdpPage) Disabled(ctx context.Context, selector string) (bool, error) {
	return p.evalBool(ctx, elementScript(selector, `return !!el.disabled || el.readOnly === true;`, "false"))
}

func (p *cdpPage) Checked(ctx context.Context, selector string) (bool, error) {
	return p.evalBool(ctx, elementScript(selector, `return !!el.checked;`, "false"))
}

func (p *cdpPage) Value(ctx context.Context, selector string) (string, error) {
	var out string
	script := elementScript(selector, `return typeof el.value === 'string' ? el.value : '';`, `''`)
	if err := p.run(ctx, chromedp.Evaluate(script, &out)); err != nil {
		return "", err
	}
	return out, nil
}

func (p *cdpPage) Text(ctx context.Context) (string, error) {
	var out string
	if err := p.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ''`, &out)); err != nil {
		return "", err
	}
	return out, nil
}

// Type clears selector and sends text one key at a time, paced by the
// keystroke limiter.
func (p *cdpPage) Type(ctx context.Context, selector, text string) error {
	if err := p.run(ctx,
		chromedp.Focus(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, "", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("focus %s: %w", selector, err)
	}
	for _, r := range text {
		if err := p.typing.Wait(ctx); err != nil {
			return err
		}
		if err := p.run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return fmt.Errorf("type into %s: %w", selector, err)
		}
	}
	return nil
}

func (p *cdpPage) Click(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// ClickAndWaitNavigation clicks selector and waits for the main frame to
// navigate or finish loading. It returns schemas.ErrNavigationTimeout only
// when the click landed and ctx expired before any navigation. A click that
// fails, including one whose target never became visible, is returned as
// a click error.
func (p *cdpPage) ClickAndWaitNavigation(ctx context.Context, selector string) error {
	listenCtx, stopListening := context.WithCancel(p.tabCtx)
	defer stopListening()

	navigated := make(chan struct{}, 1)
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame == nil || e.Frame.ParentID != "" {
				return
			}
		case *page.EventLoadEventFired:
		default:
			return
		}
		select {
		case navigated <- struct{}{}:
		default:
		}
	})

	return awaitNavigation(ctx, selector, func(ctx context.Context) error {
		return p.Click(ctx, selector)
	}, navigated)
}

// errClickFailed marks a submit whose click never happened.
var errClickFailed = errors.New("submit click failed")

// awaitNavigation runs click and then waits for navigated.
func awaitNavigation(ctx context.Context, selector string, click func(context.Context) error, navigated <-chan struct{}) error {
	if err := click(ctx); err != nil {
		return fmt.Errorf("%w on %s: %w", errClickFailed, selector, err)
	}

	select {
	case <-navigated:
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return schemas.ErrNavigationTimeout
		}
		return ctx.Err()
	}
}

// Close closes the tab. The initial tab only navigates away, since closing
// it would end the browser.
func (p *cdpPage) Close(ctx context.Context) error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	if p.cancel == nil {
		return p.run(ctx, chromedp.Navigate("about:blank"))
	}
	err := chromedp.Cancel(p.tabCtx)
	p.cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		p.log.Debug("Tab close reported an error", zap.Error(err))
	}
	return nil
}
