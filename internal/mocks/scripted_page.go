package mocks

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/xkilldash9x/brandpilot/api/schemas"
)

// Screen is one rendered state of a ScriptedPage.
type Screen struct {
	Visible  []string
	Disabled []string
	Values   map[string]string
	Text     string
	// Next maps a clicked selector to the screen it leads to.
	Next map[string]string
}

// Typed records one Type call.
type Typed struct {
	Selector string
	Text     string
}

// ScriptedPage is a schemas.Page backed by a fixed set of screens. Clicks on
// a selector listed in the current screen's Next move to another screen.
// It is safe for concurrent use.
type ScriptedPage struct {
	mu       sync.Mutex
	screens  map[string]Screen
	start    string
	current  string
	url      string
	routes   map[string]string
	navErrs  map[string]error
	block    bool
	typed    []Typed
	clicks   []string
	values   map[string]string
	checked  map[string]bool
	visits   []string
	closed   bool
	closeErr error
}

// NewScriptedPage returns a page that shows start after any navigation
// without a route.
func NewScriptedPage(start string, screens map[string]Screen) *ScriptedPage {
	return &ScriptedPage{
		screens: screens,
		start:   start,
		current: start,
		routes:  make(map[string]string),
		navErrs: make(map[string]error),
		values:  make(map[string]string),
		checked: make(map[string]bool),
	}
}

// Route makes Navigate(url) show screen.
func (p *ScriptedPage) Route(url, screen string) *ScriptedPage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routes[url] = screen
	return p
}

// FailNavigation makes Navigate(url) return err.
func (p *ScriptedPage) FailNavigation(url string, err error) *ScriptedPage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navErrs[url] = err
	return p
}

// BlockNavigation makes every Navigate call hang until its context is done.
func (p *ScriptedPage) BlockNavigation() *ScriptedPage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.block = true
	return p
}

func (p *ScriptedPage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	p.visits = append(p.visits, url)
	block := p.block
	err := p.navErrs[url]
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
	if screen, ok := p.routes[url]; ok {
		p.current = screen
	} else {
		p.current = p.start
	}
	return nil
}

func (p *ScriptedPage) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *ScriptedPage) Visible(ctx context.Context, selector string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Contains(p.screen().Visible, selector), nil
}

func (p *ScriptedPage) Disabled(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Contains(p.screen().Disabled, selector), nil
}

func (p *ScriptedPage) Checked(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checked[selector], nil
}

func (p *ScriptedPage) Value(ctx context.Context, selector string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if v, ok := p.values[selector]; ok {
		return v, nil
	}
	return p.screen().Values[selector], nil
}

func (p *ScriptedPage) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.screen().Text, nil
}

func (p *ScriptedPage) Type(ctx context.Context, selector, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !slices.Contains(p.screen().Visible, selector) {
		return fmt.Errorf("element %q is not visible", selector)
	}
	p.typed = append(p.typed, Typed{Selector: selector, Text: text})
	p.values[selector] = text
	return nil
}

func (p *ScriptedPage) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !slices.Contains(p.screen().Visible, selector) {
		return fmt.Errorf("element %q is not visible", selector)
	}
	p.clicks = append(p.clicks, selector)
	if next, ok := p.screen().Next[selector]; ok {
		p.moveTo(next)
		return nil
	}
	p.checked[selector] = !p.checked[selector]
	return nil
}

func (p *ScriptedPage) ClickAndWaitNavigation(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !slices.Contains(p.screen().Visible, selector) {
		return fmt.Errorf("element %q is not visible", selector)
	}
	p.clicks = append(p.clicks, selector)
	next, ok := p.screen().Next[selector]
	if !ok {
		return schemas.ErrNavigationTimeout
	}
	p.moveTo(next)
	return nil
}

// SetCloseError makes Close return err.
func (p *ScriptedPage) SetCloseError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeErr = err
}

func (p *ScriptedPage) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return p.closeErr
}

// TypedKeys returns every Type call in order.
func (p *ScriptedPage) TypedKeys() []Typed {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.typed)
}

// Clicks returns every clicked selector in order.
func (p *ScriptedPage) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.clicks)
}

// Visits returns every URL passed to Navigate in order.
func (p *ScriptedPage) Visits() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.visits)
}

// IsChecked reports whether a checkbox was toggled on.
func (p *ScriptedPage) IsChecked(selector string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checked[selector]
}

// Current returns the name of the screen being shown.
func (p *ScriptedPage) Current() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Closed reports whether Close was called.
func (p *ScriptedPage) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *ScriptedPage) screen() Screen {
	return p.screens[p.current]
}

func (p *ScriptedPage) moveTo(name string) {
	p.current = name
	p.url = "https://scripted.test/" + name
}
