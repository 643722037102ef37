package schemas

import (
	"context"
	"errors"
)

// ErrNavigationTimeout is returned by Page.ClickAndWaitNavigation when the
// click landed but no navigation was observed in time. Callers usually
// tolerate it, since some pages transition through client side rendering.
// A click that could not be performed is never reported this way.
var ErrNavigationTimeout = errors.New("navigation not observed before timeout")

// Page is a single browser tab.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	// Visible reports whether selector matches an element that is rendered.
	Visible(ctx context.Context, selector string) (bool, error)
	Disabled(ctx context.Context, selector string) (bool, error)
	Checked(ctx context.Context, selector string) (bool, error)
	Value(ctx context.Context, selector string) (string, error)
	// Text returns the rendered text of the document body.
	Text(ctx context.Context) (string, error)
	// Type focuses selector and types text one key at a time.
	Type(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	ClickAndWaitNavigation(ctx context.Context, selector string) error
	Close(ctx context.Context) error
}

// Browser owns the browser process and hands out tabs.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}
