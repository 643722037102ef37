package login

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/brandpilot/api/schemas"
	"github.com/xkilldash9x/brandpilot/internal/config"
)

// PageState is what the rendered page says about the sign-in flow.
type PageState int

const (
	PageUnknown PageState = iota
	PageAlreadyAuthenticated
	PageNeedsEmail
	PageNeedsPassword
	PageTwoFactorRequired
	PageCaptchaBlocked
	PageFailurePhraseMatched
)

func (s PageState) String() string {
	switch s {
	case PageAlreadyAuthenticated:
		return "AlreadyAuthenticated"
	case PageNeedsEmail:
		return "NeedsEmail"
	case PageNeedsPassword:
		return "NeedsPassword"
	case PageTwoFactorRequired:
		return "TwoFactorRequired"
	case PageCaptchaBlocked:
		return "CaptchaBlocked"
	case PageFailurePhraseMatched:
		return "FailurePhraseMatched"
	default:
		return "Unknown"
	}
}

// priority is the order candidates are evaluated in. A challenge page wins
// over everything else, and an error banner wins over the form it sits on.
var priority = []PageState{
	PageCaptchaBlocked,
	PageFailurePhraseMatched,
	PageAlreadyAuthenticated,
	PageTwoFactorRequired,
	PageNeedsPassword,
	PageNeedsEmail,
}

// Snapshot is the part of the rendered page the predicates look at.
type Snapshot struct {
	// Text is the lowercased body text. Empty unless a text rule was needed.
	Text    string
	visible map[string]bool
}

// Visible reports whether selector was rendered when the snapshot was taken.
func (s Snapshot) Visible(selector string) bool {
	return s.visible[selector]
}

func (s Snapshot) anyVisible(selectors []string) bool {
	for _, sel := range selectors {
		if s.visible[sel] {
			return true
		}
	}
	return false
}

func (s Snapshot) contains(phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(s.Text, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

type rule struct {
	selectors []string
	text      bool
	match     func(Snapshot) bool
}

// Classifier maps a page to a PageState using the configured selectors and
// phrases.
type Classifier struct {
	rules map[PageState]rule
	log   *zap.Logger
}

// NewClassifier builds the predicate table from cfg.
func NewClassifier(cfg config.LoginConfig, logger *zap.Logger) *Classifier {
	sel := cfg.Selectors
	var otp []string
	if sel.OTP != "" {
		otp = []string{sel.OTP}
	}
	return &Classifier{
		log: logger,
		rules: map[PageState]rule{
			PageCaptchaBlocked: {
				selectors: cfg.CaptchaSelectors,
				match:     func(s Snapshot) bool { return s.anyVisible(cfg.CaptchaSelectors) },
			},
			PageFailurePhraseMatched: {
				text:  true,
				match: func(s Snapshot) bool { return s.contains(cfg.FailurePhrases) },
			},
			PageAlreadyAuthenticated: {
				selectors: cfg.LandmarkSelectors,
				match:     func(s Snapshot) bool { return s.anyVisible(cfg.LandmarkSelectors) },
			},
			PageTwoFactorRequired: {
				selectors: otp,
				text:      len(cfg.TwoFactorPhrases) > 0,
				match: func(s Snapshot) bool {
					return s.anyVisible(otp) || s.contains(cfg.TwoFactorPhrases)
				},
			},
			PageNeedsPassword: {
				selectors: []string{sel.Password},
				match:     func(s Snapshot) bool { return s.Visible(sel.Password) },
			},
			PageNeedsEmail: {
				selectors: []string{sel.Email},
				match:     func(s Snapshot) bool { return s.Visible(sel.Email) },
			},
		},
	}
}

// Snapshot reads only what the candidate rules need. Probe errors count as
// "not rendered" since the page may be mid-navigation; only a done context
// is reported.
func (c *Classifier) Snapshot(ctx context.Context, page schemas.Page, candidates ...PageState) (Snapshot, error) {
	snap := Snapshot{visible: make(map[string]bool)}
	needText := false
	for _, state := range candidates {
		r, ok := c.rules[state]
		if !ok {
			continue
		}
		needText = needText || r.text
		for _, sel := range r.selectors {
			if _, seen := snap.visible[sel]; seen || sel == "" {
				continue
			}
			ok, err := page.Visible(ctx, sel)
			if err != nil {
				if ctx.Err() != nil {
					return Snapshot{}, ctx.Err()
				}
				c.log.Debug("Visibility probe failed.", zap.String("selector", sel), zap.Error(err))
			}
			snap.visible[sel] = ok && err == nil
		}
	}
	if needText {
		text, err := page.Text(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Snapshot{}, ctx.Err()
			}
			c.log.Debug("Text probe failed.", zap.Error(err))
		}
		snap.Text = strings.ToLower(text)
	}
	return snap, nil
}

// Match returns the first candidate, in priority order, whose predicate
// holds for snap. It returns PageUnknown when none does.
func (c *Classifier) Match(snap Snapshot, candidates ...PageState) PageState {
	for _, state := range priority {
		if !has(candidates, state) {
			continue
		}
		if c.rules[state].match(snap) {
			return state
		}
	}
	return PageUnknown
}

// Classify takes a snapshot for candidates and matches it.
func (c *Classifier) Classify(ctx context.Context, page schemas.Page, candidates ...PageState) (PageState, error) {
	snap, err := c.Snapshot(ctx, page, candidates...)
	if err != nil {
		return PageUnknown, err
	}
	return c.Match(snap, candidates...), nil
}

func has(states []PageState, s PageState) bool {
	for _, x := range states {
		if x == s {
			return true
		}
	}
	return false
}
