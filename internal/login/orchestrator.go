// Package login drives the seller sign-in flow in a browser tab: email,
// password, and an optional TOTP second factor.
package login

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/brandpilot/api/schemas"
	"github.com/xkilldash9x/brandpilot/internal/browser"
	"github.com/xkilldash9x/brandpilot/internal/config"
)

// State is a step of the sign-in flow.
type State string

const (
	Start                State = "Start"
	Navigated            State = "Navigated"
	AlreadyAuthenticated State = "AlreadyAuthenticated"
	NeedsEmail           State = "NeedsEmail"
	EmailSubmitted       State = "EmailSubmitted"
	NeedsPassword        State = "NeedsPassword"
	PasswordSubmitted    State = "PasswordSubmitted"
	TwoFactorRequired    State = "TwoFactorRequired"
	TwoFactorSubmitted   State = "TwoFactorSubmitted"
	Authenticated        State = "Authenticated"
	Failed               State = "Failed"
)

// Terminal reports whether s ends the flow.
func (s State) Terminal() bool {
	return s == AlreadyAuthenticated || s == Authenticated || s == Failed
}

// Result is the outcome of a Login call.
type Result struct {
	Final State
	Trace []State
}

// TraceStrings returns the trace in the form stored on a RunResult.
func (r Result) TraceStrings() []string {
	out := make([]string, len(r.Trace))
	for i, s := range r.Trace {
		out[i] = string(s)
	}
	return out
}

// Orchestrator signs a tab in.
type Orchestrator struct {
	cfg        config.LoginConfig
	classifier *Classifier
	codes      CodeGenerator
	log        *zap.Logger
}

// New returns an Orchestrator. codes may be nil, in which case TOTP with the
// wall clock is used.
func New(cfg config.LoginConfig, codes CodeGenerator, logger *zap.Logger) *Orchestrator {
	if codes == nil {
		codes = TOTP{}
	}
	log := logger.Named("login")
	return &Orchestrator{
		cfg:        cfg,
		classifier: NewClassifier(cfg, log),
		codes:      codes,
		log:        log,
	}
}

type stepFunc func(ctx context.Context) (State, error)

// session carries the inputs of one Login call.
type session struct {
	*Orchestrator
	page     schemas.Page
	creds    schemas.Credentials
	startURL string
}

// Login opens startURL in page and walks the flow until the tab is signed in
// or a step fails. The returned Result always carries the trace, including
// on error.
func (o *Orchestrator) Login(ctx context.Context, page schemas.Page, creds schemas.Credentials, startURL string) (Result, error) {
	s := &session{Orchestrator: o, page: page, creds: creds, startURL: startURL}
	steps := map[State]stepFunc{
		Start:              s.navigate,
		Navigated:          s.detect,
		NeedsEmail:         s.enterEmail,
		NeedsPassword:      s.enterPassword,
		EmailSubmitted:     s.enterPassword,
		PasswordSubmitted:  s.afterPassword,
		TwoFactorRequired:  s.enterCode,
		TwoFactorSubmitted: s.verify,
	}

	res := Result{Final: Start, Trace: []State{Start}}
	for !res.Final.Terminal() {
		step, ok := steps[res.Final]
		if !ok {
			return s.fail(res, fmt.Errorf("no step registered for state %s", res.Final))
		}
		next, err := step(ctx)
		if err != nil {
			return s.fail(res, err)
		}
		o.log.Info("Login state changed.", zap.String("from", string(res.Final)), zap.String("to", string(next)))
		res.Final = next
		res.Trace = append(res.Trace, next)
	}
	return res, nil
}

func (s *session) fail(res Result, err error) (Result, error) {
	s.log.Warn("Login failed.",
		zap.String("state", string(res.Final)),
		zap.String("code", string(schemas.CodeOf(err))),
		zap.Error(err))
	res.Final = Failed
	res.Trace = append(res.Trace, Failed)
	return res, err
}

func (s *session) navigate(ctx context.Context) (State, error) {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigationWait)
	defer cancel()
	if err := s.page.Navigate(navCtx, s.startURL); err != nil {
		if ctx.Err() != nil {
			return "", interrupted("navigate", ctx.Err())
		}
		return "", schemas.NewError(schemas.ErrCodeNavigation, "navigate", "failed to open the sign-in page", err)
	}
	return Navigated, nil
}

func (s *session) detect(ctx context.Context) (State, error) {
	state, err := s.classifier.Classify(ctx, s.page, PageAlreadyAuthenticated, PageNeedsPassword)
	if err != nil {
		return "", interrupted("detect", err)
	}
	switch state {
	case PageAlreadyAuthenticated:
		return AlreadyAuthenticated, nil
	case PageNeedsPassword:
		return NeedsPassword, nil
	default:
		return NeedsEmail, nil
	}
}

func (s *session) enterEmail(ctx context.Context) (State, error) {
	sel := s.cfg.Selectors
	if err := s.waitForField(ctx, "email", sel.Email); err != nil {
		return "", err
	}

	disabled, _ := s.page.Disabled(ctx, sel.Email)
	value, _ := s.page.Value(ctx, sel.Email)
	if disabled || strings.TrimSpace(value) != "" {
		s.log.Debug("Email field already filled, not typing.", zap.Bool("disabled", disabled))
	} else if err := s.page.Type(ctx, sel.Email, s.creds.Username); err != nil {
		return "", s.browserError(ctx, "email", "failed to type the email", err)
	}

	// Some variants show email and password on one form without a continue
	// button.
	if sel.Continue != "" {
		if visible, _ := s.page.Visible(ctx, sel.Continue); visible {
			if err := s.submit(ctx, "email", sel.Continue); err != nil {
				return "", err
			}
		}
	}
	return EmailSubmitted, nil
}

func (s *session) enterPassword(ctx context.Context) (State, error) {
	sel := s.cfg.Selectors
	if err := s.waitForField(ctx, "password", sel.Password); err != nil {
		return "", err
	}
	if err := s.page.Type(ctx, sel.Password, s.creds.Password); err != nil {
		return "", s.browserError(ctx, "password", "failed to type the password", err)
	}
	s.checkBox(ctx, sel.RememberMe)
	if err := s.submit(ctx, "password", sel.SignIn); err != nil {
		return "", err
	}
	return PasswordSubmitted, nil
}

func (s *session) afterPassword(ctx context.Context) (State, error) {
	state, err := s.classifier.Classify(ctx, s.page, PageCaptchaBlocked, PageTwoFactorRequired)
	if err != nil {
		return "", interrupted("password", err)
	}
	switch state {
	case PageCaptchaBlocked:
		return "", schemas.NewError(schemas.ErrCodeCaptchaDetected, "password", "captcha shown after password submit", nil)
	case PageTwoFactorRequired:
		return TwoFactorRequired, nil
	default:
		return s.verify(ctx)
	}
}

func (s *session) enterCode(ctx context.Context) (State, error) {
	sel := s.cfg.Selectors
	if err := s.waitForField(ctx, "two_factor", sel.OTP); err != nil {
		return "", err
	}
	code, err := s.codes.Code(s.creds.TwoFAKey)
	if err != nil {
		return "", schemas.NewError(schemas.ErrCodeConfiguration, "two_factor", "invalid two factor key", err)
	}
	if err := s.page.Type(ctx, sel.OTP, code); err != nil {
		return "", s.browserError(ctx, "two_factor", "failed to type the code", err)
	}
	s.checkBox(ctx, sel.RememberDevice)

	submit := sel.OTPSubmit
	if submit == "" {
		submit = sel.SignIn
	}
	if err := s.submit(ctx, "two_factor", submit); err != nil {
		return "", err
	}
	return TwoFactorSubmitted, nil
}

// verify waits for the post-submit page to settle and looks for an error
// banner.
func (s *session) verify(ctx context.Context) (State, error) {
	if err := browser.Sleep(ctx, s.cfg.Settle); err != nil {
		return "", interrupted("verify", err)
	}
	state, err := s.classifier.Classify(ctx, s.page, PageCaptchaBlocked, PageFailurePhraseMatched)
	if err != nil {
		return "", interrupted("verify", err)
	}
	switch state {
	case PageCaptchaBlocked:
		return "", schemas.NewError(schemas.ErrCodeCaptchaDetected, "verify", "captcha shown after sign-in", nil)
	case PageFailurePhraseMatched:
		return "", schemas.NewError(schemas.ErrCodeInvalidCredentials, "verify", "sign-in rejected by the provider", nil)
	}
	return Authenticated, nil
}

// waitForField polls for selector (a field or a submit button) and the
// captcha markers together, so a challenge page fails fast instead of
// waiting out FieldWait.
func (s *session) waitForField(ctx context.Context, step, selector string) error {
	blocked := false
	err := browser.Poll(ctx, s.cfg.Poll, s.cfg.FieldWait, func(ctx context.Context) (bool, error) {
		state, err := s.classifier.Classify(ctx, s.page, PageCaptchaBlocked)
		if err != nil {
			return false, err
		}
		if state == PageCaptchaBlocked {
			blocked = true
			return true, nil
		}
		visible, err := s.page.Visible(ctx, selector)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, nil
		}
		return visible, nil
	})
	switch {
	case errors.Is(err, browser.ErrWaitTimeout):
		return schemas.NewError(schemas.ErrCodeLoginFormNotFound, step,
			fmt.Sprintf("%s not found within %s", selector, s.cfg.FieldWait), nil)
	case err != nil:
		return interrupted(step, err)
	case blocked:
		return schemas.NewError(schemas.ErrCodeCaptchaDetected, step, "captcha shown instead of the sign-in form", nil)
	}
	return nil
}

// submit clicks selector and waits for the resulting navigation. The button
// must be visible first. A missed navigation after a landed click is fine;
// the next step checks the page anyway.
func (s *session) submit(ctx context.Context, step, selector string) error {
	if err := s.waitForField(ctx, step, selector); err != nil {
		return err
	}
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigationWait)
	defer cancel()
	err := s.page.ClickAndWaitNavigation(navCtx, selector)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return interrupted(step, ctx.Err())
	}
	if errors.Is(err, schemas.ErrNavigationTimeout) {
		s.log.Debug("No navigation after submit.", zap.String("step", step), zap.String("selector", selector))
		return nil
	}
	return s.browserError(ctx, step, "failed to submit", err)
}

// checkBox ticks an optional checkbox. Failures are logged and ignored.
func (s *session) checkBox(ctx context.Context, selector string) {
	if selector == "" {
		return
	}
	visible, err := s.page.Visible(ctx, selector)
	if err != nil || !visible {
		return
	}
	if checked, err := s.page.Checked(ctx, selector); err == nil && checked {
		return
	}
	if err := s.page.Click(ctx, selector); err != nil {
		s.log.Debug("Could not tick checkbox.", zap.String("selector", selector), zap.Error(err))
	}
}

func (s *session) browserError(ctx context.Context, step, msg string, err error) error {
	if ctx.Err() != nil {
		return interrupted(step, ctx.Err())
	}
	return schemas.NewError(schemas.ErrCodeBrowser, step, msg, err)
}

func interrupted(step string, err error) error {
	return schemas.NewError(schemas.ErrCodeTimeout, step, "login interrupted", err)
}
