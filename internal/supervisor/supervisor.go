// Package supervisor runs one sign-in from request to result. It owns the
// store connection, the browser and the run timer, and makes sure exactly
// one of completion or timeout performs cleanup.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/brandpilot/api/schemas"
	"github.com/xkilldash9x/brandpilot/internal/config"
	"github.com/xkilldash9x/brandpilot/internal/login"
	"github.com/xkilldash9x/brandpilot/internal/navigator"
	"github.com/xkilldash9x/brandpilot/internal/resolver"
)

// Process exit statuses.
const (
	ExitOK      = 0
	ExitFailed  = 1
	ExitTimeout = 2
)

// Store is the record store as seen by a run.
type Store interface {
	resolver.Reader
	Close()
}

// StoreOpener connects to the record store.
type StoreOpener func(ctx context.Context) (Store, error)

// Launcher starts the browser.
type Launcher func(ctx context.Context, headless bool) (schemas.Browser, error)

// Authenticator signs a tab in.
type Authenticator interface {
	Login(ctx context.Context, page schemas.Page, creds schemas.Credentials, startURL string) (login.Result, error)
}

// BrandNavigator opens brand pages after sign-in.
type BrandNavigator interface {
	Single(ctx context.Context, page schemas.Page, target schemas.BrandTarget) (string, error)
	ProcessBatch(ctx context.Context, opener navigator.Opener, targets []schemas.BrandTarget) []schemas.BrandOutcome
}

// Deps are the collaborators of a Supervisor.
type Deps struct {
	OpenStore StoreOpener
	// OpenVault builds the cipher for stored secrets. It fails on a missing
	// or short passphrase.
	OpenVault func() (resolver.Opener, error)
	// ResolveTimeout bounds loading the records. The run timer only starts
	// once they are loaded. Zero means no bound.
	ResolveTimeout time.Duration
	Launch    Launcher
	Login     Authenticator
	Navigator BrandNavigator
	Debug     config.DebugConfig
	// Emit receives the result exactly once per run.
	Emit func(*schemas.RunResult)
	// Exit terminates the process after a timeout. Defaults to a no-op so
	// the caller decides; the CLI passes os.Exit.
	Exit func(code int)
	Now  func() time.Time
}

// Supervisor runs sign-ins.
type Supervisor struct {
	deps Deps
	log  *zap.Logger
}

// New returns a Supervisor.
func New(deps Deps, logger *zap.Logger) *Supervisor {
	if deps.Emit == nil {
		deps.Emit = func(*schemas.RunResult) {}
	}
	if deps.Exit == nil {
		deps.Exit = func(int) {}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Supervisor{deps: deps, log: logger.Named("supervisor")}
}

// Handoff is a browser left open for the operator. The supervisor never
// closes it.
type Handoff struct {
	Browser schemas.Browser
	URL     string
}

// Release closes the handed-off browser once the operator is done.
func (h *Handoff) Release(ctx context.Context) error {
	if h == nil || h.Browser == nil {
		return nil
	}
	return h.Browser.Close(ctx)
}

// ExitCode maps a result to the process exit status.
func ExitCode(res *schemas.RunResult) int {
	switch {
	case res == nil:
		return ExitFailed
	case res.Succeeded():
		return ExitOK
	case res.Error != nil && res.Error.Code == schemas.ErrCodeTimeout:
		return ExitTimeout
	default:
		return ExitFailed
	}
}

// run is the state of one Run call shared with its timer.
type run struct {
	s   *Supervisor
	log *zap.Logger

	cancel   context.CancelFunc
	claimed  atomic.Bool
	timedOut chan struct{}

	mu       sync.Mutex
	timer    *time.Timer
	step     string
	res      schemas.RunResult
	cfg      schemas.RunConfig
	store    Store
	browser  schemas.Browser
	released bool
	final    *schemas.RunResult
}

// Run executes req and returns its result. A non-nil Handoff means the
// browser was deliberately left open.
func (s *Supervisor) Run(ctx context.Context, req schemas.RunRequest) (*schemas.RunResult, *Handoff) {
	id := uuid.NewString()
	r := &run{
		s:        s,
		log:      s.log.With(zap.String("run_id", id)),
		timedOut: make(chan struct{}),
		res: schemas.RunResult{
			RunID:     id,
			StartedAt: s.deps.Now().UTC(),
		},
	}
	ctx, r.cancel = context.WithCancel(ctx)
	defer r.cancel()

	r.log.Info("Run starting.", zap.String("account_ref", req.AccountRef), zap.String("brand_ref", req.BrandRef))
	handoff, err := r.execute(ctx, req)
	return r.finish(handoff, err)
}

func (r *run) execute(ctx context.Context, req schemas.RunRequest) (*Handoff, error) {
	d := r.s.deps

	r.setStep("validate_request")
	if err := resolver.ValidateRequest(req); err != nil {
		return nil, err
	}

	r.setStep("open_vault")
	cipher, err := d.OpenVault()
	if err != nil {
		return nil, err
	}

	r.setStep("open_store")
	store, err := d.OpenStore(ctx)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.store = store
	r.mu.Unlock()

	r.setStep("resolve")
	cfg, err := r.resolve(ctx, resolver.New(store, cipher, r.log), req)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.cfg = cfg
	r.res.Scope = cfg.Scope
	r.res.AccountName = cfg.AccountName
	if cfg.Brand != nil {
		r.res.BrandName = cfg.Brand.BrandName
	}
	r.mu.Unlock()

	r.setStep("validate_secrets")
	if err := checkSecrets(cfg.Credentials); err != nil {
		return nil, err
	}

	r.arm(cfg.Automation.Timeout())

	r.setStep("launch_browser")
	b, err := d.Launch(ctx, cfg.Automation.Headless)
	if err != nil {
		return nil, err
	}
	if !r.adoptBrowser(ctx, b) {
		return nil, ctx.Err()
	}
	page, err := b.NewPage(ctx)
	if err != nil {
		return nil, err
	}

	r.setStep("login")
	lr, err := d.Login.Login(ctx, page, cfg.Credentials, cfg.Automation.StartURL)
	r.mu.Lock()
	r.res.LoginTrace = lr.TraceStrings()
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}

	r.setStep("navigate")
	if cfg.Scope == schemas.ScopeBrand {
		final, err := d.Navigator.Single(ctx, page, *cfg.Brand)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.res.FinalURL = final
		r.mu.Unlock()
		return &Handoff{Browser: b, URL: final}, nil
	}

	outcomes := d.Navigator.ProcessBatch(ctx, b, cfg.Brands)
	final, err := page.URL(ctx)
	if err != nil {
		r.log.Debug("Could not read the signed-in tab url.", zap.Error(err))
	}
	r.mu.Lock()
	r.res.Brands = outcomes
	r.res.FinalURL = final
	r.mu.Unlock()
	return nil, nil
}

// finish runs on the Run goroutine. If the timer already claimed the run it
// waits for the timeout path and returns its result.
func (r *run) finish(handoff *Handoff, err error) (*schemas.RunResult, *Handoff) {
	if !r.claim() {
		<-r.timedOut
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.final, nil
	}

	res := r.snapshot()
	switch {
	case err != nil:
		res.Status = schemas.StatusFailed
		res.Error = report(err, r.currentStep())
		r.cleanup(true)
	case handoff != nil:
		res.Status = schemas.StatusHandoff
		// The store is no longer needed; the browser belongs to the operator.
		r.cleanup(false)
	default:
		res.Status = schemas.StatusCompleted
		r.cleanup(true)
	}
	r.complete(&res)

	if handoff != nil {
		r.log.Info("Handing the browser to the operator.", zap.String("url", handoff.URL))
	}
	return &res, handoff
}

// resolve loads the run configuration within the resolve bound. Running out
// of it is a timeout at the resolve step.
func (r *run) resolve(ctx context.Context, res *resolver.Resolver, req schemas.RunRequest) (schemas.RunConfig, error) {
	limit := r.s.deps.ResolveTimeout
	if limit <= 0 {
		return res.Resolve(ctx, req)
	}
	resolveCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()
	cfg, err := res.Resolve(resolveCtx, req)
	if err != nil && ctx.Err() == nil && errors.Is(resolveCtx.Err(), context.DeadlineExceeded) {
		return cfg, schemas.NewError(schemas.ErrCodeTimeout, "resolve",
			fmt.Sprintf("records not loaded within %s", limit), err)
	}
	return cfg, err
}

// arm starts the run timer. The timer and finish race through claim.
func (r *run) arm(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timer = time.AfterFunc(d, func() { r.onTimeout(d) })
	r.log.Debug("Run timer armed.", zap.Duration("timeout", d))
}

func (r *run) onTimeout(d time.Duration) {
	if !r.claim() {
		return
	}
	defer close(r.timedOut)

	step := r.currentStep()
	r.log.Error("Run timed out.", zap.Duration("timeout", d), zap.String("step", step))
	r.cancel()
	r.cleanup(true)

	res := r.snapshot()
	res.Status = schemas.StatusFailed
	res.Error = report(schemas.NewError(schemas.ErrCodeTimeout, step,
		fmt.Sprintf("run exceeded %s", d), nil), step)
	r.complete(&res)
	r.s.deps.Exit(ExitTimeout)
}

// claim returns true for exactly one caller.
func (r *run) claim() bool {
	if !r.claimed.CompareAndSwap(false, true) {
		return false
	}
	r.mu.Lock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.mu.Unlock()
	return true
}

// adoptBrowser records b for cleanup. A browser that finishes launching
// after the timeout is closed right away.
func (r *run) adoptBrowser(ctx context.Context, b schemas.Browser) bool {
	r.mu.Lock()
	if !r.released {
		r.browser = b
		r.mu.Unlock()
		return true
	}
	r.mu.Unlock()
	if err := b.Close(context.WithoutCancel(ctx)); err != nil {
		r.log.Warn("Closing late browser failed.", zap.Error(err))
	}
	return false
}

// cleanup closes the store, and the browser when closeBrowser is set.
func (r *run) cleanup(closeBrowser bool) {
	r.mu.Lock()
	store, b := r.store, r.browser
	r.store = nil
	if closeBrowser {
		r.browser = nil
		r.released = true
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if closeBrowser && b != nil {
		if err := b.Close(ctx); err != nil {
			r.log.Warn("Closing browser failed.", zap.Error(err))
		}
	}
	if store != nil {
		store.Close()
	}
}

// complete stamps the duration, writes the artifact and emits the result.
func (r *run) complete(res *schemas.RunResult) {
	res.DurationMs = r.s.deps.Now().Sub(res.StartedAt).Milliseconds()

	r.mu.Lock()
	r.final = res
	cfg := r.cfg
	r.mu.Unlock()

	if err := writeArtifact(r.s.deps.Debug, cfg, res, r.s.deps.Now()); err != nil {
		r.log.Warn("Could not write debug artifact.", zap.Error(err))
	}

	fields := []zap.Field{zap.String("status", string(res.Status)), zap.Int64("duration_ms", res.DurationMs)}
	if res.Error != nil {
		fields = append(fields, zap.String("code", string(res.Error.Code)), zap.String("step", res.Error.Step))
	}
	r.log.Info("Run finished.", fields...)
	r.s.deps.Emit(res)
}

func (r *run) setStep(step string) {
	r.mu.Lock()
	r.step = step
	r.mu.Unlock()
}

func (r *run) currentStep() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.step
}

func (r *run) snapshot() schemas.RunResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := r.res
	res.LoginTrace = append([]string(nil), r.res.LoginTrace...)
	res.Brands = append([]schemas.BrandOutcome(nil), r.res.Brands...)
	return res
}

func checkSecrets(c schemas.Credentials) error {
	var missing []string
	if strings.TrimSpace(c.Username) == "" {
		missing = append(missing, "username")
	}
	if strings.TrimSpace(c.Password) == "" {
		missing = append(missing, "password")
	}
	if strings.TrimSpace(c.TwoFAKey) == "" {
		missing = append(missing, "two_fa_key")
	}
	if len(missing) > 0 {
		return schemas.NewError(schemas.ErrCodeConfiguration, "validate_secrets",
			"missing required account fields: "+strings.Join(missing, ", "), nil)
	}
	return nil
}

func report(err error, step string) *schemas.ErrorReport {
	code := schemas.CodeOf(err)
	if code == "" {
		code = schemas.ErrCodeBrowser
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			code = schemas.ErrCodeTimeout
		}
	}
	if s := schemas.StepOf(err); s != "" {
		step = s
	}
	return &schemas.ErrorReport{Code: code, Step: step, Message: err.Error()}
}
