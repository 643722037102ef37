package cmd

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/brandpilot/api/schemas"
	"github.com/xkilldash9x/brandpilot/internal/config"
	"github.com/xkilldash9x/brandpilot/internal/mocks"
	"github.com/xkilldash9x/brandpilot/internal/store"
	"github.com/xkilldash9x/brandpilot/internal/vault"
)

const (
	testPassphrase = "cmd-test-passphrase-0123456789abcdef0123"
	testAccountID  = "6f1c2b9e-3d4a-4e5f-8a7b-9c0d1e2f3a4b"
)

// mockStoreProvider hands out stores backed by one pgxmock pool.
type mockStoreProvider struct {
	pool    pgxmock.PgxPoolIface
	creates atomic.Int32
}

func (p *mockStoreProvider) Create(ctx context.Context, _ config.Interface) (*store.Store, error) {
	p.creates.Add(1)
	return store.New(ctx, p.pool, zap.NewNop())
}

// fakeBrowser opens pages that are already signed in.
type fakeBrowser struct {
	mu       sync.Mutex
	pages    []*mocks.ScriptedPage
	closes   int
	headless []bool
}

func (b *fakeBrowser) NewPage(context.Context) (schemas.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := mocks.NewScriptedPage("home", map[string]mocks.Screen{
		"home": {Visible: []string{"#sc-navbar-container"}, Text: "Seller Central"},
	})
	b.pages = append(b.pages, p)
	return p, nil
}

func (b *fakeBrowser) Close(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	return nil
}

func (b *fakeBrowser) closeCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closes
}

func (b *fakeBrowser) firstPage() *mocks.ScriptedPage {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.pages) == 0 {
		return nil
	}
	return b.pages[0]
}

type testEnv struct {
	t        *testing.T
	pool     pgxmock.PgxPoolIface
	stores   *mockStoreProvider
	browser  *fakeBrowser
	launches atomic.Int32
	exits    atomic.Int32
}

// newTestEnv points configuration at temporary locations and builds a
// runtime backed by pgxmock and a fake browser.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv(config.PassphraseEnv, testPassphrase)
	t.Setenv("BRANDPILOT_DEBUG_ARTIFACT_DIR", t.TempDir())
	t.Setenv("BRANDPILOT_LOGIN_SETTLE", "0s")
	t.Setenv("BRANDPILOT_NAVIGATOR_SETTLE", "0s")
	t.Setenv("BRANDPILOT_LOGGER_LEVEL", "error")

	pool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	pool.MatchExpectationsInOrder(false)
	t.Cleanup(pool.Close)

	return &testEnv{
		t:       t,
		pool:    pool,
		stores:  &mockStoreProvider{pool: pool},
		browser: &fakeBrowser{},
	}
}

func (e *testEnv) runtime() runtime {
	return runtime{
		stores: e.stores,
		launch: func(_ context.Context, _ config.BrowserConfig, headless bool, _ *zap.Logger) (schemas.Browser, error) {
			e.launches.Add(1)
			e.browser.mu.Lock()
			e.browser.headless = append(e.browser.headless, headless)
			e.browser.mu.Unlock()
			return e.browser, nil
		},
		exit: func(code int) { e.exits.Add(1) },
	}
}

// execute runs the command tree with args and returns what was printed to stdout.
func (e *testEnv) execute(ctx context.Context, out io.Writer, stdin string, args ...string) error {
	root := newRootCommand(e.runtime())
	root.SetOut(out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (e *testEnv) run(stdin string, args ...string) (string, error) {
	var out bytes.Buffer
	err := e.execute(context.Background(), &out, stdin, args...)
	return out.String(), err
}

func (e *testEnv) seal(value string) string {
	bundle, err := vault.Encrypt(value, testPassphrase)
	require.NoError(e.t, err)
	return bundle
}

func (e *testEnv) expectAccount() {
	now := time.Now().UTC()
	e.pool.ExpectQuery(`FROM accounts WHERE account_name = \$1`).
		WithArgs("acme-main").
		WillReturnRows(pgxmock.NewRows([]string{"id", "account_name", "username", "password", "two_fa_key", "created_at", "updated_at"}).
			AddRow(testAccountID, "acme-main", "ops@acme.test", e.seal("hunter2-hunter2"), e.seal("JBSWY3DPEHPK3PXP"), now, now))
}

func (e *testEnv) expectNoSettings() {
	e.pool.ExpectQuery(`FROM automation_settings`).
		WillReturnRows(pgxmock.NewRows([]string{"headless", "timeout_ms", "start_url"}))
}

// sealedArg matches a value that is an encrypted bundle.
type sealedArg struct{}

func (sealedArg) Match(v any) bool {
	s, ok := v.(string)
	return ok && vault.IsEncrypted(s)
}

// cancelOnWrite cancels a context once something is written through it.
type cancelOnWrite struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	cancel context.CancelFunc
}

func (w *cancelOnWrite) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	n, err := w.buf.Write(p)
	w.cancel()
	return n, err
}

func (w *cancelOnWrite) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}
