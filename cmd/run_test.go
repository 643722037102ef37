package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/brandpilot/api/schemas"
	"github.com/xkilldash9x/brandpilot/internal/config"
	"github.com/xkilldash9x/brandpilot/internal/mocks"
)

func decodeResult(t *testing.T, out string) schemas.RunResult {
	t.Helper()
	var res schemas.RunResult
	require.NoError(t, json.Unmarshal([]byte(out), &res), "stdout must hold exactly one result: %q", out)
	return res
}

func TestRunAccountScopeCompletes(t *testing.T) {
	env := newTestEnv(t)
	env.pool.ExpectPing()
	env.expectAccount()
	env.pool.ExpectQuery(`FROM brands\s+WHERE account_id = \$1`).
		WithArgs(testAccountID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "brand_name", "brand_url", "marketplace", "account_id"}).
			AddRow("b-1", "Acme CA", "https://sc.test/brand/ca", "CA", testAccountID).
			AddRow("b-2", "Acme US", "", "US", testAccountID))
	env.expectNoSettings()

	out, err := env.run("", "run", "--account", "acme-main")
	require.NoError(t, err)

	res := decodeResult(t, out)
	assert.Equal(t, schemas.StatusCompleted, res.Status)
	assert.Equal(t, schemas.ScopeAccount, res.Scope)
	assert.Equal(t, "acme-main", res.AccountName)
	require.Len(t, res.Brands, 2)
	assert.Equal(t, schemas.OutcomeOK, res.Brands[0].Status)
	assert.Equal(t, schemas.OutcomeSkipped, res.Brands[1].Status)
	assert.NotContains(t, out, "hunter2")

	assert.Equal(t, 1, env.browser.closeCount())
	assert.Zero(t, env.exits.Load())
	assert.NoError(t, env.pool.ExpectationsWereMet())
}

func TestRunBrandScopeHandsOffUntilInterrupted(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now().UTC()
	env.pool.ExpectPing()
	env.pool.ExpectQuery(`FROM brands b\s+JOIN accounts a`).
		WithArgs("acme-us").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "brand_name", "brand_url", "marketplace", "account_id",
			"a_id", "account_name", "username", "password", "two_fa_key", "created_at", "updated_at",
		}).AddRow("b-1", "acme-us", "https://sc.test/brand/us", "US", testAccountID,
			testAccountID, "acme-main", "ops@acme.test", env.seal("hunter2-hunter2"), env.seal("JBSWY3DPEHPK3PXP"), now, now))
	env.expectNoSettings()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	out := &cancelOnWrite{cancel: cancel}

	done := make(chan error, 1)
	go func() { done <- env.execute(ctx, out, "", "run", "--brand", "acme-us") }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after the interrupt")
	}

	res := decodeResult(t, out.String())
	assert.Equal(t, schemas.StatusHandoff, res.Status)
	assert.Equal(t, "https://sc.test/brand/us", res.FinalURL)
	assert.Equal(t, 1, env.browser.closeCount(), "the browser is closed once the operator interrupts")
	assert.NoError(t, env.pool.ExpectationsWereMet())
}

func TestRunFlagsOverrideDefaults(t *testing.T) {
	env := newTestEnv(t)
	env.pool.ExpectPing()
	env.expectAccount()
	env.pool.ExpectQuery(`FROM brands\s+WHERE account_id = \$1`).
		WithArgs(testAccountID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "brand_name", "brand_url", "marketplace", "account_id"}))
	env.expectNoSettings()

	_, err := env.run("", "run", "-a", "acme-main", "--headless=false", "--start-url", "https://sc.test/signin")
	require.NoError(t, err)

	require.Equal(t, []bool{false}, env.browser.headless)
	page := env.browser.firstPage()
	require.NotNil(t, page)
	assert.Equal(t, []string{"https://sc.test/signin"}, page.Visits())
}

func TestRunUnknownAccountExitsOne(t *testing.T) {
	env := newTestEnv(t)
	env.pool.ExpectPing()
	env.pool.ExpectQuery(`FROM accounts WHERE account_name = \$1`).
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"id", "account_name", "username", "password", "two_fa_key", "created_at", "updated_at"}))

	out, err := env.run("", "run", "--account", "ghost")
	require.Error(t, err)
	assert.Equal(t, 1, ExitCodeOf(err))

	res := decodeResult(t, out)
	assert.Equal(t, schemas.StatusFailed, res.Status)
	require.NotNil(t, res.Error)
	assert.Equal(t, schemas.ErrCodeNotFound, res.Error.Code)
	assert.Zero(t, env.launches.Load())
}

func TestRunRejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no reference", []string{"run"}},
		{"both references", []string{"run", "--account", "a", "--brand", "b"}},
		{"negative timeout", []string{"run", "--account", "a", "--timeout-ms", "-5"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			out, err := env.run("", tc.args...)
			require.Error(t, err)
			assert.Equal(t, 1, ExitCodeOf(err))

			res := decodeResult(t, out)
			require.NotNil(t, res.Error)
			assert.Equal(t, schemas.ErrCodeConfiguration, res.Error.Code)
			assert.Zero(t, env.stores.creates.Load(), "the store is not opened for a bad request")
		})
	}
}

func TestRunWithoutPassphrase(t *testing.T) {
	env := newTestEnv(t)
	t.Setenv(config.PassphraseEnv, "")

	out, err := env.run("", "run", "--account", "acme-main")
	require.Error(t, err)

	res := decodeResult(t, out)
	require.NotNil(t, res.Error)
	assert.Equal(t, schemas.ErrCodeConfiguration, res.Error.Code)
	assert.Zero(t, env.launches.Load())
}

func TestExitCodeOf(t *testing.T) {
	assert.Equal(t, 0, ExitCodeOf(nil))
	assert.Equal(t, 1, ExitCodeOf(errors.New("flag parse")))
	assert.Equal(t, 2, ExitCodeOf(&ExitError{Code: 2}))

	wrapped := errors.Join(errors.New("context"), &ExitError{Code: 2, Err: errors.New("timed out")})
	assert.Equal(t, 2, ExitCodeOf(wrapped))
	assert.Equal(t, "exit status 3", (&ExitError{Code: 3}).Error())
}

func TestBindFlagsOnlyOverridesChangedFlags(t *testing.T) {
	v := viper.New()
	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags.Bool("headless", true, "")
	flags.Int("timeout-ms", 0, "")
	flags.String("start-url", "", "")

	require.NoError(t, bindFlags(v, flags, runFlagKeys))
	require.NoError(t, flags.Parse([]string{"--timeout-ms", "9000"}))

	o := config.Overrides(v)
	assert.Nil(t, o.Headless)
	assert.Nil(t, o.StartURL)
	require.NotNil(t, o.TimeoutMs)
	assert.Equal(t, 9000, *o.TimeoutMs)

	assert.Error(t, bindFlags(v, flags, map[string]string{"missing": "automation.missing"}))
}

func TestRunRunClosesBrowserWhenTabFails(t *testing.T) {
	env := newTestEnv(t)
	env.pool.ExpectPing()
	env.expectAccount()
	env.pool.ExpectQuery(`FROM brands\s+WHERE account_id = \$1`).
		WithArgs(testAccountID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "brand_name", "brand_url", "marketplace", "account_id"}))
	env.expectNoSettings()

	defaults := config.NewDefaultConfig()
	cfg := new(mocks.MockConfig)
	cfg.On("Vault").Return(config.VaultConfig{Passphrase: testPassphrase})
	cfg.On("Database").Return(defaults.Database())
	cfg.On("Browser").Return(defaults.Browser())
	cfg.On("Login").Return(defaults.Login())
	cfg.On("Navigator").Return(defaults.Navigator())
	cfg.On("Debug").Return(config.DebugConfig{Enabled: false})

	b := new(mocks.MockBrowser)
	b.On("NewPage", mock.Anything).Return(nil, errors.New("target closed"))
	b.On("Close", mock.Anything).Return(nil).Once()

	rt := env.runtime()
	rt.launch = func(context.Context, config.BrowserConfig, bool, *zap.Logger) (schemas.Browser, error) {
		return b, nil
	}

	var out bytes.Buffer
	err := runRun(context.Background(), &out, cfg, schemas.RunRequest{AccountRef: "acme-main"}, rt)
	require.Error(t, err)
	assert.Equal(t, 1, ExitCodeOf(err))

	res := decodeResult(t, out.String())
	require.NotNil(t, res.Error)
	assert.Equal(t, schemas.ErrCodeBrowser, res.Error.Code)
	b.AssertExpectations(t)
	cfg.AssertExpectations(t)
}
