package resolver_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/brandpilot/api/schemas"
	"github.com/xkilldash9x/brandpilot/internal/mocks"
	"github.com/xkilldash9x/brandpilot/internal/resolver"
	"github.com/xkilldash9x/brandpilot/internal/vault"
)

const passphrase = "resolver-test-passphrase-0123456789abcdef"

func ptr[T any](v T) *T { return &v }

func sealedAccount(t *testing.T, c *vault.Cipher) *schemas.Account {
	t.Helper()
	pw, err := c.Seal("hunter2")
	require.NoError(t, err)
	key, err := c.Seal("JBSWY3DPEHPK3PXP")
	require.NoError(t, err)
	return &schemas.Account{
		ID:          "6f1c1f1e-2b7a-4a57-9df2-6f1e7d3f4a10",
		AccountName: "acme-main",
		Username:    "ops@acme.test",
		Password:    pw,
		TwoFAKey:    key,
	}
}

func newCipher(t *testing.T) *vault.Cipher {
	t.Helper()
	c, err := vault.NewCipher(passphrase)
	require.NoError(t, err)
	return c
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     schemas.RunRequest
		wantErr bool
	}{
		{"neither", schemas.RunRequest{}, true},
		{"blank", schemas.RunRequest{AccountRef: "  "}, true},
		{"both", schemas.RunRequest{AccountRef: "a", BrandRef: "b"}, true},
		{"account", schemas.RunRequest{AccountRef: "a"}, false},
		{"brand", schemas.RunRequest{BrandRef: "b"}, false},
		{"bad timeout", schemas.RunRequest{BrandRef: "b", Overrides: schemas.Overrides{TimeoutMs: ptr(0)}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := resolver.ValidateRequest(tt.req)
			if tt.wantErr {
				assert.ErrorIs(t, err, schemas.ErrConfiguration)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestResolve_BrandScope(t *testing.T) {
	ctx := context.Background()
	c := newCipher(t)
	acct := sealedAccount(t, c)

	store := &mocks.MockRecordReader{}
	store.On("BrandByRef", mock.Anything, "Acme Widgets").Return(&schemas.Brand{
		ID:          "b-1",
		BrandName:   "Acme Widgets",
		BrandURL:    "https://sellercentral.amazon.com/brand/acme",
		Marketplace: schemas.MarketplaceUS,
		AccountID:   acct.ID,
		Account:     acct,
	}, nil)
	store.On("AutomationSettings", mock.Anything).Return(nil, nil)

	core, logs := observer.New(zap.InfoLevel)
	r := resolver.New(store, c, zap.New(core))

	cfg, err := r.Resolve(ctx, schemas.RunRequest{BrandRef: "Acme Widgets"})
	require.NoError(t, err)

	want := schemas.RunConfig{
		Scope:       schemas.ScopeBrand,
		AccountID:   acct.ID,
		AccountName: "acme-main",
		Credentials: schemas.Credentials{Username: "ops@acme.test", Password: "hunter2", TwoFAKey: "JBSWY3DPEHPK3PXP"},
		Brand:       &schemas.BrandTarget{BrandName: "Acme Widgets", BrandURL: "https://sellercentral.amazon.com/brand/acme"},
		Automation:  schemas.Automation{Headless: true, TimeoutMs: 180000, StartURL: resolver.DefaultStartURL},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("RunConfig mismatch (-want +got):\n%s", diff)
	}
	store.AssertExpectations(t)
	store.AssertNotCalled(t, "AccountByRef", mock.Anything, mock.Anything, mock.Anything)

	for _, entry := range logs.All() {
		for _, v := range entry.ContextMap() {
			assert.NotEqual(t, "hunter2", v)
			assert.NotEqual(t, "JBSWY3DPEHPK3PXP", v)
		}
	}
}

func TestResolve_AccountScope(t *testing.T) {
	ctx := context.Background()
	c := newCipher(t)
	acct := sealedAccount(t, c)

	store := &mocks.MockRecordReader{}
	store.On("AccountByRef", mock.Anything, "acme-main", true).Return(acct, nil)
	store.On("BrandsByAccount", mock.Anything, acct.ID).Return([]schemas.Brand{
		{BrandName: "Alpha", BrandURL: "https://a.test"},
		{BrandName: "Beta", BrandURL: ""},
		{BrandName: "Gamma", BrandURL: "https://g.test"},
	}, nil)
	store.On("AutomationSettings", mock.Anything).Return(&schemas.AutomationSettings{
		Headless: ptr(false),
		StartURL: ptr("https://stored.test/home"),
	}, nil)

	r := resolver.New(store, c, zap.NewNop())
	cfg, err := r.Resolve(ctx, schemas.RunRequest{
		AccountRef: "acme-main",
		Overrides:  schemas.Overrides{TimeoutMs: ptr(5000)},
	})
	require.NoError(t, err)

	assert.Equal(t, schemas.ScopeAccount, cfg.Scope)
	assert.Nil(t, cfg.Brand)
	assert.Equal(t, []schemas.BrandTarget{
		{BrandName: "Alpha", BrandURL: "https://a.test"},
		{BrandName: "Beta"},
		{BrandName: "Gamma", BrandURL: "https://g.test"},
	}, cfg.Brands)
	assert.Equal(t, schemas.Automation{Headless: false, TimeoutMs: 5000, StartURL: "https://stored.test/home"}, cfg.Automation)
	assert.Equal(t, "hunter2", cfg.Credentials.Password)
}

func TestResolve_AccountWithoutBrands(t *testing.T) {
	c := newCipher(t)
	acct := sealedAccount(t, c)

	store := &mocks.MockRecordReader{}
	store.On("AccountByRef", mock.Anything, acct.ID, true).Return(acct, nil)
	store.On("BrandsByAccount", mock.Anything, acct.ID).Return([]schemas.Brand{}, nil)
	store.On("AutomationSettings", mock.Anything).Return(nil, nil)

	cfg, err := resolver.New(store, c, zap.NewNop()).Resolve(context.Background(), schemas.RunRequest{AccountRef: acct.ID})
	require.NoError(t, err)
	assert.NotNil(t, cfg.Brands)
	assert.Empty(t, cfg.Brands)
}

func TestResolve_Failures(t *testing.T) {
	ctx := context.Background()
	c := newCipher(t)

	t.Run("missing brand", func(t *testing.T) {
		store := &mocks.MockRecordReader{}
		store.On("BrandByRef", mock.Anything, "ghost").
			Return(nil, schemas.NewError(schemas.ErrCodeNotFound, "load_brand", `brand "ghost" not found`, nil))

		_, err := resolver.New(store, c, zap.NewNop()).Resolve(ctx, schemas.RunRequest{BrandRef: "ghost"})
		assert.ErrorIs(t, err, schemas.ErrNotFound)
		store.AssertNotCalled(t, "AutomationSettings", mock.Anything)
	})

	t.Run("plaintext secret in store", func(t *testing.T) {
		acct := sealedAccount(t, c)
		acct.TwoFAKey = "JBSWY3DPEHPK3PXP"
		store := &mocks.MockRecordReader{}
		store.On("AccountByRef", mock.Anything, "acme-main", true).Return(acct, nil)

		_, err := resolver.New(store, c, zap.NewNop()).Resolve(ctx, schemas.RunRequest{AccountRef: "acme-main"})
		require.Error(t, err)
		assert.ErrorIs(t, err, schemas.ErrDecryption)
		assert.Equal(t, "decrypt_two_fa_key", schemas.StepOf(err))
		assert.NotContains(t, err.Error(), "JBSWY3DPEHPK3PXP")
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		acct := sealedAccount(t, c)
		other, err := vault.NewCipher("a-completely-different-passphrase-xyz")
		require.NoError(t, err)
		store := &mocks.MockRecordReader{}
		store.On("AccountByRef", mock.Anything, "acme-main", true).Return(acct, nil)

		_, err = resolver.New(store, other, zap.NewNop()).Resolve(ctx, schemas.RunRequest{AccountRef: "acme-main"})
		assert.ErrorIs(t, err, schemas.ErrDecryption)
		assert.Equal(t, "decrypt_password", schemas.StepOf(err))
	})

	t.Run("settings failure", func(t *testing.T) {
		acct := sealedAccount(t, c)
		store := &mocks.MockRecordReader{}
		store.On("AccountByRef", mock.Anything, "acme-main", true).Return(acct, nil)
		store.On("BrandsByAccount", mock.Anything, acct.ID).Return([]schemas.Brand{}, nil)
		store.On("AutomationSettings", mock.Anything).Return(nil, schemas.NewError(schemas.ErrCodeStore, "load_settings", "query failed", errors.New("boom")))

		_, err := resolver.New(store, c, zap.NewNop()).Resolve(ctx, schemas.RunRequest{AccountRef: "acme-main"})
		assert.ErrorIs(t, err, schemas.ErrStore)
	})

	t.Run("invalid request never touches the store", func(t *testing.T) {
		store := &mocks.MockRecordReader{}
		_, err := resolver.New(store, c, zap.NewNop()).Resolve(ctx, schemas.RunRequest{AccountRef: "a", BrandRef: "b"})
		assert.ErrorIs(t, err, schemas.ErrConfiguration)
		store.AssertExpectations(t)
	})
}

func TestMergeAutomation(t *testing.T) {
	stored := &schemas.AutomationSettings{Headless: ptr(false), TimeoutMs: ptr(60000), StartURL: ptr("https://stored.test")}

	tests := []struct {
		name   string
		o      schemas.Overrides
		stored *schemas.AutomationSettings
		want   schemas.Automation
	}{
		{
			name: "defaults",
			want: schemas.Automation{Headless: true, TimeoutMs: 180000, StartURL: resolver.DefaultStartURL},
		},
		{
			name:   "stored beats default",
			stored: stored,
			want:   schemas.Automation{Headless: false, TimeoutMs: 60000, StartURL: "https://stored.test"},
		},
		{
			name:   "override beats stored",
			o:      schemas.Overrides{Headless: ptr(true), TimeoutMs: ptr(1000), StartURL: ptr("https://override.test")},
			stored: stored,
			want:   schemas.Automation{Headless: true, TimeoutMs: 1000, StartURL: "https://override.test"},
		},
		{
			name:   "per field",
			o:      schemas.Overrides{TimeoutMs: ptr(1000)},
			stored: &schemas.AutomationSettings{Headless: ptr(false)},
			want:   schemas.Automation{Headless: false, TimeoutMs: 1000, StartURL: resolver.DefaultStartURL},
		},
		{
			name:   "explicit false override",
			o:      schemas.Overrides{Headless: ptr(false)},
			want:   schemas.Automation{Headless: false, TimeoutMs: 180000, StartURL: resolver.DefaultStartURL},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolver.MergeAutomation(tt.o, tt.stored))
		})
	}
}

func TestResolveLeavesMissingSecretEmpty(t *testing.T) {
	c := newCipher(t)
	acct := sealedAccount(t, c)
	acct.TwoFAKey = ""

	store := new(mocks.MockRecordReader)
	store.On("AccountByRef", mock.Anything, "acme-main", true).Return(acct, nil)
	store.On("BrandsByAccount", mock.Anything, acct.ID).Return([]schemas.Brand{}, nil)
	store.On("AutomationSettings", mock.Anything).Return(nil, nil)

	cfg, err := resolver.New(store, c, zap.NewNop()).Resolve(context.Background(), schemas.RunRequest{AccountRef: "acme-main"})
	require.NoError(t, err)
	assert.Equal(t, "hunter2", cfg.Credentials.Password)
	assert.Empty(t, cfg.Credentials.TwoFAKey)
}
