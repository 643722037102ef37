// Package resolver turns a run request into an immutable RunConfig: it loads
// the records, opens the secrets and merges the automation settings.
package resolver

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/brandpilot/api/schemas"
	"github.com/xkilldash9x/brandpilot/internal/observability"
)

// Built-in automation defaults, used when neither an override nor a stored
// value is present.
const (
	DefaultHeadless  = true
	DefaultTimeoutMs = 180000
	DefaultStartURL  = "https://sellercentral.amazon.com/home"
)

// Reader is the read side of the record store.
type Reader interface {
	AccountByRef(ctx context.Context, ref string, withSecrets bool) (*schemas.Account, error)
	BrandByRef(ctx context.Context, ref string) (*schemas.Brand, error)
	BrandsByAccount(ctx context.Context, accountID string) ([]schemas.Brand, error)
	AutomationSettings(ctx context.Context) (*schemas.AutomationSettings, error)
}

// Opener decrypts a stored secret.
type Opener interface {
	Open(bundle string) (string, error)
}

// Resolver builds RunConfigs.
type Resolver struct {
	store  Reader
	cipher Opener
	log    *zap.Logger
}

// New returns a Resolver reading from store and decrypting with cipher.
func New(store Reader, cipher Opener, logger *zap.Logger) *Resolver {
	return &Resolver{store: store, cipher: cipher, log: logger.Named("resolver")}
}

// ValidateRequest checks that exactly one of AccountRef and BrandRef is set.
func ValidateRequest(req schemas.RunRequest) error {
	account, brand := strings.TrimSpace(req.AccountRef), strings.TrimSpace(req.BrandRef)
	switch {
	case account == "" && brand == "":
		return schemas.NewError(schemas.ErrCodeConfiguration, "validate_request", "one of account or brand is required", nil)
	case account != "" && brand != "":
		return schemas.NewError(schemas.ErrCodeConfiguration, "validate_request", "account and brand are mutually exclusive", nil)
	}
	if t := req.Overrides.TimeoutMs; t != nil && *t <= 0 {
		return schemas.NewError(schemas.ErrCodeConfiguration, "validate_request",
			fmt.Sprintf("timeout must be positive, got %dms", *t), nil)
	}
	return nil
}

// Resolve loads everything a run needs. Nothing is written back to the store.
func (r *Resolver) Resolve(ctx context.Context, req schemas.RunRequest) (schemas.RunConfig, error) {
	if err := ValidateRequest(req); err != nil {
		return schemas.RunConfig{}, err
	}

	var (
		cfg schemas.RunConfig
		err error
	)
	if ref := strings.TrimSpace(req.BrandRef); ref != "" {
		cfg, err = r.resolveBrand(ctx, ref)
	} else {
		cfg, err = r.resolveAccount(ctx, strings.TrimSpace(req.AccountRef))
	}
	if err != nil {
		return schemas.RunConfig{}, err
	}

	stored, err := r.store.AutomationSettings(ctx)
	if err != nil {
		return schemas.RunConfig{}, err
	}
	cfg.Automation = MergeAutomation(req.Overrides, stored)

	r.log.Info("Run configuration resolved",
		zap.String("scope", string(cfg.Scope)),
		zap.String("account", cfg.AccountName),
		zap.Int("brands", len(cfg.Brands)),
		zap.Bool("headless", cfg.Automation.Headless),
		zap.Int("timeout_ms", cfg.Automation.TimeoutMs),
		observability.Redacted("password", cfg.Credentials.Password),
		observability.Redacted("two_fa_key", cfg.Credentials.TwoFAKey),
	)
	return cfg, nil
}

func (r *Resolver) resolveBrand(ctx context.Context, ref string) (schemas.RunConfig, error) {
	brand, err := r.store.BrandByRef(ctx, ref)
	if err != nil {
		return schemas.RunConfig{}, err
	}
	if brand.Account == nil {
		return schemas.RunConfig{}, schemas.NewError(schemas.ErrCodeNotFound, "load_brand",
			fmt.Sprintf("brand %q has no owning account", brand.BrandName), nil)
	}
	creds, err := r.openCredentials(brand.Account)
	if err != nil {
		return schemas.RunConfig{}, err
	}
	return schemas.RunConfig{
		Scope:       schemas.ScopeBrand,
		AccountID:   brand.Account.ID,
		AccountName: brand.Account.AccountName,
		Credentials: creds,
		Brand:       &schemas.BrandTarget{BrandName: brand.BrandName, BrandURL: brand.BrandURL},
	}, nil
}

func (r *Resolver) resolveAccount(ctx context.Context, ref string) (schemas.RunConfig, error) {
	acct, err := r.store.AccountByRef(ctx, ref, true)
	if err != nil {
		return schemas.RunConfig{}, err
	}
	creds, err := r.openCredentials(acct)
	if err != nil {
		return schemas.RunConfig{}, err
	}
	brands, err := r.store.BrandsByAccount(ctx, acct.ID)
	if err != nil {
		return schemas.RunConfig{}, err
	}
	targets := make([]schemas.BrandTarget, 0, len(brands))
	for _, b := range brands {
		targets = append(targets, schemas.BrandTarget{BrandName: b.BrandName, BrandURL: b.BrandURL})
	}
	return schemas.RunConfig{
		Scope:       schemas.ScopeAccount,
		AccountID:   acct.ID,
		AccountName: acct.AccountName,
		Credentials: creds,
		Brands:      targets,
	}, nil
}

func (r *Resolver) openCredentials(acct *schemas.Account) (schemas.Credentials, error) {
	password, err := r.open("decrypt_password", acct.Password)
	if err != nil {
		return schemas.Credentials{}, err
	}
	twoFA, err := r.open("decrypt_two_fa_key", acct.TwoFAKey)
	if err != nil {
		return schemas.Credentials{}, err
	}
	return schemas.Credentials{Username: acct.Username, Password: password, TwoFAKey: twoFA}, nil
}

// open decrypts one stored secret. A missing secret stays empty so the
// caller can report it as a configuration problem.
func (r *Resolver) open(step, bundle string) (string, error) {
	if bundle == "" {
		return "", nil
	}
	plain, err := r.cipher.Open(bundle)
	if err != nil {
		return "", wrapDecrypt(step, err)
	}
	return plain, nil
}

// wrapDecrypt keeps configuration errors (a bad passphrase) distinguishable
// from a bundle that does not open.
func wrapDecrypt(step string, err error) error {
	code := schemas.CodeOf(err)
	if code == "" {
		code = schemas.ErrCodeDecryption
	}
	return schemas.NewError(code, step, "stored secret could not be decrypted", err)
}

// MergeAutomation picks each field from the override, then the stored
// settings, then the built-in default.
func MergeAutomation(o schemas.Overrides, stored *schemas.AutomationSettings) schemas.Automation {
	if stored == nil {
		stored = &schemas.AutomationSettings{}
	}
	a := schemas.Automation{
		Headless:  DefaultHeadless,
		TimeoutMs: DefaultTimeoutMs,
		StartURL:  DefaultStartURL,
	}

	switch {
	case o.Headless != nil:
		a.Headless = *o.Headless
	case stored.Headless != nil:
		a.Headless = *stored.Headless
	}
	switch {
	case o.TimeoutMs != nil && *o.TimeoutMs > 0:
		a.TimeoutMs = *o.TimeoutMs
	case stored.TimeoutMs != nil && *stored.TimeoutMs > 0:
		a.TimeoutMs = *stored.TimeoutMs
	}
	switch {
	case o.StartURL != nil && *o.StartURL != "":
		a.StartURL = *o.StartURL
	case stored.StartURL != nil && *stored.StartURL != "":
		a.StartURL = *stored.StartURL
	}
	return a
}
