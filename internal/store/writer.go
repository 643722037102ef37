package store

import (
	"context"
	"fmt"
	"time"

	"github.com/xkilldash9x/brandpilot/api/schemas"
)

// Sealer encrypts a secret for storage, leaving values that are already
// sealed untouched.
type Sealer interface {
	Seal(value string) (string, error)
}

// UpsertAccount inserts or updates an account keyed by account_name. Both
// secrets pass through sealer, so plaintext never reaches the table.
func (s *Store) UpsertAccount(ctx context.Context, acct *schemas.Account, sealer Sealer) (*schemas.Account, error) {
	if acct.AccountName == "" || acct.Username == "" {
		return nil, schemas.NewError(schemas.ErrCodeConfiguration, "save_account", "account name and username are required", nil)
	}
	password, err := sealer.Seal(acct.Password)
	if err != nil {
		return nil, fmt.Errorf("seal password: %w", err)
	}
	twoFA, err := sealer.Seal(acct.TwoFAKey)
	if err != nil {
		return nil, fmt.Errorf("seal two factor key: %w", err)
	}

	now := time.Now().UTC()
	saved := *acct
	saved.Password, saved.TwoFAKey = password, twoFA
	err = s.pool.QueryRow(ctx, `
        INSERT INTO accounts (account_name, username, password, two_fa_key, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $5)
        ON CONFLICT (account_name) DO UPDATE SET
            username = EXCLUDED.username,
            password = EXCLUDED.password,
            two_fa_key = EXCLUDED.two_fa_key,
            updated_at = EXCLUDED.updated_at
        RETURNING id, created_at, updated_at`,
		saved.AccountName, saved.Username, saved.Password, saved.TwoFAKey, now,
	).Scan(&saved.ID, &saved.CreatedAt, &saved.UpdatedAt)
	if err != nil {
		return nil, storeError("save_account", err)
	}
	s.log.Info("Account saved")
	return &saved, nil
}

// UpsertBrand inserts or updates a brand keyed by brand_name under the
// account named by accountRef.
func (s *Store) UpsertBrand(ctx context.Context, brand *schemas.Brand, accountRef string) (*schemas.Brand, error) {
	if brand.BrandName == "" {
		return nil, schemas.NewError(schemas.ErrCodeConfiguration, "save_brand", "brand name is required", nil)
	}
	if !brand.Marketplace.Valid() {
		return nil, schemas.NewError(schemas.ErrCodeConfiguration, "save_brand",
			fmt.Sprintf("unknown marketplace %q", brand.Marketplace), nil)
	}
	owner, err := s.AccountByRef(ctx, accountRef, false)
	if err != nil {
		return nil, err
	}

	var url any
	if brand.BrandURL != "" {
		url = brand.BrandURL
	}
	saved := *brand
	saved.AccountID = owner.ID
	err = s.pool.QueryRow(ctx, `
        INSERT INTO brands (brand_name, brand_url, marketplace, account_id)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (brand_name) DO UPDATE SET
            brand_url = EXCLUDED.brand_url,
            marketplace = EXCLUDED.marketplace,
            account_id = EXCLUDED.account_id
        RETURNING id`,
		saved.BrandName, url, string(saved.Marketplace), saved.AccountID,
	).Scan(&saved.ID)
	if err != nil {
		return nil, storeError("save_brand", err)
	}
	return &saved, nil
}
