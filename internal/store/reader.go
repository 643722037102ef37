package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xkilldash9x/brandpilot/api/schemas"
)

const (
	accountColumns       = `id, account_name, username, created_at, updated_at`
	accountSecretColumns = `id, account_name, username, password, two_fa_key, created_at, updated_at`
)

// AccountByRef loads an account by id or account_name. Password and TwoFAKey
// are only populated when withSecrets is set.
func (s *Store) AccountByRef(ctx context.Context, ref string, withSecrets bool) (*schemas.Account, error) {
	col, arg := refColumn(ref, "account_name")
	cols := accountColumns
	if withSecrets {
		cols = accountSecretColumns
	}
	sql := fmt.Sprintf(`SELECT %s FROM accounts WHERE %s = $1`, cols, col)

	var a schemas.Account
	dest := []any{&a.ID, &a.AccountName, &a.Username, &a.CreatedAt, &a.UpdatedAt}
	if withSecrets {
		dest = []any{&a.ID, &a.AccountName, &a.Username, &a.Password, &a.TwoFAKey, &a.CreatedAt, &a.UpdatedAt}
	}
	if err := s.pool.QueryRow(ctx, sql, arg).Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("load_account", "account", ref)
		}
		return nil, storeError("load_account", err)
	}
	return &a, nil
}

// BrandByRef loads a brand by id or brand_name together with its owning
// account, secrets included.
func (s *Store) BrandByRef(ctx context.Context, ref string) (*schemas.Brand, error) {
	col, arg := refColumn(ref, "brand_name")
	sql := fmt.Sprintf(`
        SELECT b.id, b.brand_name, COALESCE(b.brand_url, ''), b.marketplace, b.account_id,
               a.id, a.account_name, a.username, a.password, a.two_fa_key, a.created_at, a.updated_at
        FROM brands b
        JOIN accounts a ON a.id = b.account_id
        WHERE b.%s = $1`, col)

	var (
		b           schemas.Brand
		a           schemas.Account
		marketplace string
	)
	err := s.pool.QueryRow(ctx, sql, arg).Scan(
		&b.ID, &b.BrandName, &b.BrandURL, &marketplace, &b.AccountID,
		&a.ID, &a.AccountName, &a.Username, &a.Password, &a.TwoFAKey, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound("load_brand", "brand", ref)
		}
		return nil, storeError("load_brand", err)
	}
	b.Marketplace = schemas.Marketplace(marketplace)
	b.Account = &a
	return &b, nil
}

// BrandsByAccount lists every brand owned by accountID ordered by brand name.
// An account without brands yields an empty slice.
func (s *Store) BrandsByAccount(ctx context.Context, accountID string) ([]schemas.Brand, error) {
	rows, err := s.pool.Query(ctx, `
        SELECT id, brand_name, COALESCE(brand_url, ''), marketplace, account_id
        FROM brands
        WHERE account_id = $1
        ORDER BY brand_name`, accountID)
	if err != nil {
		return nil, storeError("load_brands", err)
	}
	defer rows.Close()

	brands := []schemas.Brand{}
	for rows.Next() {
		var (
			b           schemas.Brand
			marketplace string
		)
		if err := rows.Scan(&b.ID, &b.BrandName, &b.BrandURL, &marketplace, &b.AccountID); err != nil {
			return nil, storeError("load_brands", err)
		}
		b.Marketplace = schemas.Marketplace(marketplace)
		brands = append(brands, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("load_brands", err)
	}
	return brands, nil
}

// AutomationSettings returns the stored singleton, or nil when none exists.
func (s *Store) AutomationSettings(ctx context.Context) (*schemas.AutomationSettings, error) {
	var st schemas.AutomationSettings
	err := s.pool.QueryRow(ctx,
		`SELECT headless, timeout_ms, start_url FROM automation_settings WHERE id = 1`,
	).Scan(&st.Headless, &st.TimeoutMs, &st.StartURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storeError("load_settings", err)
	}
	return &st, nil
}
