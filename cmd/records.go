package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/brandpilot/api/schemas"
	"github.com/xkilldash9x/brandpilot/internal/config"
	"github.com/xkilldash9x/brandpilot/internal/observability"
	"github.com/xkilldash9x/brandpilot/internal/store"
	"github.com/xkilldash9x/brandpilot/internal/vault"
)

// withStore opens the store for the duration of fn.
func withStore(ctx context.Context, rt runtime, cfg config.Interface, fn func(*store.Store) error) error {
	s, err := rt.stores.Create(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func newAccountCmd(rt runtime) *cobra.Command {
	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Manage seller accounts",
	}

	var acct schemas.Account
	putCmd := &cobra.Command{
		Use:   "put",
		Short: "Create or update an account",
		Long: `Creates or updates the account named by --name.

The password and the two-factor key are read from standard input, one per
line, in that order. Both are encrypted before they are stored. Values that
are already encrypted bundles are stored unchanged.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runAccountPut(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), cfg, acct, rt)
		},
	}
	putCmd.Flags().StringVar(&acct.AccountName, "name", "", "unique account name")
	putCmd.Flags().StringVar(&acct.Username, "username", "", "sign-in email")
	_ = putCmd.MarkFlagRequired("name")
	_ = putCmd.MarkFlagRequired("username")

	accountCmd.AddCommand(putCmd)
	return accountCmd
}

func runAccountPut(ctx context.Context, in io.Reader, out io.Writer, cfg config.Interface, acct schemas.Account, rt runtime) error {
	sealer, err := vault.NewCipher(cfg.Vault().Passphrase)
	if err != nil {
		return err
	}
	lines := bufio.NewScanner(in)
	secrets := make([]string, 0, 2)
	for len(secrets) < 2 && lines.Scan() {
		secrets = append(secrets, strings.TrimRight(lines.Text(), "\r"))
	}
	if err := lines.Err(); err != nil {
		return fmt.Errorf("failed to read secrets: %w", err)
	}
	if len(secrets) < 2 || secrets[0] == "" || secrets[1] == "" {
		return schemas.NewError(schemas.ErrCodeConfiguration, "save_account",
			"expected the password and the two-factor key on standard input", nil)
	}
	acct.Password, acct.TwoFAKey = secrets[0], secrets[1]

	return withStore(ctx, rt, cfg, func(s *store.Store) error {
		saved, err := s.UpsertAccount(ctx, &acct, sealer)
		if err != nil {
			return err
		}
		observability.GetLogger().Info("Account stored", zap.String("account_id", saved.ID), zap.String("account_name", saved.AccountName))
		return writeJSON(out, saved)
	})
}

func newBrandCmd(rt runtime) *cobra.Command {
	brandCmd := &cobra.Command{
		Use:   "brand",
		Short: "Manage brands",
	}

	var (
		brand       schemas.Brand
		accountRef  string
		marketplace string
	)
	putCmd := &cobra.Command{
		Use:          "put",
		Short:        "Create or update a brand under an account",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			brand.Marketplace = schemas.Marketplace(strings.ToUpper(marketplace))
			return withStore(ctx, rt, cfg, func(s *store.Store) error {
				saved, err := s.UpsertBrand(ctx, &brand, accountRef)
				if err != nil {
					return err
				}
				observability.GetLogger().Info("Brand stored", zap.String("brand_id", saved.ID), zap.String("brand_name", saved.BrandName))
				return writeJSON(cmd.OutOrStdout(), saved)
			})
		},
	}
	putCmd.Flags().StringVar(&brand.BrandName, "name", "", "unique brand name")
	putCmd.Flags().StringVar(&brand.BrandURL, "url", "", "page to open once signed in")
	putCmd.Flags().StringVar(&marketplace, "marketplace", string(schemas.MarketplaceUS), "marketplace code (US, CA, MX, UK, DE)")
	putCmd.Flags().StringVar(&accountRef, "account", "", "owning account id or name")
	_ = putCmd.MarkFlagRequired("name")
	_ = putCmd.MarkFlagRequired("account")

	brandCmd.AddCommand(putCmd)
	return brandCmd
}

func newDBCmd(rt runtime) *cobra.Command {
	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}
	dbCmd.AddCommand(&cobra.Command{
		Use:          "migrate",
		Short:        "Create the tables if they do not exist",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return withStore(ctx, rt, cfg, func(s *store.Store) error {
				if err := s.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
				return nil
			})
		},
	})
	return dbCmd
}
