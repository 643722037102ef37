package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/brandpilot/api/schemas"
	"github.com/xkilldash9x/brandpilot/internal/config"
	"github.com/xkilldash9x/brandpilot/internal/login"
	"github.com/xkilldash9x/brandpilot/internal/navigator"
	"github.com/xkilldash9x/brandpilot/internal/observability"
	"github.com/xkilldash9x/brandpilot/internal/resolver"
	"github.com/xkilldash9x/brandpilot/internal/supervisor"
	"github.com/xkilldash9x/brandpilot/internal/vault"
)

// runFlagKeys binds run flags to their config keys.
var runFlagKeys = map[string]string{
	"headless":   "automation.headless",
	"timeout-ms": "automation.timeout_ms",
	"start-url":  "automation.start_url",
}

func newRunCmd(rt runtime) *cobra.Command {
	var req schemas.RunRequest

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Sign an account in and open its brand pages",
		Long: `Signs the account in and opens brand pages.

With --brand the brand page is opened in the signed-in tab and the browser is
left open until interrupted. With --account every brand of the account is
opened in its own tab and the browser is closed afterwards.

The run result is printed to stdout as JSON. Exit status is 0 on success,
1 on failure and 2 on timeout.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		// The result on stdout already carries the failure.
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			v, err := getViperFromContext(ctx)
			if err != nil {
				return err
			}
			if err := bindFlags(v, cmd.Flags(), runFlagKeys); err != nil {
				return err
			}
			req.Overrides = config.Overrides(v)
			return runRun(ctx, cmd.OutOrStdout(), cfg, req, rt)
		},
	}

	runCmd.Flags().StringVarP(&req.AccountRef, "account", "a", "", "account id or name; opens every brand of the account")
	runCmd.Flags().StringVarP(&req.BrandRef, "brand", "b", "", "brand id or name; opens the brand and hands the browser over")
	runCmd.Flags().Bool("headless", true, "run the browser without a window")
	runCmd.Flags().Int("timeout-ms", 0, "hard limit for the whole run in milliseconds")
	runCmd.Flags().String("start-url", "", "sign-in page to open first")
	return runCmd
}

// bindFlags binds each named flag to its config key so that an explicit flag
// wins over the environment and the config file.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		f := flags.Lookup(name)
		if f == nil {
			return fmt.Errorf("unknown flag --%s", name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}
	return nil
}

// runRun contains the core, testable logic of the run command.
func runRun(ctx context.Context, out io.Writer, cfg config.Interface, req schemas.RunRequest, rt runtime) error {
	logger := observability.GetLogger()

	sup := supervisor.New(supervisor.Deps{
		OpenStore: func(ctx context.Context) (supervisor.Store, error) {
			s, err := rt.stores.Create(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		OpenVault: func() (resolver.Opener, error) {
			c, err := vault.NewCipher(cfg.Vault().Passphrase)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		ResolveTimeout: cfg.Database().QueryTimeout,
		Launch: func(ctx context.Context, headless bool) (schemas.Browser, error) {
			return rt.launch(ctx, cfg.Browser(), headless, logger)
		},
		Login:     login.New(cfg.Login(), rt.codes, logger),
		Navigator: navigator.New(cfg.Navigator(), cfg.Login().LandmarkSelectors, cfg.Login().Poll, logger),
		Debug:     cfg.Debug(),
		Emit: func(res *schemas.RunResult) {
			if err := writeJSON(out, res); err != nil {
				logger.Error("Failed to write run result", zap.Error(err))
			}
		},
		Exit: rt.exit,
	}, logger)

	res, handoff := sup.Run(ctx, req)
	if handoff != nil {
		logger.Info("Browser left open for the operator. Interrupt to close it.", zap.String("url", handoff.URL))
		<-ctx.Done()
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := handoff.Release(closeCtx); err != nil {
			logger.Warn("Failed to close the browser", zap.Error(err))
		}
		return nil
	}

	if code := supervisor.ExitCode(res); code != supervisor.ExitOK {
		reason := "unknown error"
		if res != nil && res.Error != nil {
			reason = fmt.Sprintf("%s at %s", res.Error.Code, res.Error.Step)
		}
		return &ExitError{Code: code, Err: fmt.Errorf("run failed: %s", reason)}
	}
	return nil
}
