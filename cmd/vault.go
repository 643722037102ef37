package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/brandpilot/api/schemas"
	"github.com/xkilldash9x/brandpilot/internal/vault"
)

func newVaultCmd() *cobra.Command {
	vaultCmd := &cobra.Command{
		Use:   "vault",
		Short: "Encrypt secrets and check stored bundles",
		Long: `Encrypts secrets with the passphrase in BRANDPILOT_ENCRYPTION_KEY.

Plaintext is read from standard input so it stays out of shell history.`,
	}
	vaultCmd.AddCommand(newVaultEncryptCmd(), newVaultCheckCmd())
	return vaultCmd
}

func newVaultEncryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "encrypt",
		Short:        "Encrypt one line from stdin and print the bundle",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			plaintext, err := readSecretLine(cmd.InOrStdin())
			if err != nil {
				return err
			}
			bundle, err := vault.Encrypt(plaintext, cfg.Vault().Passphrase)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), bundle)
			return nil
		},
	}
}

func newVaultCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "check <bundle>",
		Short:        "Verify that a bundle opens with the configured passphrase",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			bundle := strings.TrimSpace(args[0])
			if !vault.IsEncrypted(bundle) {
				return schemas.NewError(schemas.ErrCodeDecryption, "vault_check", "value is not an encrypted bundle", nil)
			}
			if _, err := vault.Decrypt(bundle, cfg.Vault().Passphrase); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

// readSecretLine returns the first line of r without its line ending.
func readSecretLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", schemas.NewError(schemas.ErrCodeConfiguration, "read_secret", "no value on standard input", nil)
	}
	return line, nil
}
