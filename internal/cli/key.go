package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/dl-alexandre/gdrv-gateway/internal/auth"
	"github.com/spf13/cobra"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Service account key management",
	Long:  "Store, check and remove the service account key used by the gateway",
}

var keyStoreCmd = &cobra.Command{
	Use:   "store <key-file>",
	Short: "Store a service account key in the system keyring",
	Long: `Validate a service account JSON key and store it under a profile.

Set keyringProfile (or GDRV_GATEWAY_KEYRING_PROFILE) to the same profile
to have the gateway read the key from the keyring instead of a file. When
no keyring is available the key is stored in an encrypted file under the
config directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runKeyStore,
}

var keyDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove a stored service account key",
	Args:  cobra.NoArgs,
	RunE:  runKeyDelete,
}

var keyCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Obtain a token with the configured key",
	Args:  cobra.NoArgs,
	RunE:  runKeyCheck,
}

var keyProfile string

func init() {
	keyStoreCmd.Flags().StringVar(&keyProfile, "profile", "default", "Profile to store the key under")
	keyDeleteCmd.Flags().StringVar(&keyProfile, "profile", "default", "Profile to delete")

	keyCmd.AddCommand(keyStoreCmd)
	keyCmd.AddCommand(keyDeleteCmd)
	keyCmd.AddCommand(keyCheckCmd)
	rootCmd.AddCommand(keyCmd)
}

func runKeyStore(cmd *cobra.Command, args []string) error {
	out := newOutput(cmd)

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read key file: %w", err)
	}
	key, err := auth.ParseServiceAccountKey(data)
	if err != nil {
		return err
	}

	store, err := openKeyStore()
	if err != nil {
		return err
	}
	if err := store.Save(keyProfile, data); err != nil {
		return fmt.Errorf("failed to store key: %w", err)
	}

	out.Log("Stored key for %s in %s", key.ClientEmail, store.Name())
	return out.WriteJSON(map[string]interface{}{
		"profile":        keyProfile,
		"clientEmail":    key.ClientEmail,
		"projectId":      key.ProjectID,
		"storageBackend": store.Name(),
	})
}

func runKeyDelete(cmd *cobra.Command, args []string) error {
	out := newOutput(cmd)

	store, err := openKeyStore()
	if err != nil {
		return err
	}
	if err := store.Delete(keyProfile); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	out.Log("Deleted key for profile %s", keyProfile)
	return nil
}

func runKeyCheck(cmd *cobra.Command, args []string) error {
	out := newOutput(cmd)

	src, err := keySource(cfg)
	if err != nil {
		return err
	}
	authCtx, key, err := auth.LoadServiceAccount(cmd.Context(), src, cfg.Scopes, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.GetRequestTimeout())
	defer cancel()
	tok, err := authCtx.Token(ctx)
	if err != nil {
		return fmt.Errorf("service account credential check failed: %w", err)
	}

	return out.WriteJSON(map[string]interface{}{
		"clientEmail": key.ClientEmail,
		"source":      src.Describe(),
		"scopes":      cfg.Scopes,
		"expiry":      tok.Expiry,
	})
}
