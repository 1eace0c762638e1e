package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/sagarc03/sigv4gate"
	"github.com/sagarc03/sigv4gate/config"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage access keys in the key database",
	Long: `Manage the access keys stored in the key database.

The gateway reads these keys when auth.keys.database is enabled.
Changes take effect once the key cache entry expires (auth.cache.ttl).`,
}

var keysAddCmd = &cobra.Command{
	Use:   "add [flags]",
	Short: "Create or replace an access key",
	Long: `Create an access key, or replace the secret and principal of an
existing one. A missing access key or secret is generated and printed once.

Examples:
  # Generate a key for an IAM user
  sigv4gate keys add --account 123456789012 --name alice

  # Register a known key for a service principal
  sigv4gate keys add --access-key SVCBILLING --prompt-secret --type service --name billing --namespace internal`,
	Args: cobra.NoArgs,
	RunE: runKeysAdd,
}

var keysListCmd = &cobra.Command{
	Use:   "list [flags]",
	Short: "List access keys",
	Args:  cobra.NoArgs,
	RunE:  runKeysList,
}

var keysDisableCmd = &cobra.Command{
	Use:   "disable <access-key> [access-key] ...",
	Short: "Stop access keys from signing requests",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runKeysDisable,
}

var keysRemoveCmd = &cobra.Command{
	Use:   "remove <access-key> [access-key] ...",
	Short: "Delete access keys",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runKeysRemove,
}

var (
	addAccessKey    string
	addSecretKey    string
	addPromptSecret bool
	addType         string
	addAccount      string
	addPath         string
	addName         string
	addNamespace    string
	addPrefix       string

	listPrefix  string
	listAll     bool
	listJSON    bool
	listLimit   int
	listCursor  string
	listOneShot bool
)

func init() {
	keysAddCmd.Flags().StringVar(&addAccessKey, "access-key", "", "access key ID (generated when empty)")
	keysAddCmd.Flags().StringVar(&addSecretKey, "secret", "", "secret access key (generated when empty)")
	keysAddCmd.Flags().BoolVar(&addPromptSecret, "prompt-secret", false, "read the secret from a masked prompt")
	keysAddCmd.Flags().StringVar(&addType, "type", string(sigv4gate.PrincipalUser), "principal type: user, assumed_role, service")
	keysAddCmd.Flags().StringVar(&addAccount, "account", "", "AWS account ID of the principal")
	keysAddCmd.Flags().StringVar(&addPath, "path", "/", "IAM path of a user principal")
	keysAddCmd.Flags().StringVar(&addName, "name", "", "principal name (defaults to the access key)")
	keysAddCmd.Flags().StringVar(&addNamespace, "namespace", "", "namespace of a service principal")
	keysAddCmd.Flags().StringVar(&addPrefix, "prefix", sigv4gate.DefaultAccessKeyPrefix, "prefix for generated access keys")

	keysListCmd.Flags().StringVar(&listPrefix, "prefix", "", "only list access keys starting with prefix")
	keysListCmd.Flags().BoolVar(&listAll, "all", false, "include disabled keys")
	keysListCmd.Flags().BoolVar(&listJSON, "json", false, "output JSON")
	keysListCmd.Flags().IntVar(&listLimit, "limit", 100, "page size")
	keysListCmd.Flags().StringVar(&listCursor, "cursor", "", "resume listing from a previous page")
	keysListCmd.Flags().BoolVar(&listOneShot, "page", false, "print a single page instead of every key")

	keysCmd.AddCommand(keysAddCmd, keysListCmd, keysDisableCmd, keysRemoveCmd)
	rootCmd.AddCommand(keysCmd)
}

func runKeysAdd(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	secret := addSecretKey
	if addPromptSecret {
		if secret, err = promptSecret(); err != nil {
			return err
		}
	}

	accessKey := addAccessKey
	if accessKey == "" {
		if accessKey, err = sigv4gate.GenerateAccessKey(addPrefix); err != nil {
			return err
		}
	}

	principal, err := buildPrincipal(addType, addAccount, addPath, addName, addNamespace, accessKey)
	if err != nil {
		return err
	}

	repo, closeDB, err := openKeyRepo(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	svc, err := sigv4gate.NewKeyService(repo, sigv4gate.KeyServiceConfig{AccessKeyPrefix: addPrefix})
	if err != nil {
		return err
	}

	record, err := svc.Create(ctx, sigv4gate.KeyEntry{
		AccessKey: accessKey,
		SecretKey: secret,
		Principal: principal,
	})
	if err != nil {
		return err
	}

	slog.Info("key saved", "access_key", record.AccessKey, "principal", record.Principal.String())
	return newKeyFormatter(false).FormatCreated(cmd.OutOrStdout(), record)
}

func runKeysList(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	repo, closeDB, err := openKeyRepo(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	svc, err := sigv4gate.NewKeyService(repo, sigv4gate.KeyServiceConfig{})
	if err != nil {
		return err
	}

	query := sigv4gate.KeyListQuery{
		Prefix:          listPrefix,
		Limit:           listLimit,
		Cursor:          listCursor,
		IncludeDisabled: listAll,
	}

	var result sigv4gate.KeyListResult
	if listOneShot {
		result, err = svc.List(ctx, query)
	} else {
		result.Items, err = svc.ListAll(ctx, query)
	}
	if err != nil {
		return err
	}

	return newKeyFormatter(listJSON).FormatList(cmd.OutOrStdout(), result)
}

func runKeysDisable(cmd *cobra.Command, args []string) error {
	return forEachKey(cmd, args, "disabled", func(svc *sigv4gate.KeyService, accessKey string) error {
		return svc.Disable(cmd.Context(), accessKey)
	})
}

func runKeysRemove(cmd *cobra.Command, args []string) error {
	return forEachKey(cmd, args, "removed", func(svc *sigv4gate.KeyService, accessKey string) error {
		return svc.Remove(cmd.Context(), accessKey)
	})
}

// forEachKey applies fn to every access key, continuing past missing keys.
func forEachKey(cmd *cobra.Command, accessKeys []string, verb string, fn func(*sigv4gate.KeyService, string) error) error {
	cfg, err := config.FromContext(cmd.Context())
	if err != nil {
		return err
	}

	repo, closeDB, err := openKeyRepo(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	svc, err := sigv4gate.NewKeyService(repo, sigv4gate.KeyServiceConfig{})
	if err != nil {
		return err
	}

	var missing int
	for _, accessKey := range accessKeys {
		err := fn(svc, accessKey)
		switch {
		case errors.Is(err, sigv4gate.ErrNotFound):
			missing++
			slog.Warn("key not found", "access_key", accessKey)
		case err != nil:
			return err
		default:
			slog.Info("key "+verb, "access_key", accessKey)
		}
	}

	if missing > 0 {
		return fmt.Errorf("%d of %d keys not found: %w", missing, len(accessKeys), sigv4gate.ErrNotFound)
	}
	return nil
}

func buildPrincipal(kind, account, path, name, namespace, accessKey string) (sigv4gate.Principal, error) {
	pt, err := sigv4gate.ParsePrincipalType(kind)
	if err != nil {
		return sigv4gate.Principal{}, err
	}

	if name == "" {
		name = accessKey
	}

	switch pt {
	case sigv4gate.PrincipalService:
		return sigv4gate.ServicePrincipal(name, namespace)
	case sigv4gate.PrincipalAssumedRole:
		return sigv4gate.Principal{
			Type:      pt,
			Partition: sigv4gate.DefaultPartition,
			AccountID: account,
			Name:      name,
		}, nil
	default:
		return sigv4gate.UserPrincipal(account, path, name)
	}
}

func promptSecret() (string, error) {
	prompt := promptui.Prompt{
		Label: "Secret Key",
		Mask:  '*',
		Validate: func(input string) error {
			if input == "" {
				return errors.New("secret key is required")
			}
			return nil
		},
	}

	secret, err := prompt.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) {
			return "", errors.New("cancelled")
		}
		return "", fmt.Errorf("read secret: %w", err)
	}
	return secret, nil
}
