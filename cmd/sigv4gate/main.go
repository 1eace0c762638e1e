package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/sagarc03/sigv4gate/config"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Version: version,
	Use:     "sigv4gate",
	Short:   "Authenticating reverse proxy for AWS SigV4 signed requests",
	Long: `sigv4gate verifies the AWS Signature Version 4 on every incoming
request and forwards the authenticated ones to an upstream service,
together with the principal the signing key belongs to.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFiles, _ := cmd.Flags().GetStringSlice("config")

		cfg, err := config.Load(configFiles, cmd.Flags())
		if err != nil {
			return err
		}

		setupLogging(cfg)
		cmd.SetContext(config.WithContext(cmd.Context(), cfg))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringSlice("config", nil, "config file path, repeat to merge (default: ./config.yaml)")
	rootCmd.PersistentFlags().String("db-type", "", "key store database type: sqlite, postgres (default: sqlite, env: SIGV4GATE_DATABASE_TYPE)")
	rootCmd.PersistentFlags().String("db-dsn", "", "key store connection string (default: sigv4gate.db, env: SIGV4GATE_DATABASE_DSN)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (env: SIGV4GATE_LOG_LEVEL)")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
