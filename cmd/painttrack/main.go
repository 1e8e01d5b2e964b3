package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/courtsidelabs/painttrack/internal/config"
	"github.com/courtsidelabs/painttrack/internal/database"
	"github.com/courtsidelabs/painttrack/internal/ledger"
	"github.com/courtsidelabs/painttrack/internal/logging"
	"github.com/courtsidelabs/painttrack/internal/remote"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "painttrack",
		Short: "Offline-first paint touch logger",
		Long: "painttrack records paint touches into a durable local ledger, " +
			"syncs them on demand to the remote store and exports CSV snapshots.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	setupFlags(rootCmd)

	rootCmd.AddCommand(
		newPossessionCommand(),
		newRecordCommand(),
		newSyncCommand(),
		newRetryCommand(),
		newExportCommand(),
		newAuditCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("ledger-path", defaults.GetString("ledger.path"), "Local ledger database path")
	cmd.PersistentFlags().String("remote-url", defaults.GetString("remote.base_url"), "Remote store base URL")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "ledger.path", "ledger-path")
	bindFlag(cmd, "remote.base_url", "remote-url")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// app wires the pieces every subcommand needs: config, logger and the open
// ledger. Callers must Close it.
type app struct {
	cfg    config.ClientConfig
	logger *zap.Logger
	db     *gorm.DB
	ledger *ledger.Service
}

func newApp() (*app, error) {
	cfg, err := config.LoadClient(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenLedger(cfg.LedgerPath, logger)
	if err != nil {
		return nil, err
	}

	ledgerService, err := ledger.NewService(ledger.ServiceConfig{
		Database:   db,
		IDProvider: ledger.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, db: db, ledger: ledgerService}, nil
}

func (a *app) Close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}

func (a *app) remoteClient() (*remote.Client, error) {
	return remote.NewClient(remote.ClientConfig{
		BaseURL: a.cfg.RemoteBaseURL,
		Timeout: a.cfg.RemoteTimeout,
	})
}
