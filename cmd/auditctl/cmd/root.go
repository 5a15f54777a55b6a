// Package cmd implements auditctl, the operator CLI for reading the custody
// audit trail directly from the store.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"custody/internal/audit/service"
	"custody/internal/platform/config"
	"custody/internal/platform/logger"
	"custody/internal/platform/postgres"
	audit "custody/pkg/platform/audit"
	pgstore "custody/pkg/platform/audit/store/postgres"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// SetVersionInfo is called from main to inject build-time version info.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	buildDate = d
}

var errNoDatabase = errors.New("database url is required (--database-url or DATABASE_URL)")

// Settings are the resolved CLI settings: flags over environment over the
// optional config file.
type Settings struct {
	DatabaseURL string        `mapstructure:"database_url"`
	LogLevel    string        `mapstructure:"log_level"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Pretty      bool          `mapstructure:"pretty"`
}

// StoreOpener opens the audit store. The returned func releases it.
type StoreOpener func(ctx context.Context, s Settings) (audit.Store, func() error, error)

// app carries state shared by all subcommands of one invocation.
type app struct {
	v        *viper.Viper
	open     StoreOpener
	settings Settings
	logger   *slog.Logger
}

// Execute runs auditctl with os.Args.
func Execute() error {
	return NewRootCmd(OpenPostgres).Execute()
}

// NewRootCmd builds the command tree over open.
func NewRootCmd(open StoreOpener) *cobra.Command {
	a := &app{v: viper.New(), open: open}
	var cfgFile string

	root := &cobra.Command{
		Use:   "auditctl",
		Short: "Inspect the evidence custody audit trail",
		Long: `auditctl queries the append-only audit trail kept by the custody
service. It reads the same store as the server and prints JSON shaped like the
reporting API responses.`,
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(cmd, cfgFile); err != nil {
				return fmt.Errorf("loading settings: %w", err)
			}
			return nil
		},
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "optional config file (yaml, json or toml)")
	flags.String("database-url", "", "PostgreSQL connection string (env DATABASE_URL)")
	flags.String("log-level", "warn", "log level for diagnostics on stderr (env LOG_LEVEL)")
	flags.Duration("timeout", 30*time.Second, "deadline for each store operation")
	flags.Bool("pretty", false, "indent JSON output")

	root.SetVersionTemplate(fmt.Sprintf("auditctl version {{.Version}} (commit: %s, built: %s)\n", commit, buildDate))

	root.AddCommand(
		newLogsCmd(a),
		newSummaryCmd(a),
		newTrailCmd(a),
		newActivityCmd(a),
		newMigrateCmd(a),
	)
	return root
}

// load resolves settings from the config file, environment and flags.
func (a *app) load(cmd *cobra.Command, cfgFile string) error {
	bindings := map[string]string{
		"database_url": "database-url",
		"log_level":    "log-level",
		"timeout":      "timeout",
		"pretty":       "pretty",
	}
	for key, flag := range bindings {
		if err := a.v.BindPFlag(key, cmd.Root().PersistentFlags().Lookup(flag)); err != nil {
			return err
		}
	}
	_ = a.v.BindEnv("database_url", "DATABASE_URL")
	_ = a.v.BindEnv("log_level", "LOG_LEVEL")
	_ = a.v.BindEnv("timeout", "AUDITCTL_TIMEOUT")

	if cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return err
		}
	}

	if err := a.v.Unmarshal(&a.settings); err != nil {
		return err
	}
	a.logger = logger.NewWithWriter(cmd.ErrOrStderr(), a.settings.LogLevel)
	if used := a.v.ConfigFileUsed(); used != "" {
		a.logger.Debug("loaded config file", "path", used)
	}
	return nil
}

// withStore opens the store for the duration of fn, bounded by the timeout.
func (a *app) withStore(cmd *cobra.Command, fn func(ctx context.Context, store audit.Store) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if a.settings.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.settings.Timeout)
		defer cancel()
	}

	store, release, err := a.open(ctx, a.settings)
	if err != nil {
		return err
	}
	defer func() {
		if release == nil {
			return
		}
		if err := release(); err != nil {
			a.logger.Warn("failed to close audit store", "error", err)
		}
	}()
	return fn(ctx, store)
}

// report runs fn against the reporting service and prints its result.
func (a *app) report(cmd *cobra.Command, fn func(ctx context.Context, svc *service.Service) (any, error)) error {
	return a.withStore(cmd, func(ctx context.Context, store audit.Store) error {
		out, err := fn(ctx, service.New(store, a.logger))
		if err != nil {
			return err
		}
		return writeJSON(cmd.OutOrStdout(), out, a.settings.Pretty)
	})
}

// OpenPostgres opens the PostgreSQL audit store named by the settings.
func OpenPostgres(ctx context.Context, s Settings) (audit.Store, func() error, error) {
	if s.DatabaseURL == "" {
		return nil, nil, errNoDatabase
	}
	db, err := postgres.Open(ctx, config.Database{
		URL:             s.DatabaseURL,
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		return nil, nil, err
	}
	return pgstore.New(db), db.Close, nil
}
