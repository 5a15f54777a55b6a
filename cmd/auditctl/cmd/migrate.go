package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	audit "custody/pkg/platform/audit"
)

type migrator interface {
	Migrate(ctx context.Context) error
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the audit_logs table, its indexes and the immutability trigger",
		Long: `Migrate applies the audit schema. It is idempotent and safe to run
against a database the server already migrated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withStore(cmd, func(ctx context.Context, store audit.Store) error {
				m, ok := store.(migrator)
				if !ok {
					return errors.New("audit store does not support migrations")
				}
				if err := m.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "audit schema is up to date")
				return nil
			})
		},
	}
}
