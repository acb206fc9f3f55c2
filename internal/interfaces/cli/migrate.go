package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openmedi/medirec/internal/infrastructure/database/postgres"
	"github.com/openmedi/medirec/pkg/errors"
)

func newMigrateCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending snapshot database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfg.Database.Host == "" {
				return errors.InvalidInput("database.host is not configured")
			}
			if err := postgres.RunMigrations(rt.cfg.Database, rt.logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
