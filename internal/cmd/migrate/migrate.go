package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/chirino/coaching-service/internal/cmd/flags"
	"github.com/chirino/coaching-service/internal/config"
	registrymigrate "github.com/chirino/coaching-service/internal/registry/migrate"
	"github.com/urfave/cli/v3"

	// Store and vector plugins register their migrators from init().
	_ "github.com/chirino/coaching-service/internal/core"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var all []cli.Flag
	all = append(all, flags.Logging(&cfg)...)
	all = append(all, flags.Database(&cfg)...)
	all = append(all, flags.Vector(&cfg)...)
	all = append(all, flags.Embedding(&cfg)...)
	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or update the record store schema and the vector index",
		Flags: all,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.DatastoreMigrateAtStart = true
			cfg.VectorMigrateAtStart = true
			ctx, err := flags.Prepare(ctx, &cfg)
			if err != nil {
				return err
			}
			log.Info("Running migrations...", "migrators", registrymigrate.Names())
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
