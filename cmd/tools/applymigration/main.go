package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/arsenic-art/DreamFundr/internal/config"
	"github.com/arsenic-art/DreamFundr/internal/db"
)

func main() {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "applymigration",
		Short: "Create or extend the ledger schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

			gdb, err := db.Open(cfg.DB)
			if err != nil {
				return err
			}
			if dryRun {
				for _, m := range db.Models() {
					logger.Info("would migrate", "model", m, "exists", gdb.Migrator().HasTable(m))
				}
				return nil
			}
			if err := db.Migrate(gdb, logger); err != nil {
				return err
			}
			logger.Info("schema up to date")
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list tables without changing the schema")

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
