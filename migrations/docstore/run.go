// Command docstore applies the document store schema.
package main

import (
	"context"
	"embed"
	"log/slog"
	"os"

	"github.com/ghuser/farmstand/pkg/config"
	"github.com/ghuser/farmstand/pkg/logger"
	"github.com/ghuser/farmstand/pkg/migrator"
)

//go:embed *.sql
var MigrationsFS embed.FS

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg)

	if err := migrator.RunMigrations(context.Background(), cfg.DefinitionDatabaseURL, MigrationsFS, log); err != nil {
		log.Error("docstore migration failed", "error", err)
		os.Exit(1)
	}
}
