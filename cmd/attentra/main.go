package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	appconfig "github.com/attentra/attentra/config"
	"github.com/attentra/attentra/internal/rollup"
	srv "github.com/attentra/attentra/internal/server"
	"github.com/attentra/attentra/internal/store"
)

func main() {
	var root = &cobra.Command{Use: "attentra"}

	var cfgPath string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server and rollup scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := appconfig.LoadConfig(cfgPath)
			return srv.Run(cfg)
		},
	}
	serve.Flags().StringVar(&cfgPath, "config", "", "path to config file")

	var migDir string
	var direction string
	var steps int
	var migrate = &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn := os.Getenv("DATABASE_URL")
			if dsn == "" {
				host := getenv("POSTGRES_HOST", "localhost")
				port := getenv("POSTGRES_PORT", "5432")
				user := os.Getenv("POSTGRES_USER")
				pass := os.Getenv("POSTGRES_PASSWORD")
				db := os.Getenv("POSTGRES_DB")
				ssl := getenv("POSTGRES_SSLMODE", "disable")
				dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
			}
			return srv.Migrate(migDir, dsn, direction, steps)
		},
	}
	migrate.Flags().StringVar(&migDir, "dir", "file://migrations", "migrations source (file://migrations)")
	migrate.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrate.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	var rollupCfgPath string
	var orgID string
	var docID string
	var rollupCmd = &cobra.Command{
		Use:   "rollup",
		Short: "Run a single rollup pass for an org",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orgID == "" {
				return fmt.Errorf("--org is required")
			}
			cfg := appconfig.LoadConfig(rollupCfgPath)
			ctx := context.Background()
			st, err := store.NewWithDSN(ctx, cfg.Databases.Postgres.DSN())
			if err != nil {
				return err
			}
			engine := &rollup.Engine{Store: st, Logger: log.New(os.Stderr, "[ROLLUP] ", log.LstdFlags)}
			n, err := engine.Run(ctx, orgID, docID)
			if err != nil {
				return err
			}
			fmt.Printf("rollup complete: %d aggregates\n", n)
			return nil
		},
	}
	rollupCmd.Flags().StringVar(&rollupCfgPath, "config", "", "path to config file")
	rollupCmd.Flags().StringVar(&orgID, "org", "", "org id to roll up")
	rollupCmd.Flags().StringVar(&docID, "doc", "", "optional doc id to narrow the rollup")

	root.AddCommand(serve, migrate, rollupCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}
