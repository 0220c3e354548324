package main

import (
	"fmt"
	"os"

	"campus-eats-api/config"

	"github.com/spf13/cobra"
)

var Version = "dev"

// dbURL overrides DATABASE_URL when set.
var dbURL string

func main() {
	rootCmd := &cobra.Command{
		Use:     "campus-eats",
		Short:   "Campus Eats - ordering, payment verification and pickup API for a campus canteen",
		Version: Version,
	}
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "database url: sqlite path or postgres:// dsn (overrides DATABASE_URL)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(createAdminCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	return cfg, nil
}
