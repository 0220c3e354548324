package main

import (
	"fmt"

	"campus-eats-api/auth"
	"campus-eats-api/config"
	"campus-eats-api/logging"
	"campus-eats-api/models"
	"campus-eats-api/repository"
	"campus-eats-api/services"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if _, err := config.InitDB(cfg.DatabaseURL, cfg.Debug); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema up to date (%d tables)\n", len(config.Models()))
			return nil
		},
	}
}

func createAdminCmd() *cobra.Command {
	var (
		password string
		email    string
		role     string
	)
	cmd := &cobra.Command{
		Use:   "create-admin [username]",
		Short: "Create a staff account",
		Long: `Create a staff account. Students register themselves through the API.

Examples:
  campus-eats create-admin root --password s3cret
  campus-eats create-admin cook1 --password s3cret --role kitchen`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			r := models.UserRole(role)
			if !r.IsStaff() {
				return fmt.Errorf("role must be %q or %q", models.RoleAdmin, models.RoleKitchen)
			}
			db, err := config.InitDB(cfg.DatabaseURL, cfg.Debug)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Debug)
			defer logger.Sync()

			users := services.NewUserService(repository.NewGormRepository(db), auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL), logger)
			user, err := users.Create(cmd.Context(), args[0], password, r, email, "")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s account %q (id %d)\n", user.Role, user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (min 6 characters)")
	cmd.Flags().StringVar(&email, "email", "", "contact email")
	cmd.Flags().StringVar(&role, "role", string(models.RoleAdmin), "admin or kitchen")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
