package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahinestrog/campusbooks/internal/auth"
	"github.com/ahinestrog/campusbooks/internal/storage"
)

var errMissingSecret = errors.New("AUTH_JWT_SECRET is required")

func newMigrateCommand(load loader) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			db, err := storage.Open(cmd.Context(), cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			return printf(cmd, "schema up to date in %s\n", cfg.DBPath)
		},
	}
}

func newRolesCommand(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Manage user roles",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "grant <user-id> <admin|professor>",
		Short: "Assign a role to an identity-provider user id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := auth.ParseRole(args[1])
			if err != nil {
				return err
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			db, err := storage.Open(cmd.Context(), cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := auth.NewRoles(db).Grant(cmd.Context(), args[0], role, time.Now()); err != nil {
				return err
			}
			return printf(cmd, "%s is now %s\n", args[0], role)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <user-id>",
		Short: "Print the role of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			db, err := storage.Open(cmd.Context(), cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			role, err := auth.NewRoles(db).Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if role == auth.RoleNone {
				return printf(cmd, "%s has no role\n", args[0])
			}
			return printf(cmd, "%s\n", role)
		},
	})
	return cmd
}

func newTokenCommand(load loader) *cobra.Command {
	var (
		email string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Sign a development access token with AUTH_JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errMissingSecret
			}
			tok, err := auth.IssueToken(cfg.JWTSecret, cfg.JWTIssuer, auth.Identity{UserID: args[0], Email: email}, time.Now(), ttl)
			if err != nil {
				return err
			}
			return printf(cmd, "%s\n", tok)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
