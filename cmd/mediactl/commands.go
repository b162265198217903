package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendant/media-registry/pkg/mediaregistry"
	"github.com/tendant/media-registry/pkg/mediaregistry/api"
	repopg "github.com/tendant/media-registry/pkg/mediaregistry/repo/postgres"
)

// NewRootCommand creates the mediactl command tree
func NewRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mediactl",
		Short: "Media registry administration",
		Long: `Administer a media registry ledger directly through its repository.

Configuration is read from the same environment variables as registry-server
(DATABASE_URL, STORAGE_URL, REGISTRY_ADMIN, JWT_SECRET, ...).`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(NewMigrateCommand(a))
	rootCmd.AddCommand(NewStatusCommand(a))
	rootCmd.AddCommand(NewPauseCommand(a))
	rootCmd.AddCommand(NewUnpauseCommand(a))
	rootCmd.AddCommand(NewTransferAdminCommand(a))
	rootCmd.AddCommand(NewCountsCommand(a))
	rootCmd.AddCommand(NewGetCommand(a))
	rootCmd.AddCommand(NewListCommand(a))
	rootCmd.AddCommand(NewTokenCommand(a))

	return rootCmd
}

// NewMigrateCommand applies the postgres schema migrations
func NewMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if cfg.DatabaseType != "postgres" {
				return errors.New("migrate requires a postgres DATABASE_URL")
			}
			if err := repopg.Migrate(cfg.DatabaseURL, a.logger()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
			return nil
		},
	}
}

// NewStatusCommand prints the control state
func NewStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show admin, pause flag and handle sequence",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := a.build(cmd.Context())
			if err != nil {
				return err
			}
			status, err := components.Registry.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), status)
		},
	}
}

// caller resolves --as, defaulting to the configured admin
func (a *app) caller(as string) (mediaregistry.Address, error) {
	if as != "" {
		return mediaregistry.Address(as), nil
	}
	cfg, err := a.config()
	if err != nil {
		return "", err
	}
	if cfg.Admin == "" {
		return "", errors.New("--as is required when REGISTRY_ADMIN is not set")
	}
	return mediaregistry.Address(cfg.Admin), nil
}

// NewPauseCommand suspends mutating operations
func NewPauseCommand(a *app) *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:   "pause",
		Short: "Suspend media additions and deletions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := a.caller(as)
			if err != nil {
				return err
			}
			components, err := a.build(cmd.Context())
			if err != nil {
				return err
			}
			receipt, err := components.Registry.Pause(cmd.Context(), caller)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), receipt)
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "caller address (defaults to REGISTRY_ADMIN)")
	return cmd
}

// NewUnpauseCommand resumes mutating operations
func NewUnpauseCommand(a *app) *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:   "unpause",
		Short: "Resume media additions and deletions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := a.caller(as)
			if err != nil {
				return err
			}
			components, err := a.build(cmd.Context())
			if err != nil {
				return err
			}
			receipt, err := components.Registry.Unpause(cmd.Context(), caller)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), receipt)
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "caller address (defaults to REGISTRY_ADMIN)")
	return cmd
}

// NewTransferAdminCommand hands the admin role to another address
func NewTransferAdminCommand(a *app) *cobra.Command {
	var as string

	cmd := &cobra.Command{
		Use:   "transfer-admin <new-admin>",
		Short: "Transfer the admin role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := a.caller(as)
			if err != nil {
				return err
			}
			components, err := a.build(cmd.Context())
			if err != nil {
				return err
			}
			receipt, err := components.Registry.TransferAdmin(cmd.Context(), caller, mediaregistry.Address(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), receipt)
		},
	}

	cmd.Flags().StringVar(&as, "as", "", "caller address (defaults to REGISTRY_ADMIN)")
	return cmd
}

// NewCountsCommand prints an owner's counters
func NewCountsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "counts <owner>",
		Short: "Show total and current file counts for an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := a.build(cmd.Context())
			if err != nil {
				return err
			}
			counts, err := components.Registry.GetUserMediaIndex(cmd.Context(), mediaregistry.Address(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), counts)
		},
	}
}

// NewGetCommand looks up a record by public handle or by owner and index
func NewGetCommand(a *app) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "get <handle> | get --owner <address> <index>",
		Short: "Show a live media record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := a.build(cmd.Context())
			if err != nil {
				return err
			}

			var view *mediaregistry.MediaView
			if owner != "" {
				index, err := strconv.ParseInt(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid index %q: %w", args[0], err)
				}
				view, err = components.Registry.GetMedia(cmd.Context(), mediaregistry.Address(owner), index)
				if err != nil {
					return err
				}
			} else {
				view, err = components.Registry.GetMediaByPublicHandle(cmd.Context(), "", mediaregistry.PublicHandle(args[0]))
				if err != nil {
					return err
				}
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "look up by owner index for this owner")
	return cmd
}

// NewListCommand lists an owner's live records
func NewListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <owner>",
		Short: "List an owner's live media records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := a.build(cmd.Context())
			if err != nil {
				return err
			}
			views, err := components.Registry.ListOwnedMedia(cmd.Context(), mediaregistry.Address(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), views)
		},
	}
}

// NewTokenCommand issues a bearer token for jwt auth mode
func NewTokenCommand(a *app) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <address>",
		Short: "Issue a bearer token for a caller address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET is required to issue tokens")
			}
			identity, err := api.NewJWTIdentity([]byte(cfg.JWTSecret))
			if err != nil {
				return err
			}
			token, err := identity.IssueToken(mediaregistry.Address(args[0]), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
