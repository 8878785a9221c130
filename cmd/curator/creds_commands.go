package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"curator/internal/creds"
)

// newCredsCommand manages archive credentials. These commands operate on the
// encrypted credential file directly and do not require a running daemon.
func newCredsCommand(ctx *commandContext) *cobra.Command {
	credsCmd := &cobra.Command{
		Use:   "creds",
		Short: "Manage archive credentials",
	}

	credsCmd.AddCommand(newCredsSetCommand(ctx))
	credsCmd.AddCommand(newCredsListCommand(ctx))
	credsCmd.AddCommand(newCredsRemoveCommand(ctx))

	return credsCmd
}

func (c *commandContext) credsStore() (*creds.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return creds.NewStore(cfg.Archive.CredentialsPath, cfg.Archive.KeyPath), nil
}

func newCredsSetCommand(ctx *commandContext) *cobra.Command {
	var username string
	var apiKey string
	var endpoint string

	cmd := &cobra.Command{
		Use:   "set <owner>",
		Short: "Store credentials for an archive account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner := strings.TrimSpace(args[0])
			if owner == "" {
				return errors.New("owner is required")
			}
			if strings.TrimSpace(username) == "" || strings.TrimSpace(apiKey) == "" {
				return errors.New("--username and --api-key are required")
			}
			store, err := ctx.credsStore()
			if err != nil {
				return err
			}
			if err := store.Set(owner, creds.Credential{
				Endpoint: strings.TrimSpace(endpoint),
				Username: strings.TrimSpace(username),
				APIKey:   strings.TrimSpace(apiKey),
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored credentials for %s\n", owner)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Archive account username")
	cmd.Flags().StringVarP(&apiKey, "api-key", "k", "", "Archive API key")
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Per-account archive endpoint override")
	return cmd
}

func newCredsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List owners with stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.credsStore()
			if err != nil {
				return err
			}
			owners, err := store.Owners()
			if err != nil {
				return err
			}
			if len(owners) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No credentials stored")
				return nil
			}
			sort.Strings(owners)
			for _, owner := range owners {
				fmt.Fprintln(cmd.OutOrStdout(), owner)
			}
			return nil
		},
	}
}

func newCredsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <owner>",
		Short: "Remove stored credentials for an owner",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.credsStore()
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed credentials for %s\n", args[0])
			return nil
		},
	}
}
