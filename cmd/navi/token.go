package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jask/navi/internal/secrets"
)

func newTokenCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored remote API token",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set TOKEN",
		Short: "Store the token for the configured remote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok := strings.TrimSpace(args[0])
			if tok == "" {
				return fmt.Errorf("token is empty")
			}
			store, err := secrets.Default()
			if err != nil {
				return err
			}
			name := secretName(c.cfg)
			if err := store.Put(name, tok); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token stored for %s\n", name)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := secrets.Default()
			if err != nil {
				return err
			}
			return store.Delete(secretName(c.cfg))
		},
	})
	return cmd
}
