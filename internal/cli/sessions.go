package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/csfam/pawprint/internal/pawprint/server"
	"github.com/csfam/pawprint/internal/pawprint/sessionstore"
)

func newSessionsCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Maintain the session store",
	}
	cmd.AddCommand(newSessionsPurgeCmd(o))
	cmd.AddCommand(newSessionsKeygenCmd(o))
	return cmd
}

func newSessionsPurgeCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete expired sessions from the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := server.NewServices(ctx, cfg)
			if err != nil {
				return err
			}
			defer svc.Close()

			n, err := svc.Auth.Sweep(ctx)
			if err != nil {
				return fmt.Errorf("purging sessions: %w", err)
			}
			if o.jsonOutput {
				printJSON(cmd.OutOrStdout(), map[string]int{"purged": n})
				return nil
			}
			okLabel.Fprintf(cmd.OutOrStdout(), "OK ")
			fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired session(s)\n", n)
			return nil
		},
	}
}

func newSessionsKeygenCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a key for storage.postgres.secret_key",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := sessionstore.GenerateKey()
			if err != nil {
				return err
			}
			if o.jsonOutput {
				printJSON(cmd.OutOrStdout(), map[string]string{"secret_key": key})
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}
