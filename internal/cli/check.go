package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/csfam/pawprint/internal/common/apperrors"
	"github.com/csfam/pawprint/internal/pawprint/auth"
	"github.com/csfam/pawprint/internal/pawprint/config"
	"github.com/csfam/pawprint/internal/pawprint/rpcclient"
	"github.com/csfam/pawprint/internal/pawprint/server"
)

type checkOptions struct {
	url      string
	username string
	password string
}

func newCheckCmd(o *rootOptions) *cobra.Command {
	co := &checkOptions{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Log in to a Trac server once and report the result",
		Long: `Run the login flow against a Trac server with an in-memory session store.
The outcome is reported with the error code a client of the proxy would see.

Without --config the built-in defaults are used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if o.configFile != "" {
				var err error
				if cfg, err = o.loadConfig(); err != nil {
					return err
				}
			}
			local := *cfg
			local.Storage.Backend = config.BackendMemory
			return runCheck(cmd, o, &local, auth.Credentials{
				URL:      co.url,
				Username: co.username,
				Password: co.password,
			})
		},
	}
	cmd.Flags().StringVar(&co.url, "url", "", "Trac project URL")
	cmd.Flags().StringVar(&co.username, "username", "", "Trac user name")
	cmd.Flags().StringVar(&co.password, "password", "", "Trac password")
	return cmd
}

func runCheck(cmd *cobra.Command, o *rootOptions, cfg *config.ConfigParam, creds auth.Credentials) error {
	ctx := cmd.Context()
	svc, err := server.NewServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	out := cmd.OutOrStdout()
	s, err := svc.Auth.Login(ctx, creds)
	if err != nil {
		ae, ok := apperrors.As(err)
		if !ok {
			return err
		}
		if o.jsonOutput {
			printJSON(out, map[string]any{
				"success": false,
				"errcode": ae.Code(),
				"errmsg":  ae.Error(),
			})
		} else {
			errorLabel.Fprintf(out, "FAILED ")
			fmt.Fprintf(out, "[%d] %s\n", ae.Code(), ae.Error())
		}
		return ErrAlreadyHandled
	}

	if o.jsonOutput {
		printJSON(out, map[string]any{
			"success": true,
			"server":  rpcclient.DisplayURL(s.ServerURL),
			"expiry":  s.Expiry.Format(time.RFC3339),
		})
		return nil
	}
	okLabel.Fprintf(out, "OK ")
	fmt.Fprintf(out, "logged in to %s as %s, session valid until %s\n",
		rpcclient.DisplayURL(s.ServerURL), s.Username, s.Expiry.Format(time.RFC3339))
	return nil
}
