package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/csfam/pawprint/internal/pawprint/config"
	"github.com/csfam/pawprint/internal/pawprint/server"
)

// DefaultConfigFile is read when --config is not given.
const DefaultConfigFile = "/etc/pawprint/pawprint.conf"

var ErrAlreadyHandled = errors.New("already handled")

var okLabel = color.New(color.FgGreen)
var errorLabel = color.New(color.FgRed)

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configFile string
	jsonOutput bool
}

// loadConfig reads the configuration file named by --config.
func (o *rootOptions) loadConfig() (*config.ConfigParam, error) {
	file := o.configFile
	if file == "" {
		file = DefaultConfigFile
	}
	if err := config.LoadConfig(file); err != nil {
		return nil, err
	}
	return config.Config(), nil
}

// NewRootCmd builds the pawprint command tree.
func NewRootCmd() *cobra.Command {
	o := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:   "pawprint [command] [flags]",
		Short: "pawprint - a session-authenticated proxy for the Trac XML/JSON-RPC plugin",
		Long: `pawprint exchanges Trac credentials for short opaque tokens and answers
read requests against the Trac RPC plugin on behalf of token holders.

Examples:
  # Run the proxy
  pawprint serve --config /etc/pawprint/pawprint.conf

  # Check that a Trac server accepts a login
  pawprint check --url https://trac.example.com/project --username alice --password secret

  # Apply database migrations
  pawprint migrate up`,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&o.configFile, "config", "", "", "Path to configuration file (default "+DefaultConfigFile+")")
	rootCmd.PersistentFlags().BoolVarP(&o.jsonOutput, "json", "j", false, "Output in JSON format")

	rootCmd.AddCommand(newVersionCmd(o))
	rootCmd.AddCommand(newServeCmd(o))
	rootCmd.AddCommand(newCheckCmd(o))
	rootCmd.AddCommand(newSessionsCmd(o))
	rootCmd.AddCommand(newMigrateCmd(o))
	return rootCmd
}

// Execute runs the root command with the process arguments.
// This is called by main.main().
func Execute() {
	rootCmd := NewRootCmd()
	err := rootCmd.Execute()
	if err != nil {
		if errors.Is(err, ErrAlreadyHandled) {
			os.Exit(1)
		}
		jsonOutput, _ := rootCmd.PersistentFlags().GetBool("json")
		if jsonOutput {
			printJSON(os.Stdout, map[string]string{
				"error": err.Error(),
			})
		} else {
			errorLabel.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newVersionCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of pawprint",
		Run: func(cmd *cobra.Command, args []string) {
			if o.jsonOutput {
				printJSON(cmd.OutOrStdout(), map[string]string{
					"version":    server.Version,
					"apiVersion": server.APIVersion,
				})
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pawprint %s (API %s)\n", server.Version, server.APIVersion)
		},
	}
}

// printJSON writes data to w as indented JSON.
func printJSON(w io.Writer, data any) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Fprintln(w, string(jsonData))
}
