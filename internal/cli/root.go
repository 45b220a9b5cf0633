// Package cli implements the bridgectl command line client.
package cli

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mossy-p/bridge-signaling/internal/logging"
)

type rootOptions struct {
	logLevel  string
	logFormat string
}

func (o *rootOptions) logger(cmd *cobra.Command) *logrus.Logger {
	return logging.NewWithOutput(cmd.ErrOrStderr(), o.logLevel, o.logFormat)
}

// NewRootCmd builds the bridgectl command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "bridgectl",
		Short:         "signaling client for the touch bridge",
		Long:          `bridgectl joins a signaling room as a mobile or host client, lists the rooms a server offers and builds room invites.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "log format (text or json)")

	rootCmd.AddCommand(newConnectCmd(opts))
	rootCmd.AddCommand(newRoomsCmd(opts))
	rootCmd.AddCommand(newInviteCmd())
	return rootCmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
