// Package cmd implements the paydesk command line interface.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "paydesk",
	Short: "Paydesk - merchant services assistant",
	Long: `Paydesk is a retrieval-augmented assistant for merchant services staff.

It answers questions about the DARE data warehouse, interchange fees and
garnishee handling, and recommends merchant products and pricing. Each
persona draws on its own indexed memory and its own set of tools.

Running paydesk without arguments starts an interactive chat.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
	SilenceUsage: true,
}

// Execute runs the root command. An interrupt cancels the command context,
// which every turn threads through retrieval, model calls and tool
// dispatches.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
