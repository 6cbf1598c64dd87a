package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/paydesk/paydesk/internal/app"
	"github.com/paydesk/paydesk/internal/config"
)

var askPersona string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askPersona, "persona", "", "persona to ask (dare, interchange, garnishee, product)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if askPersona != "" {
		cfg.Persona = askPersona
	}

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() { _ = a.Close() }()

	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question is empty")
	}

	answer, err := a.Agent.Chat(ctx, question)
	if err != nil {
		return fmt.Errorf("generating answer: %w", err)
	}

	fmt.Println(answer)
	return nil
}
