package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/paydesk/paydesk/internal/app"
	"github.com/paydesk/paydesk/internal/config"
	"github.com/paydesk/paydesk/internal/persona"
)

var chatPersona string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatPersona, "persona", "", "persona to chat with (dare, interchange, garnishee, product)")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if chatPersona != "" {
		cfg.Persona = chatPersona
	}

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() { _ = a.Close() }()

	fmt.Println(a.Agent.Greeting())
	fmt.Println("Type /help for commands.")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("%s> ", a.Agent.Persona().ID)

		if !scanner.Scan() {
			// EOF (Ctrl+D)
			fmt.Println("\nGoodbye!")
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if handleCommand(input, a) {
				break
			}
			continue
		}

		answer, err := a.Agent.Chat(ctx, input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		fmt.Println(answer)
		fmt.Println()
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading input: %w", err)
	}

	return nil
}

// handleCommand handles slash commands, returns true if the loop should exit.
func handleCommand(input string, a *app.App) bool {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return false
	}

	switch parts[0] {
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /help              Show this help")
		fmt.Println("  /new               Start a new conversation (clears history)")
		fmt.Println("  /persona [name]    Switch persona (starts a new conversation)")
		fmt.Println("  /exit, /quit       Exit")
		fmt.Printf("Current persona: %s\n", a.Agent.Persona().ID)
		fmt.Printf("Available personas: %s\n", strings.Join(persona.Names(), ", "))
		fmt.Println()

	case "/new":
		a.Agent.NewChat()
		fmt.Println("Started a new conversation.")
		fmt.Println()

	case "/persona":
		if len(parts) < 2 {
			fmt.Printf("Current persona: %s\n", a.Agent.Persona().ID)
			fmt.Printf("Available personas: %s\n", strings.Join(persona.Names(), ", "))
			fmt.Println()
			return false
		}
		if err := a.SwitchPersona(parts[1]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			fmt.Println()
			return false
		}
		fmt.Println(a.Agent.Greeting())
		fmt.Println()

	case "/exit", "/quit":
		fmt.Println("Goodbye!")
		return true

	default:
		fmt.Printf("Unknown command: %s\n", parts[0])
		fmt.Println("Type /help to see available commands")
		fmt.Println()
	}

	return false
}
