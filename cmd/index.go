package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paydesk/paydesk/internal/app"
	"github.com/paydesk/paydesk/internal/config"
	"github.com/paydesk/paydesk/internal/persona"
)

var indexPersona string

var indexCmd = &cobra.Command{
	Use:   "index [source-dir]",
	Short: "Build a persona's memory directory from source documents",
	Long: `Index reads .txt and .md documents from the source directory, splits
them into overlapping chunks, embeds every chunk and writes the persona's
memory directory (chunks, embedding matrix and search index).

Files in a summary/ subdirectory are indexed first so they become the
primer chunks included in every answer.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().StringVar(&indexPersona, "persona", "", "persona whose memory to build (defaults to the configured persona)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	name := indexPersona
	if name == "" {
		name = cfg.Persona
	}
	p, err := persona.Lookup(name)
	if err != nil {
		return err
	}

	// The memory directory may not exist yet, so skip agent construction.
	a, err := app.SetupCore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() { _ = a.Close() }()

	indexer, err := a.Indexer()
	if err != nil {
		return fmt.Errorf("creating indexer: %w", err)
	}

	memoryDir := a.MemoryDir(p)
	count, err := indexer.Build(ctx, args[0], memoryDir)
	if err != nil {
		return fmt.Errorf("building memory for persona %s: %w", p.ID, err)
	}

	fmt.Printf("Indexed %d chunks into %s\n", count, memoryDir)
	return nil
}
