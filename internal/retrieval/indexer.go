package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/firebase/genkit/go/ai"
)

// Indexer chunking and batching parameters.
const (
	// DefaultChunkSize is the target chunk length in runes.
	DefaultChunkSize = 2000
	// DefaultChunkOverlap is how many trailing runes each chunk shares
	// with the next.
	DefaultChunkOverlap = 100
	// embedBatchSize caps documents per embedding request (provider limit).
	embedBatchSize = 96
	// summaryDirName is the source subdirectory whose files are indexed
	// first, so their chunks become the always-include primers.
	summaryDirName = "summary"
)

// Indexer builds a memory directory from local text files.
type Indexer struct {
	embedder  ai.Embedder
	chunkSize int
	overlap   int
	logger    *slog.Logger
}

// NewIndexer creates an indexer with the default chunking parameters.
func NewIndexer(embedder ai.Embedder, logger *slog.Logger) (*Indexer, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Indexer{
		embedder:  embedder,
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
		logger:    logger,
	}, nil
}

// Build chunks every text file under sourceDir, embeds the chunks and
// writes the three memory files into memoryDir. Files in a summary/
// subdirectory are processed before the rest, in sorted order, so the
// corpus starts with the primer material. Returns the chunk count.
func (ix *Indexer) Build(ctx context.Context, sourceDir, memoryDir string) (int, error) {
	files, err := collectSourceFiles(sourceDir)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no .txt or .md files under %s", sourceDir)
	}

	var chunks []string
	for _, path := range files {
		data, err := os.ReadFile(path) // #nosec G304 -- paths enumerated from sourceDir
		if err != nil {
			return 0, fmt.Errorf("reading source file: %w", err)
		}
		fileChunks := splitText(string(data), ix.chunkSize, ix.overlap)
		chunks = append(chunks, fileChunks...)
		ix.logger.Debug("chunked source file", "file", path, "chunks", len(fileChunks))
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("no indexable text under %s: every source file is empty", sourceDir)
	}

	matrix, err := ix.embedAll(ctx, chunks)
	if err != nil {
		return 0, err
	}

	index, err := NewFlatIndex(len(matrix[0]))
	if err != nil {
		return 0, err
	}
	if err := index.Add(matrix...); err != nil {
		return 0, err
	}

	if err := os.MkdirAll(memoryDir, 0o750); err != nil {
		return 0, fmt.Errorf("creating memory dir: %w", err)
	}
	if err := SaveCorpus(filepath.Join(memoryDir, chunksFileName), chunks); err != nil {
		return 0, err
	}
	if err := SaveMatrix(filepath.Join(memoryDir, matrixFileName), matrix); err != nil {
		return 0, err
	}
	if err := index.Save(filepath.Join(memoryDir, indexFileName)); err != nil {
		return 0, err
	}

	ix.logger.Info("memory dir built",
		"source", sourceDir,
		"memory", memoryDir,
		"files", len(files),
		"chunks", len(chunks),
		"dimension", index.Dim(),
	)
	return len(chunks), nil
}

// embedAll embeds chunks in batches and returns the row-aligned matrix.
func (ix *Indexer) embedAll(ctx context.Context, chunks []string) ([][]float32, error) {
	matrix := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))

		docs := make([]*ai.Document, end-start)
		for i, chunk := range chunks[start:end] {
			docs[i] = ai.DocumentFromText(chunk, nil)
		}
		resp, err := ix.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
		if err != nil {
			return nil, fmt.Errorf("embedding chunks %d-%d: %w", start, end-1, err)
		}
		if len(resp.Embeddings) != len(docs) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(resp.Embeddings), len(docs))
		}
		for _, emb := range resp.Embeddings {
			matrix = append(matrix, emb.Embedding)
		}
		ix.logger.Debug("embedded batch", "from", start, "to", end-1)
	}
	return matrix, nil
}

// collectSourceFiles lists indexable files: summary/ files first, then the
// top-level files, each group in sorted order.
func collectSourceFiles(sourceDir string) ([]string, error) {
	summary, err := listTextFiles(filepath.Join(sourceDir, summaryDirName))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	rest, err := listTextFiles(sourceDir)
	if err != nil {
		return nil, err
	}
	return append(summary, rest...), nil
}

func listTextFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".txt", ".md":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// splitText cuts text into chunks of at most size runes, each overlapping
// the previous by overlap runes.
func splitText(text string, size, overlap int) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= size {
		return []string{string(runes)}
	}

	stride := size - overlap
	var chunks []string
	for start := 0; start < len(runes); start += stride {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}
