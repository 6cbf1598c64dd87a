package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/firebase/genkit/go/ai"
)

// ErrUnavailable indicates the index or the embedding collaborator cannot
// serve a search. The turn fails hard on this error; the loop never
// proceeds with fabricated or empty context.
var ErrUnavailable = errors.New("retrieval unavailable")

// TopK is the number of nearest chunks retrieved per query.
const TopK = 5

// Memory dir file names, shared with the indexer.
const (
	chunksFileName = "chunks.txt"
	matrixFileName = "embeddings.gob"
	indexFileName  = "index.gob"
)

// Retriever answers queries from one persona's memory directory. The corpus
// and index are loaded once and shared read-only; the embedder is an
// injected Genkit collaborator.
type Retriever struct {
	corpus   *Corpus
	index    *FlatIndex
	embedder ai.Embedder
	topK     int
	logger   *slog.Logger
}

// Open loads a memory directory and wires the embedder.
func Open(dir string, embedder ai.Embedder, logger *slog.Logger) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	corpus, err := LoadCorpus(filepath.Join(dir, chunksFileName))
	if err != nil {
		return nil, fmt.Errorf("loading memory dir %s: %w", dir, err)
	}
	matrix, err := LoadMatrix(filepath.Join(dir, matrixFileName))
	if err != nil {
		return nil, fmt.Errorf("loading memory dir %s: %w", dir, err)
	}
	index, err := LoadIndex(filepath.Join(dir, indexFileName))
	if err != nil {
		return nil, fmt.Errorf("loading memory dir %s: %w", dir, err)
	}

	// The three files are only usable when row-aligned.
	if corpus.Len() != index.Len() || corpus.Len() != len(matrix) {
		return nil, fmt.Errorf("memory dir %s is inconsistent: %d chunks, %d matrix rows, %d index rows",
			dir, corpus.Len(), len(matrix), index.Len())
	}

	logger.Debug("memory dir loaded", "dir", dir, "chunks", corpus.Len(), "dimension", index.Dim())

	return &Retriever{
		corpus:   corpus,
		index:    index,
		embedder: embedder,
		topK:     TopK,
		logger:   logger,
	}, nil
}

// Search embeds each query, runs nearest-neighbor search per query and
// returns the context bundle: the primer chunks in corpus order, then each
// query's hits in rank order. Duplicates are kept; a primer chunk may also
// be a hit.
func (r *Retriever) Search(ctx context.Context, queries ...string) ([]string, error) {
	if len(queries) == 0 {
		return r.corpus.Primers(), nil
	}

	docs := make([]*ai.Document, len(queries))
	for i, q := range queries {
		docs[i] = ai.DocumentFromText(q, nil)
	}

	resp, err := r.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, fmt.Errorf("%w: embedding queries: %v", ErrUnavailable, err)
	}
	if len(resp.Embeddings) != len(queries) {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d queries",
			ErrUnavailable, len(resp.Embeddings), len(queries))
	}

	chunks := r.corpus.Primers()
	for i, emb := range resp.Embeddings {
		rows, err := r.index.Search(emb.Embedding, r.topK)
		if err != nil {
			return nil, fmt.Errorf("%w: searching index: %v", ErrUnavailable, err)
		}
		for _, row := range rows {
			chunks = append(chunks, r.corpus.Chunk(row))
		}
		r.logger.Debug("query retrieved", "query_index", i, "hits", len(rows))
	}
	return chunks, nil
}
