// Package retrieval implements the file-based retrieval memory: an ordered
// chunk corpus, a flat L2 vector index aligned to it, and the retriever
// that turns queries into a ranked context bundle.
//
// A memory directory holds three files written by the indexer and read
// here:
//
//	chunks.txt      all chunks joined by a literal "===" separator line
//	embeddings.gob  the embedding matrix, one row per chunk
//	index.gob       the nearest-neighbor index, row-aligned to the matrix
//
// Everything is immutable after load and safe for concurrent reads.
package retrieval

import (
	"fmt"
	"os"
	"strings"
)

// ChunkSeparator joins chunks in chunks.txt. The separator is a line of its
// own so chunks can contain "===" inline without splitting.
const ChunkSeparator = "\n===\n"

// PrimerChunks is the number of leading corpus chunks included in every
// retrieval result regardless of similarity. They carry the domain primer
// text the personas rely on.
const PrimerChunks = 3

// Corpus is an ordered, immutable sequence of text chunks.
type Corpus struct {
	chunks []string
}

// NewCorpus builds a corpus from chunks in index order.
func NewCorpus(chunks []string) *Corpus {
	cp := make([]string, len(chunks))
	copy(cp, chunks)
	return &Corpus{chunks: cp}
}

// LoadCorpus reads a chunks.txt file.
func LoadCorpus(path string) (*Corpus, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from validated config
	if err != nil {
		return nil, fmt.Errorf("reading corpus: %w", err)
	}
	return NewCorpus(strings.Split(string(data), ChunkSeparator)), nil
}

// SaveCorpus writes chunks to a chunks.txt file.
func SaveCorpus(path string, chunks []string) error {
	joined := strings.Join(chunks, ChunkSeparator)
	if err := os.WriteFile(path, []byte(joined), 0o600); err != nil {
		return fmt.Errorf("writing corpus: %w", err)
	}
	return nil
}

// Len returns the number of chunks.
func (c *Corpus) Len() int {
	return len(c.chunks)
}

// Chunk returns the chunk at index i.
func (c *Corpus) Chunk(i int) string {
	return c.chunks[i]
}

// Primers returns the always-include leading chunks in corpus order. A
// corpus smaller than PrimerChunks yields what it has.
func (c *Corpus) Primers() []string {
	n := min(PrimerChunks, len(c.chunks))
	out := make([]string, n)
	copy(out, c.chunks[:n])
	return out
}
