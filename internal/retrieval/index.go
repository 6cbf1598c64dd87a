package retrieval

import (
	"encoding/gob"
	"fmt"
	"os"
	"sort"
)

// FlatIndex is a brute-force nearest-neighbor index over dense vectors,
// ranking by squared Euclidean distance. Row order is corpus order.
//
// Flat search is exact and fast enough for the corpus sizes the memory
// dirs hold (hundreds to low thousands of chunks); it also keeps the index
// a plain read-only file with no server dependency.
type FlatIndex struct {
	dim     int
	vectors [][]float32
}

// NewFlatIndex creates an empty index for vectors of the given dimension.
func NewFlatIndex(dim int) (*FlatIndex, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive, got %d", dim)
	}
	return &FlatIndex{dim: dim}, nil
}

// Add appends vectors in row order.
func (ix *FlatIndex) Add(vectors ...[]float32) error {
	for _, v := range vectors {
		if len(v) != ix.dim {
			return fmt.Errorf("vector dimension %d does not match index dimension %d", len(v), ix.dim)
		}
		ix.vectors = append(ix.vectors, v)
	}
	return nil
}

// Len returns the number of indexed vectors.
func (ix *FlatIndex) Len() int {
	return len(ix.vectors)
}

// Dim returns the vector dimension.
func (ix *FlatIndex) Dim() int {
	return ix.dim
}

// Search returns the indices of the k nearest vectors to query, closest
// first. Ties break toward the lower row index so results are
// deterministic. k larger than the index returns every row.
func (ix *FlatIndex) Search(query []float32, k int) ([]int, error) {
	if len(query) != ix.dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), ix.dim)
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	type scored struct {
		row  int
		dist float32
	}
	all := make([]scored, len(ix.vectors))
	for i, v := range ix.vectors {
		all[i] = scored{row: i, dist: squaredL2(query, v)}
	}
	sort.Slice(all, func(a, b int) bool {
		if all[a].dist != all[b].dist {
			return all[a].dist < all[b].dist
		}
		return all[a].row < all[b].row
	})

	n := min(k, len(all))
	out := make([]int, n)
	for i := range n {
		out[i] = all[i].row
	}
	return out, nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// indexFile is the gob wire form of FlatIndex.
type indexFile struct {
	Dim     int
	Vectors [][]float32
}

// Save persists the index.
func (ix *FlatIndex) Save(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) // #nosec G304 -- path comes from validated config
	if err != nil {
		return fmt.Errorf("creating index file: %w", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(indexFile{Dim: ix.dim, Vectors: ix.vectors}); err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}
	return nil
}

// LoadIndex reads a persisted index.
func LoadIndex(path string) (*FlatIndex, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from validated config
	if err != nil {
		return nil, fmt.Errorf("opening index file: %w", err)
	}
	defer f.Close()

	var file indexFile
	if err := gob.NewDecoder(f).Decode(&file); err != nil {
		return nil, fmt.Errorf("decoding index: %w", err)
	}
	if file.Dim <= 0 {
		return nil, fmt.Errorf("index file has invalid dimension %d", file.Dim)
	}
	return &FlatIndex{dim: file.Dim, vectors: file.Vectors}, nil
}

// SaveMatrix persists the raw embedding matrix, one row per chunk.
func SaveMatrix(path string, matrix [][]float32) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) // #nosec G304 -- path comes from validated config
	if err != nil {
		return fmt.Errorf("creating matrix file: %w", err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(matrix); err != nil {
		return fmt.Errorf("encoding matrix: %w", err)
	}
	return nil
}

// LoadMatrix reads a persisted embedding matrix.
func LoadMatrix(path string) ([][]float32, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from validated config
	if err != nil {
		return nil, fmt.Errorf("opening matrix file: %w", err)
	}
	defer f.Close()

	var matrix [][]float32
	if err := gob.NewDecoder(f).Decode(&matrix); err != nil {
		return nil, fmt.Errorf("decoding matrix: %w", err)
	}
	return matrix, nil
}
