package encoder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// anchorMagic identifies an anchor matrix file.
var anchorMagic = [4]byte{'C', 'V', 'A', '1'}

// ErrAnchorFormat is returned when an anchor file is malformed.
var ErrAnchorFormat = errors.New("invalid anchor file")

// AnchorSet is a precomputed matrix of text-tower embeddings, one row per
// concept in catalog order plus a final "other" contrast row. Rows share one
// dimension, the image tower's embedding dimension.
type AnchorSet struct {
	dim  int
	rows [][]float32
}

// NewAnchorSet builds an anchor set from rows. All rows must be non-empty
// and share the same dimension; the last row is the "other" anchor.
func NewAnchorSet(rows [][]float32) (*AnchorSet, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: need at least one concept row and the other row, got %d", ErrAnchorFormat, len(rows))
	}
	dim := len(rows[0])
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero-dimension rows", ErrAnchorFormat)
	}
	for i, row := range rows {
		if len(row) != dim {
			return nil, fmt.Errorf("%w: row %d has dimension %d, want %d", ErrAnchorFormat, i, len(row), dim)
		}
	}
	return &AnchorSet{dim: dim, rows: rows}, nil
}

// LoadAnchorSet reads an anchor matrix from its binary sidecar file:
// 4-byte magic, uint32 dimension, uint32 row count, then row-major float32
// values, all little-endian.
func LoadAnchorSet(path string) (*AnchorSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open anchor file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnchorFormat, err)
	}
	if magic != anchorMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrAnchorFormat, magic)
	}

	var dim, count uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, fmt.Errorf("%w: reading dimension: %v", ErrAnchorFormat, err)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: reading row count: %v", ErrAnchorFormat, err)
	}
	if dim == 0 || count < 2 || dim > 1<<16 || count > 1<<16 {
		return nil, fmt.Errorf("%w: implausible geometry %dx%d", ErrAnchorFormat, count, dim)
	}

	rows := make([][]float32, count)
	for i := range rows {
		row := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, row); err != nil {
			return nil, fmt.Errorf("%w: reading row %d: %v", ErrAnchorFormat, i, err)
		}
		rows[i] = row
	}
	return &AnchorSet{dim: int(dim), rows: rows}, nil
}

// Save writes the anchor set in the binary sidecar format LoadAnchorSet reads.
func (a *AnchorSet) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create anchor file: %w", err)
	}
	w := bufio.NewWriter(f)

	writeErr := func() error {
		if _, err := w.Write(anchorMagic[:]); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(a.dim)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(a.rows))); err != nil {
			return err
		}
		for _, row := range a.rows {
			if err := binary.Write(w, binary.LittleEndian, row); err != nil {
				return err
			}
		}
		return w.Flush()
	}()
	if writeErr != nil {
		f.Close()
		return fmt.Errorf("write anchor file: %w", writeErr)
	}
	return f.Close()
}

// Dim returns the row dimension.
func (a *AnchorSet) Dim() int {
	return a.dim
}

// ConceptCount returns the number of concept rows (total rows minus the
// "other" row).
func (a *AnchorSet) ConceptCount() int {
	return len(a.rows) - 1
}

// Concept returns the anchor row for concept index i.
func (a *AnchorSet) Concept(i int) []float32 {
	return a.rows[i]
}

// Other returns the contrast anchor row.
func (a *AnchorSet) Other() []float32 {
	return a.rows[len(a.rows)-1]
}
