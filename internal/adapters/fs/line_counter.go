package fs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"

	"github.com/bft-labs/dripfeed/internal/domain"
)

// DefaultChunkSize is the read size used by the counting pass.
const DefaultChunkSize = 64 << 10

// LineCounter counts '\n' bytes in a file in a single bounded-memory pass.
// A final line without a terminator is not counted.
type LineCounter struct {
	ChunkSize int
}

// NewLineCounter returns a counter reading DefaultChunkSize bytes at a time.
func NewLineCounter() *LineCounter {
	return &LineCounter{ChunkSize: DefaultChunkSize}
}

// CountLines returns the number of line terminators in path.
func (c *LineCounter) CountLines(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, domain.NewError(domain.ErrIO, "Failed to count lines in G-code file.", err)
	}
	defer f.Close()

	size := c.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	buf := make([]byte, size)

	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := f.Read(buf)
		count += bytes.Count(buf[:n], []byte{'\n'})
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return 0, domain.NewError(domain.ErrIO, "Failed to count lines in G-code file.", err)
		}
	}
}
