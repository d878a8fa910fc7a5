package fs

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/bft-labs/dripfeed/internal/domain"
	"github.com/bft-labs/dripfeed/internal/ports"
)

// MaxLineLength bounds a single line. Longer lines fail the read.
const MaxLineLength = 1 << 20

// ErrSourceClosed is returned by Next after Close.
var ErrSourceClosed = errors.New("line source closed")

// LineSourceOpener opens LineReaders.
type LineSourceOpener struct{}

// Open implements ports.LineSourceOpener.
func (LineSourceOpener) Open(path string) (ports.LineSource, error) {
	return OpenLineReader(path)
}

// LineReader yields the lines of a file lazily and in order. Lines are split
// on "\n", "\r\n" and a lone "\r". A final unterminated line is yielded.
type LineReader struct {
	file    *os.File
	scanner *bufio.Scanner

	mu     sync.Mutex
	paused bool
	closed bool
	resume chan struct{}
	failed bool
}

// OpenLineReader opens path for streaming.
func OpenLineReader(path string) (*LineReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.NewError(domain.ErrIO, "G-code file is not accessible.", err)
	}
	return newLineReader(f), nil
}

func newLineReader(f *os.File) *LineReader {
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64<<10), MaxLineLength)
	sc.Split(scanLines)
	return &LineReader{
		file:    f,
		scanner: sc,
		resume:  make(chan struct{}),
	}
}

// Next returns the next line, io.EOF at the end of the file, or
// ErrSourceClosed after Close. A read failure is returned once; subsequent
// calls return io.EOF.
func (r *LineReader) Next(ctx context.Context) (string, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return "", ErrSourceClosed
		}
		if r.failed {
			r.mu.Unlock()
			return "", io.EOF
		}
		if !r.paused {
			break
		}
		wait := r.resume
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-wait:
		}
	}
	defer r.mu.Unlock()

	if r.scanner.Scan() {
		return r.scanner.Text(), nil
	}
	if err := r.scanner.Err(); err != nil {
		r.failed = true
		return "", domain.NewError(domain.ErrIO, err.Error(), err)
	}
	return "", io.EOF
}

// Pause blocks subsequent Next calls until Resume.
func (r *LineReader) Pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = true
}

// Resume releases a paused reader.
func (r *LineReader) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.paused {
		return
	}
	r.paused = false
	close(r.resume)
	r.resume = make(chan struct{})
}

// Paused reports whether the reader is paused.
func (r *LineReader) Paused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// Close releases the underlying file. It is safe to call more than once
// and wakes a Next blocked on a pause.
func (r *LineReader) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.resume)
	r.resume = make(chan struct{})
	r.mu.Unlock()
	return r.file.Close()
}

// scanLines is bufio.ScanLines extended with lone '\r' terminators.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return i + 1, data[:i], nil
		}
		// '\r': need one more byte to tell "\r\n" from a lone '\r'.
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
			return i + 1, data[:i], nil
		}
		if atEOF {
			return i + 1, data[:i], nil
		}
		return 0, nil, nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
