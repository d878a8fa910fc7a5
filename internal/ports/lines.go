package ports

import "context"

// LineCounter computes the progress denominator for a file.
type LineCounter interface {
	CountLines(ctx context.Context, path string) (int, error)
}

// LineSourceOpener starts the streaming pass over a file.
type LineSourceOpener interface {
	Open(path string) (LineSource, error)
}

// LineSource yields a file's lines in order, once.
type LineSource interface {
	// Next returns the next line without its terminator, or io.EOF when
	// the file is exhausted. It blocks while the source is paused.
	Next(ctx context.Context) (string, error)

	// Pause stops Next from yielding until Resume is called.
	Pause()

	// Resume releases a paused source.
	Resume()

	// Close releases the file; no further lines are yielded.
	Close() error
}
