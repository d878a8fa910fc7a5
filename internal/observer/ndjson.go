package observer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/bft-labs/dripfeed/internal/domain"
)

// NDJSONContentType is the media type of WriteNDJSON output.
const NDJSONContentType = "application/x-ndjson"

// WriteNDJSON writes each event as one JSON line, flushing after every
// event when w supports it. It returns when events is closed, ctx is done,
// or a write fails. Events left unread stay in the sink, so a departed
// reader never stalls the session beyond the sink's bounds.
func WriteNDJSON(ctx context.Context, w io.Writer, events <-chan domain.Event) error {
	enc := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := enc.Encode(ev); err != nil {
				return err
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}
