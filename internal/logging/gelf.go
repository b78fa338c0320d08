package logging

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/Graylog2/go-gelf/gelf"
)

// NewGELFHandler returns a handler that ships records to the Graylog UDP
// input at addr, and the writer to close on shutdown.
func NewGELFHandler(addr, level string) (slog.Handler, io.Closer, error) {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to graylog at %s: %w", addr, err)
	}
	w.Facility = InstrumentationName
	return slog.NewTextHandler(w, handlerOptions(parseLevel(level))), w, nil
}
