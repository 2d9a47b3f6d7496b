package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// StdoutWriter represents a writer that writes to stdout.
type StdoutWriter struct {
	logger *slog.Logger
	out    io.Writer
}

// NewStdoutWriter returns a new StdoutWriter.
func NewStdoutWriter(wc *WriterConfig) *StdoutWriter {
	return &StdoutWriter{
		logger: slog.With(slog.String("writer", string(STDOUT_WRITER_TYPE))),
		out:    os.Stdout,
	}
}

func (w *StdoutWriter) Write(itemChan <-chan map[string]any) error {
	for item := range itemChan {
		encoded, err := encodeIndented(item)
		if err != nil {
			w.logger.Error(fmt.Sprintf("error while writing item %v: %v", item, err))
			continue
		}
		fmt.Fprint(w.out, encoded)
	}
	return nil
}

// encodeIndented marshals without escaping html characters. The default
// marshaller would replace them with unicode replacement runes, which
// mangles extracted text.
func encodeIndented(v any) (string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return "", err
	}
	var indentBuffer bytes.Buffer
	if err := json.Indent(&indentBuffer, buffer.Bytes(), "", "  "); err != nil {
		return "", err
	}
	return indentBuffer.String(), nil
}
