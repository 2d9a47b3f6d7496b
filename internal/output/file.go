package output

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// FileWriter collects all items and writes them to a single json file.
type FileWriter struct {
	writerConfig *WriterConfig
	logger       *slog.Logger
}

// NewFileWriter returns a new FileWriter.
func NewFileWriter(wc *WriterConfig) (*FileWriter, error) {
	if wc.FilePath == "" {
		return nil, errors.New("file writer needs a file_path")
	}
	return &FileWriter{
		writerConfig: wc,
		logger:       slog.With(slog.String("writer", string(FILE_WRITER_TYPE))),
	}, nil
}

func (w *FileWriter) Write(itemChan <-chan map[string]any) error {
	allItems := []map[string]any{}
	for item := range itemChan {
		allItems = append(allItems, item)
	}

	encoded, err := encodeIndented(allItems)
	if err != nil {
		return fmt.Errorf("error while encoding items: %w", err)
	}

	f, err := os.Create(w.writerConfig.FilePath)
	if err != nil {
		return fmt.Errorf("error while trying to open file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(encoded); err != nil {
		return fmt.Errorf("error while writing json to file: %w", err)
	}
	w.logger.Info(fmt.Sprintf("wrote %d items to file %s", len(allItems), w.writerConfig.FilePath))
	return nil
}
