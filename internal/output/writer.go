// Package output provides the interface, configuration and implementations
// for writers that persist extracted items.
package output

import (
	"fmt"
)

// Writer is responsible for writing extracted items to one output. Write
// consumes the channel until it is closed and returns a single error when
// the output as a whole failed; per-item problems are logged and skipped.
type Writer interface {
	Write(itemChan <-chan map[string]any) error
}

// WriterConfig defines the parameters to make a new writer. Credentials can
// be passed via environment variables.
type WriterConfig struct {
	Type      WriterType `yaml:"type" env:"CRAWLFLOW_WRITER_TYPE" env-default:"stdout"`
	Uri       string     `yaml:"uri" env:"CRAWLFLOW_WRITER_URI"`
	User      string     `yaml:"user" env:"CRAWLFLOW_WRITER_USER"`
	Password  string     `yaml:"password" env:"CRAWLFLOW_WRITER_PASSWORD"`
	FilePath  string     `yaml:"file_path" env:"CRAWLFLOW_WRITER_FILE_PATH"`
	BatchSize int        `yaml:"batch_size,omitempty"`
}

// WriterType encapsulates the type of a writer.
// See below constants for possible types.
type WriterType string

const (
	STDOUT_WRITER_TYPE WriterType = "stdout"
	FILE_WRITER_TYPE   WriterType = "file"
	API_WRITER_TYPE    WriterType = "api"
	SQLITE_WRITER_TYPE WriterType = "sqlite"
)

// NewWriter returns a new writer depending on the writer type.
func NewWriter(wc *WriterConfig) (Writer, error) {
	switch wc.Type {
	case STDOUT_WRITER_TYPE, "":
		return NewStdoutWriter(wc), nil
	case FILE_WRITER_TYPE:
		return NewFileWriter(wc)
	case API_WRITER_TYPE:
		return NewAPIWriter(wc)
	case SQLITE_WRITER_TYPE:
		return NewSQLiteWriter(wc)
	default:
		return nil, fmt.Errorf("writer of type '%s' not implemented", wc.Type)
	}
}
