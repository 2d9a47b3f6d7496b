package output

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteWriter stores items in a local sqlite database, one row per item
// with the field map serialized as json.
type SQLiteWriter struct {
	writerConfig *WriterConfig
	logger       *slog.Logger
}

// NewSQLiteWriter returns a new SQLiteWriter. The database file is created
// on first write if it does not exist.
func NewSQLiteWriter(wc *WriterConfig) (*SQLiteWriter, error) {
	if wc.FilePath == "" {
		return nil, errors.New("sqlite writer needs a file_path")
	}
	return &SQLiteWriter{
		writerConfig: wc,
		logger:       slog.With(slog.String("writer", string(SQLITE_WRITER_TYPE))),
	}, nil
}

func (w *SQLiteWriter) Write(itemChan <-chan map[string]any) error {
	db, err := sql.Open("sqlite3", w.writerConfig.FilePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := initSchema(db); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	stmt, err := db.Prepare(`INSERT INTO items (data, source_url, extraction_time, workflow_path, written_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	nrItemsWritten := 0
	for item := range itemChan {
		dataJSON, err := json.Marshal(item["data"])
		if err != nil {
			w.logger.Error(fmt.Sprintf("error while encoding item %v: %v", item, err))
			continue
		}
		pathJSON, err := json.Marshal(item["workflow_path"])
		if err != nil {
			w.logger.Error(fmt.Sprintf("error while encoding workflow path of item %v: %v", item, err))
			continue
		}
		sourceURL, _ := item["source_url"].(string)
		extractionTime, _ := item["extraction_time"].(string)
		if _, err := stmt.Exec(string(dataJSON), sourceURL, extractionTime, string(pathJSON), time.Now().UTC().Format(time.RFC3339)); err != nil {
			w.logger.Error(fmt.Sprintf("error while inserting item: %v", err))
			continue
		}
		nrItemsWritten++
	}
	w.logger.Info(fmt.Sprintf("wrote %d items to %s", nrItemsWritten, w.writerConfig.FilePath))
	return nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		data TEXT NOT NULL,
		source_url TEXT NOT NULL,
		extraction_time TEXT,
		workflow_path TEXT,
		written_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_items_source_url ON items(source_url);
	`
	_, err := db.Exec(schema)
	return err
}
