package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// APIWriter posts items to an HTTP endpoint in batches.
type APIWriter struct {
	*WriterConfig
	logger *slog.Logger
}

// NewAPIWriter returns a new APIWriter.
func NewAPIWriter(wc *WriterConfig) (*APIWriter, error) {
	if wc.Uri == "" {
		return nil, errors.New("api writer needs a uri")
	}
	if wc.BatchSize == 0 {
		wc.BatchSize = 100 // default
	}
	return &APIWriter{
		WriterConfig: wc,
		logger:       slog.With(slog.String("writer", string(API_WRITER_TYPE))),
	}, nil
}

func (w *APIWriter) Write(itemChan <-chan map[string]any) error {
	client := &http.Client{
		Timeout: time.Second * 60,
	}

	nrItemsWritten := 0
	batch := []map[string]any{}
	for item := range itemChan {
		batch = append(batch, item)
		if len(batch) == w.BatchSize {
			if err := w.persistBatch(client, batch); err != nil {
				return err
			}
			nrItemsWritten += len(batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := w.persistBatch(client, batch); err != nil {
			return err
		}
		nrItemsWritten += len(batch)
	}
	w.logger.Info(fmt.Sprintf("wrote %d items to %s", nrItemsWritten, w.Uri))
	return nil
}

func (w *APIWriter) persistBatch(client *http.Client, batch []map[string]any) error {
	itemsJSON, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	req, _ := http.NewRequest("POST", w.Uri, bytes.NewBuffer(itemsJSON))
	req.Header = map[string][]string{
		"Content-Type": {"application/json"},
	}
	if w.User != "" {
		req.SetBasicAuth(w.User, w.Password)
	}
	resp, err := client.Do(req)
	if err != nil {
		w.logger.Debug(fmt.Sprintf("post request body %s", itemsJSON))
		return fmt.Errorf("error while sending post request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 201 && resp.StatusCode != 200 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("error while reading post request response: %w", err)
		}
		return fmt.Errorf("error while adding new items. Status Code: %d Response: %s", resp.StatusCode, body)
	}
	return nil
}
