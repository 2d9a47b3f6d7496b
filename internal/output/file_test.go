package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestFileWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.json")
	w, err := NewFileWriter(&WriterConfig{Type: FILE_WRITER_TYPE, FilePath: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	itemChan := make(chan map[string]any)
	go func() {
		itemChan <- map[string]any{"title": "First", "source_url": "https://site.test/list"}
		itemChan <- map[string]any{"title": "Tom & Jerry <3", "source_url": "https://site.test/list"}
		close(itemChan)
	}()
	if err := w.Write(itemChan); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read output file: %v", err)
	}
	var items []map[string]any
	if err := json.Unmarshal(content, &items); err != nil {
		t.Fatalf("output is not valid json: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0]["title"] != "First" {
		t.Errorf("expected first title 'First', got %v", items[0]["title"])
	}
	// html characters must not be escaped
	if items[1]["title"] != "Tom & Jerry <3" {
		t.Errorf("expected unescaped title, got %v", items[1]["title"])
	}
}
