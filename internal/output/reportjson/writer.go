package reportjson

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"racc/internal/logger"
)

// Writer outputs analysis records to a JSON lines file. Any JSON-encodable
// record type is accepted so one file can mix relationships, coverage
// summaries and generated alarms.
type Writer struct {
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewWriter creates a JSONL report writer.
func NewWriter(path string) (*Writer, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create report file: %w", err)
	}

	logger.Infof("JSON report writer initialized: %s", path)
	return &Writer{file: f, encoder: json.NewEncoder(f)}, nil
}

// WriteRecord appends one record as a JSON line.
func (w *Writer) WriteRecord(record interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.encoder.Encode(record); err != nil {
		return fmt.Errorf("failed to encode report record: %w", err)
	}
	return nil
}

// WriteRecords appends a batch of records.
func (w *Writer) WriteRecords(records []interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, record := range records {
		if err := w.encoder.Encode(record); err != nil {
			return fmt.Errorf("failed to encode report record: %w", err)
		}
	}
	return nil
}

// Close closes the report file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
