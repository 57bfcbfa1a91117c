package logbook

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// MessagesFile is the default audit log name inside the logs directory.
const MessagesFile = "messages.log"

// Record is the audit trail entry for one delivered message. Only a preview
// of the body is kept.
type Record struct {
	Timestamp   string `json:"timestamp"`
	MessageID   string `json:"message_id"`
	From        string `json:"from"`
	To          string `json:"to"`
	Type        string `json:"type"`
	Subject     string `json:"subject"`
	BodyPreview string `json:"body_preview"`
}

// Logbook persists delivered-message records as newline-delimited JSON.
type Logbook struct {
	path string
	mu   sync.Mutex
}

// New creates a logbook that writes to the provided path.
func New(path string) (*Logbook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Logbook{path: path}, nil
}

// Path returns the file backing this logbook.
func (l *Logbook) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Append writes a single record.
func (l *Logbook) Append(rec Record) error {
	if l == nil {
		return fmt.Errorf("logbook: nil receiver")
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = file.Write(append(line, '\n'))
	return err
}

// Tail returns up to maxRecords of the most recent records plus the total
// number of records in the file. Lines that fail to decode are skipped.
// Lines are read whole, whatever their length.
func (l *Logbook) Tail(maxRecords int) ([]Record, int) {
	if l == nil || maxRecords <= 0 {
		return nil, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	file, err := os.Open(l.path)
	if err != nil {
		return nil, 0
	}
	defer file.Close()

	var records []Record
	reader := bufio.NewReader(file)
	for {
		line, readErr := reader.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			var rec Record
			if err := json.Unmarshal(line, &rec); err == nil {
				records = append(records, rec)
			}
		}
		if readErr != nil {
			break
		}
	}
	total := len(records)
	if total > maxRecords {
		records = records[total-maxRecords:]
	}
	return records, total
}
