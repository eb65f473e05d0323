// Package auditlog records every authentication attempt as one JSON
// line in an append-only file partitioned by UTC day.
package auditlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	logDir = "Auth_Logs"
	// dayLayout is the partition suffix, e.g. auth_log_20250314.jsonl.
	dayLayout = "20060102"
)

// Status of an authentication attempt as recorded in the audit trail.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Record is one audit line. Distance is present whenever the matcher
// ran; Error explains failures that never reached the matcher.
type Record struct {
	Timestamp string  `json:"timestamp"`
	Username  string  `json:"username"`
	Role      string  `json:"role"`
	Status    string  `json:"status"`
	Distance  float64 `json:"distance"`
	Error     string  `json:"error,omitempty"`
}

// Log appends audit records to daily JSONL partitions. Appends are
// serialized and each record goes to the file in a single write, so
// concurrent attempts never interleave within a line.
type Log struct {
	dir string
	mu  sync.Mutex
}

// New creates the audit log rooted at dir. The Auth_Logs directory is
// created if missing.
func New(dir string) (*Log, error) {
	path := filepath.Join(dir, logDir)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	return &Log{dir: path}, nil
}

func (l *Log) partitionPath(day time.Time) string {
	return filepath.Join(l.dir, "auth_log_"+day.UTC().Format(dayLayout)+".jsonl")
}

// Append writes one record to the partition for its UTC date.
func (l *Log) Append(at time.Time, rec Record) error {
	at = at.UTC()
	rec.Timestamp = at.Format(time.RFC3339)

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.partitionPath(at), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// Read returns all records from the partition for the given UTC date.
// A missing partition yields an empty slice.
func (l *Log) Read(day time.Time) ([]Record, error) {
	f, err := os.Open(l.partitionPath(day))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse audit record: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	return records, nil
}
