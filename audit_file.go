package payflow

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileAuditLog is an AuditLog that appends newline-delimited JSON to one file
// per workflow. Suited to single-process deployments that want a trail
// inspectable with standard text tools.
type FileAuditLog struct {
	directory string
	mu        sync.Mutex
}

// NewFileAuditLog returns a file-backed audit log rooted at directory,
// creating it if needed.
func NewFileAuditLog(directory string) (*FileAuditLog, error) {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}
	return &FileAuditLog{directory: directory}, nil
}

func (l *FileAuditLog) workflowPath(workflowID string) string {
	return filepath.Join(l.directory, fmt.Sprintf("%s.jsonl", workflowID))
}

func (l *FileAuditLog) Append(ctx context.Context, entry AuditEntry) error {
	if entry.WorkflowID == "" {
		return NewValidationError("audit entry requires a workflow id")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.workflowPath(entry.WorkflowID),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

func (l *FileAuditLog) ListByWorkflow(ctx context.Context, workflowID string) ([]AuditEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := os.ReadFile(l.workflowPath(workflowID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read audit file: %w", err)
	}

	var entries []AuditEntry
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var entry AuditEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, fmt.Errorf("decode audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}
