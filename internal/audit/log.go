// Package audit persists the append-only record of closed arbitrage
// opportunities as a JSON array on disk. The file is rewritten in full
// on every close; closures are rare enough that this stays cheap, and a
// plain JSON array keeps the log trivially greppable.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/jcarden/arbscan/internal/domain"
)

// Log is a file-backed closed-opportunity log. Safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	path    string
	records []domain.ClosedOpportunity
}

// Open loads an existing log file, or starts an empty log when the file
// does not exist yet. A file that exists but cannot be parsed is an
// error; silently clobbering history is worse than failing startup.
func Open(path string) (*Log, error) {
	l := &Log{path: path}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return l, nil
	case err != nil:
		return nil, fmt.Errorf("audit: read %s: %w", path, err)
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &l.records); err != nil {
			return nil, fmt.Errorf("audit: parse %s: %w", path, err)
		}
	}
	return l, nil
}

// Append adds a closed record and rewrites the log file.
func (l *Log) Append(rec domain.ClosedOpportunity) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, rec)

	data, err := json.MarshalIndent(l.records, "", "  ")
	if err != nil {
		return fmt.Errorf("audit: marshal: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return fmt.Errorf("audit: write %s: %w", l.path, err)
	}
	return nil
}

// Snapshot returns a copy of every record logged so far.
func (l *Log) Snapshot() []domain.ClosedOpportunity {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.ClosedOpportunity, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of closed records.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Compile-time interface checks.
var (
	_ domain.AuditLog         = (*Log)(nil)
	_ domain.AuditSnapshotter = (*Log)(nil)
)
