package csfd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const maxPreviewBytes = 16 << 10

// JournalEntry is one line of the failure journal.
type JournalEntry struct {
	Timestamp       time.Time `json:"timestamp"`
	Context         string    `json:"context"`
	Reason          string    `json:"reason"`
	URL             string    `json:"url"`
	ResponsePreview string    `json:"responsePreview,omitempty"`
}

// Journal appends failure records as JSON Lines. A nil Journal discards
// everything. Write errors are swallowed; the journal is diagnostic only.
type Journal struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewJournal returns a journal writing to path.
func NewJournal(path string) *Journal {
	return &Journal{path: path, now: time.Now}
}

// Path returns the journal file location.
func (j *Journal) Path() string {
	if j == nil {
		return ""
	}
	return j.path
}

// Record appends one failure line.
func (j *Journal) Record(context, reason, url, body string) {
	if j == nil || j.path == "" {
		return
	}
	if len(body) > maxPreviewBytes {
		body = body[:maxPreviewBytes]
	}
	line, err := json.Marshal(JournalEntry{
		Timestamp:       j.now().UTC(),
		Context:         context,
		Reason:          reason,
		URL:             url,
		ResponsePreview: body,
	})
	if err != nil {
		return
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	_, _ = f.Write(line)
	_ = f.Close()
}
