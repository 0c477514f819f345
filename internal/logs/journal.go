package logs

import (
	"context"
	"encoding/json"
	"strings"

	"csfdoverlay/internal/csfd"
)

// JournalOptions controls ReadJournal.
type JournalOptions struct {
	// Limit keeps only the newest entries; zero keeps all.
	Limit int
	// Context keeps entries whose context contains this text.
	Context string
}

// ReadJournal decodes the failure journal at path, oldest first. Malformed
// lines are skipped and a missing file yields no entries.
func ReadJournal(ctx context.Context, path string, opts JournalOptions) ([]csfd.JournalEntry, error) {
	needle := strings.ToLower(strings.TrimSpace(opts.Context))
	var entries []csfd.JournalEntry
	match := func(line string) bool {
		var entry csfd.JournalEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return false
		}
		if needle != "" && !strings.Contains(strings.ToLower(entry.Context), needle) {
			return false
		}
		entries = append(entries, entry)
		return true
	}

	if _, err := Tail(ctx, path, TailOptions{Offset: 0, Match: match}); err != nil {
		return nil, err
	}
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[len(entries)-opts.Limit:]
	}
	return entries, nil
}
