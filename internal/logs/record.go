package logs

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"csfdoverlay/internal/logging"
)

// Record is one decoded line of the daemon JSON log.
type Record struct {
	Time      time.Time
	Level     string
	Message   string
	Component string
	ItemID    string
	EventType string
	Fields    map[string]any
}

// ParseRecord decodes a JSON log line. Lines that are not JSON objects
// report false.
func ParseRecord(line string) (Record, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return Record{}, false
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Record{}, false
	}
	rec := Record{Fields: map[string]any{}}
	for key, value := range raw {
		text, _ := value.(string)
		switch key {
		case "ts":
			rec.Time, _ = time.Parse(time.RFC3339, text)
		case "level":
			rec.Level = strings.ToLower(text)
		case "msg":
			rec.Message = text
		case logging.FieldComponent:
			rec.Component = text
		case logging.FieldItemID:
			rec.ItemID = text
		case logging.FieldEventType:
			rec.EventType = text
		default:
			rec.Fields[key] = value
		}
	}
	return rec, true
}

// Format renders the record as a single console line.
func (r Record) Format() string {
	var b strings.Builder
	if !r.Time.IsZero() {
		b.WriteString(r.Time.Local().Format("2006-01-02 15:04:05"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s", strings.ToUpper(r.Level))
	if r.Component != "" {
		fmt.Fprintf(&b, " [%s]", r.Component)
	}
	if r.ItemID != "" {
		fmt.Fprintf(&b, " item=%s", r.ItemID)
	}
	b.WriteByte(' ')
	b.WriteString(r.Message)

	keys := make([]string, 0, len(r.Fields))
	for key := range r.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, r.Fields[key])
	}
	return b.String()
}

// Filter selects records. Zero values match everything.
type Filter struct {
	MinLevel  string
	Component string
	ItemID    string
}

// Matches reports whether line passes the filter. Non-JSON lines pass only
// an empty filter.
func (f Filter) Matches(line string) bool {
	if f == (Filter{}) {
		return true
	}
	rec, ok := ParseRecord(line)
	if !ok {
		return false
	}
	if f.MinLevel != "" && levelRank(rec.Level) < levelRank(f.MinLevel) {
		return false
	}
	if f.Component != "" && !strings.EqualFold(rec.Component, f.Component) {
		return false
	}
	if f.ItemID != "" && !strings.EqualFold(rec.ItemID, f.ItemID) {
		return false
	}
	return true
}

func levelRank(level string) int {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return 0
	case "info", "":
		return 1
	case "warn", "warning":
		return 2
	case "error":
		return 3
	default:
		return 1
	}
}
