package overlay

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/google/renameio/v2"
)

const (
	// Marker tags documents that already carry the overlay script.
	Marker = "<!-- csfd-overlay -->"
	// DefaultScriptSrc is where the daemon serves the script.
	DefaultScriptSrc = "/web/overlay.js"
	// BackupSuffix is appended to the patched file name for the pristine copy.
	BackupSuffix = ".bak-csfd"
)

//go:embed web/overlay.js
var script []byte

// Script returns the embedded overlay script.
func Script() []byte {
	return script
}

// Option customizes injection.
type Option func(*options)

type options struct {
	scriptSrc string
}

// WithScriptSrc points the injected tag at src instead of DefaultScriptSrc.
func WithScriptSrc(src string) Option {
	return func(o *options) {
		if src = strings.TrimSpace(src); src != "" {
			o.scriptSrc = src
		}
	}
}

// Inject inserts the marker and script tag before </head>, or appends them
// when the document has no head. It reports false and returns doc unchanged
// when the document is empty or already injected.
func Inject(doc string, opts ...Option) (string, bool) {
	o := options{scriptSrc: DefaultScriptSrc}
	for _, opt := range opts {
		opt(&o)
	}
	if doc == "" {
		return doc, false
	}
	if indexFold(doc, Marker) >= 0 || indexFold(doc, o.scriptSrc) >= 0 {
		return doc, false
	}

	injection := "\n    " + Marker + `<script src="` + o.scriptSrc + `"></script>`
	if at := indexFold(doc, "</head>"); at >= 0 {
		return doc[:at] + injection + "\n" + doc[at:], true
	}
	return doc + injection, true
}

// indexFold returns the byte offset in s of the first case-insensitive
// match of needle, or -1. Offsets always index s itself, so runes whose
// lowercase form has a different width cannot shift them.
func indexFold(s, needle string) int {
	n := len(needle)
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], needle) {
			return i
		}
	}
	return -1
}

// PatchFile injects the script into the document at path. The first patch
// keeps a copy at path+BackupSuffix. It reports whether the file changed.
func PatchFile(path string, opts ...Option) (bool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}
	patched, changed := Inject(string(raw), opts...)
	if !changed {
		return false, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	backup := path + BackupSuffix
	if _, err := os.Stat(backup); errors.Is(err, fs.ErrNotExist) {
		if err := renameio.WriteFile(backup, raw, info.Mode().Perm()); err != nil {
			return false, fmt.Errorf("write backup: %w", err)
		}
	} else if err != nil {
		return false, fmt.Errorf("stat backup: %w", err)
	}

	if err := renameio.WriteFile(path, []byte(patched), info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
