package logging

import (
	"log/slog"
	"strings"
)

const redacted = "[redacted]"

// secretKeys never reach a log sink in clear text. Matching ignores case
// and any group prefix.
var secretKeys = map[string]struct{}{
	"api_key":       {},
	"api_token":     {},
	"token":         {},
	"authorization": {},
	"x-emby-token":  {},
}

func isSecretKey(key string) bool {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	_, ok := secretKeys[strings.ToLower(key)]
	return ok
}

func redactValue(key string, value slog.Value) slog.Value {
	if !isSecretKey(key) {
		return value
	}
	if value.Kind() == slog.KindString && value.String() == "" {
		return value
	}
	return slog.StringValue(redacted)
}
