package matching

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"strings"

	"csfdoverlay/internal/library"
	"csfdoverlay/internal/textutil"
)

const fieldSeparator = "|"

// Fingerprint hashes an item's normalized identity. Any change to the
// titles, production year, type, or provider ids changes the result; the
// order provider ids are listed in does not.
func Fingerprint(item library.Item) string {
	year := ""
	if y, ok := item.Year(); ok {
		year = strconv.Itoa(y)
	}

	providers := make([]string, 0, len(item.ProviderIDs))
	for key, value := range item.ProviderIDs {
		providers = append(providers, key+":"+value)
	}
	slices.SortFunc(providers, func(a, b string) int {
		if c := strings.Compare(strings.ToLower(a), strings.ToLower(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})

	payload := strings.Join([]string{
		textutil.Normalize(item.Name),
		textutil.Normalize(item.OriginalTitle),
		year,
		string(item.Kind),
		strings.Join(providers, ","),
	}, fieldSeparator)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// SameFingerprint compares two fingerprints, ignoring hex case.
func SameFingerprint(a, b string) bool {
	return strings.EqualFold(a, b)
}
