package curate

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrInvalidClipID is returned for clip identifiers that cannot be used as
// a file name inside the results directory.
var ErrInvalidClipID = errors.New("invalid clip id")

// ValidateClipIDs checks every clip id before any work starts. A single bad
// id fails the whole batch.
func ValidateClipIDs(ids []string) error {
	seen := make(map[string]bool, len(ids))
	for i, id := range ids {
		if reason := clipIDProblem(id); reason != "" {
			return fmt.Errorf("%w at position %d (%q): %s", ErrInvalidClipID, i, id, reason)
		}
		if seen[id] {
			return fmt.Errorf("%w: duplicate %q", ErrInvalidClipID, id)
		}
		seen[id] = true
	}
	return nil
}

func clipIDProblem(id string) string {
	switch {
	case id == "":
		return "empty"
	case !utf8.ValidString(id):
		return "not valid UTF-8"
	case id == "." || id == "..":
		return "reserved name"
	case strings.ContainsAny(id, `/\`):
		return "contains a path separator"
	case strings.IndexFunc(id, unicode.IsControl) >= 0:
		return "contains a control character"
	}
	return ""
}
