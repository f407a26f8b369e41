// Package models defines the records of the film import pipeline.
package models

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

var sourceKeyPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// RecordIDString safely extracts the string ID from a SurrealDB RecordID.
// Returns an error if the ID is not a string type.
func RecordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected ID type: %T (expected string)", id.ID)
	}
	return s, nil
}

// IntKey renders a numeric external id as a record key.
func IntKey(id int) string {
	return strconv.Itoa(id)
}

// Slugify lowercases s and maps runs of separators to a single underscore,
// dropping anything that is not a letter or digit.
func Slugify(s string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_' || r == '/' || r == '.':
			pendingSep = true
		}
	}
	return b.String()
}

// ValidSourceKey reports whether key can be used as a canonical_sources key.
func ValidSourceKey(key string) bool {
	return sourceKeyPattern.MatchString(key)
}

// FestivalSourceKey is the canonical_sources key for one ceremony, e.g. "cannes_2024".
func FestivalSourceKey(festival string, year int) string {
	return Slugify(festival) + "_" + strconv.Itoa(year)
}

// ListScope is the import state scope of a canonical list.
func ListScope(listKey string) string {
	return "list:" + listKey
}

// FestivalScope is the import state scope of one ceremony.
func FestivalScope(festival string, year int) string {
	return "festival:" + Slugify(festival) + ":" + strconv.Itoa(year)
}
