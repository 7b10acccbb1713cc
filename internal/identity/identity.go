// Package identity derives stable chunk identifiers and document-type tags.
package identity

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// idPrefixLen is how many characters of the chunk text participate in the ID.
const idPrefixLen = 50

// ChunkID returns a deterministic 16-character hex identifier for a chunk.
// It hashes the filename, the chunk's ordinal and the first 50 characters of
// its text, so any content change produces a new ID.
func ChunkID(filename string, index int, text string) string {
	prefix := []rune(text)
	if len(prefix) > idPrefixLen {
		prefix = prefix[:idPrefixLen]
	}
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%d_%s", filename, index, string(prefix))))
	return hex.EncodeToString(sum[:])[:16]
}

// categoryRule maps filename keywords to a document type.
type categoryRule struct {
	keywords []string
	docType  string
}

// Rules are evaluated in order; the first match wins.
var categoryRules = []categoryRule{
	{[]string{"закон"}, "legislation"},
	{[]string{"gem"}, "research"},
	{[]string{"expert", "article"}, "article"},
	{[]string{"аналіз"}, "analysis"},
	{[]string{"договір", "договор", "nda"}, "contract"},
}

// Categorize tags a document by keywords in its filename, case-insensitively.
// Filenames matching no rule are tagged "other".
func Categorize(filename string) string {
	name := strings.ToLower(filename)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(name, kw) {
				return rule.docType
			}
		}
	}
	return "other"
}
