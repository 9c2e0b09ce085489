package utils

import (
	"crypto/md5"
	"fmt"
	"strings"
)

// HashQuery produces a stable cache key for a user query. Queries are
// case-folded and whitespace-trimmed so trivially different phrasings of
// the same text share a cache entry.
func HashQuery(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	hash := md5.Sum([]byte(normalized))
	return fmt.Sprintf("%x", hash)
}

func HashString(input string) string {
	hash := md5.Sum([]byte(input))
	return fmt.Sprintf("%x", hash)
}
