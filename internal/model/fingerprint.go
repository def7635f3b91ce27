package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// fieldSep cannot appear in normalized input, so ("a b", "c") and ("a", "b c") differ.
const fieldSep = "\x1f"

// Fingerprint derives the dedup identity of a posting from its title, company and URL.
// The result is stable across runs and process restarts.
func Fingerprint(title, company, url string) string {
	sum := sha256.Sum256([]byte(Normalize(title) + fieldSep + Normalize(company) + fieldSep + Normalize(url)))
	return hex.EncodeToString(sum[:])
}

// Normalize lower-cases s and collapses every run of Unicode whitespace (NBSP included)
// to a single space.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
