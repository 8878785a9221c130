package tagnorm

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// whitespacePattern collapses runs of whitespace into single separators.
var whitespacePattern = regexp.MustCompile(`\s+`)

var folder = cases.Fold()

// Normalize canonicalizes a single tag: Unicode NFKC normalization, case
// folding, whitespace collapsed to underscores. Returns the empty string when
// nothing usable remains.
func Normalize(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	tag = norm.NFKC.String(tag)
	tag = folder.String(tag)
	tag = whitespacePattern.ReplaceAllString(tag, "_")
	tag = strings.Trim(tag, "_")
	return tag
}

// NormalizeAll canonicalizes a tag list, dropping empties and duplicates
// while preserving first-seen order.
func NormalizeAll(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		normalized := Normalize(tag)
		if normalized == "" {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Union merges tag lists into one normalized, deduplicated set. Earlier
// lists take precedence in ordering.
func Union(lists ...[]string) []string {
	var combined []string
	for _, list := range lists {
		combined = append(combined, list...)
	}
	return NormalizeAll(combined)
}

// Contains reports whether a normalized tag set already includes the tag.
func Contains(tags []string, tag string) bool {
	normalized := Normalize(tag)
	for _, existing := range tags {
		if existing == normalized {
			return true
		}
	}
	return false
}
