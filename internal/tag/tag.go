// Package tag extracts hashtag tokens from status text.
package tag

import (
	"regexp"
	"strings"
)

// pattern matches '#' followed by a run of letters, combining marks or
// decimal digits, where the '#' is at the start of the text or directly after whitespace.
var pattern = regexp.MustCompile(`(?:^|\s)#([\p{L}\p{M}\p{Nd}]+)`)

// Extract returns the lowercased tags found in text, left to right.
// Duplicates are kept; a text without tags yields an empty slice.
func Extract(text string) []string {
	matches := pattern.FindAllStringSubmatch(text, -1)
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, strings.ToLower(m[1]))
	}
	return tags
}
