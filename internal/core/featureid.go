package core

import (
	"fmt"
	"regexp"
	"strings"
)

// featureIDPattern matches the NNN-slug identifier shared by branches,
// worktrees, artifact trees and audit partitions.
var featureIDPattern = regexp.MustCompile(`^\d{3}-[a-z0-9-]+$`)

const maxSlugLen = 30

// ValidFeatureID reports whether s is a well-formed feature identifier.
func ValidFeatureID(s string) bool {
	return len(s) <= 34 && featureIDPattern.MatchString(s)
}

// Slugify derives the slug half of a feature id from a free-form
// description: lowercased, non-alphanumerics collapsed to hyphens,
// truncated to 30 characters, trailing hyphens stripped.
func Slugify(description string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(description) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	slug := b.String()
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")
	if len(slug) > maxSlugLen {
		slug = slug[:maxSlugLen]
		slug = strings.TrimRight(slug, "-")
	}
	if slug == "" {
		slug = "feature"
	}
	return slug
}

// FormatFeatureID renders the zero-padded counter plus slug.
func FormatFeatureID(counter int, slug string) string {
	return fmt.Sprintf("%03d-%s", counter, slug)
}

// FeatureCounter extracts the numeric counter from a feature id.
// Returns -1 for malformed ids so corrupt rows never win the max scan.
func FeatureCounter(featureID string) int {
	if len(featureID) < 4 {
		return -1
	}
	var n int
	if _, err := fmt.Sscanf(featureID[:3], "%03d", &n); err != nil {
		return -1
	}
	return n
}
