package export

import (
	"fmt"
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Sanitize replaces every non-alphanumeric character with "_" and lowercases the result.
func Sanitize(name string) string {
	return strings.ToLower(nonAlnum.ReplaceAllString(name, "_"))
}

// FileName is the deterministic output name for one exported period.
func FileName(company, endDate, label string) string {
	return fmt.Sprintf("full_export_%s_%s_%s.pdf", Sanitize(company), endDate, label)
}

// Title is the human-readable title sent when creating the export job.
func Title(company, endDate, label string) string {
	return fmt.Sprintf("%s - %s - %s", company, endDate, label)
}
