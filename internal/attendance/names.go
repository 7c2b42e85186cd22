package attendance

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NormalizeDisplayName collapses whitespace and title-cases Latin names.
// Names in scripts without case are returned with whitespace collapsed only.
func NormalizeDisplayName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return cases.Title(language.Und, cases.NoLower).String(strings.Join(fields, " "))
}
