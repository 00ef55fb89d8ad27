package utils

import (
	"regexp"
	"strings"
)

var (
	// RE2's \s is ASCII only and omits \v.
	whitespaceRe = regexp.MustCompile(`[\s\v\p{Zs}\x{FEFF}\x{2028}\x{2029}]+`)
	nonWordRe    = regexp.MustCompile(`[^\w-]+`)
	dashRunRe    = regexp.MustCompile(`-{2,}`)
)

// Slugify lowercases title, joins words with dashes and drops anything that
// is not an ASCII word character. Titles written only in non-Latin script
// yield an empty slug.
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = whitespaceRe.ReplaceAllString(s, "-")
	s = nonWordRe.ReplaceAllString(s, "")
	s = dashRunRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
