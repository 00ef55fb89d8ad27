// Package security cleans admin-authored blog content before it is stored.
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizer removes markup that could run in a reader's browser.
type ContentSanitizer interface {
	// SanitizeHTML keeps formatting tags, links and https images.
	SanitizeHTML(raw string) string
	// SanitizeText strips every tag.
	SanitizeText(raw string) string
}

type contentSanitizer struct {
	body  *bluemonday.Policy
	plain *bluemonday.Policy
}

func NewContentSanitizer() ContentSanitizer {
	body := bluemonday.UGCPolicy()
	body.RequireNoReferrerOnLinks(true)
	body.AddTargetBlankToFullyQualifiedLinks(true)
	body.AllowURLSchemes("https", "mailto")

	return &contentSanitizer{
		body:  body,
		plain: bluemonday.StrictPolicy(),
	}
}

func (s *contentSanitizer) SanitizeHTML(raw string) string {
	return strings.TrimSpace(s.body.Sanitize(raw))
}

func (s *contentSanitizer) SanitizeText(raw string) string {
	return strings.TrimSpace(s.plain.Sanitize(raw))
}
