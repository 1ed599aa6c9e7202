package scheduler

import "metasbot/internal/storage"

// ResolveTemplate picks the message template for a schedule. Priority chain,
// first non-empty wins:
//
//  1. schedule-level template override
//  2. the definition's default template
//  3. "" — the handler falls back to its own hardcoded text
//
// The content is returned raw; no placeholder substitution happens here.
func ResolveTemplate(s storage.Schedule) string {
	if s.Template != nil && s.Template.Content != "" {
		return s.Template.Content
	}
	if s.Definition != nil && s.Definition.DefaultTemplate != nil {
		return s.Definition.DefaultTemplate.Content
	}
	return ""
}
