// Package search parses the compact query syntax used by the ticket search
// surface. Queries mix key:value filter tokens with free text, for example:
//
//	status:in_progress assignee:alice payment bug
//
// Recognized keys are status, priority, assignee, and label. Unrecognized
// tokens, including unknown key:value pairs, become free text matched
// against ticket titles and descriptions. Repeating a key keeps the last
// occurrence.
package search

import (
	"strings"

	"boardline/internal/storage"
)

// Parse translates a query string into ticket filters. The free-text
// remainder is joined with single spaces regardless of input whitespace.
func Parse(query string) storage.TicketFilters {
	var f storage.TicketFilters
	var text []string
	for _, token := range strings.Fields(query) {
		// Only the first colon splits key from value; later colons stay in
		// the value, so status:a:b filters on "a:b".
		key, value, ok := strings.Cut(token, ":")
		if !ok || value == "" {
			text = append(text, token)
			continue
		}
		switch key {
		case "status":
			f.Status = value
		case "priority":
			f.Priority = value
		case "assignee":
			f.Assignee = value
		case "label":
			f.Label = value
		default:
			text = append(text, token)
		}
	}
	f.Search = strings.Join(text, " ")
	return f
}
