package engine

import (
	"encoding/json"
	"reflect"

	"boardline/internal/domain"
)

// normalize passes a value through JSON so comparisons do not depend on the
// concrete Go type a backend happened to return (int vs float64, nil slice
// vs empty slice).
func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func equalValues(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

func ticketField(t domain.Ticket, name string) any {
	switch name {
	case "title":
		return t.Title
	case "description":
		return t.Description
	case "status":
		return t.Status
	case "priority":
		return t.Priority
	case "labels":
		return t.Labels
	case "assignees":
		return t.Assignees
	case "parent_id":
		return t.ParentID
	case "custom_fields":
		return t.CustomFields
	case "position":
		return t.Position
	case "due_date":
		return t.DueDate
	}
	return nil
}

// diffTickets computes the field-level changes between two ticket revisions,
// restricted to the named fields. Fields whose values compare equal are
// omitted, so a patch that restates current values produces an empty diff.
func diffTickets(before, after domain.Ticket, fields []string) map[string]domain.Change {
	changes := make(map[string]domain.Change)
	for _, f := range fields {
		oldV, newV := ticketField(before, f), ticketField(after, f)
		if equalValues(oldV, newV) {
			continue
		}
		changes[f] = domain.Change{Old: normalize(oldV), New: normalize(newV)}
	}
	return changes
}
