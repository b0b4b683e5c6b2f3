// Package workflow holds the built-in workflow presets and definition
// validation shared by every storage backend.
package workflow

import (
	"fmt"

	"boardline/internal/domain"
)

// Builtin workflow identifiers.
const (
	Kanban  = "kanban"
	Scrum   = "scrum"
	Support = "support"
	Simple  = "simple"
)

var builtins = []domain.Workflow{
	{
		ID:     Kanban,
		Name:   "Kanban",
		States: []string{"backlog", "todo", "in_progress", "review", "done"},
		Transitions: map[string][]string{
			"backlog":     {"todo"},
			"todo":        {"backlog", "in_progress"},
			"in_progress": {"todo", "review"},
			"review":      {"in_progress", "done"},
			"done":        {"review"},
		},
	},
	{
		ID:     Scrum,
		Name:   "Scrum",
		States: []string{"backlog", "sprint_backlog", "in_progress", "testing", "done"},
		Transitions: map[string][]string{
			"backlog":        {"sprint_backlog"},
			"sprint_backlog": {"backlog", "in_progress"},
			"in_progress":    {"sprint_backlog", "testing"},
			"testing":        {"in_progress", "done"},
			"done":           {"testing"},
		},
	},
	{
		ID:     Support,
		Name:   "Support",
		States: []string{"new", "open", "pending", "on_hold", "solved", "closed"},
		Transitions: map[string][]string{
			"new":     {"open"},
			"open":    {"pending", "on_hold", "solved"},
			"pending": {"open", "solved"},
			"on_hold": {"open"},
			"solved":  {"open", "closed"},
			"closed":  {},
		},
	},
	{
		ID:     Simple,
		Name:   "Simple",
		States: []string{"todo", "doing", "done"},
		Transitions: map[string][]string{
			"todo":  {"doing"},
			"doing": {"todo", "done"},
			"done":  {"doing"},
		},
	},
}

// Builtins returns the built-in workflow definitions. The result is a copy;
// callers may not mutate the presets.
func Builtins() []domain.Workflow {
	out := make([]domain.Workflow, len(builtins))
	for i, w := range builtins {
		out[i] = clone(w)
	}
	return out
}

// IsBuiltin reports whether id names a built-in workflow.
func IsBuiltin(id string) bool {
	for _, w := range builtins {
		if w.ID == id {
			return true
		}
	}
	return false
}

// Validate checks a workflow definition strictly: a non-empty state
// sequence, no duplicate states, and a transition graph closed over the
// declared states. Invalid definitions are rejected at creation time so
// runtime transition checks never see an undeclared state.
func Validate(w domain.Workflow) error {
	if w.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	if len(w.States) == 0 {
		return fmt.Errorf("workflow must declare at least one state")
	}
	seen := make(map[string]bool, len(w.States))
	for _, s := range w.States {
		if s == "" {
			return fmt.Errorf("workflow has an empty state name")
		}
		if seen[s] {
			return fmt.Errorf("duplicate state %q", s)
		}
		seen[s] = true
	}
	for from, targets := range w.Transitions {
		if !seen[from] {
			return fmt.Errorf("transition source %q is not a declared state", from)
		}
		for _, to := range targets {
			if !seen[to] {
				return fmt.Errorf("transition %s -> %s targets an undeclared state", from, to)
			}
		}
	}
	return nil
}

func clone(w domain.Workflow) domain.Workflow {
	c := w
	c.States = append([]string(nil), w.States...)
	c.Transitions = make(map[string][]string, len(w.Transitions))
	for from, targets := range w.Transitions {
		c.Transitions[from] = append([]string(nil), targets...)
	}
	return c
}
