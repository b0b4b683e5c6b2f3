package search_test

import (
	"testing"

	"boardline/internal/search"
	"boardline/internal/storage"
)

func TestParse(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  storage.TicketFilters
	}{
		{
			name:  "empty",
			query: "",
			want:  storage.TicketFilters{},
		},
		{
			name:  "free text only",
			query: "payment bug",
			want:  storage.TicketFilters{Search: "payment bug"},
		},
		{
			name:  "all filter keys",
			query: "status:in_progress priority:high assignee:alice label:backend",
			want: storage.TicketFilters{
				Status:   "in_progress",
				Priority: "high",
				Assignee: "alice",
				Label:    "backend",
			},
		},
		{
			name:  "filters mixed with text",
			query: "fix status:todo the parser",
			want:  storage.TicketFilters{Status: "todo", Search: "fix the parser"},
		},
		{
			name:  "repeated key keeps the last",
			query: "status:todo status:done",
			want:  storage.TicketFilters{Status: "done"},
		},
		{
			name:  "unknown key is free text",
			query: "reporter:bob crash",
			want:  storage.TicketFilters{Search: "reporter:bob crash"},
		},
		{
			name:  "valueless key is free text",
			query: "status: crash",
			want:  storage.TicketFilters{Search: "status: crash"},
		},
		{
			name:  "colons after the first stay in the value",
			query: "status:a:b",
			want:  storage.TicketFilters{Status: "a:b"},
		},
		{
			name:  "whitespace collapses",
			query: "  payment \t  bug  ",
			want:  storage.TicketFilters{Search: "payment bug"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := search.Parse(tc.query)
			if got != tc.want {
				t.Fatalf("Parse(%q) = %+v, want %+v", tc.query, got, tc.want)
			}
		})
	}
}
