package memstore_test

import (
	"context"
	"errors"
	"testing"

	"boardline/internal/domain"
	"boardline/internal/storage"
	"boardline/internal/storage/memstore"
)

func newStore(t *testing.T) (*memstore.Store, context.Context) {
	t.Helper()
	s := memstore.New()
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	return s, ctx
}

func mkBoard(t *testing.T, s *memstore.Store, ctx context.Context) domain.Board {
	t.Helper()
	b, err := s.CreateBoard(ctx, domain.Board{Name: "B"})
	if err != nil {
		t.Fatalf("create board: %v", err)
	}
	return b
}

func mkTicket(t *testing.T, s *memstore.Store, ctx context.Context, tk domain.Ticket) domain.Ticket {
	t.Helper()
	got, err := s.CreateTicket(ctx, tk)
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return got
}

func TestInitSeedsBuiltinWorkflows(t *testing.T) {
	s, ctx := newStore(t)
	for _, id := range []string{"kanban", "scrum", "support", "simple"} {
		if _, err := s.GetWorkflow(ctx, id); err != nil {
			t.Fatalf("workflow %s: %v", id, err)
		}
	}
}

func TestNotFoundSentinel(t *testing.T) {
	s, ctx := newStore(t)
	if _, err := s.GetBoard(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetBoard: %v", err)
	}
	if _, err := s.GetTicket(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetTicket: %v", err)
	}
	if _, err := s.UpdateTicket(ctx, "nope", storage.TicketPatch{}); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("UpdateTicket: %v", err)
	}
	if err := s.DeleteBoard(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("DeleteBoard: %v", err)
	}
	if err := s.DeleteComment(ctx, "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("DeleteComment: %v", err)
	}
}

func TestCreateTicketPreservesCallerTimestamps(t *testing.T) {
	s, ctx := newStore(t)
	b := mkBoard(t, s, ctx)
	tk := mkTicket(t, s, ctx, domain.Ticket{
		BoardID:   b.ID,
		Title:     "t",
		Status:    "todo",
		CreatedAt: "2024-01-01T00:00:00Z",
		UpdatedAt: "2024-01-02T00:00:00Z",
	})
	if tk.CreatedAt != "2024-01-01T00:00:00Z" || tk.UpdatedAt != "2024-01-02T00:00:00Z" {
		t.Fatalf("timestamps overwritten: %+v", tk)
	}
	if tk.Priority != domain.PriorityMedium {
		t.Fatalf("priority default = %q", tk.Priority)
	}
}

func TestListTicketsFilters(t *testing.T) {
	s, ctx := newStore(t)
	b := mkBoard(t, s, ctx)
	other := mkBoard(t, s, ctx)

	parent := mkTicket(t, s, ctx, domain.Ticket{BoardID: b.ID, Title: "Parent epic", Status: "todo"})
	pid := parent.ID
	child := mkTicket(t, s, ctx, domain.Ticket{
		BoardID: b.ID, Title: "Child piece", Status: "doing",
		Priority: domain.PriorityHigh, ParentID: &pid,
		Labels: []string{"backend"}, Assignees: []string{"alice"},
	})
	mkTicket(t, s, ctx, domain.Ticket{BoardID: other.ID, Title: "Elsewhere", Status: "todo"})

	cases := []struct {
		name    string
		filters storage.TicketFilters
		wantIDs []string
	}{
		{"by board", storage.TicketFilters{BoardID: other.ID}, nil},
		{"by status", storage.TicketFilters{BoardID: b.ID, Status: "doing"}, []string{child.ID}},
		{"by priority", storage.TicketFilters{Priority: domain.PriorityHigh}, []string{child.ID}},
		{"by assignee", storage.TicketFilters{Assignee: "alice"}, []string{child.ID}},
		{"assignee miss", storage.TicketFilters{Assignee: "bob"}, nil},
		{"by label", storage.TicketFilters{Label: "backend"}, []string{child.ID}},
		{"top level only", storage.TicketFilters{BoardID: b.ID, ParentSet: true}, []string{parent.ID}},
		{"children of parent", storage.TicketFilters{ParentSet: true, ParentID: parent.ID}, []string{child.ID}},
		{"search title", storage.TicketFilters{Search: "epic"}, []string{parent.ID}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.ListTickets(ctx, tc.filters)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if tc.name == "by board" {
				if len(got) != 1 {
					t.Fatalf("want 1 ticket on the other board, got %d", len(got))
				}
				return
			}
			if len(got) != len(tc.wantIDs) {
				t.Fatalf("got %d tickets, want %d", len(got), len(tc.wantIDs))
			}
			for i, id := range tc.wantIDs {
				if got[i].ID != id {
					t.Fatalf("ticket %d = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestListTicketsSearchMatchesDescription(t *testing.T) {
	s, ctx := newStore(t)
	b := mkBoard(t, s, ctx)
	tk := mkTicket(t, s, ctx, domain.Ticket{
		BoardID: b.ID, Title: "short", Description: "The Payment Gateway times out", Status: "todo",
	})
	got, err := s.ListTickets(ctx, storage.TicketFilters{Search: "payment gateway"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != tk.ID {
		t.Fatalf("case-insensitive description search failed: %+v", got)
	}
}

func TestListTicketsOrdering(t *testing.T) {
	s, ctx := newStore(t)
	b := mkBoard(t, s, ctx)
	oldT := mkTicket(t, s, ctx, domain.Ticket{BoardID: b.ID, Title: "old", Status: "todo", CreatedAt: "2024-01-01T00:00:00Z"})
	newT := mkTicket(t, s, ctx, domain.Ticket{BoardID: b.ID, Title: "new", Status: "todo", CreatedAt: "2024-02-01T00:00:00Z"})
	pinned := mkTicket(t, s, ctx, domain.Ticket{BoardID: b.ID, Title: "pinned", Status: "todo", Position: -1, CreatedAt: "2023-01-01T00:00:00Z"})

	got, err := s.ListTickets(ctx, storage.TicketFilters{BoardID: b.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// Position first, then newest created.
	wantOrder := []string{pinned.ID, newT.ID, oldT.ID}
	for i, id := range wantOrder {
		if got[i].ID != id {
			t.Fatalf("position %d = %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestListTicketsPagination(t *testing.T) {
	s, ctx := newStore(t)
	b := mkBoard(t, s, ctx)
	for i, ts := range []string{"2024-01-03T00:00:00Z", "2024-01-02T00:00:00Z", "2024-01-01T00:00:00Z"} {
		mkTicket(t, s, ctx, domain.Ticket{BoardID: b.ID, Title: string(rune('a' + i)), Status: "todo", CreatedAt: ts})
	}
	page, err := s.ListTickets(ctx, storage.TicketFilters{BoardID: b.ID, Limit: 2})
	if err != nil || len(page) != 2 {
		t.Fatalf("limit: %v, %d tickets", err, len(page))
	}
	rest, err := s.ListTickets(ctx, storage.TicketFilters{BoardID: b.ID, Offset: 2})
	if err != nil || len(rest) != 1 {
		t.Fatalf("offset: %v, %d tickets", err, len(rest))
	}
	if page[0].ID == rest[0].ID || page[1].ID == rest[0].ID {
		t.Fatalf("pages overlap")
	}
	none, err := s.ListTickets(ctx, storage.TicketFilters{BoardID: b.ID, Offset: 10})
	if err != nil || len(none) != 0 {
		t.Fatalf("past-the-end offset: %v, %d tickets", err, len(none))
	}
}

func TestUpdateTicketPatchSemantics(t *testing.T) {
	s, ctx := newStore(t)
	b := mkBoard(t, s, ctx)
	parent := mkTicket(t, s, ctx, domain.Ticket{BoardID: b.ID, Title: "p", Status: "todo"})
	pid := parent.ID
	due := "2025-07-01"
	tk := mkTicket(t, s, ctx, domain.Ticket{
		BoardID: b.ID, Title: "c", Status: "todo", ParentID: &pid, DueDate: &due,
	})

	// Untouched fields survive a partial patch.
	title := "renamed"
	got, err := s.UpdateTicket(ctx, tk.ID, storage.TicketPatch{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Title != "renamed" || got.ParentID == nil || got.DueDate == nil {
		t.Fatalf("partial patch clobbered fields: %+v", got)
	}

	// An explicit empty string clears the nullable fields.
	empty := ""
	got, err = s.UpdateTicket(ctx, tk.ID, storage.TicketPatch{ParentID: &empty, DueDate: &empty})
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got.ParentID != nil || got.DueDate != nil {
		t.Fatalf("empty-string patch must clear: %+v", got)
	}
}

func TestDeleteTicketCascades(t *testing.T) {
	s, ctx := newStore(t)
	b := mkBoard(t, s, ctx)
	tk := mkTicket(t, s, ctx, domain.Ticket{BoardID: b.ID, Title: "t", Status: "todo"})
	if _, err := s.CreateComment(ctx, domain.Comment{TicketID: tk.ID, Author: "a", Content: "c"}); err != nil {
		t.Fatalf("comment: %v", err)
	}
	if _, err := s.CreateActivity(ctx, domain.Activity{TicketID: tk.ID, Action: domain.ActionCreated}); err != nil {
		t.Fatalf("activity: %v", err)
	}
	if _, err := s.CreateAttachment(ctx, domain.Attachment{TicketID: tk.ID, Filename: "f.txt"}); err != nil {
		t.Fatalf("attachment: %v", err)
	}

	if err := s.DeleteTicket(ctx, tk.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if cs, _ := s.ListComments(ctx, tk.ID); len(cs) != 0 {
		t.Fatalf("comments left behind: %d", len(cs))
	}
	if as, _ := s.ListActivities(ctx, tk.ID, 0); len(as) != 0 {
		t.Fatalf("activities left behind: %d", len(as))
	}
	if as, _ := s.ListAttachments(ctx, tk.ID); len(as) != 0 {
		t.Fatalf("attachments left behind: %d", len(as))
	}
}

func TestActivityOrderWithinOneSecond(t *testing.T) {
	s, ctx := newStore(t)
	// Same second, so ordering falls back to insertion order.
	ts := "2025-06-01T10:00:00Z"
	for _, action := range []string{"created", "updated", "status_changed"} {
		if _, err := s.CreateActivity(ctx, domain.Activity{TicketID: "t1", Action: action, CreatedAt: ts}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	got, err := s.ListActivities(ctx, "t1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d activities", len(got))
	}
	// Newest first means last inserted first.
	if got[0].Action != "status_changed" || got[2].Action != "created" {
		t.Fatalf("order = [%s %s %s]", got[0].Action, got[1].Action, got[2].Action)
	}
}

func TestQueryActivitiesFilters(t *testing.T) {
	s, ctx := newStore(t)
	mk := func(ticket, action, ts string) {
		if _, err := s.CreateActivity(ctx, domain.Activity{TicketID: ticket, Action: action, CreatedAt: ts}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	mk("t1", domain.ActionCreated, "2025-06-01T08:00:00Z")
	mk("t1", domain.ActionStatusChanged, "2025-06-02T08:00:00Z")
	mk("t2", domain.ActionStatusChanged, "2025-06-03T08:00:00Z")

	got, err := s.QueryActivities(ctx, storage.ActivityFilters{
		TicketID: "t1",
		Actions:  []string{domain.ActionStatusChanged},
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].TicketID != "t1" {
		t.Fatalf("action filter = %+v", got)
	}

	got, err = s.QueryActivities(ctx, storage.ActivityFilters{
		From: "2025-06-02T00:00:00Z",
		To:   "2025-06-02T23:59:59Z",
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 1 || got[0].CreatedAt != "2025-06-02T08:00:00Z" {
		t.Fatalf("time filter = %+v", got)
	}
}

func TestCustomFieldsNormalizeThroughJSON(t *testing.T) {
	s, ctx := newStore(t)
	b := mkBoard(t, s, ctx)
	tk := mkTicket(t, s, ctx, domain.Ticket{
		BoardID: b.ID, Title: "t", Status: "todo",
		CustomFields: map[string]any{"estimate": 5, "flagged": true},
	})
	got, err := s.GetTicket(ctx, tk.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// Numbers come back as float64, matching what the SQL backends decode.
	if v, ok := got.CustomFields["estimate"].(float64); !ok || v != 5 {
		t.Fatalf("estimate = %#v", got.CustomFields["estimate"])
	}
	if v, ok := got.CustomFields["flagged"].(bool); !ok || !v {
		t.Fatalf("flagged = %#v", got.CustomFields["flagged"])
	}
}

func TestUpsertSnapshotReplacesSameKey(t *testing.T) {
	s, ctx := newStore(t)
	snap := domain.Snapshot{BoardID: "b", Status: "todo", Date: "2025-06-01", Count: 1}
	if err := s.UpsertSnapshot(ctx, snap); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	snap.Count = 7
	if err := s.UpsertSnapshot(ctx, snap); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	got, err := s.ListSnapshots(ctx, "b", "", "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Count != 7 {
		t.Fatalf("snapshots = %+v", got)
	}
}
