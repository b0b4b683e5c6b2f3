package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"boardline/internal/domain"
	"boardline/internal/engine"
	"boardline/internal/events"
	"boardline/internal/storage"
	"boardline/internal/storage/memstore"
)

type testEnv struct {
	Engine engine.Engine
	Bus    *events.Bus
	Store  storage.Store
	Ctx    context.Context
	Clock  *fakeClock
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memstore.New()
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init store: %v", err)
	}
	bus := events.NewBus()
	eng := engine.New(store, bus)
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	eng.Now = clock.Now
	return &testEnv{Engine: eng, Bus: bus, Store: store, Ctx: ctx, Clock: clock}
}

func (env *testEnv) board(t *testing.T, workflowID string) domain.Board {
	t.Helper()
	b, err := env.Engine.CreateBoard(env.Ctx, engine.BoardCreateOptions{Name: "Dev", WorkflowID: workflowID})
	if err != nil {
		t.Fatalf("create board: %v", err)
	}
	return b
}

func (env *testEnv) ticket(t *testing.T, boardID, title string) domain.Ticket {
	t.Helper()
	tk, err := env.Engine.CreateTicket(env.Ctx, engine.TicketCreateOptions{BoardID: boardID, Title: title, Actor: "tester"})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	return tk
}

func TestCreateTicketDefaults(t *testing.T) {
	env := newTestEnv(t)
	b := env.board(t, "kanban")

	var fired []domain.Ticket
	env.Bus.Subscribe(events.TicketCreated, func(payload any) {
		fired = append(fired, payload.(domain.Ticket))
	})

	tk := env.ticket(t, b.ID, "First")
	if tk.Status != "backlog" {
		t.Fatalf("status = %q, want backlog", tk.Status)
	}
	if tk.Priority != domain.PriorityMedium {
		t.Fatalf("priority = %q, want medium", tk.Priority)
	}
	if len(fired) != 1 || fired[0].ID != tk.ID {
		t.Fatalf("ticket:created not published")
	}

	acts, err := env.Engine.Activities(env.Ctx, tk.ID, 0)
	if err != nil {
		t.Fatalf("activities: %v", err)
	}
	if len(acts) != 1 || acts[0].Action != domain.ActionCreated {
		t.Fatalf("want one created activity, got %v", acts)
	}
	if _, ok := acts[0].Changes["ticket"]; !ok {
		t.Fatalf("created activity should embed the ticket snapshot")
	}
}

func TestCreateTicketRejectsUnknownState(t *testing.T) {
	env := newTestEnv(t)
	b := env.board(t, "simple")
	_, err := env.Engine.CreateTicket(env.Ctx, engine.TicketCreateOptions{BoardID: b.ID, Title: "x", Status: "shipped"})
	var ve *engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("want ValidationError, got %v", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	env := newTestEnv(t)
	b := env.board(t, "kanban")
	tk := env.ticket(t, b.ID, "Work")

	// Walk the legal path.
	for _, status := range []string{"todo", "in_progress", "review", "done"} {
		var err error
		tk, err = env.Engine.MoveTicket(env.Ctx, tk.ID, status, "tester")
		if err != nil {
			t.Fatalf("to %s: %v", status, err)
		}
	}

	// done -> backlog is not an edge.
	_, err := env.Engine.MoveTicket(env.Ctx, tk.ID, "backlog", "tester")
	var te *engine.InvalidTransitionError
	if !errors.As(err, &te) {
		t.Fatalf("want InvalidTransitionError, got %v", err)
	}
	if te.From != "done" || te.Attempted != "backlog" {
		t.Fatalf("error detail = %+v", te)
	}
	if len(te.Allowed) != 1 || te.Allowed[0] != "review" {
		t.Fatalf("allowed = %v, want [review]", te.Allowed)
	}
}

func TestNonStatusFieldsBypassTransitionCheck(t *testing.T) {
	env := newTestEnv(t)
	b := env.board(t, "kanban")
	tk := env.ticket(t, b.ID, "Work")

	title := "Renamed"
	prio := domain.PriorityUrgent
	got, err := env.Engine.UpdateTicket(env.Ctx, tk.ID, storage.TicketPatch{Title: &title, Priority: &prio}, "tester")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Title != "Renamed" || got.Priority != domain.PriorityUrgent {
		t.Fatalf("update not applied: %+v", got)
	}
}

func TestNoOpUpdateRecordsNothing(t *testing.T) {
	env := newTestEnv(t)
	b := env.board(t, "kanban")
	tk := env.ticket(t, b.ID, "Stable")

	updates := 0
	env.Bus.Subscribe(events.TicketUpdated, func(any) { updates++ })

	same := tk.Title
	if _, err := env.Engine.UpdateTicket(env.Ctx, tk.ID, storage.TicketPatch{Title: &same}, "tester"); err != nil {
		t.Fatalf("update: %v", err)
	}

	acts, err := env.Engine.Activities(env.Ctx, tk.ID, 0)
	if err != nil {
		t.Fatalf("activities: %v", err)
	}
	if len(acts) != 1 {
		t.Fatalf("no-op update must not add activity, got %d entries", len(acts))
	}
	if updates != 0 {
		t.Fatalf("no-op update must not publish, got %d events", updates)
	}
}

func TestUpdateDiffIsFieldLevel(t *testing.T) {
	env := newTestEnv(t)
	b := env.board(t, "kanban")
	tk := env.ticket(t, b.ID, "Diff me")

	title := "New title"
	labels := []string{"backend"}
	if _, err := env.Engine.UpdateTicket(env.Ctx, tk.ID, storage.TicketPatch{Title: &title, Labels: &labels}, "alice"); err != nil {
		t.Fatalf("update: %v", err)
	}
	acts, _ := env.Engine.Activities(env.Ctx, tk.ID, 1)
	if len(acts) != 1 {
		t.Fatalf("want 1 activity, got %d", len(acts))
	}
	a := acts[0]
	if a.Action != domain.ActionUpdated || a.Actor != "alice" {
		t.Fatalf("activity = %+v", a)
	}
	if len(a.Changes) != 2 {
		t.Fatalf("changes = %v, want title and labels only", a.Changes)
	}
	if a.Changes["title"].Old != "Diff me" || a.Changes["title"].New != "New title" {
		t.Fatalf("title change = %+v", a.Changes["title"])
	}
}

func TestStatusChangeGetsOwnActionTag(t *testing.T) {
	env := newTestEnv(t)
	b := env.board(t, "simple")
	tk := env.ticket(t, b.ID, "Tagged")

	status := "doing"
	title := "Also renamed"
	if _, err := env.Engine.UpdateTicket(env.Ctx, tk.ID, storage.TicketPatch{Status: &status, Title: &title}, "tester"); err != nil {
		t.Fatalf("update: %v", err)
	}
	acts, _ := env.Engine.Activities(env.Ctx, tk.ID, 1)
	if acts[0].Action != domain.ActionStatusChanged {
		t.Fatalf("action = %q, want status_changed", acts[0].Action)
	}
	if acts[0].Changes["status"].Old != "todo" || acts[0].Changes["status"].New != "doing" {
		t.Fatalf("status change = %+v", acts[0].Changes["status"])
	}
	if _, ok := acts[0].Changes["title"]; !ok {
		t.Fatalf("title change should ride along in the same activity")
	}
}

func TestAssignTicket(t *testing.T) {
	env := newTestEnv(t)
	b := env.board(t, "kanban")
	tk := env.ticket(t, b.ID, "Assign me")

	got, err := env.Engine.AssignTicket(env.Ctx, tk.ID, []string{"alice", "bob"}, "lead")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(got.Assignees) != 2 {
		t.Fatalf("assignees = %v", got.Assignees)
	}
	// Assignment goes through the update path and then appends its own row,
	// so the feed shows assigned on top of updated on top of created.
	acts, _ := env.Engine.Activities(env.Ctx, tk.ID, 0)
	if len(acts) != 3 {
		t.Fatalf("activities = %d, want 3", len(acts))
	}
	if acts[0].Action != domain.ActionAssigned || acts[1].Action != domain.ActionUpdated {
		t.Fatalf("feed = [%s %s %s]", acts[0].Action, acts[1].Action, acts[2].Action)
	}
	if acts[0].Changes["assignees"].Old == nil && acts[0].Changes["assignees"].New == nil {
		t.Fatalf("assigned row carries no diff: %+v", acts[0].Changes)
	}

	// Re-assigning the identical set is a no-op.
	if _, err := env.Engine.AssignTicket(env.Ctx, tk.ID, []string{"alice", "bob"}, "lead"); err != nil {
		t.Fatalf("reassign: %v", err)
	}
	acts, _ = env.Engine.Activities(env.Ctx, tk.ID, 0)
	if len(acts) != 3 {
		t.Fatalf("identical assignment must not audit, got %d activities", len(acts))
	}
}

func TestMoveToUndeclaredState(t *testing.T) {
	env := newTestEnv(t)
	b := env.board(t, "simple")
	tk := env.ticket(t, b.ID, "stuck")

	_, err := env.Engine.MoveTicket(env.Ctx, tk.ID, "shipped", "tester")
	var te *engine.InvalidTransitionError
	if !errors.As(err, &te) {
		t.Fatalf("want InvalidTransitionError, got %v", err)
	}
	if te.From != "todo" || te.Attempted != "shipped" {
		t.Fatalf("error detail = %+v", te)
	}
	if len(te.Allowed) != 1 || te.Allowed[0] != "doing" {
		t.Fatalf("allowed = %v, want [doing]", te.Allowed)
	}
}

func TestBulkUpdateStopsAtFirstFailure(t *testing.T) {
	env := newTestEnv(t)
	b := env.board(t, "kanban")
	t1 := env.ticket(t, b.ID, "one")
	t2 := env.ticket(t, b.ID, "two")

	prio := domain.PriorityHigh
	updated, err := env.Engine.BulkUpdateTickets(env.Ctx, []string{t1.ID, "missing", t2.ID}, storage.TicketPatch{Priority: &prio}, "tester")
	if err == nil {
		t.Fatalf("want error for missing ticket")
	}
	if len(updated) != 1 {
		t.Fatalf("applied = %d, want 1 before the failure", len(updated))
	}
	// The first update stays applied; the third was never attempted.
	got, _ := env.Engine.GetTicket(env.Ctx, t1.ID)
	if got.Priority != domain.PriorityHigh {
		t.Fatalf("first ticket should keep its update")
	}
	got, _ = env.Engine.GetTicket(env.Ctx, t2.ID)
	if got.Priority != domain.PriorityMedium {
		t.Fatalf("ticket after the failure must be untouched")
	}
}

func TestDeleteBoardCascades(t *testing.T) {
	env := newTestEnv(t)
	b := env.board(t, "kanban")
	tk := env.ticket(t, b.ID, "doomed")
	if _, err := env.Engine.AddComment(env.Ctx, engine.CommentOptions{TicketID: tk.ID, Author: "a", Content: "hi"}); err != nil {
		t.Fatalf("comment: %v", err)
	}

	if err := env.Engine.DeleteBoard(env.Ctx, b.ID); err != nil {
		t.Fatalf("delete board: %v", err)
	}
	if _, err := env.Engine.GetTicket(env.Ctx, tk.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("ticket should be gone, got %v", err)
	}
	if _, err := env.Store.ListActivities(env.Ctx, tk.ID, 0); err != nil {
		t.Fatalf("list activities: %v", err)
	}
	acts, _ := env.Store.ListActivities(env.Ctx, tk.ID, 0)
	if len(acts) != 0 {
		t.Fatalf("activities should cascade, got %d", len(acts))
	}
}

func TestCommentsAndReplies(t *testing.T) {
	env := newTestEnv(t)
	b := env.board(t, "kanban")
	tk := env.ticket(t, b.ID, "discussed")

	c, err := env.Engine.AddComment(env.Ctx, engine.CommentOptions{TicketID: tk.ID, Author: "alice", Content: "first"})
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	reply, err := env.Engine.ReplyToComment(env.Ctx, tk.ID, c.ID, "bob", "second")
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	if reply.ParentID == nil || *reply.ParentID != c.ID {
		t.Fatalf("reply parent = %v", reply.ParentID)
	}
	if _, err := env.Engine.ReplyToComment(env.Ctx, tk.ID, "missing", "bob", "x"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("reply to missing comment: %v", err)
	}

	// Only the top-level comment audits.
	acts, _ := env.Engine.Activities(env.Ctx, tk.ID, 0)
	commented := 0
	for _, a := range acts {
		if a.Action == domain.ActionCommented {
			commented++
		}
	}
	if commented != 1 {
		t.Fatalf("commented activities = %d, want 1", commented)
	}
}

func TestDefineWorkflow(t *testing.T) {
	env := newTestEnv(t)

	// Built-ins cannot be redefined.
	_, err := env.Engine.DefineWorkflow(env.Ctx, domain.Workflow{ID: "kanban", Name: "X", States: []string{"a"}})
	var ve *engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("builtin redefinition: %v", err)
	}

	// Transition graphs must be closed over declared states.
	_, err = env.Engine.DefineWorkflow(env.Ctx, domain.Workflow{
		ID: "bad", Name: "Bad", States: []string{"a"},
		Transitions: map[string][]string{"a": {"ghost"}},
	})
	if !errors.As(err, &ve) {
		t.Fatalf("open transition graph: %v", err)
	}

	w, err := env.Engine.DefineWorkflow(env.Ctx, domain.Workflow{
		ID: "triage", Name: "Triage", States: []string{"inbox", "accepted"},
		Transitions: map[string][]string{"inbox": {"accepted"}, "accepted": {}},
	})
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	b := env.board(t, w.ID)
	tk := env.ticket(t, b.ID, "routed")
	if tk.Status != "inbox" {
		t.Fatalf("initial state = %q, want inbox", tk.Status)
	}
	// Custom user workflows may be redefined in place.
	if _, err := env.Engine.DefineWorkflow(env.Ctx, domain.Workflow{
		ID: "triage", Name: "Triage v2", States: []string{"inbox", "accepted", "rejected"},
		Transitions: map[string][]string{"inbox": {"accepted", "rejected"}},
	}); err != nil {
		t.Fatalf("redefine custom: %v", err)
	}
}

func TestKanbanViewAndBacklog(t *testing.T) {
	env := newTestEnv(t)
	b := env.board(t, "simple")
	low := env.ticket(t, b.ID, "low prio")
	urgent, err := env.Engine.CreateTicket(env.Ctx, engine.TicketCreateOptions{
		BoardID: b.ID, Title: "urgent", Priority: domain.PriorityUrgent,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := env.Engine.MoveTicket(env.Ctx, low.ID, "doing", "t"); err != nil {
		t.Fatalf("move: %v", err)
	}

	cols, err := env.Engine.KanbanView(env.Ctx, b.ID)
	if err != nil {
		t.Fatalf("kanban: %v", err)
	}
	if len(cols) != 3 || cols[0].State != "todo" || cols[1].State != "doing" || cols[2].State != "done" {
		t.Fatalf("columns = %+v", cols)
	}
	if len(cols[0].Tickets) != 1 || len(cols[1].Tickets) != 1 || len(cols[2].Tickets) != 0 {
		t.Fatalf("column sizes wrong: %+v", cols)
	}

	backlog, err := env.Engine.Backlog(env.Ctx, b.ID)
	if err != nil {
		t.Fatalf("backlog: %v", err)
	}
	if len(backlog) != 1 || backlog[0].ID != urgent.ID {
		t.Fatalf("backlog = %+v", backlog)
	}
}

func TestSubtasks(t *testing.T) {
	env := newTestEnv(t)
	b := env.board(t, "kanban")
	parent := env.ticket(t, b.ID, "epic")

	sub, err := env.Engine.CreateSubtask(env.Ctx, parent.ID, engine.TicketCreateOptions{Title: "piece"})
	if err != nil {
		t.Fatalf("subtask: %v", err)
	}
	if sub.ParentID == nil || *sub.ParentID != parent.ID || sub.BoardID != b.ID {
		t.Fatalf("subtask = %+v", sub)
	}

	subs, err := env.Engine.Subtasks(env.Ctx, parent.ID)
	if err != nil {
		t.Fatalf("subtasks: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != sub.ID {
		t.Fatalf("subtasks = %+v", subs)
	}

	// A parent on another board is rejected.
	other := env.board(t, "kanban")
	stray := env.ticket(t, other.ID, "stray")
	pid := parent.ID
	_, err = env.Engine.UpdateTicket(env.Ctx, stray.ID, storage.TicketPatch{ParentID: &pid}, "t")
	var ve *engine.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("cross-board parent: %v", err)
	}
}

func TestSearch(t *testing.T) {
	env := newTestEnv(t)
	b := env.board(t, "kanban")
	env.ticket(t, b.ID, "Fix payment bug")
	hit, err := env.Engine.CreateTicket(env.Ctx, engine.TicketCreateOptions{
		BoardID: b.ID, Title: "Payment retries", Priority: domain.PriorityHigh, Assignees: []string{"alice"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := env.Engine.Search(env.Ctx, b.ID, "priority:high assignee:alice payment")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 1 || got[0].ID != hit.ID {
		t.Fatalf("search result = %+v", got)
	}
}

// flakyAuditStore fails activity writes on demand while passing everything
// else through.
type flakyAuditStore struct {
	storage.Store
	failActivity bool
}

func (s *flakyAuditStore) CreateActivity(ctx context.Context, a domain.Activity) (domain.Activity, error) {
	if s.failActivity {
		return domain.Activity{}, errors.New("disk full")
	}
	return s.Store.CreateActivity(ctx, a)
}

func TestAuditWriteFailureSurfaces(t *testing.T) {
	env := newTestEnv(t)
	flaky := &flakyAuditStore{Store: env.Store}
	env.Engine.Store = flaky
	b := env.board(t, "simple")
	tk := env.ticket(t, b.ID, "audited")

	updates := 0
	env.Bus.Subscribe(events.TicketUpdated, func(any) { updates++ })

	flaky.failActivity = true
	if _, err := env.Engine.MoveTicket(env.Ctx, tk.ID, "doing", "tester"); err == nil {
		t.Fatalf("failed audit write must surface as an error")
	}
	if updates != 0 {
		t.Fatalf("no event may fire on a failed audit write, got %d", updates)
	}

	// The primary mutation lands before the audit row, so the status change
	// is durable even though the call errored.
	got, err := env.Store.GetTicket(env.Ctx, tk.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != "doing" {
		t.Fatalf("status = %q, mutation should have landed", got.Status)
	}
	acts, _ := env.Store.ListActivities(env.Ctx, tk.ID, 0)
	if len(acts) != 1 || acts[0].Action != domain.ActionCreated {
		t.Fatalf("feed should hold only the created row, got %+v", acts)
	}

	if _, err := env.Engine.AddComment(env.Ctx, engine.CommentOptions{TicketID: tk.ID, Author: "a", Content: "hi"}); err == nil {
		t.Fatalf("failed comment audit must surface")
	}
	if _, err := env.Engine.CreateTicket(env.Ctx, engine.TicketCreateOptions{BoardID: b.ID, Title: "another"}); err == nil {
		t.Fatalf("failed creation audit must surface")
	}
}
