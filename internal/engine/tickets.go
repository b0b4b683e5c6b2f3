package engine

import (
	"context"
	"errors"
	"fmt"

	"boardline/internal/domain"
	"boardline/internal/events"
	"boardline/internal/storage"
)

type TicketCreateOptions struct {
	BoardID      string
	Title        string
	Description  string
	Status       string
	Priority     string
	Labels       []string
	Assignees    []string
	ParentID     string
	CustomFields map[string]any
	Position     int
	DueDate      string
	Actor        string
}

// CreateTicket creates a ticket on a board. The status defaults to the
// board workflow's initial state; an explicit status must be a declared
// state but is not transition-checked, since there is no prior state.
func (e Engine) CreateTicket(ctx context.Context, opts TicketCreateOptions) (domain.Ticket, error) {
	if opts.Title == "" {
		return domain.Ticket{}, invalid("ticket title is required")
	}
	b, err := e.GetBoard(ctx, opts.BoardID)
	if err != nil {
		return domain.Ticket{}, err
	}
	w, err := e.boardWorkflow(ctx, b)
	if err != nil {
		return domain.Ticket{}, err
	}
	status := opts.Status
	if status == "" {
		status = w.Initial()
	} else if !w.HasState(status) {
		return domain.Ticket{}, invalid("status %q is not a state of workflow %q", status, w.ID)
	}
	if opts.Priority != "" && !domain.ValidPriority(opts.Priority) {
		return domain.Ticket{}, invalid("unknown priority %q", opts.Priority)
	}
	if err := domain.ValidateCustomFields(opts.CustomFields); err != nil {
		return domain.Ticket{}, &ValidationError{Msg: err.Error()}
	}
	var parentID *string
	if opts.ParentID != "" {
		parent, err := e.GetTicket(ctx, opts.ParentID)
		if err != nil {
			return domain.Ticket{}, err
		}
		if parent.BoardID != opts.BoardID {
			return domain.Ticket{}, invalid("parent ticket %s belongs to a different board", opts.ParentID)
		}
		parentID = &opts.ParentID
	}
	var dueDate *string
	if opts.DueDate != "" {
		dueDate = &opts.DueDate
	}
	ts := e.now()
	t, err := e.Store.CreateTicket(ctx, domain.Ticket{
		BoardID:      opts.BoardID,
		Title:        opts.Title,
		Description:  opts.Description,
		Status:       status,
		Priority:     opts.Priority,
		Labels:       opts.Labels,
		Assignees:    opts.Assignees,
		ParentID:     parentID,
		CustomFields: opts.CustomFields,
		Position:     opts.Position,
		DueDate:      dueDate,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	})
	if err != nil {
		return domain.Ticket{}, err
	}
	if err := e.audit(ctx, domain.Activity{
		TicketID: t.ID,
		Actor:    opts.Actor,
		Action:   domain.ActionCreated,
		Changes:  map[string]domain.Change{"ticket": {New: normalize(t)}},
	}); err != nil {
		return domain.Ticket{}, err
	}
	e.publish(events.TicketCreated, t)
	return t, nil
}

// CreateSubtask creates a ticket parented under an existing one, on the
// same board.
func (e Engine) CreateSubtask(ctx context.Context, parentID string, opts TicketCreateOptions) (domain.Ticket, error) {
	parent, err := e.GetTicket(ctx, parentID)
	if err != nil {
		return domain.Ticket{}, err
	}
	opts.BoardID = parent.BoardID
	opts.ParentID = parentID
	return e.CreateTicket(ctx, opts)
}

func (e Engine) GetTicket(ctx context.Context, id string) (domain.Ticket, error) {
	t, err := e.Store.GetTicket(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Ticket{}, notFound("ticket", id)
	}
	return t, err
}

func (e Engine) ListTickets(ctx context.Context, f storage.TicketFilters) ([]domain.Ticket, error) {
	return e.Store.ListTickets(ctx, f)
}

// TicketUpdate is the payload published on ticket:updated.
type TicketUpdate struct {
	Ticket  domain.Ticket            `json:"ticket"`
	Changes map[string]domain.Change `json:"changes"`
	Actor   string                   `json:"actor,omitempty"`
}

// UpdateTicket applies a partial update. A status change is checked against
// the board workflow's transition graph; other fields never are. When the
// patch restates only current values, no activity is recorded and no event
// fires.
func (e Engine) UpdateTicket(ctx context.Context, id string, patch storage.TicketPatch, actor string) (domain.Ticket, error) {
	before, err := e.GetTicket(ctx, id)
	if err != nil {
		return domain.Ticket{}, err
	}
	if patch.Empty() {
		return before, nil
	}
	if patch.Title != nil && *patch.Title == "" {
		return domain.Ticket{}, invalid("ticket title is required")
	}
	if patch.Priority != nil && !domain.ValidPriority(*patch.Priority) {
		return domain.Ticket{}, invalid("unknown priority %q", *patch.Priority)
	}
	if patch.CustomFields != nil {
		if err := domain.ValidateCustomFields(*patch.CustomFields); err != nil {
			return domain.Ticket{}, &ValidationError{Msg: err.Error()}
		}
	}
	if patch.ParentID != nil && *patch.ParentID != "" {
		if *patch.ParentID == id {
			return domain.Ticket{}, invalid("ticket cannot be its own parent")
		}
		parent, err := e.GetTicket(ctx, *patch.ParentID)
		if err != nil {
			return domain.Ticket{}, err
		}
		if parent.BoardID != before.BoardID {
			return domain.Ticket{}, invalid("parent ticket %s belongs to a different board", *patch.ParentID)
		}
	}
	if patch.Status != nil && *patch.Status != before.Status {
		if err := e.checkTransition(ctx, before, *patch.Status); err != nil {
			return domain.Ticket{}, err
		}
	}
	after, err := e.Store.UpdateTicket(ctx, id, patch)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Ticket{}, notFound("ticket", id)
	}
	if err != nil {
		return domain.Ticket{}, err
	}
	changes := diffTickets(before, after, patch.Fields())
	if len(changes) == 0 {
		return after, nil
	}
	action := domain.ActionUpdated
	if _, ok := changes["status"]; ok {
		action = domain.ActionStatusChanged
	}
	if err := e.audit(ctx, domain.Activity{
		TicketID: after.ID,
		Actor:    actor,
		Action:   action,
		Changes:  changes,
	}); err != nil {
		return domain.Ticket{}, err
	}
	e.publish(events.TicketUpdated, TicketUpdate{Ticket: after, Changes: changes, Actor: actor})
	return after, nil
}

func (e Engine) checkTransition(ctx context.Context, t domain.Ticket, target string) error {
	b, err := e.GetBoard(ctx, t.BoardID)
	if err != nil {
		return err
	}
	w, err := e.boardWorkflow(ctx, b)
	if err != nil {
		return err
	}
	// An undeclared target is by definition not in the allowed set, so it
	// falls out as an invalid transition like any other illegal jump.
	allowed := w.AllowedFrom(t.Status)
	for _, s := range allowed {
		if s == target {
			return nil
		}
	}
	return &InvalidTransitionError{From: t.Status, Attempted: target, Allowed: allowed}
}

// MoveTicket transitions a ticket to a new status.
func (e Engine) MoveTicket(ctx context.Context, id, status, actor string) (domain.Ticket, error) {
	return e.UpdateTicket(ctx, id, storage.TicketPatch{Status: &status}, actor)
}

// AssignTicket replaces the ticket's assignee set through the regular
// update path, then appends a dedicated assigned activity on top of the
// update's own audit row. An assignment that restates the current set is a
// no-op.
func (e Engine) AssignTicket(ctx context.Context, id string, assignees []string, actor string) (domain.Ticket, error) {
	before, err := e.GetTicket(ctx, id)
	if err != nil {
		return domain.Ticket{}, err
	}
	after, err := e.UpdateTicket(ctx, id, storage.TicketPatch{Assignees: &assignees}, actor)
	if err != nil {
		return domain.Ticket{}, err
	}
	changes := diffTickets(before, after, []string{"assignees"})
	if len(changes) == 0 {
		return after, nil
	}
	if err := e.audit(ctx, domain.Activity{
		TicketID: after.ID,
		Actor:    actor,
		Action:   domain.ActionAssigned,
		Changes:  changes,
	}); err != nil {
		return domain.Ticket{}, err
	}
	return after, nil
}

// BulkUpdateTickets applies the same patch to each ticket in turn. There is
// no rollback: on the first failure the error reports the failing ticket
// and how many updates had already been applied.
func (e Engine) BulkUpdateTickets(ctx context.Context, ids []string, patch storage.TicketPatch, actor string) ([]domain.Ticket, error) {
	updated := make([]domain.Ticket, 0, len(ids))
	for _, id := range ids {
		t, err := e.UpdateTicket(ctx, id, patch, actor)
		if err != nil {
			return updated, fmt.Errorf("bulk update stopped at ticket %s after %d updates: %w", id, len(updated), err)
		}
		updated = append(updated, t)
	}
	return updated, nil
}

// DeleteTicket removes the ticket and cascades to its comments, activities,
// and attachments.
func (e Engine) DeleteTicket(ctx context.Context, id string) error {
	t, err := e.GetTicket(ctx, id)
	if err != nil {
		return err
	}
	if err := e.Store.DeleteTicket(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return notFound("ticket", id)
		}
		return err
	}
	e.publish(events.TicketDeleted, t)
	return nil
}

// Activities returns a ticket's audit feed, newest first. A limit of 0
// means no limit.
func (e Engine) Activities(ctx context.Context, ticketID string, limit int) ([]domain.Activity, error) {
	if _, err := e.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	return e.Store.ListActivities(ctx, ticketID, limit)
}

// QueryActivities filters the audit log across tickets by action tag and
// time range.
func (e Engine) QueryActivities(ctx context.Context, f storage.ActivityFilters) ([]domain.Activity, error) {
	return e.Store.QueryActivities(ctx, f)
}
