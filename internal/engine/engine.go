// Package engine implements the ticket lifecycle rules on top of a storage
// backend: workflow-checked status transitions, field-level audit diffs, and
// event publication.
//
// Writes are not transactional across the primary row and its audit entry.
// The mutation lands first and the activity row follows; when the audit
// write fails the error surfaces to the caller even though the mutation is
// already durable, and no event is published.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"boardline/internal/domain"
	"boardline/internal/events"
	"boardline/internal/storage"
	"boardline/internal/workflow"
)

// Engine coordinates storage, workflow checks, auditing, and events. The
// zero value is not usable; construct with New. Now is injectable for tests.
type Engine struct {
	Store storage.Store
	Bus   *events.Bus
	Now   func() time.Time
}

func New(store storage.Store, bus *events.Bus) Engine {
	return Engine{Store: store, Bus: bus, Now: time.Now}
}

func (e Engine) now() string {
	return e.Now().UTC().Format(time.RFC3339)
}

func (e Engine) publish(event string, payload any) {
	if e.Bus != nil {
		e.Bus.Publish(event, payload)
	}
}

// boardWorkflow resolves the workflow governing a board.
func (e Engine) boardWorkflow(ctx context.Context, b domain.Board) (domain.Workflow, error) {
	w, err := e.Store.GetWorkflow(ctx, b.WorkflowID)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Workflow{}, notFound("workflow", b.WorkflowID)
	}
	return w, err
}

// Boards

type BoardCreateOptions struct {
	Name        string
	Description string
	WorkflowID  string
	Metadata    map[string]string
}

func (e Engine) CreateBoard(ctx context.Context, opts BoardCreateOptions) (domain.Board, error) {
	if opts.Name == "" {
		return domain.Board{}, invalid("board name is required")
	}
	workflowID := opts.WorkflowID
	if workflowID == "" {
		workflowID = workflow.Kanban
	}
	if _, err := e.Store.GetWorkflow(ctx, workflowID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return domain.Board{}, invalid("unknown workflow %q", workflowID)
		}
		return domain.Board{}, err
	}
	b, err := e.Store.CreateBoard(ctx, domain.Board{
		Name:        opts.Name,
		Description: opts.Description,
		WorkflowID:  workflowID,
		Metadata:    opts.Metadata,
		CreatedAt:   e.now(),
	})
	if err != nil {
		return domain.Board{}, err
	}
	e.publish(events.BoardCreated, b)
	return b, nil
}

func (e Engine) GetBoard(ctx context.Context, id string) (domain.Board, error) {
	b, err := e.Store.GetBoard(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Board{}, notFound("board", id)
	}
	return b, err
}

func (e Engine) ListBoards(ctx context.Context) ([]domain.Board, error) {
	return e.Store.ListBoards(ctx)
}

func (e Engine) UpdateBoard(ctx context.Context, id string, patch storage.BoardPatch) (domain.Board, error) {
	if patch.Name != nil && *patch.Name == "" {
		return domain.Board{}, invalid("board name is required")
	}
	if patch.WorkflowID != nil {
		if _, err := e.Store.GetWorkflow(ctx, *patch.WorkflowID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return domain.Board{}, invalid("unknown workflow %q", *patch.WorkflowID)
			}
			return domain.Board{}, err
		}
	}
	b, err := e.Store.UpdateBoard(ctx, id, patch)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Board{}, notFound("board", id)
	}
	if err != nil {
		return domain.Board{}, err
	}
	if !patch.Empty() {
		e.publish(events.BoardUpdated, b)
	}
	return b, nil
}

// DeleteBoard removes the board and, through the storage cascade, every
// ticket on it along with their comments, activities, and attachments.
func (e Engine) DeleteBoard(ctx context.Context, id string) error {
	b, err := e.GetBoard(ctx, id)
	if err != nil {
		return err
	}
	if err := e.Store.DeleteBoard(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return notFound("board", id)
		}
		return err
	}
	e.publish(events.BoardDeleted, b)
	return nil
}

// Workflows

// DefineWorkflow registers a custom workflow definition. Redefining an
// existing custom workflow overwrites it; the built-in presets cannot be
// redefined.
func (e Engine) DefineWorkflow(ctx context.Context, w domain.Workflow) (domain.Workflow, error) {
	if w.ID != "" && workflow.IsBuiltin(w.ID) {
		return domain.Workflow{}, invalid("workflow %q is built in and cannot be redefined", w.ID)
	}
	if err := workflow.Validate(w); err != nil {
		return domain.Workflow{}, &ValidationError{Msg: err.Error()}
	}
	return e.Store.CreateWorkflow(ctx, w)
}

func (e Engine) GetWorkflow(ctx context.Context, id string) (domain.Workflow, error) {
	w, err := e.Store.GetWorkflow(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return domain.Workflow{}, notFound("workflow", id)
	}
	return w, err
}

func (e Engine) ListWorkflows(ctx context.Context) ([]domain.Workflow, error) {
	return e.Store.ListWorkflows(ctx)
}

// AllowedTransitions returns the states a ticket may move to from its
// current status.
func (e Engine) AllowedTransitions(ctx context.Context, ticketID string) ([]string, error) {
	t, err := e.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	b, err := e.GetBoard(ctx, t.BoardID)
	if err != nil {
		return nil, err
	}
	w, err := e.boardWorkflow(ctx, b)
	if err != nil {
		return nil, err
	}
	return w.AllowedFrom(t.Status), nil
}

func (e Engine) audit(ctx context.Context, a domain.Activity) error {
	a.CreatedAt = e.now()
	if _, err := e.Store.CreateActivity(ctx, a); err != nil {
		return fmt.Errorf("record %s activity: %w", a.Action, err)
	}
	return nil
}
