// Package storage defines the capability contract the lifecycle engine
// consumes. Backends (in-memory, embedded sqlite, external postgres) are
// interchangeable: the engine behaves identically regardless of which is
// injected.
package storage

import (
	"context"
	"errors"

	"boardline/internal/domain"
)

// ErrNotFound is returned by get-by-id and update/delete-by-id operations
// when the row does not exist.
var ErrNotFound = errors.New("not found")

// TicketFilters narrows ListTickets. Zero values mean "no filter";
// ParentSet distinguishes "any parent" from an explicit parent match, and
// a set ParentID of "" matches tickets with no parent.
type TicketFilters struct {
	BoardID   string
	Status    string
	Priority  string
	Assignee  string
	Label     string
	ParentSet bool
	ParentID  string
	Search    string
	Limit     int
	Offset    int
}

// ActivityFilters narrows QueryActivities. Actions is a tag set; From/To
// bound created_at inclusively (RFC3339, empty means unbounded).
type ActivityFilters struct {
	TicketID string
	Actions  []string
	From     string
	To       string
}

// TicketPatch carries a partial ticket update. Nil fields are untouched;
// set fields replace the stored value wholesale (sets and maps are
// replaced, never merged). ParentID and DueDate use the empty string to
// clear the stored value.
type TicketPatch struct {
	Title        *string
	Description  *string
	Status       *string
	Priority     *string
	Labels       *[]string
	Assignees    *[]string
	ParentID     *string
	CustomFields *map[string]any
	Position     *int
	DueDate      *string
}

// Fields returns the names of the fields present in the patch, in the
// ticket's canonical field order. The engine restricts diffing to these.
func (p TicketPatch) Fields() []string {
	var fields []string
	if p.Title != nil {
		fields = append(fields, "title")
	}
	if p.Description != nil {
		fields = append(fields, "description")
	}
	if p.Status != nil {
		fields = append(fields, "status")
	}
	if p.Priority != nil {
		fields = append(fields, "priority")
	}
	if p.Labels != nil {
		fields = append(fields, "labels")
	}
	if p.Assignees != nil {
		fields = append(fields, "assignees")
	}
	if p.ParentID != nil {
		fields = append(fields, "parent_id")
	}
	if p.CustomFields != nil {
		fields = append(fields, "custom_fields")
	}
	if p.Position != nil {
		fields = append(fields, "position")
	}
	if p.DueDate != nil {
		fields = append(fields, "due_date")
	}
	return fields
}

// Empty reports whether the patch changes nothing.
func (p TicketPatch) Empty() bool { return len(p.Fields()) == 0 }

// BoardPatch carries a partial board update.
type BoardPatch struct {
	Name        *string
	Description *string
	WorkflowID  *string
	Metadata    *map[string]string
}

// Empty reports whether the patch changes nothing.
func (p BoardPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.WorkflowID == nil && p.Metadata == nil
}

// Store is the durable-storage capability consumed by the engine.
//
// Contract obligations, independent of backend:
//   - Create* generates an identifier when the caller supplies none and
//     stamps created_at (and updated_at for tickets) when absent.
//   - Set/map-valued fields are encoded for storage and decoded on read;
//     callers never see encoded forms.
//   - Deleting a board deletes its tickets; deleting a ticket deletes its
//     comments, activities, and attachments.
//   - ListTickets orders by position ascending, then created_at descending.
//   - Get/Update/Delete on a missing row return ErrNotFound.
type Store interface {
	// Init prepares the backend (schema, built-in workflow seeding).
	// Seeding is idempotent: existing workflow rows are left alone.
	Init(ctx context.Context) error
	Close() error

	CreateBoard(ctx context.Context, b domain.Board) (domain.Board, error)
	GetBoard(ctx context.Context, id string) (domain.Board, error)
	ListBoards(ctx context.Context) ([]domain.Board, error)
	UpdateBoard(ctx context.Context, id string, patch BoardPatch) (domain.Board, error)
	DeleteBoard(ctx context.Context, id string) error

	CreateTicket(ctx context.Context, t domain.Ticket) (domain.Ticket, error)
	GetTicket(ctx context.Context, id string) (domain.Ticket, error)
	ListTickets(ctx context.Context, f TicketFilters) ([]domain.Ticket, error)
	UpdateTicket(ctx context.Context, id string, patch TicketPatch) (domain.Ticket, error)
	DeleteTicket(ctx context.Context, id string) error

	CreateComment(ctx context.Context, c domain.Comment) (domain.Comment, error)
	ListComments(ctx context.Context, ticketID string) ([]domain.Comment, error)
	DeleteComment(ctx context.Context, id string) error

	CreateActivity(ctx context.Context, a domain.Activity) (domain.Activity, error)
	ListActivities(ctx context.Context, ticketID string, limit int) ([]domain.Activity, error)
	QueryActivities(ctx context.Context, f ActivityFilters) ([]domain.Activity, error)

	CreateAttachment(ctx context.Context, a domain.Attachment) (domain.Attachment, error)
	ListAttachments(ctx context.Context, ticketID string) ([]domain.Attachment, error)
	DeleteAttachment(ctx context.Context, id string) error

	GetWorkflow(ctx context.Context, id string) (domain.Workflow, error)
	CreateWorkflow(ctx context.Context, w domain.Workflow) (domain.Workflow, error)
	ListWorkflows(ctx context.Context) ([]domain.Workflow, error)

	// UpsertSnapshot overwrites any existing row for the same
	// (board, status, date) key.
	UpsertSnapshot(ctx context.Context, s domain.Snapshot) error
	// ListSnapshots returns rows for the board within the inclusive
	// [from, to] date range (YYYY-MM-DD; empty bounds are open).
	ListSnapshots(ctx context.Context, boardID, from, to string) ([]domain.Snapshot, error)
}
