package engine

import (
	"context"
	"sort"

	"boardline/internal/domain"
	"boardline/internal/search"
	"boardline/internal/storage"
)

// Column is one workflow state and the tickets currently in it, in board
// order.
type Column struct {
	State   string          `json:"state"`
	Tickets []domain.Ticket `json:"tickets"`
}

// KanbanView groups a board's tickets by status, one column per workflow
// state in declaration order. States with no tickets get an empty column.
func (e Engine) KanbanView(ctx context.Context, boardID string) ([]Column, error) {
	b, err := e.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	w, err := e.boardWorkflow(ctx, b)
	if err != nil {
		return nil, err
	}
	tickets, err := e.Store.ListTickets(ctx, storage.TicketFilters{BoardID: boardID})
	if err != nil {
		return nil, err
	}
	byStatus := make(map[string][]domain.Ticket)
	for _, t := range tickets {
		byStatus[t.Status] = append(byStatus[t.Status], t)
	}
	columns := make([]Column, 0, len(w.States))
	for _, s := range w.States {
		col := Column{State: s, Tickets: byStatus[s]}
		if col.Tickets == nil {
			col.Tickets = []domain.Ticket{}
		}
		columns = append(columns, col)
	}
	return columns, nil
}

var priorityRank = map[string]int{
	domain.PriorityUrgent: 0,
	domain.PriorityHigh:   1,
	domain.PriorityMedium: 2,
	domain.PriorityLow:    3,
}

// Backlog returns the tickets sitting in the board workflow's initial
// state, most urgent first.
func (e Engine) Backlog(ctx context.Context, boardID string) ([]domain.Ticket, error) {
	b, err := e.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	w, err := e.boardWorkflow(ctx, b)
	if err != nil {
		return nil, err
	}
	tickets, err := e.Store.ListTickets(ctx, storage.TicketFilters{BoardID: boardID, Status: w.Initial()})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tickets, func(i, j int) bool {
		return priorityRank[tickets[i].Priority] < priorityRank[tickets[j].Priority]
	})
	return tickets, nil
}

// Subtasks returns the tickets parented under the given ticket.
func (e Engine) Subtasks(ctx context.Context, ticketID string) ([]domain.Ticket, error) {
	if _, err := e.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	return e.Store.ListTickets(ctx, storage.TicketFilters{ParentSet: true, ParentID: ticketID})
}

// Search evaluates a query string against a board's tickets. An empty
// boardID searches across all boards.
func (e Engine) Search(ctx context.Context, boardID, query string) ([]domain.Ticket, error) {
	f := search.Parse(query)
	f.BoardID = boardID
	return e.Store.ListTickets(ctx, f)
}
