// Package memstore is the in-memory reference implementation of the
// storage contract. Values are normalized through JSON on the way in and
// handed out as copies, so callers observe the same shapes the durable
// backends produce and never alias stored state.
package memstore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"boardline/internal/domain"
	"boardline/internal/storage"
	"boardline/internal/workflow"
)

type Store struct {
	mu          sync.RWMutex
	boards      map[string]domain.Board
	tickets     map[string]domain.Ticket
	comments    map[string]domain.Comment
	activities  map[string]domain.Activity
	attachments map[string]domain.Attachment
	workflows   map[string]domain.Workflow
	snapshots   map[string]domain.Snapshot

	// seq breaks created_at ties for activities inserted within the same
	// second; RFC3339 has second precision and audit ordering must match
	// insertion order.
	seq      int
	seqOrder map[string]int
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		boards:      make(map[string]domain.Board),
		tickets:     make(map[string]domain.Ticket),
		comments:    make(map[string]domain.Comment),
		activities:  make(map[string]domain.Activity),
		attachments: make(map[string]domain.Attachment),
		workflows:   make(map[string]domain.Workflow),
		snapshots:   make(map[string]domain.Snapshot),
		seqOrder:    make(map[string]int),
	}
}

func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range workflow.Builtins() {
		if _, ok := s.workflows[w.ID]; !ok {
			s.workflows[w.ID] = w
		}
	}
	return nil
}

func (s *Store) Close() error { return nil }

func now() string { return time.Now().UTC().Format(time.RFC3339) }

// roundTrip normalizes v through JSON so that numbers and nested values in
// free-form maps come back in the same shapes the SQL backends decode.
func roundTrip[T any](v T) T {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// Boards

func (s *Store) CreateBoard(ctx context.Context, b domain.Board) (domain.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.WorkflowID == "" {
		b.WorkflowID = workflow.Kanban
	}
	if b.CreatedAt == "" {
		b.CreatedAt = now()
	}
	b = roundTrip(b)
	s.boards[b.ID] = b
	return b, nil
}

func (s *Store) GetBoard(ctx context.Context, id string) (domain.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.boards[id]
	if !ok {
		return domain.Board{}, storage.ErrNotFound
	}
	return roundTrip(b), nil
}

func (s *Store) ListBoards(ctx context.Context) ([]domain.Board, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.Board, 0, len(s.boards))
	for _, b := range s.boards {
		res = append(res, roundTrip(b))
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt != res[j].CreatedAt {
			return res[i].CreatedAt > res[j].CreatedAt
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (s *Store) UpdateBoard(ctx context.Context, id string, patch storage.BoardPatch) (domain.Board, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.boards[id]
	if !ok {
		return domain.Board{}, storage.ErrNotFound
	}
	if patch.Name != nil {
		b.Name = *patch.Name
	}
	if patch.Description != nil {
		b.Description = *patch.Description
	}
	if patch.WorkflowID != nil {
		b.WorkflowID = *patch.WorkflowID
	}
	if patch.Metadata != nil {
		b.Metadata = *patch.Metadata
	}
	b = roundTrip(b)
	s.boards[id] = b
	return b, nil
}

func (s *Store) DeleteBoard(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.boards[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.boards, id)
	for tid, t := range s.tickets {
		if t.BoardID == id {
			s.deleteTicketLocked(tid)
		}
	}
	for key, snap := range s.snapshots {
		if snap.BoardID == id {
			delete(s.snapshots, key)
		}
	}
	return nil
}

// Tickets

func (s *Store) CreateTicket(ctx context.Context, t domain.Ticket) (domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Priority == "" {
		t.Priority = domain.PriorityMedium
	}
	ts := now()
	if t.CreatedAt == "" {
		t.CreatedAt = ts
	}
	if t.UpdatedAt == "" {
		t.UpdatedAt = ts
	}
	t = roundTrip(t)
	s.tickets[t.ID] = t
	return t, nil
}

func (s *Store) GetTicket(ctx context.Context, id string) (domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return domain.Ticket{}, storage.ErrNotFound
	}
	return roundTrip(t), nil
}

func (s *Store) ListTickets(ctx context.Context, f storage.TicketFilters) ([]domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.Ticket
	for _, t := range s.tickets {
		if matches(t, f) {
			res = append(res, roundTrip(t))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Position != res[j].Position {
			return res[i].Position < res[j].Position
		}
		if res[i].CreatedAt != res[j].CreatedAt {
			return res[i].CreatedAt > res[j].CreatedAt
		}
		return res[i].ID < res[j].ID
	})
	if f.Offset > 0 {
		if f.Offset >= len(res) {
			return nil, nil
		}
		res = res[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(res) {
		res = res[:f.Limit]
	}
	return res, nil
}

func matches(t domain.Ticket, f storage.TicketFilters) bool {
	if f.BoardID != "" && t.BoardID != f.BoardID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.Assignee != "" && !contains(t.Assignees, f.Assignee) {
		return false
	}
	if f.Label != "" && !contains(t.Labels, f.Label) {
		return false
	}
	if f.ParentSet {
		if f.ParentID == "" {
			if t.ParentID != nil {
				return false
			}
		} else if t.ParentID == nil || *t.ParentID != f.ParentID {
			return false
		}
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(t.Title), needle) &&
			!strings.Contains(strings.ToLower(t.Description), needle) {
			return false
		}
	}
	return true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func (s *Store) UpdateTicket(ctx context.Context, id string, patch storage.TicketPatch) (domain.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[id]
	if !ok {
		return domain.Ticket{}, storage.ErrNotFound
	}
	if patch.Title != nil {
		t.Title = *patch.Title
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Status != nil {
		t.Status = *patch.Status
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	if patch.Labels != nil {
		t.Labels = *patch.Labels
	}
	if patch.Assignees != nil {
		t.Assignees = *patch.Assignees
	}
	if patch.ParentID != nil {
		if *patch.ParentID == "" {
			t.ParentID = nil
		} else {
			v := *patch.ParentID
			t.ParentID = &v
		}
	}
	if patch.CustomFields != nil {
		t.CustomFields = *patch.CustomFields
	}
	if patch.Position != nil {
		t.Position = *patch.Position
	}
	if patch.DueDate != nil {
		if *patch.DueDate == "" {
			t.DueDate = nil
		} else {
			v := *patch.DueDate
			t.DueDate = &v
		}
	}
	if !patch.Empty() {
		t.UpdatedAt = now()
	}
	t = roundTrip(t)
	s.tickets[id] = t
	return t, nil
}

func (s *Store) DeleteTicket(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[id]; !ok {
		return storage.ErrNotFound
	}
	s.deleteTicketLocked(id)
	return nil
}

func (s *Store) deleteTicketLocked(id string) {
	delete(s.tickets, id)
	for cid, c := range s.comments {
		if c.TicketID == id {
			delete(s.comments, cid)
		}
	}
	for aid, a := range s.activities {
		if a.TicketID == id {
			delete(s.activities, aid)
		}
	}
	for aid, a := range s.attachments {
		if a.TicketID == id {
			delete(s.attachments, aid)
		}
	}
}

// Comments

func (s *Store) CreateComment(ctx context.Context, c domain.Comment) (domain.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt == "" {
		c.CreatedAt = now()
	}
	s.comments[c.ID] = c
	return c, nil
}

func (s *Store) ListComments(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.Comment
	for _, c := range s.comments {
		if c.TicketID == ticketID {
			res = append(res, c)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt != res[j].CreatedAt {
			return res[i].CreatedAt < res[j].CreatedAt
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (s *Store) DeleteComment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.comments[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.comments, id)
	return nil
}

// Activities

func (s *Store) CreateActivity(ctx context.Context, a domain.Activity) (domain.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt == "" {
		a.CreatedAt = now()
	}
	s.seq++
	a = roundTrip(a)
	s.activities[a.ID] = a
	s.seqOrder[a.ID] = s.seq
	return a, nil
}

func (s *Store) ListActivities(ctx context.Context, ticketID string, limit int) ([]domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.Activity
	for _, a := range s.activities {
		if a.TicketID == ticketID {
			res = append(res, roundTrip(a))
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt != res[j].CreatedAt {
			return res[i].CreatedAt > res[j].CreatedAt
		}
		return s.seqOrder[res[i].ID] > s.seqOrder[res[j].ID]
	})
	if limit > 0 && limit < len(res) {
		res = res[:limit]
	}
	return res, nil
}

func (s *Store) QueryActivities(ctx context.Context, f storage.ActivityFilters) ([]domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.Activity
	for _, a := range s.activities {
		if f.TicketID != "" && a.TicketID != f.TicketID {
			continue
		}
		if len(f.Actions) > 0 && !contains(f.Actions, a.Action) {
			continue
		}
		if f.From != "" && a.CreatedAt < f.From {
			continue
		}
		if f.To != "" && a.CreatedAt > f.To {
			continue
		}
		res = append(res, roundTrip(a))
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt != res[j].CreatedAt {
			return res[i].CreatedAt > res[j].CreatedAt
		}
		return s.seqOrder[res[i].ID] > s.seqOrder[res[j].ID]
	})
	return res, nil
}

// Attachments

func (s *Store) CreateAttachment(ctx context.Context, a domain.Attachment) (domain.Attachment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt == "" {
		a.CreatedAt = now()
	}
	s.attachments[a.ID] = a
	return a, nil
}

func (s *Store) ListAttachments(ctx context.Context, ticketID string) ([]domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.Attachment
	for _, a := range s.attachments {
		if a.TicketID == ticketID {
			res = append(res, a)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt != res[j].CreatedAt {
			return res[i].CreatedAt < res[j].CreatedAt
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

func (s *Store) DeleteAttachment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attachments[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.attachments, id)
	return nil
}

// Workflows

func (s *Store) GetWorkflow(ctx context.Context, id string) (domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workflows[id]
	if !ok {
		return domain.Workflow{}, storage.ErrNotFound
	}
	return roundTrip(w), nil
}

func (s *Store) CreateWorkflow(ctx context.Context, w domain.Workflow) (domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	w = roundTrip(w)
	s.workflows[w.ID] = w
	return w, nil
}

func (s *Store) ListWorkflows(ctx context.Context) ([]domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]domain.Workflow, 0, len(s.workflows))
	for _, w := range s.workflows {
		res = append(res, roundTrip(w))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// Snapshots

func snapshotKey(boardID, status, date string) string {
	return boardID + "|" + status + "|" + date
}

func (s *Store) UpsertSnapshot(ctx context.Context, snap domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshotKey(snap.BoardID, snap.Status, snap.Date)] = snap
	return nil
}

func (s *Store) ListSnapshots(ctx context.Context, boardID, from, to string) ([]domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []domain.Snapshot
	for _, snap := range s.snapshots {
		if snap.BoardID != boardID {
			continue
		}
		if from != "" && snap.Date < from {
			continue
		}
		if to != "" && snap.Date > to {
			continue
		}
		res = append(res, snap)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].Date != res[j].Date {
			return res[i].Date < res[j].Date
		}
		return res[i].Status < res[j].Status
	})
	return res, nil
}
