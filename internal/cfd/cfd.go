// Package cfd produces cumulative flow diagram data: daily per-status
// ticket counts for a board. Counts come from persisted snapshots, taken
// live by a scheduler or reconstructed after the fact from the audit log.
package cfd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"boardline/internal/domain"
	"boardline/internal/storage"
)

const dateLayout = "2006-01-02"

// Engine computes and persists flow snapshots. Now is injectable for tests
// and defaults to time.Now.
type Engine struct {
	Store storage.Store
	Now   func() time.Time
}

func New(store storage.Store) Engine {
	return Engine{Store: store, Now: time.Now}
}

func (e Engine) today() string {
	return e.Now().UTC().Format(dateLayout)
}

func (e Engine) boardStates(ctx context.Context, boardID string) ([]string, error) {
	b, err := e.Store.GetBoard(ctx, boardID)
	if err != nil {
		return nil, err
	}
	w, err := e.Store.GetWorkflow(ctx, b.WorkflowID)
	if err != nil {
		return nil, err
	}
	return w.States, nil
}

// TakeSnapshot counts the board's tickets per workflow state and upserts
// one row per state for the given date, zero counts included. An empty date
// means today. Retaking a snapshot for the same date overwrites it.
func (e Engine) TakeSnapshot(ctx context.Context, boardID, date string) ([]domain.Snapshot, error) {
	if date == "" {
		date = e.today()
	} else if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}
	states, err := e.boardStates(ctx, boardID)
	if err != nil {
		return nil, err
	}
	tickets, err := e.Store.ListTickets(ctx, storage.TicketFilters{BoardID: boardID})
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, t := range tickets {
		counts[t.Status]++
	}
	snaps := make([]domain.Snapshot, 0, len(states))
	for _, s := range states {
		snap := domain.Snapshot{BoardID: boardID, Status: s, Date: date, Count: counts[s]}
		if err := e.Store.UpsertSnapshot(ctx, snap); err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Day is one row of CFD data: a date and the ticket count per status.
type Day struct {
	Date   string         `json:"date"`
	Counts map[string]int `json:"counts"`
}

// Data assembles the persisted snapshots for a board into per-day records.
// Every returned day carries a count for every status seen in the range or
// declared by the board's workflow, zero-filled where no snapshot exists.
// Days with no snapshots at all are omitted.
func (e Engine) Data(ctx context.Context, boardID, from, to string) ([]Day, error) {
	states, err := e.boardStates(ctx, boardID)
	if err != nil {
		return nil, err
	}
	snaps, err := e.Store.ListSnapshots(ctx, boardID, from, to)
	if err != nil {
		return nil, err
	}
	statusSet := make(map[string]bool, len(states))
	for _, s := range states {
		statusSet[s] = true
	}
	byDate := make(map[string]map[string]int)
	for _, snap := range snaps {
		statusSet[snap.Status] = true
		if byDate[snap.Date] == nil {
			byDate[snap.Date] = make(map[string]int)
		}
		byDate[snap.Date][snap.Status] = snap.Count
	}
	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	days := make([]Day, 0, len(dates))
	for _, d := range dates {
		counts := make(map[string]int, len(statusSet))
		for s := range statusSet {
			counts[s] = byDate[d][s]
		}
		days = append(days, Day{Date: d, Counts: counts})
	}
	return days, nil
}

// Backfill reconstructs missing snapshots for the inclusive [from, to] date
// range by replaying status_changed activities backwards from the current
// ticket set. Tickets deleted since a given date cannot be recovered; their
// history is gone with their activity rows. Dates that already have
// snapshot rows are left untouched. Returns the number of days written.
func (e Engine) Backfill(ctx context.Context, boardID, from, to string) (int, error) {
	if to == "" {
		to = e.today()
	}
	start, err := time.Parse(dateLayout, from)
	if err != nil {
		return 0, fmt.Errorf("invalid from date %q: %w", from, err)
	}
	end, err := time.Parse(dateLayout, to)
	if err != nil {
		return 0, fmt.Errorf("invalid to date %q: %w", to, err)
	}
	if end.Before(start) {
		return 0, fmt.Errorf("backfill range is reversed: %s after %s", from, to)
	}
	states, err := e.boardStates(ctx, boardID)
	if err != nil {
		return 0, err
	}
	tickets, err := e.Store.ListTickets(ctx, storage.TicketFilters{BoardID: boardID})
	if err != nil {
		return 0, err
	}

	// One status_changed history per ticket, newest first.
	histories := make([][]domain.Activity, len(tickets))
	for i, t := range tickets {
		acts, err := e.Store.QueryActivities(ctx, storage.ActivityFilters{
			TicketID: t.ID,
			Actions:  []string{domain.ActionStatusChanged},
		})
		if err != nil {
			return 0, err
		}
		histories[i] = acts
	}

	existing, err := e.Store.ListSnapshots(ctx, boardID, from, to)
	if err != nil {
		return 0, err
	}
	have := make(map[string]bool)
	for _, snap := range existing {
		have[snap.Date] = true
	}

	written := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		date := d.Format(dateLayout)
		if have[date] {
			continue
		}
		// End-of-day boundary; RFC3339 UTC strings compare lexicographically.
		boundary := date + "T23:59:59Z"
		counts := make(map[string]int)
		for i, t := range tickets {
			if t.CreatedAt > boundary {
				continue
			}
			counts[statusAt(t, histories[i], boundary)]++
		}
		for _, s := range states {
			snap := domain.Snapshot{BoardID: boardID, Status: s, Date: date, Count: counts[s]}
			if err := e.Store.UpsertSnapshot(ctx, snap); err != nil {
				return written, err
			}
		}
		written++
	}
	return written, nil
}

// statusAt rewinds a ticket's status to the given instant by undoing every
// status change recorded after it. history must be newest first.
func statusAt(t domain.Ticket, history []domain.Activity, boundary string) string {
	status := t.Status
	for _, a := range history {
		if a.CreatedAt <= boundary {
			break
		}
		if c, ok := a.Changes["status"]; ok {
			if old, ok := c.Old.(string); ok {
				status = old
			}
		}
	}
	return status
}
