// Package export serializes boards and tickets to a versioned JSON
// document and loads such documents back, for backup and migration between
// storage backends.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"boardline/internal/domain"
	"boardline/internal/storage"
)

// Version identifies the document layout. Readers reject versions they do
// not know.
const Version = 1

// Document is the export payload. Identifiers and timestamps are preserved
// verbatim so a round trip reproduces the source data exactly.
type Document struct {
	Version int             `json:"version"`
	Boards  []domain.Board  `json:"boards"`
	Tickets []domain.Ticket `json:"tickets"`
}

// Export captures every board and ticket in the store.
func Export(ctx context.Context, store storage.Store) (Document, error) {
	doc := Document{Version: Version}
	boards, err := store.ListBoards(ctx)
	if err != nil {
		return Document{}, err
	}
	doc.Boards = boards
	for _, b := range boards {
		tickets, err := store.ListTickets(ctx, storage.TicketFilters{BoardID: b.ID})
		if err != nil {
			return Document{}, err
		}
		doc.Tickets = append(doc.Tickets, tickets...)
	}
	if doc.Boards == nil {
		doc.Boards = []domain.Board{}
	}
	if doc.Tickets == nil {
		doc.Tickets = []domain.Ticket{}
	}
	return doc, nil
}

// Write streams the document as indented JSON.
func Write(ctx context.Context, store storage.Store, w io.Writer) error {
	doc, err := Export(ctx, store)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// Result summarizes an import: how many rows were created and how many
// were skipped because a row with the same id already existed.
type Result struct {
	BoardsCreated  int `json:"boards_created"`
	BoardsSkipped  int `json:"boards_skipped"`
	TicketsCreated int `json:"tickets_created"`
	TicketsSkipped int `json:"tickets_skipped"`
}

// Import loads a document into the store, preserving identifiers. Rows
// whose id already exists are skipped untouched, so importing the same
// document twice is a no-op. Boards land before tickets so foreign keys
// hold.
func Import(ctx context.Context, store storage.Store, doc Document) (Result, error) {
	var res Result
	if doc.Version != Version {
		return res, fmt.Errorf("unsupported export version %d", doc.Version)
	}
	for _, b := range doc.Boards {
		_, err := store.GetBoard(ctx, b.ID)
		if err == nil {
			res.BoardsSkipped++
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return res, err
		}
		if _, err := store.CreateBoard(ctx, b); err != nil {
			return res, fmt.Errorf("import board %s: %w", b.ID, err)
		}
		res.BoardsCreated++
	}
	for _, t := range doc.Tickets {
		_, err := store.GetTicket(ctx, t.ID)
		if err == nil {
			res.TicketsSkipped++
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return res, err
		}
		if _, err := store.CreateTicket(ctx, t); err != nil {
			return res, fmt.Errorf("import ticket %s: %w", t.ID, err)
		}
		res.TicketsCreated++
	}
	return res, nil
}

// Read decodes a document and imports it.
func Read(ctx context.Context, store storage.Store, r io.Reader) (Result, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Result{}, fmt.Errorf("decode export document: %w", err)
	}
	return Import(ctx, store, doc)
}
