// Package sqlstore is the embedded single-file storage backend, built on
// modernc.org/sqlite. Set- and map-valued fields are stored as JSON text
// columns and decoded transparently on read.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"boardline/internal/domain"
	"boardline/internal/storage"
	"boardline/internal/workflow"
)

type Store struct {
	DB *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open opens (creating if needed) the database file at path with foreign
// keys enabled. Cascading deletes depend on the pragma.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func (s *Store) Init(ctx context.Context) error {
	if err := migrate(s.DB); err != nil {
		return err
	}
	return s.seedWorkflows(ctx)
}

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) seedWorkflows(ctx context.Context) error {
	for _, w := range workflow.Builtins() {
		if _, err := s.DB.ExecContext(ctx,
			`INSERT OR IGNORE INTO workflows(id,name,states_json,transitions_json) VALUES (?,?,?,?)`,
			w.ID, w.Name, mustJSON(w.States), mustJSON(w.Transitions)); err != nil {
			return fmt.Errorf("seed workflow %s: %w", w.ID, err)
		}
	}
	return nil
}

func now() string { return time.Now().UTC().Format(time.RFC3339) }

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

// Boards

func (s *Store) CreateBoard(ctx context.Context, b domain.Board) (domain.Board, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.WorkflowID == "" {
		b.WorkflowID = workflow.Kanban
	}
	if b.CreatedAt == "" {
		b.CreatedAt = now()
	}
	if b.Metadata == nil {
		b.Metadata = map[string]string{}
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO boards(id,name,description,workflow_id,metadata_json,created_at) VALUES (?,?,?,?,?,?)`,
		b.ID, b.Name, nullable(b.Description), b.WorkflowID, mustJSON(b.Metadata), b.CreatedAt)
	if err != nil {
		return domain.Board{}, err
	}
	return b, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBoard(row scanner) (domain.Board, error) {
	var b domain.Board
	var desc sql.NullString
	var metadata string
	err := row.Scan(&b.ID, &b.Name, &desc, &b.WorkflowID, &metadata, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return b, storage.ErrNotFound
	}
	if err != nil {
		return b, err
	}
	if desc.Valid {
		b.Description = desc.String
	}
	if err := json.Unmarshal([]byte(metadata), &b.Metadata); err != nil {
		return b, fmt.Errorf("decode board metadata: %w", err)
	}
	return b, nil
}

func (s *Store) GetBoard(ctx context.Context, id string) (domain.Board, error) {
	return scanBoard(s.DB.QueryRowContext(ctx,
		`SELECT id,name,description,workflow_id,metadata_json,created_at FROM boards WHERE id=?`, id))
}

func (s *Store) ListBoards(ctx context.Context) ([]domain.Board, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id,name,description,workflow_id,metadata_json,created_at FROM boards ORDER BY created_at DESC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Board
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, rows.Err()
}

func (s *Store) UpdateBoard(ctx context.Context, id string, patch storage.BoardPatch) (domain.Board, error) {
	var fields []string
	var args []any
	if patch.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *patch.Name)
	}
	if patch.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*patch.Description))
	}
	if patch.WorkflowID != nil {
		fields = append(fields, "workflow_id=?")
		args = append(args, *patch.WorkflowID)
	}
	if patch.Metadata != nil {
		fields = append(fields, "metadata_json=?")
		args = append(args, mustJSON(*patch.Metadata))
	}
	if len(fields) == 0 {
		return s.GetBoard(ctx, id)
	}
	args = append(args, id)
	res, err := s.DB.ExecContext(ctx,
		fmt.Sprintf(`UPDATE boards SET %s WHERE id=?`, strings.Join(fields, ", ")), args...)
	if err != nil {
		return domain.Board{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Board{}, storage.ErrNotFound
	}
	return s.GetBoard(ctx, id)
}

func (s *Store) DeleteBoard(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM boards WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Tickets

const ticketCols = `id,board_id,title,description,status,priority,labels_json,assignees_json,parent_id,custom_fields_json,position,due_date,created_at,updated_at`

func (s *Store) CreateTicket(ctx context.Context, t domain.Ticket) (domain.Ticket, error) {
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
	if t.Labels == nil {
		t.Labels = []string{}
	}
	if t.Assignees == nil {
		t.Assignees = []string{}
	}
	if t.CustomFields == nil {
		t.CustomFields = map[string]any{}
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO tickets(`+ticketCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.BoardID, t.Title, nullable(t.Description), t.Status, t.Priority,
		mustJSON(t.Labels), mustJSON(t.Assignees), nullableStringPtr(t.ParentID),
		mustJSON(t.CustomFields), t.Position, nullableStringPtr(t.DueDate), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return domain.Ticket{}, err
	}
	return s.GetTicket(ctx, t.ID)
}

func scanTicket(row scanner) (domain.Ticket, error) {
	var t domain.Ticket
	var desc, parentID, dueDate sql.NullString
	var labels, assignees, customFields string
	err := row.Scan(&t.ID, &t.BoardID, &t.Title, &desc, &t.Status, &t.Priority,
		&labels, &assignees, &parentID, &customFields, &t.Position, &dueDate, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, storage.ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if desc.Valid {
		t.Description = desc.String
	}
	if parentID.Valid {
		t.ParentID = &parentID.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	if err := json.Unmarshal([]byte(labels), &t.Labels); err != nil {
		return t, fmt.Errorf("decode labels: %w", err)
	}
	if err := json.Unmarshal([]byte(assignees), &t.Assignees); err != nil {
		return t, fmt.Errorf("decode assignees: %w", err)
	}
	if err := json.Unmarshal([]byte(customFields), &t.CustomFields); err != nil {
		return t, fmt.Errorf("decode custom fields: %w", err)
	}
	return t, nil
}

func (s *Store) GetTicket(ctx context.Context, id string) (domain.Ticket, error) {
	return scanTicket(s.DB.QueryRowContext(ctx,
		`SELECT `+ticketCols+` FROM tickets WHERE id=?`, id))
}

func (s *Store) ListTickets(ctx context.Context, f storage.TicketFilters) ([]domain.Ticket, error) {
	var clauses []string
	var args []any
	if f.BoardID != "" {
		clauses = append(clauses, "board_id=?")
		args = append(args, f.BoardID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		clauses = append(clauses, "priority=?")
		args = append(args, f.Priority)
	}
	if f.Assignee != "" {
		clauses = append(clauses, "assignees_json LIKE ?")
		args = append(args, `%"`+f.Assignee+`"%`)
	}
	if f.Label != "" {
		clauses = append(clauses, "labels_json LIKE ?")
		args = append(args, `%"`+f.Label+`"%`)
	}
	if f.ParentSet {
		if f.ParentID == "" {
			clauses = append(clauses, "parent_id IS NULL")
		} else {
			clauses = append(clauses, "parent_id=?")
			args = append(args, f.ParentID)
		}
	}
	if f.Search != "" {
		clauses = append(clauses, "(title LIKE ? OR description LIKE ?)")
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + ticketCols + ` FROM tickets ` + where + ` ORDER BY position ASC, created_at DESC, id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
		if f.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, f.Offset)
		}
	} else if f.Offset > 0 {
		// SQLite requires a LIMIT before OFFSET; -1 means unlimited.
		query += " LIMIT -1 OFFSET ?"
		args = append(args, f.Offset)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

func (s *Store) UpdateTicket(ctx context.Context, id string, patch storage.TicketPatch) (domain.Ticket, error) {
	var fields []string
	var args []any
	if patch.Title != nil {
		fields = append(fields, "title=?")
		args = append(args, *patch.Title)
	}
	if patch.Description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*patch.Description))
	}
	if patch.Status != nil {
		fields = append(fields, "status=?")
		args = append(args, *patch.Status)
	}
	if patch.Priority != nil {
		fields = append(fields, "priority=?")
		args = append(args, *patch.Priority)
	}
	if patch.Labels != nil {
		fields = append(fields, "labels_json=?")
		args = append(args, mustJSON(*patch.Labels))
	}
	if patch.Assignees != nil {
		fields = append(fields, "assignees_json=?")
		args = append(args, mustJSON(*patch.Assignees))
	}
	if patch.ParentID != nil {
		fields = append(fields, "parent_id=?")
		args = append(args, nullable(*patch.ParentID))
	}
	if patch.CustomFields != nil {
		fields = append(fields, "custom_fields_json=?")
		args = append(args, mustJSON(*patch.CustomFields))
	}
	if patch.Position != nil {
		fields = append(fields, "position=?")
		args = append(args, *patch.Position)
	}
	if patch.DueDate != nil {
		fields = append(fields, "due_date=?")
		args = append(args, nullable(*patch.DueDate))
	}
	if len(fields) == 0 {
		return s.GetTicket(ctx, id)
	}
	fields = append(fields, "updated_at=?")
	args = append(args, now(), id)
	res, err := s.DB.ExecContext(ctx,
		fmt.Sprintf(`UPDATE tickets SET %s WHERE id=?`, strings.Join(fields, ", ")), args...)
	if err != nil {
		return domain.Ticket{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Ticket{}, storage.ErrNotFound
	}
	return s.GetTicket(ctx, id)
}

func (s *Store) DeleteTicket(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM tickets WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Comments

func (s *Store) CreateComment(ctx context.Context, c domain.Comment) (domain.Comment, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt == "" {
		c.CreatedAt = now()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO comments(id,ticket_id,author,content,parent_id,created_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.TicketID, c.Author, c.Content, nullableStringPtr(c.ParentID), c.CreatedAt)
	if err != nil {
		return domain.Comment{}, err
	}
	return c, nil
}

func (s *Store) ListComments(ctx context.Context, ticketID string) ([]domain.Comment, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id,ticket_id,author,content,parent_id,created_at FROM comments WHERE ticket_id=? ORDER BY created_at ASC, rowid ASC`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Comment
	for rows.Next() {
		var c domain.Comment
		var parentID sql.NullString
		if err := rows.Scan(&c.ID, &c.TicketID, &c.Author, &c.Content, &parentID, &c.CreatedAt); err != nil {
			return nil, err
		}
		if parentID.Valid {
			c.ParentID = &parentID.String
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (s *Store) DeleteComment(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM comments WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Activities

func (s *Store) CreateActivity(ctx context.Context, a domain.Activity) (domain.Activity, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt == "" {
		a.CreatedAt = now()
	}
	if a.Changes == nil {
		a.Changes = map[string]domain.Change{}
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO activities(id,ticket_id,actor,action,changes_json,created_at) VALUES (?,?,?,?,?,?)`,
		a.ID, a.TicketID, a.Actor, a.Action, mustJSON(a.Changes), a.CreatedAt)
	if err != nil {
		return domain.Activity{}, err
	}
	return a, nil
}

func scanActivity(row scanner) (domain.Activity, error) {
	var a domain.Activity
	var changes string
	err := row.Scan(&a.ID, &a.TicketID, &a.Actor, &a.Action, &changes, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, storage.ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(changes), &a.Changes); err != nil {
		return a, fmt.Errorf("decode activity changes: %w", err)
	}
	return a, nil
}

func (s *Store) ListActivities(ctx context.Context, ticketID string, limit int) ([]domain.Activity, error) {
	query := `SELECT id,ticket_id,actor,action,changes_json,created_at FROM activities WHERE ticket_id=? ORDER BY created_at DESC, rowid DESC`
	args := []any{ticketID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s *Store) QueryActivities(ctx context.Context, f storage.ActivityFilters) ([]domain.Activity, error) {
	var clauses []string
	var args []any
	if f.TicketID != "" {
		clauses = append(clauses, "ticket_id=?")
		args = append(args, f.TicketID)
	}
	if len(f.Actions) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.Actions)), ",")
		clauses = append(clauses, "action IN ("+placeholders+")")
		for _, a := range f.Actions {
			args = append(args, a)
		}
	}
	if f.From != "" {
		clauses = append(clauses, "created_at>=?")
		args = append(args, f.From)
	}
	if f.To != "" {
		clauses = append(clauses, "created_at<=?")
		args = append(args, f.To)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id,ticket_id,actor,action,changes_json,created_at FROM activities `+where+` ORDER BY created_at DESC, rowid DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// Attachments

func (s *Store) CreateAttachment(ctx context.Context, a domain.Attachment) (domain.Attachment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt == "" {
		a.CreatedAt = now()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO attachments(id,ticket_id,filename,original_name,mime_type,size,storage_ref,uploaded_by,created_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		a.ID, a.TicketID, a.Filename, a.OriginalName, a.MimeType, a.Size, a.StorageRef, a.UploadedBy, a.CreatedAt)
	if err != nil {
		return domain.Attachment{}, err
	}
	return a, nil
}

func (s *Store) ListAttachments(ctx context.Context, ticketID string) ([]domain.Attachment, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id,ticket_id,filename,original_name,mime_type,size,storage_ref,uploaded_by,created_at FROM attachments WHERE ticket_id=? ORDER BY created_at ASC, rowid ASC`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		if err := rows.Scan(&a.ID, &a.TicketID, &a.Filename, &a.OriginalName, &a.MimeType, &a.Size, &a.StorageRef, &a.UploadedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (s *Store) DeleteAttachment(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM attachments WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Workflows

func (s *Store) GetWorkflow(ctx context.Context, id string) (domain.Workflow, error) {
	var w domain.Workflow
	var states, transitions string
	err := s.DB.QueryRowContext(ctx,
		`SELECT id,name,states_json,transitions_json FROM workflows WHERE id=?`, id).
		Scan(&w.ID, &w.Name, &states, &transitions)
	if err == sql.ErrNoRows {
		return w, storage.ErrNotFound
	}
	if err != nil {
		return w, err
	}
	if err := json.Unmarshal([]byte(states), &w.States); err != nil {
		return w, fmt.Errorf("decode workflow states: %w", err)
	}
	if err := json.Unmarshal([]byte(transitions), &w.Transitions); err != nil {
		return w, fmt.Errorf("decode workflow transitions: %w", err)
	}
	return w, nil
}

func (s *Store) CreateWorkflow(ctx context.Context, w domain.Workflow) (domain.Workflow, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT OR REPLACE INTO workflows(id,name,states_json,transitions_json) VALUES (?,?,?,?)`,
		w.ID, w.Name, mustJSON(w.States), mustJSON(w.Transitions))
	if err != nil {
		return domain.Workflow{}, err
	}
	return w, nil
}

func (s *Store) ListWorkflows(ctx context.Context) ([]domain.Workflow, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id,name,states_json,transitions_json FROM workflows ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Workflow
	for rows.Next() {
		var w domain.Workflow
		var states, transitions string
		if err := rows.Scan(&w.ID, &w.Name, &states, &transitions); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(states), &w.States); err != nil {
			return nil, fmt.Errorf("decode workflow states: %w", err)
		}
		if err := json.Unmarshal([]byte(transitions), &w.Transitions); err != nil {
			return nil, fmt.Errorf("decode workflow transitions: %w", err)
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

// Snapshots

func (s *Store) UpsertSnapshot(ctx context.Context, snap domain.Snapshot) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO snapshots(board_id,status,date,count) VALUES (?,?,?,?)
ON CONFLICT(board_id,status,date) DO UPDATE SET count=excluded.count`,
		snap.BoardID, snap.Status, snap.Date, snap.Count)
	return err
}

func (s *Store) ListSnapshots(ctx context.Context, boardID, from, to string) ([]domain.Snapshot, error) {
	clauses := []string{"board_id=?"}
	args := []any{boardID}
	if from != "" {
		clauses = append(clauses, "date>=?")
		args = append(args, from)
	}
	if to != "" {
		clauses = append(clauses, "date<=?")
		args = append(args, to)
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT board_id,status,date,count FROM snapshots WHERE `+strings.Join(clauses, " AND ")+` ORDER BY date ASC, status ASC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Snapshot
	for rows.Next() {
		var snap domain.Snapshot
		if err := rows.Scan(&snap.BoardID, &snap.Status, &snap.Date, &snap.Count); err != nil {
			return nil, err
		}
		res = append(res, snap)
	}
	return res, rows.Err()
}
