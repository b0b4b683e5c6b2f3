package domain

// Priority levels, ordered from most to least urgent.
const (
	PriorityUrgent = "urgent"
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Priorities lists the valid priority values in rank order.
var Priorities = []string{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow}

// ValidPriority reports whether p is a known priority value.
func ValidPriority(p string) bool {
	for _, v := range Priorities {
		if v == p {
			return true
		}
	}
	return false
}

// Activity action tags.
const (
	ActionCreated       = "created"
	ActionUpdated       = "updated"
	ActionStatusChanged = "status_changed"
	ActionAssigned      = "assigned"
	ActionCommented     = "commented"
)

// Workflow is a named directed graph of states. The first state in States
// is the initial state for new tickets. Transitions maps each state to the
// set of states directly reachable from it; an empty set marks a terminal
// state.
type Workflow struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	States      []string            `json:"states"`
	Transitions map[string][]string `json:"transitions"`
}

// Initial returns the workflow's entry state.
func (w Workflow) Initial() string {
	if len(w.States) == 0 {
		return ""
	}
	return w.States[0]
}

// HasState reports whether s is a declared state of the workflow.
func (w Workflow) HasState(s string) bool {
	for _, st := range w.States {
		if st == s {
			return true
		}
	}
	return false
}

// AllowedFrom returns the legal targets from the given state.
func (w Workflow) AllowedFrom(state string) []string {
	return w.Transitions[state]
}

type Board struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	WorkflowID  string            `json:"workflow_id"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   string            `json:"created_at" format:"date-time"`
}

type Ticket struct {
	ID           string         `json:"id"`
	BoardID      string         `json:"board_id"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	Status       string         `json:"status"`
	Priority     string         `json:"priority" enum:"urgent,high,medium,low"`
	Labels       []string       `json:"labels,omitempty"`
	Assignees    []string       `json:"assignees,omitempty"`
	ParentID     *string        `json:"parent_id,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
	Position     int            `json:"position"`
	DueDate      *string        `json:"due_date,omitempty"`
	CreatedAt    string         `json:"created_at" format:"date-time"`
	UpdatedAt    string         `json:"updated_at" format:"date-time"`
}

type Comment struct {
	ID        string  `json:"id"`
	TicketID  string  `json:"ticket_id"`
	Author    string  `json:"author"`
	Content   string  `json:"content"`
	ParentID  *string `json:"parent_id,omitempty"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

// Change records a single field transition inside an activity diff.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Activity is one append-only audit row for a ticket mutation. Changes maps
// field names to old/new pairs; the created action embeds the full ticket
// snapshot under the "ticket" key instead.
type Activity struct {
	ID        string            `json:"id"`
	TicketID  string            `json:"ticket_id"`
	Actor     string            `json:"actor"`
	Action    string            `json:"action" enum:"created,updated,status_changed,assigned,commented"`
	Changes   map[string]Change `json:"changes"`
	CreatedAt string            `json:"created_at" format:"date-time"`
}

type Attachment struct {
	ID           string `json:"id"`
	TicketID     string `json:"ticket_id"`
	Filename     string `json:"filename"`
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	StorageRef   string `json:"storage_ref"`
	UploadedBy   string `json:"uploaded_by"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

// Snapshot is one per-(board,status,date) ticket count, the unit CFD data
// is built from. Date is a calendar day in YYYY-MM-DD form.
type Snapshot struct {
	BoardID string `json:"board_id"`
	Status  string `json:"status"`
	Date    string `json:"date" format:"date"`
	Count   int    `json:"count"`
}
