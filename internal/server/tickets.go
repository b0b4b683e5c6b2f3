package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"boardline/internal/domain"
	"boardline/internal/engine"
	"boardline/internal/storage"
)

type CreateTicketRequest struct {
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	Status       string         `json:"status,omitempty"`
	Priority     string         `json:"priority,omitempty"`
	Labels       []string       `json:"labels,omitempty"`
	Assignees    []string       `json:"assignees,omitempty"`
	ParentID     string         `json:"parent_id,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
	Position     int            `json:"position,omitempty"`
	DueDate      string         `json:"due_date,omitempty"`
}

type UpdateTicketRequest struct {
	Title        *string         `json:"title,omitempty"`
	Description  *string         `json:"description,omitempty"`
	Status       *string         `json:"status,omitempty"`
	Priority     *string         `json:"priority,omitempty"`
	Labels       *[]string       `json:"labels,omitempty"`
	Assignees    *[]string       `json:"assignees,omitempty"`
	ParentID     *string         `json:"parent_id,omitempty"`
	CustomFields *map[string]any `json:"custom_fields,omitempty"`
	Position     *int            `json:"position,omitempty"`
	DueDate      *string         `json:"due_date,omitempty"`
}

func (r UpdateTicketRequest) patch() storage.TicketPatch {
	return storage.TicketPatch{
		Title:        r.Title,
		Description:  r.Description,
		Status:       r.Status,
		Priority:     r.Priority,
		Labels:       r.Labels,
		Assignees:    r.Assignees,
		ParentID:     r.ParentID,
		CustomFields: r.CustomFields,
		Position:     r.Position,
		DueDate:      r.DueDate,
	}
}

func registerTickets(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-ticket",
		Method:        http.MethodPost,
		Path:          "/boards/{board_id}/tickets",
		Summary:       "Create ticket",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BoardID string              `path:"board_id"`
		Body    CreateTicketRequest `json:"body"`
	}) (*struct {
		Body domain.Ticket `json:"body"`
	}, error) {
		t, err := e.CreateTicket(ctx, engine.TicketCreateOptions{
			BoardID:      input.BoardID,
			Title:        input.Body.Title,
			Description:  input.Body.Description,
			Status:       input.Body.Status,
			Priority:     input.Body.Priority,
			Labels:       input.Body.Labels,
			Assignees:    input.Body.Assignees,
			ParentID:     input.Body.ParentID,
			CustomFields: input.Body.CustomFields,
			Position:     input.Body.Position,
			DueDate:      input.Body.DueDate,
			Actor:        actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Ticket `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tickets",
		Method:      http.MethodGet,
		Path:        "/boards/{board_id}/tickets",
		Summary:     "List tickets",
	}, func(ctx context.Context, input *struct {
		BoardID  string `path:"board_id"`
		Status   string `query:"status"`
		Priority string `query:"priority"`
		Assignee string `query:"assignee"`
		Label    string `query:"label"`
		Limit    int    `query:"limit"`
		Offset   int    `query:"offset"`
	}) (*struct {
		Body []domain.Ticket `json:"body"`
	}, error) {
		tickets, err := e.ListTickets(ctx, storage.TicketFilters{
			BoardID:  input.BoardID,
			Status:   input.Status,
			Priority: input.Priority,
			Assignee: input.Assignee,
			Label:    input.Label,
			Limit:    input.Limit,
			Offset:   input.Offset,
		})
		if err != nil {
			return nil, handleError(err)
		}
		if tickets == nil {
			tickets = []domain.Ticket{}
		}
		return &struct {
			Body []domain.Ticket `json:"body"`
		}{Body: tickets}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-ticket",
		Method:      http.MethodGet,
		Path:        "/tickets/{id}",
		Summary:     "Get ticket",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Ticket `json:"body"`
	}, error) {
		t, err := e.GetTicket(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Ticket `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-ticket",
		Method:      http.MethodPatch,
		Path:        "/tickets/{id}",
		Summary:     "Update ticket",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body UpdateTicketRequest `json:"body"`
	}) (*struct {
		Body domain.Ticket `json:"body"`
	}, error) {
		t, err := e.UpdateTicket(ctx, input.ID, input.Body.patch(), actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Ticket `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-ticket",
		Method:      http.MethodPost,
		Path:        "/tickets/{id}/move",
		Summary:     "Transition ticket status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body struct {
			Status string `json:"status"`
		} `json:"body"`
	}) (*struct {
		Body domain.Ticket `json:"body"`
	}, error) {
		if input.Body.Status == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "status is required", nil)
		}
		t, err := e.MoveTicket(ctx, input.ID, input.Body.Status, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Ticket `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-ticket",
		Method:      http.MethodPost,
		Path:        "/tickets/{id}/assign",
		Summary:     "Replace ticket assignees",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body struct {
			Assignees []string `json:"assignees"`
		} `json:"body"`
	}) (*struct {
		Body domain.Ticket `json:"body"`
	}, error) {
		t, err := e.AssignTicket(ctx, input.ID, input.Body.Assignees, actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Ticket `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "bulk-update-tickets",
		Method:      http.MethodPost,
		Path:        "/tickets/bulk",
		Summary:     "Apply one patch to many tickets",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body struct {
			IDs   []string            `json:"ids"`
			Patch UpdateTicketRequest `json:"patch"`
		} `json:"body"`
	}) (*struct {
		Body []domain.Ticket `json:"body"`
	}, error) {
		if len(input.Body.IDs) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "ids is required", nil)
		}
		updated, err := e.BulkUpdateTickets(ctx, input.Body.IDs, input.Body.Patch.patch(), actorFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Ticket `json:"body"`
		}{Body: updated}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-ticket",
		Method:      http.MethodDelete,
		Path:        "/tickets/{id}",
		Summary:     "Delete ticket",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		if err := e.DeleteTicket(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-subtask",
		Method:        http.MethodPost,
		Path:          "/tickets/{id}/subtasks",
		Summary:       "Create subtask",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body CreateTicketRequest `json:"body"`
	}) (*struct {
		Body domain.Ticket `json:"body"`
	}, error) {
		t, err := e.CreateSubtask(ctx, input.ID, engine.TicketCreateOptions{
			Title:        input.Body.Title,
			Description:  input.Body.Description,
			Status:       input.Body.Status,
			Priority:     input.Body.Priority,
			Labels:       input.Body.Labels,
			Assignees:    input.Body.Assignees,
			CustomFields: input.Body.CustomFields,
			Position:     input.Body.Position,
			DueDate:      input.Body.DueDate,
			Actor:        actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Ticket `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-subtasks",
		Method:      http.MethodGet,
		Path:        "/tickets/{id}/subtasks",
		Summary:     "List subtasks",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.Ticket `json:"body"`
	}, error) {
		tickets, err := e.Subtasks(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if tickets == nil {
			tickets = []domain.Ticket{}
		}
		return &struct {
			Body []domain.Ticket `json:"body"`
		}{Body: tickets}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ticket-activity",
		Method:      http.MethodGet,
		Path:        "/tickets/{id}/activity",
		Summary:     "Ticket audit feed, newest first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID    string `path:"id"`
		Limit int    `query:"limit"`
	}) (*struct {
		Body []domain.Activity `json:"body"`
	}, error) {
		acts, err := e.Activities(ctx, input.ID, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		if acts == nil {
			acts = []domain.Activity{}
		}
		return &struct {
			Body []domain.Activity `json:"body"`
		}{Body: acts}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-attachments",
		Method:      http.MethodGet,
		Path:        "/tickets/{id}/attachments",
		Summary:     "List attachments",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.Attachment `json:"body"`
	}, error) {
		atts, err := e.ListAttachments(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if atts == nil {
			atts = []domain.Attachment{}
		}
		return &struct {
			Body []domain.Attachment `json:"body"`
		}{Body: atts}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-attachment",
		Method:        http.MethodPost,
		Path:          "/tickets/{id}/attachments",
		Summary:       "Record attachment metadata",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body struct {
			Filename     string `json:"filename"`
			OriginalName string `json:"original_name,omitempty"`
			MimeType     string `json:"mime_type,omitempty"`
			Size         int64  `json:"size,omitempty"`
			StorageRef   string `json:"storage_ref,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.Attachment `json:"body"`
	}, error) {
		a, err := e.AddAttachment(ctx, engine.AttachmentOptions{
			TicketID:     input.ID,
			Filename:     input.Body.Filename,
			OriginalName: input.Body.OriginalName,
			MimeType:     input.Body.MimeType,
			Size:         input.Body.Size,
			StorageRef:   input.Body.StorageRef,
			UploadedBy:   actorFromContext(ctx),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Attachment `json:"body"`
		}{Body: a}, nil
	})
}

func registerComments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-comment",
		Method:        http.MethodPost,
		Path:          "/tickets/{id}/comments",
		Summary:       "Add comment",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string `path:"id"`
		Body struct {
			Content  string `json:"content"`
			Author   string `json:"author,omitempty"`
			ParentID string `json:"parent_id,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body domain.Comment `json:"body"`
	}, error) {
		author := input.Body.Author
		if author == "" {
			author = actorFromContext(ctx)
		}
		var c domain.Comment
		var err error
		if input.Body.ParentID != "" {
			c, err = e.ReplyToComment(ctx, input.ID, input.Body.ParentID, author, input.Body.Content)
		} else {
			c, err = e.AddComment(ctx, engine.CommentOptions{
				TicketID: input.ID,
				Author:   author,
				Content:  input.Body.Content,
			})
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Comment `json:"body"`
		}{Body: c}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/tickets/{id}/comments",
		Summary:     "List comments",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body []domain.Comment `json:"body"`
	}, error) {
		comments, err := e.ListComments(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if comments == nil {
			comments = []domain.Comment{}
		}
		return &struct {
			Body []domain.Comment `json:"body"`
		}{Body: comments}, nil
	})
}

func registerSearch(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "search-tickets",
		Method:      http.MethodGet,
		Path:        "/search",
		Summary:     "Search tickets",
	}, func(ctx context.Context, input *struct {
		Q       string `query:"q"`
		BoardID string `query:"board_id"`
	}) (*struct {
		Body []domain.Ticket `json:"body"`
	}, error) {
		tickets, err := e.Search(ctx, input.BoardID, input.Q)
		if err != nil {
			return nil, handleError(err)
		}
		if tickets == nil {
			tickets = []domain.Ticket{}
		}
		return &struct {
			Body []domain.Ticket `json:"body"`
		}{Body: tickets}, nil
	})
}
