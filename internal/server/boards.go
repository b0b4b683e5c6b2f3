package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"boardline/internal/cfd"
	"boardline/internal/domain"
	"boardline/internal/engine"
	"boardline/internal/storage"
)

type CreateBoardRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	WorkflowID  string            `json:"workflow_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type UpdateBoardRequest struct {
	Name        *string            `json:"name,omitempty"`
	Description *string            `json:"description,omitempty"`
	WorkflowID  *string            `json:"workflow_id,omitempty"`
	Metadata    *map[string]string `json:"metadata,omitempty"`
}

func registerBoards(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-board",
		Method:        http.MethodPost,
		Path:          "/boards",
		Summary:       "Create board",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateBoardRequest `json:"body"`
	}) (*struct {
		Body domain.Board `json:"body"`
	}, error) {
		b, err := e.CreateBoard(ctx, engine.BoardCreateOptions{
			Name:        input.Body.Name,
			Description: input.Body.Description,
			WorkflowID:  input.Body.WorkflowID,
			Metadata:    input.Body.Metadata,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Board `json:"body"`
		}{Body: b}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-boards",
		Method:      http.MethodGet,
		Path:        "/boards",
		Summary:     "List boards",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Board `json:"body"`
	}, error) {
		boards, err := e.ListBoards(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if boards == nil {
			boards = []domain.Board{}
		}
		return &struct {
			Body []domain.Board `json:"body"`
		}{Body: boards}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-board",
		Method:      http.MethodGet,
		Path:        "/boards/{board_id}",
		Summary:     "Get board",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BoardID string `path:"board_id"`
	}) (*struct {
		Body domain.Board `json:"body"`
	}, error) {
		b, err := e.GetBoard(ctx, input.BoardID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Board `json:"body"`
		}{Body: b}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-board",
		Method:      http.MethodPatch,
		Path:        "/boards/{board_id}",
		Summary:     "Update board",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BoardID string             `path:"board_id"`
		Body    UpdateBoardRequest `json:"body"`
	}) (*struct {
		Body domain.Board `json:"body"`
	}, error) {
		b, err := e.UpdateBoard(ctx, input.BoardID, storage.BoardPatch{
			Name:        input.Body.Name,
			Description: input.Body.Description,
			WorkflowID:  input.Body.WorkflowID,
			Metadata:    input.Body.Metadata,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Board `json:"body"`
		}{Body: b}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-board",
		Method:      http.MethodDelete,
		Path:        "/boards/{board_id}",
		Summary:     "Delete board",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BoardID string `path:"board_id"`
	}) (*struct{}, error) {
		if err := e.DeleteBoard(ctx, input.BoardID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "board-kanban",
		Method:      http.MethodGet,
		Path:        "/boards/{board_id}/kanban",
		Summary:     "Kanban view",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BoardID string `path:"board_id"`
	}) (*struct {
		Body []engine.Column `json:"body"`
	}, error) {
		cols, err := e.KanbanView(ctx, input.BoardID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []engine.Column `json:"body"`
		}{Body: cols}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "board-backlog",
		Method:      http.MethodGet,
		Path:        "/boards/{board_id}/backlog",
		Summary:     "Backlog, most urgent first",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BoardID string `path:"board_id"`
	}) (*struct {
		Body []domain.Ticket `json:"body"`
	}, error) {
		tickets, err := e.Backlog(ctx, input.BoardID)
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

type CreateWorkflowRequest struct {
	ID          string              `json:"id,omitempty"`
	Name        string              `json:"name"`
	States      []string            `json:"states"`
	Transitions map[string][]string `json:"transitions"`
}

func registerWorkflows(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-workflows",
		Method:      http.MethodGet,
		Path:        "/workflows",
		Summary:     "List workflows",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Workflow `json:"body"`
	}, error) {
		ws, err := e.ListWorkflows(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		if ws == nil {
			ws = []domain.Workflow{}
		}
		return &struct {
			Body []domain.Workflow `json:"body"`
		}{Body: ws}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-workflow",
		Method:      http.MethodGet,
		Path:        "/workflows/{workflow_id}",
		Summary:     "Get workflow",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		WorkflowID string `path:"workflow_id"`
	}) (*struct {
		Body domain.Workflow `json:"body"`
	}, error) {
		w, err := e.GetWorkflow(ctx, input.WorkflowID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Workflow `json:"body"`
		}{Body: w}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "define-workflow",
		Method:        http.MethodPost,
		Path:          "/workflows",
		Summary:       "Define custom workflow",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateWorkflowRequest `json:"body"`
	}) (*struct {
		Body domain.Workflow `json:"body"`
	}, error) {
		w, err := e.DefineWorkflow(ctx, domain.Workflow{
			ID:          input.Body.ID,
			Name:        input.Body.Name,
			States:      input.Body.States,
			Transitions: input.Body.Transitions,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Workflow `json:"body"`
		}{Body: w}, nil
	})
}

func registerCFD(api huma.API, c cfd.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "cfd-data",
		Method:      http.MethodGet,
		Path:        "/boards/{board_id}/cfd",
		Summary:     "CFD data",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BoardID string `path:"board_id"`
		From    string `query:"from"`
		To      string `query:"to"`
	}) (*struct {
		Body []cfd.Day `json:"body"`
	}, error) {
		days, err := c.Data(ctx, input.BoardID, input.From, input.To)
		if err != nil {
			return nil, handleError(err)
		}
		if days == nil {
			days = []cfd.Day{}
		}
		return &struct {
			Body []cfd.Day `json:"body"`
		}{Body: days}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "cfd-snapshot",
		Method:        http.MethodPost,
		Path:          "/boards/{board_id}/cfd/snapshot",
		Summary:       "Take CFD snapshot",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BoardID string `path:"board_id"`
		Body    struct {
			Date string `json:"date,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body []domain.Snapshot `json:"body"`
	}, error) {
		snaps, err := c.TakeSnapshot(ctx, input.BoardID, input.Body.Date)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Snapshot `json:"body"`
		}{Body: snaps}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cfd-backfill",
		Method:      http.MethodPost,
		Path:        "/boards/{board_id}/cfd/backfill",
		Summary:     "Backfill CFD snapshots from the activity log",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		BoardID string `path:"board_id"`
		Body    struct {
			From string `json:"from"`
			To   string `json:"to,omitempty"`
		} `json:"body"`
	}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		n, err := c.Backfill(ctx, input.BoardID, input.Body.From, input.Body.To)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: map[string]int{"days_written": n}}, nil
	})
}
