package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"boardline/internal/export"
	"boardline/internal/storage"
)

func registerTransfer(api huma.API, store storage.Store) {
	huma.Register(api, huma.Operation{
		OperationID: "export-data",
		Method:      http.MethodGet,
		Path:        "/export",
		Summary:     "Export boards and tickets",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body export.Document `json:"body"`
	}, error) {
		doc, err := export.Export(ctx, store)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body export.Document `json:"body"`
		}{Body: doc}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-data",
		Method:      http.MethodPost,
		Path:        "/import",
		Summary:     "Import an export document",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body export.Document `json:"body"`
	}) (*struct {
		Body export.Result `json:"body"`
	}, error) {
		res, err := export.Import(ctx, store, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body export.Result `json:"body"`
		}{Body: res}, nil
	})
}
