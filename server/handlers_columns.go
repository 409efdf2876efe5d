package server

import (
	"context"
	"net/http"
)

func (s *Server) handleAddColumn(ctx context.Context, req *request) (*Response, error) {
	name := req.params.String("columnName")
	if name == "" {
		return badRequest(CodeColumnNameMissing, Details{}), nil
	}
	headers, err := readHeaders(ctx, req.sheet)
	if err != nil {
		return nil, err
	}
	if headerIndex(headers, name) >= 0 {
		return badRequest(CodeColumnExists, Details{"columnName": name}), nil
	}
	lastCol, err := req.sheet.LastColumn(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.sheet.InsertColumnsAfter(ctx, lastCol, 1); err != nil {
		return nil, err
	}
	if err := req.sheet.SetValues(ctx, 1, lastCol+1, [][]any{{name}}); err != nil {
		return nil, err
	}
	return message(http.StatusCreated, "Column added"), nil
}

func (s *Server) handleEditColumn(ctx context.Context, req *request) (*Response, error) {
	oldName := req.params.String("oldColumnName")
	headers, err := readHeaders(ctx, req.sheet)
	if err != nil {
		return nil, err
	}
	col := headerIndex(headers, oldName) + 1
	if col < 1 {
		return notFound(CodeColumnNotFound, Details{"oldColumnName": oldName}), nil
	}
	newName := req.params.String("newColumnName")
	if newName == "" {
		return badRequest(CodeColumnNameMissing, Details{}), nil
	}
	if err := req.sheet.SetValues(ctx, 1, col, [][]any{{newName}}); err != nil {
		return nil, err
	}
	return message(http.StatusCreated, "Column renamed"), nil
}

func (s *Server) handleRemoveColumn(ctx context.Context, req *request) (*Response, error) {
	name := req.params.String("columnName")
	headers, err := readHeaders(ctx, req.sheet)
	if err != nil {
		return nil, err
	}
	col := headerIndex(headers, name) + 1
	if col < 1 {
		return notFound(CodeColumnNotFound, Details{"columnName": name}), nil
	}
	if err := req.sheet.DeleteColumn(ctx, col); err != nil {
		return nil, err
	}
	return message(http.StatusNoContent, "Column removed"), nil
}
