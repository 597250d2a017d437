package server

import (
	"context"
	"errors"

	"github.com/art0007i/bonk-sticks-map-converter/internal/catalog"
	"github.com/art0007i/bonk-sticks-map-converter/internal/converter"
)

// ErrorCode classifies API failures for clients.
type ErrorCode string

const (
	CodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	CodeNotFound       ErrorCode = "NOT_FOUND"
	CodeUpstream       ErrorCode = "UPSTREAM"
	CodeInvalidArchive ErrorCode = "INVALID_ARCHIVE"
	CodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	CodeCanceled       ErrorCode = "CANCELED"
	CodeInternal       ErrorCode = "INTERNAL"
)

// apiError is the JSON error payload.
type apiError struct {
	Code    ErrorCode `json:"code"`
	Status  int       `json:"-"`
	Message string    `json:"error"`
}

func (e *apiError) Error() string {
	return string(e.Code) + ": " + e.Message
}

func classify(err error) *apiError {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	e := &apiError{Code: CodeInternal, Status: 500, Message: err.Error()}
	switch {
	case errors.Is(err, converter.ErrInvalidID):
		e.Code, e.Status = CodeInvalidRequest, 400
	case errors.Is(err, catalog.ErrMapNotFound), errors.Is(err, catalog.ErrNoVersions), errors.Is(err, converter.ErrNotFound):
		e.Code, e.Status = CodeNotFound, 404
	case errors.Is(err, converter.ErrLookup), errors.Is(err, converter.ErrDownload):
		e.Code, e.Status = CodeUpstream, 502
	case errors.Is(err, converter.ErrArchive):
		e.Code, e.Status = CodeInvalidArchive, 422
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		e.Code, e.Status = CodeCanceled, 503
	}
	return e
}
