// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package api

import (
	"errors"
	"net/http"

	"pwnedpasswords.io/ingest/ingest/pipeline"
	"pwnedpasswords.io/ingest/ingest/shardfiles"
	"pwnedpasswords.io/ingest/ingest/transactions"
)

// ErrorResponse is the body of an error response. It also implements the
// error interface.
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
	Index      *int   `json:"index,omitempty"`
}

func (e *ErrorResponse) Error() string {
	return e.Message
}

var (
	// ErrBadRequest is returned when the request is malformed.
	ErrBadRequest = &ErrorResponse{StatusCode: http.StatusBadRequest, Message: "bad request"}

	// ErrNotFound is returned when the requested resource is not found.
	ErrNotFound = &ErrorResponse{StatusCode: http.StatusNotFound, Message: "not found"}

	// ErrInternalError is returned when an internal error occurs.
	ErrInternalError = &ErrorResponse{StatusCode: http.StatusInternalServerError, Message: "internal error"}
)

// toErrorResponse maps err to the response sent to the client.
func toErrorResponse(err error) *ErrorResponse {
	var response *ErrorResponse
	if errors.As(err, &response) {
		return response
	}

	switch {
	case pipeline.ErrValidation.Has(err):
		response = &ErrorResponse{StatusCode: http.StatusBadRequest, Message: err.Error()}
		var invalid *pipeline.InvalidEntryError
		if errors.As(err, &invalid) {
			index := invalid.Index
			response.Index = &index
		}
		return response
	case transactions.ErrNotFound.Has(err):
		return &ErrorResponse{StatusCode: http.StatusNotFound, Message: "transaction not found"}
	case shardfiles.ErrNotFound.Has(err):
		return &ErrorResponse{StatusCode: http.StatusNotFound, Message: "range not found"}
	case transactions.ErrConflict.Has(err):
		return &ErrorResponse{StatusCode: http.StatusConflict, Message: "transaction is being confirmed concurrently"}
	default:
		return ErrInternalError
	}
}
