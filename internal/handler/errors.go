package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/inventory-ledger/internal/service"
	"github.com/inventory-ledger/pkg/response"
)

var errorStatuses = []struct {
	kinds  []error
	status int
}{
	{[]error{service.ErrValidation, service.ErrInvalidFormat, service.ErrInvalidValue}, http.StatusBadRequest},
	{[]error{service.ErrConflict}, http.StatusConflict},
	{[]error{service.ErrUnauthorized, service.ErrAuthenticationFailed}, http.StatusUnauthorized},
	{[]error{service.ErrNotFound}, http.StatusNotFound},
}

// statusFor returns the HTTP status for a service error kind
func statusFor(err error) int {
	for _, entry := range errorStatuses {
		for _, kind := range entry.kinds {
			if errors.Is(err, kind) {
				return entry.status
			}
		}
	}
	return http.StatusInternalServerError
}

// respondError maps a service error onto the response envelope. Errors that
// carry no client message are recorded on the context for the request
// logger and answered with a generic 500.
func respondError(c *gin.Context, err error) {
	msg := service.Message(err)
	status := http.StatusInternalServerError
	if msg != "" {
		status = statusFor(err)
	}
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	response.Fail(c, status, msg)
}
