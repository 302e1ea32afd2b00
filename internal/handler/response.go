package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"docdash/internal/domain"
	"docdash/internal/middleware"
)

// APIResponse is the standard envelope for all API responses.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError holds error details in the response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RespondOK sends a 200 success response.
func RespondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// RespondCreated sends a 201 success response.
func RespondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{Success: true, Data: data})
}

// RespondError sends an error response with the given status code.
func RespondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, APIResponse{
		Success: false,
		Error:   &APIError{Code: code, Message: msg},
	})
}

// MapDomainError translates domain errors to HTTP status codes and error codes.
func MapDomainError(err error) (status int, code, msg string) {
	switch {
	case errors.Is(err, domain.ErrMissingLabel):
		return http.StatusBadRequest, "MISSING_LABEL", "a customer or vendor label is required"
	case errors.Is(err, domain.ErrNoFiles):
		return http.StatusBadRequest, "NO_FILES", "at least one file is required"
	case errors.Is(err, domain.ErrTooManyFiles):
		return http.StatusBadRequest, "TOO_MANY_FILES", "too many files in one batch"
	case errors.Is(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file exceeds maximum allowed size"
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND", "session not found"
	case errors.Is(err, domain.ErrSessionBusy):
		return http.StatusConflict, "SESSION_BUSY", "another operation is running for this session"
	case errors.Is(err, domain.ErrSessionLimit):
		return http.StatusServiceUnavailable, "SESSION_LIMIT", "too many active sessions; try again later"
	case errors.Is(err, domain.ErrNothingToPoll):
		return http.StatusConflict, "NOTHING_TO_POLL", "upload documents before retrieving results"
	case errors.Is(err, domain.ErrNoResults):
		return http.StatusConflict, "NO_RESULTS", "no documents have been analyzed yet"
	case errors.Is(err, domain.ErrUnsupportedExport):
		return http.StatusBadRequest, "UNSUPPORTED_EXPORT", "unsupported export format; allowed: csv, xlsx"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "an internal error occurred"
	}
}

// HandleError maps a domain error and sends the appropriate error response.
func HandleError(c *gin.Context, err error) {
	status, code, msg := MapDomainError(err)
	if status >= 500 {
		middleware.GetLogger(c).Error("internal error", zap.Error(err))
	}
	RespondError(c, status, code, msg)
}
