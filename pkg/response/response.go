// Package response renders the API's JSON envelopes. Failures always carry
// {code, message}, with an optional details list on validation errors; the
// code vocabulary is fixed.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes surfaced to clients.
const (
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeValidationError = "VALIDATION_ERROR"
	CodeConflict        = "CONFLICT"
	CodeNotFound        = "NOT_FOUND"
	CodeInternal        = "INTERNAL"
)

// ErrorBody is the failure envelope.
type ErrorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Validation sends 400 with VALIDATION_ERROR and optional detail lines.
func Validation(c *gin.Context, message string, details ...string) {
	c.JSON(http.StatusBadRequest, ErrorBody{Code: CodeValidationError, Message: message, Details: details})
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, ErrorBody{Code: CodeUnauthorized, Message: message})
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, message string) {
	c.JSON(http.StatusForbidden, ErrorBody{Code: CodeForbidden, Message: message})
}

// NotFound sends 404.
func NotFound(c *gin.Context, message string) {
	c.JSON(http.StatusNotFound, ErrorBody{Code: CodeNotFound, Message: message})
}

// Conflict sends 409.
func Conflict(c *gin.Context, message string) {
	c.JSON(http.StatusConflict, ErrorBody{Code: CodeConflict, Message: message})
}

// Internal sends 500 with an opaque message; the real cause goes to the log.
func Internal(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, ErrorBody{Code: CodeInternal, Message: message})
}
