package response

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Envelope codes carried next to the HTTP status
const (
	CodeOK           = 0
	CodeFailed       = -1
	CodeUnauthorized = -1001
	CodeNotFound     = -1003
	CodeConflict     = -1004
)

// Response is the standard API response structure
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeOK,
		Message: "success",
		Data:    data,
	})
}

// Created sends a 201 created response
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{
		Code:    CodeOK,
		Message: "created",
		Data:    data,
	})
}

// Error sends an error response
func Error(c *gin.Context, statusCode int, code int, message string) {
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

// CodeFor returns the envelope code clients expect for an error status.
func CodeFor(statusCode int) int {
	switch statusCode {
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	}
	return CodeFailed
}

// Fail sends an error response whose code follows the status. A 5xx never
// echoes message to the client.
func Fail(c *gin.Context, statusCode int, message string) {
	if statusCode >= http.StatusInternalServerError {
		message = "internal server error"
	}
	Error(c, statusCode, CodeFor(statusCode), message)
}

// BadRequest sends a 400 error response
func BadRequest(c *gin.Context, message string) {
	Fail(c, http.StatusBadRequest, message)
}

// Unauthorized sends a 401 error response
func Unauthorized(c *gin.Context, message string) {
	Fail(c, http.StatusUnauthorized, message)
}

// Conflict sends a 409 error response
func Conflict(c *gin.Context, message string) {
	Fail(c, http.StatusConflict, message)
}

// NotFound sends a 404 error response
func NotFound(c *gin.Context, message string) {
	Fail(c, http.StatusNotFound, message)
}

// InternalError sends a 500 error response
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, CodeFailed, message)
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\r", "", "\n", "")

// ContentDisposition builds the header value for a download. Quotes and
// line breaks in filename cannot break out of the quoted string.
func ContentDisposition(disposition, filename string) string {
	return fmt.Sprintf(`%s; filename="%s"`, disposition, quoteEscaper.Replace(filename))
}

// Attachment sends data as a file download named filename
func Attachment(c *gin.Context, filename, contentType string, data []byte) {
	c.Header("Content-Disposition", ContentDisposition("attachment", filename))
	c.Data(http.StatusOK, contentType, data)
}
