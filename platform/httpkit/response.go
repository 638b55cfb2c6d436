// Package httpkit holds the gin helpers shared by every handler: response
// writers, error mapping and middleware.
package httpkit

import (
	"errors"
	"net/http"

	"chable_leads_backend/platform/apperr"

	"github.com/gin-gonic/gin"
)

const msgInternal = "internal error"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Error writes an error body with an explicit status.
func Error(c *gin.Context, status int, message string, details any) {
	c.JSON(status, ErrorResponse{Error: message, Details: details})
}

// OK writes a 200 response.
func OK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// Accepted writes a 202 response for work that continues after the reply.
func Accepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}

// HandleError writes err and reports whether there was one. Internal and
// untyped errors are attached to the gin context for the request logger and
// never echoed to the client.
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}

	var appErr *apperr.Error
	if !errors.As(err, &appErr) || appErr.Kind == apperr.KindInternal {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: msgInternal, Kind: apperr.KindInternal.String()})
		return true
	}
	c.JSON(appErr.HTTPStatus(), ErrorResponse{Error: appErr.Message, Kind: appErr.Kind.String()})
	return true
}
