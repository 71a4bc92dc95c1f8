// Package resp writes JSON bodies. Success bodies are the payload itself;
// failures share one envelope: {"error":{"kind","code","message","details"}}.
package resp

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kidoxdavid/eazyfoods-sub000/pkg/apperr"
	"github.com/kidoxdavid/eazyfoods-sub000/pkg/logging"
)

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

type errorBody struct {
	Kind    apperr.Kind    `json:"kind"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Status maps an error kind onto the HTTP status.
func Status(err error) int {
	e, ok := apperr.As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindState, apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindDomain:
		return http.StatusUnprocessableEntity
	case apperr.KindUpstream:
		if e.Code == apperr.CodeUpstreamTimeout {
			return http.StatusGatewayTimeout
		}
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// Error writes err and aborts the chain. Internal errors are logged and
// their cause never leaves the process.
func Error(c *gin.Context, err error) {
	status := Status(err)
	body := errorBody{Kind: apperr.KindInternal, Code: apperr.CodeInternal, Message: "internal error"}
	if e, ok := apperr.As(err); ok && e.Kind != apperr.KindInternal {
		body = errorBody{Kind: e.Kind, Code: e.Code, Message: e.Message, Details: e.Details}
	}
	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request.Context(), nil).Error("request_failed",
			zap.Int("status", status), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

// BadRequest reports a malformed body or query.
func BadRequest(c *gin.Context, err error) {
	var e *apperr.Error
	if errors.As(err, &e) {
		Error(c, e)
		return
	}
	Error(c, apperr.Validation(err.Error()))
}
