package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-ddd-task-sync/internal/application"
	"github.com/oksasatya/go-ddd-task-sync/pkg/query"
	"github.com/oksasatya/go-ddd-task-sync/pkg/response"
	"github.com/oksasatya/go-ddd-task-sync/pkg/validation"
)

// statusOf classifies an application error into an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, application.ErrValidation), errors.Is(err, query.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, application.ErrUserNotFound), errors.Is(err, application.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, application.ErrDuplicateEmail):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its status. Server errors are logged; the
// client only sees a generic message for unclassified ones.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	status := statusOf(err)

	var details any
	var verr *application.ValidationError
	var perr *query.ParamError
	switch {
	case errors.As(err, &verr):
		details = verr.Fields
	case errors.As(err, &perr):
		details = map[string]string{perr.Param: perr.Err.Error()}
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.WithError(err).WithFields(logrus.Fields{
			"request_id": c.GetString("request_id"),
			"method":     c.Request.Method,
			"path":       c.FullPath(),
		}).Error("request failed")
		if !errors.Is(err, application.ErrConflict) {
			msg = "internal server error"
		} else {
			msg = application.ErrConflict.Error()
		}
	}
	response.Error(c, status, msg, details)
}

// bindError answers a request body that could not be decoded.
func bindError(c *gin.Context, err error) {
	response.Error(c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
}
