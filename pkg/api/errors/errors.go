package errors

import (
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/jordanlanch/invoicefollowup/pkg/domain"
	"github.com/jordanlanch/invoicefollowup/pkg/logger"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
	"github.com/labstack/echo/v4"
)

var statusByCode = map[string]int{
	domain.ErrCodeNotFound:          http.StatusNotFound,
	domain.ErrCodeValidation:        http.StatusBadRequest,
	domain.ErrCodeComplianceBlocked: http.StatusUnprocessableEntity,
	domain.ErrCodeScheduling:        http.StatusUnprocessableEntity,
	domain.ErrCodeDispatch:          http.StatusBadGateway,
	domain.ErrCodeConflict:          http.StatusConflict,
	domain.ErrCodeInternal:          http.StatusInternalServerError,
}

// StatusFor maps an error to its HTTP status
func StatusFor(err error) int {
	var de *domain.DomainError
	if stderrors.As(err, &de) {
		if status, ok := statusByCode[de.Code]; ok {
			return status
		}
	}
	return http.StatusInternalServerError
}

// FromDomain writes a domain error with its own message. Wrapped causes and
// non-domain errors are logged, never returned to the client.
func FromDomain(c echo.Context, log logger.Logger, err error) error {
	var de *domain.DomainError
	if !stderrors.As(err, &de) || de.Code == domain.ErrCodeInternal {
		return InternalError(c, log, err)
	}

	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "path", c.Request().URL.Path, "code", de.Code, "error", err)
	} else {
		log.Debug("request rejected", "path", c.Request().URL.Path, "code", de.Code, "error", err)
	}

	return c.JSON(status, models.ErrorResponse{
		Error:   strings.ToLower(de.Code),
		Message: de.Message,
	})
}

// ValidationError returns a generic validation error without exposing internal details
func ValidationError(c echo.Context, log logger.Logger, err error) error {
	log.Warn("validation error", "path", c.Request().URL.Path, "error", err)

	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "validation_error",
		Message: "Invalid request data. Please check your input and try again.",
	})
}

// InternalError returns a generic internal server error
func InternalError(c echo.Context, log logger.Logger, err error) error {
	log.Error("internal error", "path", c.Request().URL.Path, "error", err)

	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred. Please try again later.",
	})
}

// UnauthorizedError returns a generic unauthorized error
func UnauthorizedError(c echo.Context, reason string) error {
	return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   "unauthorized",
		Message: "You are not authorized to access this resource.",
	})
}

// NotFoundError returns a generic not found error
func NotFoundError(c echo.Context, resource string) error {
	return c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error:   "not_found",
		Message: "The requested resource was not found.",
	})
}

// ConflictError returns a generic conflict error
func ConflictError(c echo.Context, message string) error {
	return c.JSON(http.StatusConflict, models.ErrorResponse{
		Error:   "conflict",
		Message: message,
	})
}
