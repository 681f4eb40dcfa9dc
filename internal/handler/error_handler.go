package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	apperrors "h2grid/internal/errors"
	"h2grid/internal/logger"
)

// NewHTTPErrorHandler renders every error as the uniform error envelope.
// Unexpected errors are logged and reported without detail.
func NewHTTPErrorHandler(log *logger.Logger) echo.HTTPErrorHandler {
	if log == nil {
		log = logger.Nop()
	}
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		httpErr := toHTTPError(err)
		if httpErr.StatusCode >= http.StatusInternalServerError {
			log.Error("request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", httpErr.StatusCode,
				"error", err,
			)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(httpErr.StatusCode)
		} else {
			err = c.JSON(httpErr.StatusCode, httpErr.ToErrorResponse())
		}
		if err != nil {
			log.Error("write error response", "error", err)
		}
	}
}

func toHTTPError(err error) *apperrors.HTTPError {
	var appErr *apperrors.HTTPError
	if errors.As(err, &appErr) {
		return appErr
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		httpErr := apperrors.Wrap(http.StatusBadRequest, "Validation failed", err)
		httpErr.Fields = fieldErrors(validationErrs)
		return httpErr
	}

	var echoErr *echo.HTTPError
	if errors.As(err, &echoErr) {
		msg, ok := echoErr.Message.(string)
		if !ok {
			msg = fmt.Sprint(echoErr.Message)
		}
		if echoErr.Code >= http.StatusInternalServerError {
			msg = "Internal server error"
		}
		return apperrors.Wrap(echoErr.Code, msg, err)
	}

	var jwtErr *jwt.ValidationError
	switch {
	case errors.As(err, &jwtErr):
		return apperrors.Wrap(http.StatusUnauthorized, "Invalid token", err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperrors.Wrap(http.StatusConflict, "Duplicate value", err)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.Wrap(http.StatusNotFound, "Resource not found", err)
	}

	return apperrors.MapErrorToHTTP(err)
}
