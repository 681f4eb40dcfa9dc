package handler

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	apperrors "h2grid/internal/errors"
	"h2grid/internal/middleware"
	"h2grid/internal/model"
)

// ApiResponse is the envelope of every successful response.
type ApiResponse struct {
	StatusCode int         `json:"statusCode"`
	Data       interface{} `json:"data"`
	Message    string      `json:"message"`
	Success    bool        `json:"success"`
}

func respond(c echo.Context, status int, data interface{}, message string) error {
	return c.JSON(status, ApiResponse{
		StatusCode: status,
		Data:       data,
		Message:    message,
		Success:    status < http.StatusBadRequest,
	})
}

func currentUser(c echo.Context) (*model.User, error) {
	user := middleware.CurrentUser(c)
	if user == nil {
		return nil, apperrors.Wrap(http.StatusUnauthorized, "Unauthorized request", apperrors.ErrUnauthorized)
	}
	return user, nil
}

func userID(user *model.User) *uuid.UUID {
	if user == nil {
		return nil
	}
	id := user.ID
	return &id
}

func paramID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperrors.Wrap(http.StatusBadRequest, "Invalid "+name, apperrors.ErrBadRequest)
	}
	return id, nil
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) && he.Code == http.StatusUnsupportedMediaType {
			return err
		}
		return apperrors.Wrap(http.StatusBadRequest, "Invalid request body", apperrors.ErrBadRequest)
	}
	return c.Validate(req)
}
