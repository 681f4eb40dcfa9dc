package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"h2grid/internal/service"
)

// UserHandler serves the signed-in user's own profile.
type UserHandler struct {
	userService service.UserService
	authService service.AuthService
	cookies     CookiePolicy
}

// NewUserHandler creates a new user handler.
func NewUserHandler(userService service.UserService, authService service.AuthService, cookies CookiePolicy) *UserHandler {
	return &UserHandler{userService: userService, authService: authService, cookies: cookies}
}

// UpdateProfileRequest holds the editable profile fields. Empty values are
// left unchanged.
type UpdateProfileRequest struct {
	Fullname string `json:"fullname" validate:"omitempty,max=100"`
	PhoneNo  string `json:"phoneNo" validate:"omitempty,max=32"`
	Email    string `json:"email" validate:"omitempty,email"`
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// GetProfile godoc
// @Summary Get the signed-in user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ApiResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /users/me [get]
func (h *UserHandler) GetProfile(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, user, "Profile fetched")
}

// UpdateProfile godoc
// @Summary Update the signed-in user
// @Description Changing the email clears the verified flag.
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdateProfileRequest true "Profile fields"
// @Success 200 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 409 {object} errors.ErrorResponse
// @Router /users/me [put]
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req UpdateProfileRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	updated, err := h.userService.UpdateProfile(c.Request().Context(), user.ID, service.ProfileUpdate{
		Fullname: nonEmpty(req.Fullname),
		PhoneNo:  nonEmpty(req.PhoneNo),
		Email:    nonEmpty(req.Email),
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, updated, "Profile updated")
}

// DeleteAccount godoc
// @Summary Delete the signed-in user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ApiResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /users/me [delete]
func (h *UserHandler) DeleteAccount(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if err := h.authService.DeleteAccount(c.Request().Context(), user.ID); err != nil {
		return err
	}
	h.cookies.clear(c, accessCookie)
	h.cookies.clear(c, refreshCookie)
	return respond(c, http.StatusOK, echo.Map{}, "User deleted successfully")
}
