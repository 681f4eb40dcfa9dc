package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"h2grid/internal/model"
	"h2grid/internal/service"
)

// ProjectHandler serves the signed-in user's projects.
type ProjectHandler struct {
	projectService service.ProjectService
}

// NewProjectHandler creates a new project handler.
func NewProjectHandler(projectService service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService}
}

// CreateProjectRequest represents a new project.
type CreateProjectRequest struct {
	Name        string           `json:"name" validate:"required,min=2,max=100"`
	Description string           `json:"description" validate:"max=500"`
	Assets      []model.AssetRef `json:"assets" validate:"omitempty,dive"`
}

// UpdateProjectRequest changes the provided fields only.
type UpdateProjectRequest struct {
	Name        *string          `json:"name" validate:"omitempty,min=2,max=100"`
	Description *string          `json:"description" validate:"omitempty,max=500"`
	Assets      []model.AssetRef `json:"assets" validate:"omitempty,dive"`
}

// Create godoc
// @Summary Create a project
// @Tags projects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateProjectRequest true "Project"
// @Success 201 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Router /projects [post]
func (h *ProjectHandler) Create(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	var req CreateProjectRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	project, err := h.projectService.Create(c.Request().Context(), user.ID, service.ProjectInput{
		Name:        &req.Name,
		Description: &req.Description,
		Assets:      req.Assets,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, project, "Project created")
}

// List godoc
// @Summary List own projects
// @Tags projects
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ApiResponse
// @Router /projects [get]
func (h *ProjectHandler) List(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	projects, err := h.projectService.List(c.Request().Context(), user.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, projects, "")
}

// Get godoc
// @Summary Get a project
// @Tags projects
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID"
// @Success 200 {object} ApiResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /projects/{id} [get]
func (h *ProjectHandler) Get(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	project, err := h.projectService.Get(c.Request().Context(), user.ID, id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, project, "")
}

// Update godoc
// @Summary Update a project
// @Tags projects
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID"
// @Param request body UpdateProjectRequest true "Fields to change"
// @Success 200 {object} ApiResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /projects/{id} [put]
func (h *ProjectHandler) Update(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	var req UpdateProjectRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	project, err := h.projectService.Update(c.Request().Context(), user.ID, id, service.ProjectInput{
		Name:        req.Name,
		Description: req.Description,
		Assets:      req.Assets,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, project, "Project updated")
}

// Delete godoc
// @Summary Delete a project
// @Tags projects
// @Produce json
// @Security BearerAuth
// @Param id path string true "Project ID"
// @Success 200 {object} ApiResponse
// @Failure 404 {object} errors.ErrorResponse
// @Router /projects/{id} [delete]
func (h *ProjectHandler) Delete(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}
	if err := h.projectService.Delete(c.Request().Context(), user.ID, id); err != nil {
		return err
	}
	return respond(c, http.StatusOK, nil, "Project deleted")
}
