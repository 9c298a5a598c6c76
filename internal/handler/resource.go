package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/event-booking/internal/repository"
)

// ResourceHandler manages venues. Routes are admin-only.
type ResourceHandler struct {
	Resources ResourceStore
}

func NewResourceHandler(r ResourceStore) *ResourceHandler {
	return &ResourceHandler{Resources: r}
}

type createResourceReq struct {
	Name     string  `json:"name"`
	Timezone *string `json:"timezone"`
}

func (h *ResourceHandler) CreateResource(c echo.Context) error {
	var req createResourceReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return badRequest(c, "name required")
	}
	if req.Timezone != nil {
		tz := strings.TrimSpace(*req.Timezone)
		if _, err := time.LoadLocation(tz); err != nil || tz == "" {
			return badRequest(c, "unknown timezone")
		}
		req.Timezone = &tz
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Resources.Create(ctx, name, req.Timezone)
	if err != nil {
		if errors.Is(err, repository.ErrResourceExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "resource name already exists", "code": "resource_exists"})
		}
		return internalError(c, "create resource failed", err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"item": res})
}

func (h *ResourceHandler) GetResource(c echo.Context) error {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid resource id")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	res, err := h.Resources.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrResourceNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "resource not found", "code": "resource_not_found"})
		}
		return internalError(c, "load resource failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"item": res})
}

func (h *ResourceHandler) ListResources(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), requestTimeout)
	defer cancel()

	items, err := h.Resources.List(ctx)
	if err != nil {
		return internalError(c, "list resources failed", err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
