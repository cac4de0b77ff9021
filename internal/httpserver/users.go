package httpserver

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/imageiq/internal/middleware"
	"github.com/Skotchmaster/imageiq/internal/service"
)

type UsersHTTP struct {
	Accounts *service.AccountService
}

type roleRequest struct {
	Role string `json:"role"`
}

type activeRequest struct {
	Active *bool `json:"active"`
}

func (h *UsersHTTP) Me(c echo.Context) error {
	id, _ := middleware.IdentityFrom(c)
	return c.JSON(http.StatusOK, id)
}

func (h *UsersHTTP) List(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))

	res, err := h.Accounts.ListUsers(c.Request().Context(), page, size)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *UsersHTTP) ChangeRole(c echo.Context) error {
	userID, err := pathID(c)
	if err != nil {
		return err
	}
	var req roleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}

	actor, _ := middleware.IdentityFrom(c)
	id, err := h.Accounts.ChangeRole(c.Request().Context(), actor, userID, req.Role)
	if err != nil {
		return targetError(err)
	}
	return c.JSON(http.StatusOK, id)
}

func (h *UsersHTTP) SetActive(c echo.Context) error {
	userID, err := pathID(c)
	if err != nil {
		return err
	}
	var req activeRequest
	if err := c.Bind(&req); err != nil || req.Active == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "field active is required")
	}

	actor, _ := middleware.IdentityFrom(c)
	id, err := h.Accounts.SetActive(c.Request().Context(), actor, userID, *req.Active)
	if err != nil {
		return targetError(err)
	}
	return c.JSON(http.StatusOK, id)
}

func pathID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	return uint(id), nil
}

// targetError reports a missing target user as 404 rather than an auth failure.
func targetError(err error) error {
	if errors.Is(err, service.ErrUnknownIdentity) {
		return echo.NewHTTPError(http.StatusNotFound, "user not found").SetInternal(err)
	}
	return httpError(err)
}
