package identity

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dentalcare/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Signed-in tutor, own data only
	me := api.Group("/me", auth.RequireAuth())
	me.GET("", h.GetMe)
	me.PUT("", h.UpdateMe)
	me.POST("/profile", h.CompleteProfile)
	me.GET("/children", h.ListChildren)
	me.POST("/children", h.AddChild)
	me.GET("/children/:id", h.GetChild)
	me.PUT("/children/:id", h.UpdateChild)
	me.DELETE("/children/:id", h.DeleteChild)

	// Dentist
	dentist := api.Group("/tutors", auth.RequireRole(auth.RoleDentist))
	dentist.GET("/:id", h.GetTutor)
	dentist.GET("/:id/children", h.GetTutorChildren)
}

func httpError(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrProfileIncomplete):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) GetMe(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := h.svc.GetProfile(ctx, auth.UserIDFromContext(ctx), auth.EmailFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdateMe(c echo.Context) error {
	var in TutorInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	t, err := h.svc.UpdateTutor(ctx, auth.UserIDFromContext(ctx), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) CompleteProfile(c echo.Context) error {
	var in ProfileInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	p, err := h.svc.CompleteProfile(ctx, auth.UserIDFromContext(ctx), auth.EmailFromContext(ctx), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) ListChildren(c echo.Context) error {
	ctx := c.Request().Context()
	children, err := h.svc.ListChildren(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, children)
}

func (h *Handler) AddChild(c echo.Context) error {
	var in ChildInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	child, err := h.svc.AddChild(ctx, auth.UserIDFromContext(ctx), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, child)
}

func (h *Handler) GetChild(c echo.Context) error {
	ctx := c.Request().Context()
	child, err := h.svc.GetChild(ctx, auth.UserIDFromContext(ctx), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, child)
}

func (h *Handler) UpdateChild(c echo.Context) error {
	var in ChildInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	child, err := h.svc.UpdateChild(ctx, auth.UserIDFromContext(ctx), c.Param("id"), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, child)
}

func (h *Handler) DeleteChild(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.svc.DeleteChild(ctx, auth.UserIDFromContext(ctx), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetTutor(c echo.Context) error {
	t, err := h.svc.GetTutor(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) GetTutorChildren(c echo.Context) error {
	ctx := c.Request().Context()
	tutorID := c.Param("id")
	if _, err := h.svc.GetTutor(ctx, tutorID); err != nil {
		return httpError(err)
	}
	children, err := h.svc.ListChildren(ctx, tutorID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, children)
}
