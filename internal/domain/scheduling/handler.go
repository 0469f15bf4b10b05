package scheduling

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dentalcare/clinic/internal/platform/auth"
	"github.com/dentalcare/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Any signed-in user
	tutor := api.Group("", auth.RequireAuth())
	tutor.GET("/calendar", h.GetCalendar)
	tutor.GET("/availability", h.GetAvailability)
	tutor.POST("/appointments", h.Book)
	tutor.GET("/me/appointments", h.ListMine)
	tutor.GET("/me/appointments/:id", h.GetMine)
	tutor.POST("/me/appointments/:id/cancel", h.CancelMine)

	// Dentist
	dentist := api.Group("/consultations", auth.RequireRole(auth.RoleDentist))
	dentist.GET("", h.Search)
	dentist.GET("/:id", h.GetConsultation)
	dentist.POST("/:id/confirm", h.Confirm)
	dentist.PUT("/:id/status", h.UpdateStatus)
}

// httpError maps domain errors onto HTTP statuses.
func httpError(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
	case errors.Is(err, ErrInvalidDate), errors.Is(err, ErrInvalidSlot),
		errors.Is(err, ErrPastDate), errors.Is(err, ErrOutOfRange), errors.Is(err, ErrUnknownChild):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrPastSlot):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrSlotTaken), errors.Is(err, ErrNotCancellable), errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrPermissionDenied):
		return echo.NewHTTPError(http.StatusForbidden, "permission denied")
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	case errors.Is(err, ErrStoreQueryFailed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "appointment store unavailable")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func (h *Handler) GetCalendar(c echo.Context) error {
	var year, month int
	var err error
	if v := c.QueryParam("year"); v != "" {
		if year, err = strconv.Atoi(v); err != nil || year < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid year")
		}
	}
	if v := c.QueryParam("month"); v != "" {
		if month, err = strconv.Atoi(v); err != nil || month < 1 || month > 12 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid month")
		}
	}
	if (year == 0) != (month == 0) {
		return echo.NewHTTPError(http.StatusBadRequest, "year and month go together")
	}
	return c.JSON(http.StatusOK, h.svc.Calendar(c.Request().Context(), year, time.Month(month)))
}

func (h *Handler) GetAvailability(c echo.Context) error {
	date := c.QueryParam("date")
	if date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date is required")
	}
	sched, err := h.svc.Availability(c.Request().Context(), date)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sched)
}

func (h *Handler) Book(c echo.Context) error {
	var in BookInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	appt, err := h.svc.Book(ctx, auth.UserIDFromContext(ctx), auth.EmailFromContext(ctx), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, appt)
}

func (h *Handler) ListMine(c echo.Context) error {
	ctx := c.Request().Context()
	list, err := h.svc.ListForTutor(ctx, auth.UserIDFromContext(ctx), c.QueryParam("filter"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) GetMine(c echo.Context) error {
	ctx := c.Request().Context()
	appt, err := h.svc.GetForTutor(ctx, auth.UserIDFromContext(ctx), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) CancelMine(c echo.Context) error {
	ctx := c.Request().Context()
	appt, err := h.svc.Cancel(ctx, auth.UserIDFromContext(ctx), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) Search(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := SearchFilter{
		Date:    c.QueryParam("date"),
		Tutor:   c.QueryParam("tutor"),
		Patient: c.QueryParam("patient"),
		Reason:  c.QueryParam("reason"),
		Status:  Status(c.QueryParam("status")),
	}
	items, total, err := h.svc.Search(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	resp := pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL.Path, c.QueryParams())
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetConsultation(c echo.Context) error {
	appt, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) Confirm(c echo.Context) error {
	ctx := c.Request().Context()
	appt, err := h.svc.Confirm(ctx, c.Param("id"), auth.UserIDFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

type statusRequest struct {
	Status Status `json:"status"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !req.Status.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	ctx := c.Request().Context()
	appt, err := h.svc.Transition(ctx, c.Param("id"), req.Status, auth.UserIDFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, appt)
}
