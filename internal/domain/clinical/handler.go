package clinical

import (
	"bytes"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dentalcare/clinic/internal/domain/identity"
	"github.com/dentalcare/clinic/internal/domain/scheduling"
	"github.com/dentalcare/clinic/internal/platform/auth"
)

type Handler struct {
	svc *Service
	pdf PDFOptions
}

func NewHandler(svc *Service, pdf PDFOptions) *Handler {
	return &Handler{svc: svc, pdf: pdf}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Signed-in tutor
	me := api.Group("/me", auth.RequireAuth())
	me.GET("/history", h.MyHistory)
	me.GET("/prescriptions", h.MyPrescriptions)
	me.GET("/prescriptions/:id", h.MyPrescription)
	me.GET("/prescriptions/:id/pdf", h.MyPrescriptionPDF)

	// Dentist
	notes := api.Group("/consultations", auth.RequireRole(auth.RoleDentist))
	notes.GET("/:id/note", h.GetNote)
	notes.GET("/:id/note/draft", h.PrepareNote)
	notes.PUT("/:id/note", h.SaveNote)

	rx := api.Group("/prescriptions", auth.RequireRole(auth.RoleDentist))
	rx.POST("", h.CreatePrescription)
	rx.GET("/:id", h.GetPrescription)
	rx.GET("/:id/pdf", h.PrescriptionPDF)
	rx.PUT("/:id/status", h.UpdatePrescriptionStatus)

	tutors := api.Group("/tutors", auth.RequireRole(auth.RoleDentist))
	tutors.GET("/:id/history", h.TutorHistory)
	tutors.GET("/:id/prescriptions", h.TutorPrescriptions)
}

func httpError(err error) error {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, scheduling.ErrNotFound), errors.Is(err, identity.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, scheduling.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, scheduling.ErrPermissionDenied):
		return echo.NewHTTPError(http.StatusForbidden, "permission denied")
	case errors.Is(err, scheduling.ErrStoreQueryFailed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "appointment store unavailable")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

// -- Tutor --

func (h *Handler) MyHistory(c echo.Context) error {
	ctx := c.Request().Context()
	uid := auth.UserIDFromContext(ctx)
	var (
		notes []*ClinicalNote
		err   error
	)
	if childID := c.QueryParam("child_id"); childID != "" {
		notes, err = h.svc.ListNotesForChild(ctx, uid, childID)
	} else {
		notes, err = h.svc.ListNotesForTutor(ctx, uid)
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, notes)
}

func (h *Handler) MyPrescriptions(c echo.Context) error {
	ctx := c.Request().Context()
	uid := auth.UserIDFromContext(ctx)
	var (
		list []*Prescription
		err  error
	)
	if childID := c.QueryParam("child_id"); childID != "" {
		list, err = h.svc.ListPrescriptionsByChild(ctx, uid, childID)
	} else {
		list, err = h.svc.ListPrescriptionsByTutor(ctx, uid)
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) MyPrescription(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := h.svc.GetPrescriptionForTutor(ctx, auth.UserIDFromContext(ctx), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) MyPrescriptionPDF(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := h.svc.GetPrescriptionForTutor(ctx, auth.UserIDFromContext(ctx), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return h.writePDF(c, p)
}

func (h *Handler) writePDF(c echo.Context, p *Prescription) error {
	var buf bytes.Buffer
	if err := RenderPrescriptionPDF(&buf, p, h.pdf); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `inline; filename="receta-`+p.ID.String()+`.pdf"`)
	return c.Blob(http.StatusOK, "application/pdf", buf.Bytes())
}

// -- Dentist --

func (h *Handler) GetNote(c echo.Context) error {
	n, err := h.svc.GetNote(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) PrepareNote(c echo.Context) error {
	n, err := h.svc.PrepareNote(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, n)
}

type saveNoteRequest struct {
	NoteInput
	MarkCompleted *bool `json:"mark_completed"`
}

func (h *Handler) SaveNote(c echo.Context) error {
	var req saveNoteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	markCompleted := true
	if req.MarkCompleted != nil {
		markCompleted = *req.MarkCompleted
	}
	ctx := c.Request().Context()
	n, err := h.svc.SaveNote(ctx, c.Param("id"), req.NoteInput, markCompleted, auth.UserIDFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, n)
}

func (h *Handler) CreatePrescription(c echo.Context) error {
	var in PrescriptionInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	p, err := h.svc.CreatePrescription(ctx, in, auth.UserIDFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPrescription(c echo.Context) error {
	p, err := h.svc.GetPrescription(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) PrescriptionPDF(c echo.Context) error {
	p, err := h.svc.GetPrescription(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return h.writePDF(c, p)
}

type prescriptionStatusRequest struct {
	Status PrescriptionStatus `json:"status"`
}

func (h *Handler) UpdatePrescriptionStatus(c echo.Context) error {
	var req prescriptionStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.UpdatePrescriptionStatus(c.Request().Context(), c.Param("id"), req.Status)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) TutorHistory(c echo.Context) error {
	notes, err := h.svc.ListNotesForTutor(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, notes)
}

func (h *Handler) TutorPrescriptions(c echo.Context) error {
	list, err := h.svc.ListPrescriptionsByTutor(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, list)
}
