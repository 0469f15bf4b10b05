package clinical

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/dentalcare/clinic/internal/domain/scheduling"
	"github.com/dentalcare/clinic/internal/platform/auth"
)

func withUser(req *http.Request, uid, role string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), uid, uid+"@example.com", []string{role}))
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected HTTP %d, got nil error", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T: %v", err, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d (%v)", code, httpErr.Code, httpErr.Message)
	}
}

func TestHandler_SaveNote_CompletesByDefault(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc, PDFOptions{ClinicName: "Clínica"})
	e := echo.New()

	body := `{"diagnosis":"Caries","treatment":"Resina"}`
	req := withUser(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body)), "dentist-1", auth.RoleDentist)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("appt-confirmed")

	if err := h.SaveNote(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.appts.items["appt-confirmed"].Status != scheduling.StatusCompleted {
		t.Error("expected appointment completed when mark_completed is omitted")
	}
	var n ClinicalNote
	if err := json.Unmarshal(rec.Body.Bytes(), &n); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n.UpdatedBy != "dentist-1" {
		t.Errorf("expected updated_by from auth, got %q", n.UpdatedBy)
	}
}

func TestHandler_SaveNote_PendingConflict(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc, PDFOptions{})
	e := echo.New()

	req := withUser(httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"diagnosis":"x"}`)), "dentist-1", auth.RoleDentist)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("appt-pending")

	expectStatus(t, h.SaveNote(c), http.StatusConflict)
}

func TestHandler_GetNote_Missing(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc, PDFOptions{})
	e := echo.New()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("appt-confirmed")
	expectStatus(t, h.GetNote(c), http.StatusNotFound)
}

func TestHandler_MyPrescriptionPDF(t *testing.T) {
	f := newFixture()
	p, err := f.svc.CreatePrescription(context.Background(), validPrescription(), "dentist-1")
	if err != nil {
		t.Fatal(err)
	}
	h := NewHandler(f.svc, PDFOptions{ClinicName: "Clínica Dental Infantil"})
	e := echo.New()

	req := withUser(httptest.NewRequest(http.MethodGet, "/", nil), "tutor-1", auth.RoleTutor)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.MyPrescriptionPDF(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/pdf" {
		t.Errorf("expected application/pdf, got %q", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "%PDF-") {
		t.Error("expected a PDF body")
	}

	req = withUser(httptest.NewRequest(http.MethodGet, "/", nil), "tutor-2", auth.RoleTutor)
	c = e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())
	expectStatus(t, h.MyPrescriptionPDF(c), http.StatusNotFound)
}

func TestHandler_CreatePrescription_BadRequest(t *testing.T) {
	f := newFixture()
	h := NewHandler(f.svc, PDFOptions{})
	e := echo.New()

	body := `{"tutor_id":"tutor-1","child_id":"` + childID.String() + `","doctor":"Dra. M","diagnosis":"d","treatment_name":"t","medications":[]}`
	req := withUser(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)), "dentist-1", auth.RoleDentist)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	expectStatus(t, h.CreatePrescription(e.NewContext(req, httptest.NewRecorder())), http.StatusBadRequest)
}

func TestHandler_MyHistory(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.SaveNote(context.Background(), "appt-confirmed", NoteInput{Diagnosis: "a"}, false, "d"); err != nil {
		t.Fatal(err)
	}
	h := NewHandler(f.svc, PDFOptions{})
	e := echo.New()

	req := withUser(httptest.NewRequest(http.MethodGet, "/me/history?child_id="+childID.String(), nil), "tutor-1", auth.RoleTutor)
	rec := httptest.NewRecorder()
	if err := h.MyHistory(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var notes []*ClinicalNote
	if err := json.Unmarshal(rec.Body.Bytes(), &notes); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(notes) != 1 || notes[0].AppointmentID != "appt-confirmed" {
		t.Errorf("unexpected history %+v", notes)
	}
}
