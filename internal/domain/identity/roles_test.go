package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/dentalcare/clinic/internal/platform/auth"
)

func dentistOnly(svc *Service) echo.HandlerFunc {
	reached := func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
	return ProfileRoles(svc)(auth.RequireRole(auth.RoleDentist)(reached))
}

func TestProfileRoles_StoredDentistPassesDentistGuard(t *testing.T) {
	svc, tutors, _ := newTestService()
	seedProfile(t, svc, "doc-1")
	tutors.tutors["doc-1"].Role = auth.RoleDentist

	e := echo.New()
	rec := httptest.NewRecorder()
	req := signedIn(httptest.NewRequest(http.MethodGet, "/consultations", nil), "doc-1")
	if err := dentistOnly(svc)(e.NewContext(req, rec)); err != nil {
		t.Fatalf("expected stored dentist role to pass, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestProfileRoles_StoredTutorStillForbidden(t *testing.T) {
	svc, _, _ := newTestService()
	seedProfile(t, svc, "tutor-1")

	e := echo.New()
	req := signedIn(httptest.NewRequest(http.MethodGet, "/consultations", nil), "tutor-1")
	expectStatus(t, dentistOnly(svc)(e.NewContext(req, httptest.NewRecorder())), http.StatusForbidden)
}

func TestProfileRoles_NoProfileKeepsTokenRoles(t *testing.T) {
	svc, _, _ := newTestService()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/consultations", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "doc-2", "doc-2@example.com", []string{auth.RoleDentist}))
	rec := httptest.NewRecorder()
	if err := dentistOnly(svc)(e.NewContext(req, rec)); err != nil {
		t.Fatalf("expected token dentist role to pass, got %v", err)
	}
}

type brokenTutorRepo struct{ *mockTutorRepo }

func (brokenTutorRepo) GetByID(_ context.Context, _ string) (*Tutor, error) {
	return nil, errors.New("connection refused")
}

func TestProfileRoles_LookupFailureFallsBackToToken(t *testing.T) {
	svc, _, _ := newTestService()
	svc.tutors = brokenTutorRepo{newMockTutorRepo()}

	e := echo.New()
	req := signedIn(httptest.NewRequest(http.MethodGet, "/consultations", nil), "tutor-1")
	expectStatus(t, dentistOnly(svc)(e.NewContext(req, httptest.NewRecorder())), http.StatusForbidden)
}
