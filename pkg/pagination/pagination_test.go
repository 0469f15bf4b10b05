package pagination

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(target string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext_Defaults(t *testing.T) {
	p := paramsFor("/")
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p := paramsFor("/?limit=50&offset=10")
	if p.Limit != 50 {
		t.Errorf("expected limit 50, got %d", p.Limit)
	}
	if p.Offset != 10 {
		t.Errorf("expected offset 10, got %d", p.Offset)
	}
}

func TestFromContext_Clamps(t *testing.T) {
	tests := []struct {
		target     string
		wantLimit  int
		wantOffset int
	}{
		{"/?limit=1000", MaxLimit, 0},
		{"/?limit=0", DefaultLimit, 0},
		{"/?limit=abc&offset=xyz", DefaultLimit, 0},
		{"/?offset=-5", DefaultLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			p := paramsFor(tt.target)
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("expected limit=%d offset=%d, got limit=%d offset=%d", tt.wantLimit, tt.wantOffset, p.Limit, p.Offset)
			}
		})
	}
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse([]string{"a", "b"}, 10, 2, 0)
	if !resp.HasMore {
		t.Error("expected HasMore true")
	}
	resp = NewResponse([]string{"a", "b"}, 2, 2, 0)
	if resp.HasMore {
		t.Error("expected HasMore false on the last page")
	}
}

func TestResponse_WithLinks(t *testing.T) {
	q := url.Values{"status": {"pending"}, "offset": {"10"}}
	resp := NewResponse(nil, 30, 10, 10).WithLinks("/api/v1/consultations", q)

	if !strings.Contains(resp.Next, "offset=20") || !strings.Contains(resp.Next, "status=pending") {
		t.Errorf("unexpected next link %q", resp.Next)
	}
	if !strings.Contains(resp.Prev, "offset=0") {
		t.Errorf("unexpected previous link %q", resp.Prev)
	}

	last := NewResponse(nil, 30, 10, 20).WithLinks("/x", nil)
	if last.Next != "" {
		t.Errorf("expected no next link on last page, got %q", last.Next)
	}

	first := NewResponse(nil, 30, 10, 0).WithLinks("/x", nil)
	if first.Prev != "" {
		t.Errorf("expected no previous link on first page, got %q", first.Prev)
	}
}
