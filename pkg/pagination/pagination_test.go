package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithQuery(query string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/"+query, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", DefaultLimit, 0},
		{"?limit=50&offset=10", 50, 10},
		{"?limit=1000", MaxLimit, 0},
		{"?limit=-3&offset=-1", DefaultLimit, 0},
		{"?limit=abc", DefaultLimit, 0},
	}
	for _, tt := range tests {
		p := FromContext(contextWithQuery(tt.query))
		if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
			t.Errorf("FromContext(%q) = %+v, want limit=%d offset=%d", tt.query, p, tt.wantLimit, tt.wantOffset)
		}
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]int{1, 2}, 5, Params{Limit: 2, Offset: 2})
	if !r.HasMore {
		t.Error("expected more results")
	}
	r = NewResponse([]int{5}, 5, Params{Limit: 2, Offset: 4})
	if r.HasMore {
		t.Error("last page should not report more")
	}
}

func TestResponse_WithLinks(t *testing.T) {
	r := NewResponse(nil, 50, Params{Limit: 10, Offset: 20}).WithLinks("/api/v1/audit")
	if len(r.Links) != 3 {
		t.Fatalf("expected self, next and previous, got %+v", r.Links)
	}
	if r.Links[1].URL != "/api/v1/audit?offset=30&limit=10" {
		t.Errorf("next = %s", r.Links[1].URL)
	}
	if r.Links[2].URL != "/api/v1/audit?offset=10&limit=10" {
		t.Errorf("previous = %s", r.Links[2].URL)
	}

	first := NewResponse(nil, 5, Params{Limit: 10}).WithLinks("/x")
	if len(first.Links) != 1 || first.Links[0].Relation != "self" {
		t.Errorf("single page should only have self, got %+v", first.Links)
	}
}
