package apierror

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRenderJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	Render(c, New(BadRequest, ReasonNoClient))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !contains(w.Body.String(), ReasonNoClient) {
		t.Fatalf("expected body to contain reason, got %s", w.Body.String())
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Status]int{
		BadRequest:            http.StatusBadRequest,
		Unauthorized:          http.StatusUnauthorized,
		Forbidden:             http.StatusForbidden,
		NotFound:              http.StatusNotFound,
		Conflict:              http.StatusConflict,
		DependencyUnavailable: http.StatusServiceUnavailable,
		Internal:              http.StatusInternalServerError,
	}
	for status, want := range cases {
		if got := status.HTTPStatus(); got != want {
			t.Errorf("%s.HTTPStatus() = %d, want %d", status, got, want)
		}
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
