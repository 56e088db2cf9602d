package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestNewFromEnvDefaultsUnknownLevel(t *testing.T) {
	l, err := NewFromEnv("not-a-level", "json")
	if err != nil {
		t.Fatalf("NewFromEnv: %v", err)
	}
	defer l.Sync()
	if l == nil {
		t.Fatal("expected a logger")
	}
}

func TestRequestLoggerAttachesLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	base, err := NewFromEnv("info", "json")
	if err != nil {
		t.Fatalf("NewFromEnv: %v", err)
	}

	r := gin.New()
	r.Use(RequestLogger(base))
	r.GET("/ping", func(c *gin.Context) {
		l := FromGinContext(c)
		if l == nil {
			t.Fatal("expected a request-scoped logger")
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
}
