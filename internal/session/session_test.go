package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestCopyToAuthHeaderBridgesCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CopyToAuthHeader())
	r.GET("/ping", func(c *gin.Context) {
		if c.GetHeader("Authorization") != "Bearer tok123" {
			t.Fatalf("expected bridged header, got %q", c.GetHeader("Authorization"))
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "tok123"})
	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)
}

func TestCopyToAuthHeaderSkipsInvalidCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CopyToAuthHeader())
	r.GET("/ping", func(c *gin.Context) {
		if c.GetHeader("Authorization") != "" {
			t.Fatalf("expected no bridged header for invalid cookie, got %q", c.GetHeader("Authorization"))
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "invalid"})
	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)
}

func TestCopyToAuthHeaderDoesNotOverrideExisting(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CopyToAuthHeader())
	r.GET("/ping", func(c *gin.Context) {
		if c.GetHeader("Authorization") != "Bearer original" {
			t.Fatalf("expected original header preserved, got %q", c.GetHeader("Authorization"))
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "tok123"})
	req.Header.Set("Authorization", "Bearer original")
	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)
}

func TestSetAndClearCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	Set(c, Config{Secure: true}, "tok123", "", 3600)
	resp := w.Result()
	cookies := resp.Cookies()
	if len(cookies) != 1 || cookies[0].Value != "tok123" {
		t.Fatalf("expected session cookie set, got %+v", cookies)
	}

	w2 := httptest.NewRecorder()
	c2, _ := gin.CreateTestContext(w2)
	c2.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	Clear(c2, Config{Secure: true}, "")
	resp2 := w2.Result()
	cookies2 := resp2.Cookies()
	if len(cookies2) != 1 || cookies2[0].Value != "invalid" || cookies2[0].MaxAge >= 0 {
		t.Fatalf("expected killed cookie, got %+v", cookies2)
	}
}
