package apierror

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// HTMLRenderer, if set, renders the "error" page through the TemplateLoader
// for text/html requests. It reports whether it wrote a response; Render
// falls back to a plain JSON body if it returns false (no TemplateLoader
// wired, e.g. in package-local tests). Set once at server startup —
// apierror itself stays free of a TemplateLoader dependency so every
// leaf package that returns an *Error isn't forced to carry one.
var HTMLRenderer func(c *gin.Context, status int, reason string) bool

// Render writes err to the response: the "error" HTML template if Accept
// contains text/html, else a JSON body {"error": true, "reason": "..."},
// per spec §6's content-negotiation rule.
func Render(c *gin.Context, err *Error) {
	status := err.Status.HTTPStatus()
	if wantsHTML(c) {
		if HTMLRenderer != nil && HTMLRenderer(c, status, err.Reason) {
			return
		}
		c.JSON(status, gin.H{
			"error":  true,
			"reason": err.Reason,
		})
		return
	}
	c.JSON(status, gin.H{
		"error":  true,
		"reason": err.Reason,
	})
}

func wantsHTML(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "text/html")
}

// Abort renders err and stops further gin handler execution.
func Abort(c *gin.Context, err *Error) {
	Render(c, err)
	c.Abort()
}

// RecoveryMiddleware converts panics into a generic Internal error instead
// of letting them reach gin's default recovery (which would render a bare
// 500 with no localized reason), grounded on the teacher's gin.Default()
// recovery-plus-logger stack in cmd/authsvc/main.go.
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				Render(c, New(Internal, ReasonInternal))
				c.Abort()
			}
		}()
		c.Next()
	}
}
