// Package httpserver assembles the gin engine and runs it alongside the
// EntityLoader's background sources under one graceful-shutdown group,
// grounded on the teacher's cmd/authsvc/main.go route-registration
// sequence and dexidp-dex's cmd/dex/serve.go oklog/run.Group pattern for
// stopping every long-running goroutine together on SIGTERM.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bouncerhq/bouncer/internal/codestore"
	"github.com/bouncerhq/bouncer/internal/discovery"
	"github.com/bouncerhq/bouncer/internal/entity"
	"github.com/bouncerhq/bouncer/internal/loader"
	"github.com/bouncerhq/bouncer/internal/metrics"
	"github.com/bouncerhq/bouncer/internal/pipeline"
	"github.com/bouncerhq/bouncer/internal/resolver"
	"github.com/bouncerhq/bouncer/internal/scripthost"
	"github.com/bouncerhq/bouncer/internal/session"
	"github.com/bouncerhq/bouncer/internal/signer"
	"github.com/bouncerhq/bouncer/internal/templates"
	"github.com/bouncerhq/bouncer/pkg/apierror"
	"github.com/bouncerhq/bouncer/pkg/logger"
	"github.com/bouncerhq/bouncer/pkg/middleware"
)

// Version is set at build time via -ldflags; exposed at GET /versions.
var Version = "dev"

// Deps bundles every component the engine wires together. Sources may be
// nil (no declarative documents are consumed in that form).
type Deps struct {
	Store      *entity.Store
	Signer     *signer.Signer
	Codes      codestore.Store
	Scripts    *scripthost.Host
	Metrics    *metrics.Recorder
	Templates  *templates.Loader
	Logger     *zap.Logger
	Registerer *prometheus.Registry

	FileSource         loader.Source
	ControlPlaneSource loader.Source

	ResolverConfig resolver.Config
	PipelineConfig pipeline.Config

	LoginRatePerSecond float64
	LoginRateBurst     int
}

// New builds the gin.Engine with every route and middleware registered, per
// spec §6's external-interfaces table.
func New(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	if d.Templates != nil {
		apierror.HTMLRenderer = func(c *gin.Context, status int, reason string) bool {
			rc, _ := resolver.FromGinContext(c)
			slug := ""
			if rc != nil && rc.Tenant != nil {
				slug = rc.Tenant.Name
			}
			return templates.Render(c, d.Templates, slug, "error", status, map[string]any{"reason": reason, "status": status}) == nil
		}
	}

	r := gin.New()
	r.Use(apierror.RecoveryMiddleware())
	r.Use(otelgin.Middleware("bouncer"))
	r.Use(logger.RequestLogger(d.Logger))
	r.Use(middleware.SecurityHeadersMiddleware())
	r.Use(session.CopyToAuthHeader())
	r.Use(resolver.Middleware(d.Store, d.Signer, d.ResolverConfig))

	limiter := middleware.NewKeyedRateLimiter(rateOr(d.LoginRatePerSecond, 20), intOr(d.LoginRateBurst, 40), 0)

	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/health/ready", readyHandler(d))
	r.GET("/versions", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"version": Version}) })

	gatherer := prometheus.Gatherer(prometheus.DefaultGatherer)
	if d.Registerer != nil {
		gatherer = d.Registerer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	disc := discovery.New(d.Store, d.Signer)
	r.GET("/.well-known/openid-configuration", disc.OpenIDConfiguration)
	r.GET("/.well-known/jwks.json", disc.JWKS)

	p := pipeline.New(d.Store, d.Signer, d.Codes, d.Scripts, d.Metrics, d.Templates, d.Logger, d.PipelineConfig)

	limited := r.Group("/")
	limited.Use(limiter.Gin(middleware.TenantAndIPKey))
	limited.GET("/authorize", p.Authorize)
	limited.POST("/login", p.Login)
	limited.POST("/token", p.Token)

	r.GET("/token/info", p.TokenInfo)
	r.GET("/logout", p.Logout)
	r.POST("/logout", p.LogoutFinalize)
	r.GET("/logout/finalize", p.LogoutFinalize)
	r.Any("/interceptor", p.Interceptor)

	return r
}

func readyHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d.Codes != nil && !d.Codes.Healthy(c.Request.Context()) {
			apierror.Render(c, apierror.New(apierror.DependencyUnavailable, apierror.ReasonInternal))
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func rateOr(v, fallback float64) rate.Limit {
	if v > 0 {
		return rate.Limit(v)
	}
	return rate.Limit(fallback)
}

func intOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run starts the HTTP server on addr, and — if set — the EntityLoader's
// file and control-plane sources, all under one run.Group so SIGTERM (via
// ctx cancellation) stops every goroutine together, per SPEC_FULL.md §6's
// graceful-shutdown supplement.
func Run(ctx context.Context, addr string, engine *gin.Engine, d Deps, logr *zap.Logger) error {
	var g run.Group

	httpSrv := &http.Server{Addr: addr, Handler: engine}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	g.Add(func() error {
		logr.Info("http server listening", zap.String("addr", addr))
		return httpSrv.Serve(listener)
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	})

	entityLoader := loader.New(d.Store, d.Logger)

	if d.FileSource != nil {
		src := d.FileSource
		g.Add(func() error {
			entityLoader.Run(src)
			return nil
		}, func(error) {
			_ = src.Close()
		})
	}
	if d.ControlPlaneSource != nil {
		src := d.ControlPlaneSource
		g.Add(func() error {
			entityLoader.Run(src)
			return nil
		}, func(error) {
			_ = src.Close()
		})
	}

	g.Add(func() error {
		<-ctx.Done()
		return ctx.Err()
	}, func(error) {})

	return g.Run()
}
