package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	authmw "github.com/Skotchmaster/notes/internal/middleware/auth"
	loggingmw "github.com/Skotchmaster/notes/internal/middleware/logging"
	"github.com/Skotchmaster/notes/internal/metrics"
	"github.com/Skotchmaster/notes/internal/ratelimit"
)

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

type Deps struct {
	AuthHandler  *AuthHTTP
	NotesHandler *NotesHTTP
	Identity     *authmw.Middleware
	LoginLimiter ratelimit.Limiter
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	CORSOrigins  []string
	Ready        map[string]Pinger
	// IPExtractor decides the client ip the login limiter keys on.
	// Nil means the socket peer address.
	IPExtractor  echo.IPExtractor
}

// ClientIPExtractor believes X-Forwarded-For only when the request arrives
// from one of the trusted CIDRs; otherwise the peer address is used.
func ClientIPExtractor(trustedCIDRs []string) (echo.IPExtractor, error) {
	if len(trustedCIDRs) == 0 {
		return echo.ExtractIPDirect(), nil
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trustedCIDRs {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", cidr, err)
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}

// New builds the echo instance with the shared middleware chain and all routes.
func New(d *Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler
	e.IPExtractor = d.IPExtractor
	if e.IPExtractor == nil {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(loggingmw.RequestLogger(logger))
	e.Use(middleware.Recover())
	if d.Metrics != nil {
		e.Use(d.Metrics.Middleware())
	}
	if len(d.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     d.CORSOrigins,
			AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders:     []string{echo.HeaderAuthorization, echo.HeaderContentType},
			AllowCredentials: true,
		}))
	}

	Register(e, d)
	return e
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/health/ready", readiness(d.Ready))
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	api := e.Group("/api")

	var loginMw []echo.MiddlewareFunc
	if d.LoginLimiter != nil {
		loginMw = append(loginMw, ratelimit.Middleware(d.LoginLimiter, "login"))
	}
	api.POST("/register", d.AuthHandler.Register)
	api.POST("/login", d.AuthHandler.Login, loginMw...)
	api.POST("/logout", d.AuthHandler.LogOut)
	api.GET("/me", d.AuthHandler.Me, d.Identity.RequireAuth)

	notes := api.Group("/notes", d.Identity.RequireAuth)
	notes.GET("", d.NotesHandler.List)
	notes.POST("", d.NotesHandler.Create)
	notes.GET("/search", d.NotesHandler.Search)
	notes.GET("/:id", d.NotesHandler.Get)
	notes.PUT("/:id", d.NotesHandler.Update)
	notes.DELETE("/:id", d.NotesHandler.Delete)
}

func readiness(checks map[string]Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, ping := range checks {
			if err := ping(ctx); err != nil {
				status = http.StatusServiceUnavailable
				results[name] = "unavailable"
				continue
			}
			results[name] = "ok"
		}
		return c.JSON(status, echo.Map{"checks": results})
	}
}
