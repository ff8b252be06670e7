package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/notes/internal/apperr"
)

func TestAuthFailure(t *testing.T) {
	t.Parallel()

	m := New()
	m.AuthFailure("token_missing")
	m.AuthFailure("token_missing")
	m.AuthFailure("invalid_token")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuthFailures.WithLabelValues("token_missing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthFailures.WithLabelValues("invalid_token")))

	var nilMetrics *Metrics
	assert.NotPanics(t, func() { nilMetrics.AuthFailure("x") })
}

func TestEventPublished(t *testing.T) {
	t.Parallel()

	m := New()
	m.EventPublished("note_created", nil)
	m.EventPublished("note_created", errors.New("down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("note_created", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("note_created", "error")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	t.Parallel()

	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/items/:id", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	e.GET("/fail", func(c echo.Context) error { return echo.NewHTTPError(http.StatusTeapot) })
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	for _, path := range []string{"/items/1", "/items/2", "/fail"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues(http.MethodGet, "/items/:id", "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues(http.MethodGet, "/fail", "418")))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "notes_http_requests_total")
}

func TestMiddleware_ErrorStatuses(t *testing.T) {
	t.Parallel()

	m := New()
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/unauth", func(c echo.Context) error { return apperr.New(apperr.KindUnauthenticated, "token missing") })
	e.GET("/invalid", func(c echo.Context) error { return apperr.New(apperr.KindValidation, "bad input") })
	e.GET("/missing", func(c echo.Context) error { return apperr.ErrNotFound })
	e.GET("/limited", func(c echo.Context) error { return apperr.New(apperr.KindRateLimited, "slow down") })
	e.GET("/boom", func(c echo.Context) error { return errors.New("db down") })

	for _, path := range []string{"/unauth", "/invalid", "/missing", "/limited", "/boom"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	tests := []struct {
		route  string
		status string
	}{
		{"/unauth", "401"},
		{"/invalid", "400"},
		{"/missing", "404"},
		{"/limited", "429"},
		{"/boom", "500"},
	}
	for _, tt := range tests {
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Requests.WithLabelValues(http.MethodGet, tt.route, tt.status)), tt.route)
	}
}
