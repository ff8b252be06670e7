package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/notes/internal/apperr"
	"github.com/Skotchmaster/notes/internal/logging"
	"github.com/Skotchmaster/notes/internal/observability"
)

const internalMessage = "internal server error"

type errorBody struct {
	Kind  apperr.Kind `json:"kind"`
	Error string      `json:"error"`
}

// ErrorHandler renders every error as {"kind", "error"}. Internal failures are
// logged and reported, and their details never reach the client.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	body, status := describe(err)
	if status >= http.StatusInternalServerError {
		ctx := c.Request().Context()
		logging.FromContext(ctx).Error("internal_error", "status", status, "error", err)
		observability.CaptureError(ctx, err, map[string]string{
			"route":  c.Path(),
			"method": c.Request().Method,
		})
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, body)
	}
	if werr != nil {
		logging.FromContext(c.Request().Context()).Error("write_error_response", "error", werr)
	}
}

func describe(err error) (errorBody, int) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		status := apperr.HTTPStatus(ae.Kind)
		if status >= http.StatusInternalServerError {
			return errorBody{Kind: apperr.KindInternal, Error: internalMessage}, status
		}
		return errorBody{Kind: ae.Kind, Error: ae.Message}, status
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code >= http.StatusInternalServerError {
			return errorBody{Kind: apperr.KindInternal, Error: internalMessage}, he.Code
		}
		msg := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok && m != "" {
			msg = m
		} else if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return errorBody{Kind: kindForStatus(he.Code), Error: msg}, he.Code
	}

	return errorBody{Kind: apperr.KindInternal, Error: internalMessage}, http.StatusInternalServerError
}

func kindForStatus(status int) apperr.Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperr.KindUnauthenticated
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return apperr.KindNotFound
	case http.StatusTooManyRequests:
		return apperr.KindRateLimited
	default:
		return apperr.KindValidation
	}
}
