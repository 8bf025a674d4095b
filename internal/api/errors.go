package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"ebibot/internal/notification"
	logx "ebibot/pkg/logx"
)

// ErrorBody is every non-2xx response.
type ErrorBody struct {
	Error string `json:"error"`
}

var (
	errNoDefaultChannel = errors.New("no default channel configured")
	errNotCancellable   = errors.New("notification not found or not pending")
	errBadID            = errors.New("id must be an integer")
)

// statusError pins an error to a status code.
type statusError struct {
	code int
	err  error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func withStatus(code int, err error) error { return &statusError{code: code, err: err} }

func errorHandler(log logx.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code, msg := mapError(err)
		if code >= http.StatusInternalServerError {
			log.Error("request failed",
				logx.String("path", c.Path()), logx.Int("status", code), logx.Err(err))
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, ErrorBody{Error: msg})
		}
		if err != nil {
			log.Warn("write error response failed", logx.Err(err))
		}
	}
}

func mapError(err error) (int, string) {
	var se *statusError
	if errors.As(err, &se) {
		return se.code, se.Error()
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, _ := he.Message.(string)
		if msg == "" {
			msg = http.StatusText(he.Code)
		}
		return he.Code, msg
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, ve.Error()
	}
	switch {
	case errors.Is(err, notification.ErrInvalid):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, notification.ErrNotFound):
		return http.StatusNotFound, err.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}
