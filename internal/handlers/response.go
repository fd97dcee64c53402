package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/anonto42/nano-midea/relations/internal/middleware"
	"github.com/anonto42/nano-midea/relations/internal/models"
	"github.com/anonto42/nano-midea/relations/internal/services"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var errorStatuses = []struct {
	err    error
	status int
}{
	{services.ErrUnauthenticated, http.StatusUnauthorized},
	{services.ErrForbidden, http.StatusForbidden},
	{services.ErrSelfRequest, http.StatusBadRequest},
	{services.ErrInvalidUser, http.StatusBadRequest},
	{services.ErrRequestExists, http.StatusConflict},
	{services.ErrNoPendingRequest, http.StatusConflict},
	{services.ErrNotFound, http.StatusNotFound},
}

// errorStatus maps a service error to its HTTP status and public message.
// Unknown errors are internal and report fallback.
func errorStatus(err error, fallback string) (int, string) {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status, e.err.Error()
		}
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if msg, ok := he.Message.(string); ok {
			return he.Code, msg
		}
		return he.Code, http.StatusText(he.Code)
	}
	return http.StatusInternalServerError, fallback
}

func success(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": data})
}

func failure(c echo.Context, log *zap.Logger, err error, fallback string) error {
	status, msg := errorStatus(err, fallback)
	if status >= http.StatusInternalServerError {
		log.Error(fallback, zap.String("path", c.Path()), zap.Error(err))
	}
	return c.JSON(status, echo.Map{"success": false, "error": msg})
}

// HTTPErrorHandler renders errors that escape handlers, such as auth
// middleware rejections, in the response envelope.
func HTTPErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		if ferr := failure(c, log, err, "Internal server error"); ferr != nil {
			log.Error("write error response", zap.Error(ferr))
		}
	}
}

func actorFromContext(c echo.Context) *models.Actor {
	return middleware.ActorFrom(c)
}

func paramID(c echo.Context, name string) (uint, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		return 0, services.ErrInvalidUser
	}
	return uint(id), nil
}

type pageQuery struct {
	Page  int `query:"page" validate:"gte=0"`
	Limit int `query:"limit" validate:"gte=0"`
}

func bindPage(c echo.Context) (pageQuery, error) {
	var q pageQuery
	if err := c.Bind(&q); err != nil {
		return q, echo.NewHTTPError(http.StatusBadRequest, "Invalid pagination parameters")
	}
	if err := c.Validate(&q); err != nil {
		return q, err
	}
	return q, nil
}
