package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/ori/internal/pipeline"
	"github.com/mohammad-safakhou/ori/internal/store"
	"github.com/mohammad-safakhou/ori/provider/models"
)

// toHTTPError maps domain errors onto status codes.
func toHTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	var upErr *models.UpstreamError
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, pipeline.ErrNotFound), errors.Is(err, store.ErrChatNotFound), errors.Is(err, store.ErrUserNotFound):
		code = http.StatusNotFound
	case errors.Is(err, pipeline.ErrForbidden):
		code = http.StatusForbidden
	case errors.Is(err, pipeline.ErrMissingCredential), errors.Is(err, pipeline.ErrInvalidStage), errors.Is(err, pipeline.ErrInvalidInput):
		code = http.StatusBadRequest
	case errors.Is(err, store.ErrEmailTaken):
		code = http.StatusConflict
	case errors.As(err, &upErr):
		code = http.StatusBadGateway
	}
	return echo.NewHTTPError(code, err.Error()).SetInternal(err)
}

// errorHandler renders every error as {"error": msg} and logs it.
func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		he := toHTTPError(err)
		msg := fmt.Sprint(he.Message)
		req := c.Request()
		fields := []zap.Field{
			zap.Int("status", he.Code),
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.String("remote", c.RealIP()),
			zap.Error(err),
		}
		if he.Code >= http.StatusInternalServerError {
			logger.Error("request failed", fields...)
		} else {
			logger.Info("request rejected", fields...)
		}
		if !c.Response().Committed {
			if req.Method == http.MethodHead {
				_ = c.NoContent(he.Code)
				return
			}
			_ = c.JSON(he.Code, HTTPError{Error: msg})
		}
	}
}
