package middleware_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/legionbilling/internal/handlers"
	"github.com/example/legionbilling/internal/middleware"
	"github.com/example/legionbilling/internal/services"
)

func TestRequestLoggerRecordsRenderedStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler(false, zap.NewNop())})
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger(zap.New(core)))
	app.Get("/missing", func(c *fiber.Ctx) error {
		return &services.Error{Kind: services.ErrNotFound, Message: "Bill not found"}
	})
	app.Get("/conflict", func(c *fiber.Ctx) error {
		return &services.Error{Kind: services.ErrConflict, Message: "Paid bills cannot be modified"}
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	cases := []struct {
		path   string
		status int
		level  zapcore.Level
	}{
		{"/missing", http.StatusNotFound, zapcore.WarnLevel},
		{"/conflict", http.StatusBadRequest, zapcore.WarnLevel},
		{"/boom", http.StatusInternalServerError, zapcore.ErrorLevel},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, tc.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)

			entries := logs.FilterMessage("http request").FilterField(zap.String("path", tc.path)).All()
			require.Len(t, entries, 1)
			assert.Equal(t, tc.level, entries[0].Level)
			assert.EqualValues(t, tc.status, entries[0].ContextMap()["status"])
		})
	}
}
