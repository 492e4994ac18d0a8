package logger

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolku_backend/internals/constants"
	"schoolku_backend/internals/middlewares/guard"
)

func TestAccessLogCarriesTenantAndActor(t *testing.T) {
	var buf bytes.Buffer
	school, user := uuid.New(), uuid.New()

	app := fiber.New()
	// auth_school memasang principal sebelum guard; di sini lewat header
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("reqid", "req-42")
		if c.Get("X-Authed") != "" {
			c.SetUserContext(guard.WithPrincipal(c.UserContext(), guard.Principal{
				SchoolID: &school, UserID: &user, Roles: []string{constants.RoleBursar},
			}))
		}
		return c.Next()
	})
	app.Use(New(&buf))
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })
	app.Get("/api/a/:school_id/ping", guard.Require(guard.OpDefaultersByClass), func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})
	app.Get("/anon", func(c *fiber.Ctx) error { return c.SendString("hi") })

	req := httptest.NewRequest("GET", "/api/a/"+school.String()+"/ping", nil)
	req.Header.Set("X-Authed", "1")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	line := buf.String()
	assert.Contains(t, line, "req-42")
	assert.Contains(t, line, "school="+school.String())
	assert.Contains(t, line, "actor="+user.String())

	buf.Reset()
	_, err = app.Test(httptest.NewRequest("GET", "/health", nil), -1)
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	_, err = app.Test(httptest.NewRequest("GET", "/anon", nil), -1)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "school=- actor=-")
}
