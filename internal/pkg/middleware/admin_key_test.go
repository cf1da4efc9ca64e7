package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuardedApp() *fiber.App {
	app := fiber.New()
	app.Get("/admin", AdminKeyMiddleware(), func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestAdminKeyMiddleware(t *testing.T) {
	t.Setenv("ADMIN_API_KEY", "super-secret")
	app := newGuardedApp()

	tests := []struct {
		name           string
		key            string
		expectedStatus int
	}{
		{
			name:           "valid key",
			key:            "super-secret",
			expectedStatus: fiber.StatusOK,
		},
		{
			name:           "wrong key",
			key:            "not-the-key",
			expectedStatus: fiber.StatusUnauthorized,
		},
		{
			name:           "missing key",
			key:            "",
			expectedStatus: fiber.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/admin", nil)
			if tt.key != "" {
				req.Header.Set("X-Admin-Key", tt.key)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
}

func TestAdminKeyMiddleware_DisabledWithoutConfiguredKey(t *testing.T) {
	t.Setenv("ADMIN_API_KEY", "")
	app := newGuardedApp()

	req := httptest.NewRequest("GET", "/admin", nil)
	req.Header.Set("X-Admin-Key", "anything")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}
