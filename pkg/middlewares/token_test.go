package middlewares

import (
	"net/http/httptest"
	"testing"

	"marketplace_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp() *fiber.App {
	app := fiber.New()
	app.Get("/ws/:user_id", JWTMiddleware(), MatchParamMember("user_id"), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(TokenMemberID).(string))
	})
	return app
}

func TestJWTMiddleware(t *testing.T) {
	app := newApp()
	tok, err := token.GenerateJWT("alice", string(token.RoleUser), "test")
	require.NoError(t, err)
	sys, err := token.GenerateJWT("order-service", string(token.RoleSystem), "test")
	require.NoError(t, err)

	tests := []struct {
		name   string
		target string
		cookie string
		status int
	}{
		{"missing token", "/ws/alice", "", fiber.StatusUnauthorized},
		{"invalid token", "/ws/alice?auth=garbage", "", fiber.StatusUnauthorized},
		{"query token", "/ws/alice?auth=" + tok, "", fiber.StatusOK},
		{"cookie token", "/ws/alice", tok, fiber.StatusOK},
		{"other member", "/ws/bob?auth=" + tok, "", fiber.StatusForbidden},
		{"system role", "/ws/bob?auth=" + sys, "", fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.target, nil)
			if tt.cookie != "" {
				req.Header.Set("Cookie", CookieToken+"="+tt.cookie)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}
