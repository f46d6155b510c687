package middleware

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"

	"habit-league/models"
	"habit-league/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver map[string]models.Member

func (s stubResolver) ResolveMember(_ context.Context, token, groupID string) (*models.Member, error) {
	m, ok := s[token+"/"+groupID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown session", services.ErrForbidden)
	}
	return &m, nil
}

func TestGatewayAuthMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(GatewayAuthMiddleware("secret"))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })

	tests := []struct {
		header string
		want   int
	}{
		{"", fiber.StatusUnauthorized},
		{"Bearer wrong", fiber.StatusUnauthorized},
		{"Bearer secret", fiber.StatusOK},
		{"secret", fiber.StatusOK},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, tt.want, resp.StatusCode, "header %q", tt.header)
	}
}

func TestMemberContextMiddleware(t *testing.T) {
	resolver := stubResolver{"tok/g1": {ID: "m1", GroupID: "g1", Nickname: "ana"}}
	app := fiber.New()
	app.Use(MemberContextMiddleware(resolver))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(MemberFrom(c).Nickname) })

	req := httptest.NewRequest("GET", "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(SessionHeader, "tok")
	req.Header.Set(GroupHeader, "g2")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set(SessionHeader, "tok")
	req.Header.Set(GroupHeader, "g1")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
