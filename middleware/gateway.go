// middleware/gateway.go
package middleware

import (
	"crypto/subtle"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// GatewayAuthMiddleware rejects every request that does not carry the shared gateway
// token, either as "Bearer <token>" or raw in the Authorization header.
func GatewayAuthMiddleware(expectedToken string) fiber.Handler {
	if expectedToken == "" {
		log.Fatal("❌ GATEWAY_TOKEN is not set, the league API would be open to anyone")
	}
	expected := []byte(expectedToken)

	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			return rejectGateway(c, "gateway token missing")
		}
		if subtle.ConstantTimeCompare([]byte(token), expected) != 1 {
			return rejectGateway(c, "gateway token invalid")
		}
		return c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	return token, token != ""
}

func rejectGateway(c *fiber.Ctx, reason string) error {
	log.Printf("🚫 [GATEWAY_AUTH] %s for %s %s", reason, c.Method(), c.Path())
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": reason})
}
