// middleware/auth.go
package middleware

import (
	"context"
	"errors"
	"log"

	"habit-league/models"
	"habit-league/services"

	"github.com/gofiber/fiber/v2"
)

const (
	SessionHeader = "X-Session-Token"
	GroupHeader   = "X-Group-ID"

	memberKey = "member"
)

// MemberResolver finds the profile a session holds in a group.
type MemberResolver interface {
	ResolveMember(ctx context.Context, sessionToken, groupID string) (*models.Member, error)
}

// MemberContextMiddleware resolves X-Session-Token and X-Group-ID to a member profile
// and attaches it for handlers.
func MemberContextMiddleware(resolver MemberResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := c.Get(SessionHeader)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing " + SessionHeader,
			})
		}

		member, err := resolver.ResolveMember(c.UserContext(), token, c.Get(GroupHeader))
		if err != nil {
			if errors.Is(err, services.ErrForbidden) {
				log.Printf("🚫 [MEMBER_CTX] unknown session for group %q on %s", c.Get(GroupHeader), c.Path())
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "session is not a member of this group",
				})
			}
			log.Printf("❌ [MEMBER_CTX] resolve failed on %s: %v", c.Path(), err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to resolve session",
			})
		}

		c.Locals(memberKey, member)
		return c.Next()
	}
}

// MemberFrom returns the member attached by MemberContextMiddleware.
func MemberFrom(c *fiber.Ctx) *models.Member {
	m, _ := c.Locals(memberKey).(*models.Member)
	return m
}

// SessionToken returns the raw session header, which may be empty for new devices.
func SessionToken(c *fiber.Ctx) string {
	return c.Get(SessionHeader)
}
