// handlers/notifications.go
package handlers

import (
	"habit-league/middleware"
	"habit-league/models"

	"github.com/gofiber/fiber/v2"
)

func SetupNotificationRoutes(r fiber.Router, svc Services) {
	r.Get("/notifications/settings", func(c *fiber.Ctx) error {
		settings, err := svc.Reminders.Settings(c.UserContext(), middleware.MemberFrom(c).ID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(settings)
	})

	r.Put("/notifications/settings", func(c *fiber.Ctx) error {
		var in models.NotificationSettings
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "invalid request body")
		}
		in.MemberID = middleware.MemberFrom(c).ID
		settings, err := svc.Reminders.SaveSettings(c.UserContext(), in)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(settings)
	})
}
