package handlers

import (
	"habit-league/middleware"
	"habit-league/services"

	"github.com/gofiber/fiber/v2"
)

// Services bundles what the routes call into.
type Services struct {
	Groups      *services.GroupService
	Rounds      *services.RoundService
	Dashboard   *services.DashboardService
	Completions *services.CompletionService
	Disputes    *services.DisputeService
	Annual      *services.AnnualService
	Reminders   *services.ReminderService
}

func SetupRoutes(app *fiber.App, svc Services) {
	// 🔓 Session-level routes: a device may not have joined any group yet
	SetupSessionRoutes(app, svc)

	// 🔐 Member routes: X-Session-Token + X-Group-ID resolve to one profile
	member := app.Group("/g", middleware.MemberContextMiddleware(svc.Groups))
	SetupGroupRoutes(member, svc)
	SetupRoundRoutes(member, svc)
	SetupCompletionRoutes(member, svc)
	SetupDisputeRoutes(member, svc)
	SetupNotificationRoutes(member, svc)
}
