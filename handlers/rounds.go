// handlers/rounds.go
package handlers

import (
	"strconv"

	"habit-league/middleware"

	"github.com/gofiber/fiber/v2"
)

func SetupRoundRoutes(r fiber.Router, svc Services) {
	// Loading the dashboard is a round transition trigger.
	r.Get("/dashboard", func(c *fiber.Ctx) error {
		member := middleware.MemberFrom(c)
		closed, err := svc.Rounds.CheckRound(c.UserContext(), member.GroupID)
		if err != nil {
			return respondError(c, err)
		}
		view, err := svc.Dashboard.Dashboard(c.UserContext(), *member)
		if err != nil {
			return respondError(c, err)
		}
		view.RoundClosed = closed
		return c.JSON(view)
	})

	r.Get("/ranking", func(c *fiber.Ctx) error {
		round, ranking, err := svc.Dashboard.LiveRanking(c.UserContext(), middleware.MemberFrom(c).GroupID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"active_round": round, "ranking": ranking})
	})

	r.Get("/annual", func(c *fiber.Ctx) error {
		year := svc.Rounds.Today()[:4]
		if q := c.Query("year"); q != "" {
			year = q
		}
		y, err := strconv.Atoi(year)
		if err != nil {
			return badRequest(c, "year must be a number")
		}
		table, err := svc.Annual.Table(c.UserContext(), middleware.MemberFrom(c).GroupID, y)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(table)
	})
}
