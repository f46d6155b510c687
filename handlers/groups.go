// handlers/groups.go
package handlers

import (
	"habit-league/middleware"
	"habit-league/services"

	"github.com/gofiber/fiber/v2"
)

type joinRequest struct {
	InviteCode string `json:"invite_code"`
	Nickname   string `json:"nickname"`
}

func SetupSessionRoutes(app *fiber.App, svc Services) {
	app.Post("/groups", func(c *fiber.Ctx) error {
		var in services.CreateGroupInput
		if err := c.BodyParser(&in); err != nil {
			return badRequest(c, "invalid request body")
		}
		in.SessionToken = middleware.SessionToken(c)
		membership, err := svc.Groups.CreateGroup(c.UserContext(), in)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(membership)
	})

	app.Post("/groups/join", func(c *fiber.Ctx) error {
		var req joinRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		membership, err := svc.Groups.JoinGroup(c.UserContext(), req.InviteCode, req.Nickname, middleware.SessionToken(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(membership)
	})

	app.Get("/sessions/groups", func(c *fiber.Ctx) error {
		token := middleware.SessionToken(c)
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing " + middleware.SessionHeader})
		}
		profiles, err := svc.Groups.ListSessionGroups(c.UserContext(), token)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"profiles": profiles})
	})
}

func SetupGroupRoutes(r fiber.Router, svc Services) {
	r.Get("/info", func(c *fiber.Ctx) error {
		info, err := svc.Groups.GroupInfo(c.UserContext(), middleware.MemberFrom(c).GroupID)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(info)
	})

	r.Patch("/", func(c *fiber.Ctx) error {
		var patch services.GroupPatch
		if err := c.BodyParser(&patch); err != nil {
			return badRequest(c, "invalid request body")
		}
		group, err := svc.Groups.UpdateGroup(c.UserContext(), *middleware.MemberFrom(c), patch)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(group)
	})

	r.Put("/habits", func(c *fiber.Ctx) error {
		var body struct {
			Habits []services.HabitInput `json:"habits"`
		}
		if err := c.BodyParser(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
		habits, err := svc.Groups.ReplaceHabits(c.UserContext(), *middleware.MemberFrom(c), body.Habits)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"habits": habits})
	})

	r.Post("/leave", func(c *fiber.Ctx) error {
		if err := svc.Groups.LeaveGroup(c.UserContext(), *middleware.MemberFrom(c)); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Delete("/", func(c *fiber.Ctx) error {
		if err := svc.Groups.DeleteGroup(c.UserContext(), *middleware.MemberFrom(c)); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
