// handlers/disputes.go
package handlers

import (
	"habit-league/middleware"
	"habit-league/models"
	"habit-league/services"

	"github.com/gofiber/fiber/v2"
)

type textRequest struct {
	Text string `json:"text"`
}

func SetupDisputeRoutes(r fiber.Router, svc Services) {
	r.Post("/completions/:id/disputes", func(c *fiber.Ctx) error {
		var req textRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		d, err := svc.Disputes.Object(c.UserContext(), c.Params("id"), middleware.MemberFrom(c).ID, req.Text)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(d)
	})

	r.Get("/disputes/:id", func(c *fiber.Ctx) error {
		d, err := svc.Disputes.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		if !disputeInGroup(d, middleware.MemberFrom(c).GroupID) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "dispute not found"})
		}
		return c.JSON(disputeView(d))
	})

	r.Post("/disputes/:id/defense", func(c *fiber.Ctx) error {
		var req textRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		d, err := svc.Disputes.Defend(c.UserContext(), c.Params("id"), middleware.MemberFrom(c).ID, req.Text)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(disputeView(d))
	})

	r.Post("/disputes/:id/resolution", func(c *fiber.Ctx) error {
		var req struct {
			Resolution string `json:"resolution"`
		}
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
		d, err := svc.Disputes.Resolve(c.UserContext(), c.Params("id"), middleware.MemberFrom(c).ID, req.Resolution)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(disputeView(d))
	})
}

func disputeView(d *models.Dispute) fiber.Map {
	return fiber.Map{"dispute": d, "state": services.StateOf(d)}
}

func disputeInGroup(d *models.Dispute, groupID string) bool {
	return d.Completion != nil && d.Completion.Member != nil && d.Completion.Member.GroupID == groupID
}
