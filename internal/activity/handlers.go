package activity

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"backend-runlink/internal/filter"
	"backend-runlink/internal/session"
)

type stopRequest struct {
	CreatedOffline bool `json:"createdOffline"`
}

func RegisterRoutes(r fiber.Router, mgr *Manager, authMiddleware fiber.Handler) {
	r.Post("/sessions", authMiddleware, func(c *fiber.Ctx) error {
		snap, err := mgr.StartSession(runnerID(c))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(snap)
	})

	r.Post("/sessions/:id/fixes", authMiddleware, func(c *fiber.Ctx) error {
		var raw filter.RawFix
		if err := c.BodyParser(&raw); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if err := mgr.AddFix(c.Params("id"), runnerID(c), raw); err != nil {
			return mapErr(err)
		}
		// Implausible or out-of-state fixes are dropped, not rejected.
		return c.SendStatus(fiber.StatusAccepted)
	})

	r.Post("/sessions/:id/pause", authMiddleware, func(c *fiber.Ctx) error {
		if err := mgr.Pause(c.Params("id"), runnerID(c)); err != nil {
			return mapErr(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/sessions/:id/resume", authMiddleware, func(c *fiber.Ctx) error {
		if err := mgr.Resume(c.Params("id"), runnerID(c)); err != nil {
			return mapErr(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/sessions/:id/stop", authMiddleware, func(c *fiber.Ctx) error {
		var req stopRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
		}
		rec, err := mgr.Stop(c.Context(), c.Params("id"), runnerID(c), req.CreatedOffline)
		if err != nil {
			return mapErr(err)
		}
		return c.JSON(rec)
	})

	r.Get("/sessions/:id", func(c *fiber.Ctx) error {
		snap, err := mgr.Snapshot(c.Params("id"))
		if err != nil {
			return mapErr(err)
		}
		return c.JSON(snap)
	})

	r.Post("/sync", authMiddleware, func(c *fiber.Ctx) error {
		report, err := mgr.Sync(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(report)
	})

	r.Get("/queue", authMiddleware, func(c *fiber.Ctx) error {
		entries, err := mgr.Pending(c.Context())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(entries)
	})
}

func runnerID(c *fiber.Ctx) string {
	id, _ := c.Locals("runner_id").(string)
	return id
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrNotOwner):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	case errors.Is(err, session.ErrInvalidTransition):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
