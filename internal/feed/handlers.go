package feed

import "github.com/gofiber/fiber/v2"

func RegisterRoutes(r fiber.Router, store *Store) {
	r.Get("/events", func(c *fiber.Ctx) error {
		events, err := store.Events(c.Context(), c.QueryInt("limit", 100))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if events == nil {
			events = []Event{}
		}
		return c.JSON(events)
	})
}
