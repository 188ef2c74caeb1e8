package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ContestHub/internal/pkg/env"
)

// HandleHello is the plain-text liveness answer on the root path.
func HandleHello(c *fiber.Ctx) error {
	if env.IsDev() {
		return c.SendString("Hello from ContestHub (dev)")
	}
	return c.SendString("Hello from ContestHub")
}
