package router

import (
	"github.com/ManuelReschke/ContestHub/app/controllers"

	"github.com/gofiber/fiber/v2"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/", controllers.HandleHello)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
