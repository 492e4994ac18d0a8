package routes

import (
	"os"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"

	"schoolku_backend/internals/bootstrap"
)

func BaseRoutes(app *fiber.App, c *bootstrap.Container) {
	app.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.SendString("schoolku billing up 🚀")
	})

	app.Get("/health", func(ctx *fiber.Ctx) error {
		dbStatus := "Connected"
		serverStatus := "OK"
		httpStatus := fiber.StatusOK

		sqlDB, err := c.DB.DB()
		if err != nil || sqlDB.PingContext(ctx.UserContext()) != nil {
			dbStatus = "Database connection error"
			serverStatus = "DOWN"
			httpStatus = fiber.StatusServiceUnavailable
		}

		gateways := make([]string, 0, len(c.Payments.Gateways))
		for name := range c.Payments.Gateways {
			gateways = append(gateways, name)
		}
		sort.Strings(gateways)

		return ctx.Status(httpStatus).JSON(fiber.Map{
			"status":         serverStatus,
			"database":       dbStatus,
			"event_bus":      c.Cfg.BusMode,
			"gateways":       gateways,
			"receipt_store":  c.Cfg.ReceiptStorage,
			"server_time":    time.Now().Format(time.RFC3339),
			"uptime_seconds": int(time.Since(startTime).Seconds()),
			"environment":    os.Getenv("RAILWAY_ENVIRONMENT"),
		})
	})
}
