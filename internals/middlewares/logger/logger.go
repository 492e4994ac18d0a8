package logger

import (
	"io"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/google/uuid"

	"schoolku_backend/internals/middlewares/guard"
)

const accessFormat = "[${time}] ${reqid} ${ip} - ${method} ${path} - ${status} - ${latency} school=${school} actor=${actor}\n"

// LoggerMiddleware mencatat request ke stdout.
func LoggerMiddleware() fiber.Handler {
	return New(os.Stdout)
}

// New menulis access log ke out. school diambil dari guard (path :school_id),
// actor dari principal JWT; "-" bila tidak ada.
func New(out io.Writer) fiber.Handler {
	return logger.New(logger.Config{
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/health"
		},
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Asia/Jakarta",
		Format:     accessFormat,
		Output:     out,
		CustomTags: map[string]logger.LogFunc{
			"reqid": func(o logger.Buffer, c *fiber.Ctx, _ *logger.Data, _ string) (int, error) {
				if id, ok := c.Locals("reqid").(string); ok && id != "" {
					return o.WriteString(id)
				}
				return o.WriteString("-")
			},
			"school": func(o logger.Buffer, c *fiber.Ctx, _ *logger.Data, _ string) (int, error) {
				if sid := guard.SchoolID(c); sid != uuid.Nil {
					return o.WriteString(sid.String())
				}
				return o.WriteString("-")
			},
			"actor": func(o logger.Buffer, c *fiber.Ctx, _ *logger.Data, _ string) (int, error) {
				if uid := guard.FromContext(c.UserContext()).ActorID(); uid != nil {
					return o.WriteString(uid.String())
				}
				return o.WriteString("-")
			},
		},
	})
}
