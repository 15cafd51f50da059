package audit

import (
	"github.com/gofiber/fiber/v2"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/audit"
	authmw "github.com/psyphiuk/marcello-whatsapp-pa-web/internal/middlewares/auth"
)

// Wrap records one security event per request with the final status code. It
// runs the handler first so it observes the real outcome, including errors
// the handler surfaced; outer guards that short-circuit never reach it, which
// is fine since their denials are recorded where they happen.
func Wrap(action string, resource string, handler fiber.Handler) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := handler(ctx)

		event := audit.SecurityEvent{
			Action:        action,
			Resource:      resource,
			IP:            ctx.IP(),
			UserAgent:     ctx.Get(fiber.HeaderUserAgent),
			RequestMethod: ctx.Method(),
			RequestPath:   ctx.Path(),
			StatusCode:    ctx.Response().StatusCode(),
		}
		if err != nil {
			event.ErrorMessage = err.Error()
			if e, ok := err.(*fiber.Error); ok {
				event.StatusCode = e.Code
			}
		}
		if identity := authmw.Get(ctx); identity != nil {
			event.CustomerID = identity.Customer.ID
		}
		audit.RecordEvent(ctx.Context(), event)

		return err
	}
}

// New wraps the downstream chain as route middleware.
func New(action string, resource string) fiber.Handler {
	return Wrap(action, resource, func(ctx *fiber.Ctx) error {
		return ctx.Next()
	})
}
