package middlewares

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

// genericMessages keeps response bodies non-revealing: clients learn the
// status class, never which internal check produced it.
var genericMessages = map[int]string{
	fiber.StatusBadRequest:      "invalid request",
	fiber.StatusUnauthorized:    "authentication required",
	fiber.StatusForbidden:       "forbidden",
	fiber.StatusNotFound:        "not found",
	fiber.StatusTooManyRequests: "too many requests",
}

func ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := ""
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	if generic, ok := genericMessages[code]; ok {
		// handler-supplied messages pass through only for auth responses the
		// client must act on, e.g. an MFA challenge prompt
		if message == "" || message == statusDefaultMessage(code) {
			message = generic
		}
	} else {
		slog.Error("Unhandled error", "path", ctx.Path(), "code", code, "error", err)
		code = fiber.StatusInternalServerError
		message = "internal server error"
	}

	ctx.Set(fiber.HeaderXContentTypeOptions, "nosniff")
	ctx.Set("X-Frame-Options", "DENY")
	ctx.Set(fiber.HeaderCacheControl, "no-store")
	return ctx.Status(code).JSON(fiber.Map{"error": message})
}

func statusDefaultMessage(code int) string {
	return fiber.NewError(code).Message
}
