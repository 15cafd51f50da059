package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/auth"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/params"
)

const identityLocalsKey = "identity"

// BearerToken extracts the caller credential: the Authorization header when
// present, else the session cookie.
func BearerToken(ctx *fiber.Ctx) string {
	header := ctx.Get(fiber.HeaderAuthorization)
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ctx.Cookies(params.SessionCookieName)
}

// Get returns the identity resolved by an earlier guard, or nil.
func Get(ctx *fiber.Ctx) *auth.Identity {
	identity, _ := ctx.Locals(identityLocalsKey).(*auth.Identity)
	return identity
}

// Check returns a guard stage resolving the bearer credential and storing the
// identity in the request locals. Unresolvable credentials get a 401.
func Check(identities *auth.IdentityService) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		identity, err := identities.Resolve(ctx.Context(), BearerToken(ctx))
		if err != nil {
			return fiber.ErrUnauthorized
		}
		ctx.Locals(identityLocalsKey, identity)
		return nil
	}
}

// CheckMFA rejects customers who enabled MFA but have not passed the
// challenge on this session. Run it after Check.
func CheckMFA() func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		identity := Get(ctx)
		if identity == nil {
			return fiber.ErrUnauthorized
		}
		if identity.Customer.MFAEnabled && !identity.MFAVerified {
			return fiber.NewError(fiber.StatusUnauthorized, "MFA verification required")
		}
		return nil
	}
}

// CheckAdmin resolves the bearer credential and additionally requires the
// admin flag: 401 when unresolvable, 403 when resolved but not admin.
func CheckAdmin(identities *auth.IdentityService) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		identity, err := identities.VerifyAdmin(ctx.Context(), BearerToken(ctx))
		if err == auth.ErrForbidden {
			return fiber.ErrForbidden
		}
		if err != nil {
			return fiber.ErrUnauthorized
		}
		ctx.Locals(identityLocalsKey, identity)
		return nil
	}
}

// New wraps Check as route middleware.
func New(identities *auth.IdentityService) fiber.Handler {
	check := Check(identities)
	return func(ctx *fiber.Ctx) error {
		if err := check(ctx); err != nil {
			return err
		}
		return ctx.Next()
	}
}
