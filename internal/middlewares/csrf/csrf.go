package csrf

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/common"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/store"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/params"
)

var (
	ErrInvalidToken = errors.New("invalid CSRF token")
)

type tokenRecord struct {
	Token     string `redis:"token"`
	ExpiresAt int64  `redis:"expires_at"` // unix milliseconds
}

// Guard issues and validates double-submit tokens. A caller holds at most one
// live token at a time; issuing a new one replaces the previous.
type Guard struct {
	tokens  store.Store[tokenRecord]
	nowFunc func() time.Time
}

func NewGuard(storage store.Storage) *Guard {
	return &Guard{
		tokens:  store.New[tokenRecord](storage, params.CSRFKeyPrefix),
		nowFunc: time.Now,
	}
}

// IssueToken mints a fresh token for the caller identity, overwriting any
// existing one.
func (g *Guard) IssueToken(ctx context.Context, callerID string) (string, error) {
	token := common.RandomToken(params.CSRFTokenLength)
	record := tokenRecord{
		Token:     token,
		ExpiresAt: g.nowFunc().Add(params.CSRFTokenExpiration).UnixMilli(),
	}
	if err := g.tokens.Set(ctx, callerID, record, params.CSRFTokenExpiration); err != nil {
		return "", err
	}
	return token, nil
}

// Validate checks the supplied token against the stored one. Any failure,
// including a storage outage, rejects: admitting a request we cannot verify
// would defeat the guard.
func (g *Guard) Validate(ctx context.Context, callerID string, token string) error {
	if token == "" {
		return ErrInvalidToken
	}
	record, err := g.tokens.Get(ctx, callerID)
	if err != nil {
		return ErrInvalidToken
	}
	if g.nowFunc().UnixMilli() > record.ExpiresAt {
		g.tokens.Delete(ctx, callerID)
		return ErrInvalidToken
	}
	if subtle.ConstantTimeCompare([]byte(record.Token), []byte(token)) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// CallerID derives the token key for a request. Authenticated callers are
// keyed by a digest of their bearer credential so the token survives across
// IPs; anonymous callers fall back to the client address.
func CallerID(ctx *fiber.Ctx) string {
	if auth := ctx.Get(fiber.HeaderAuthorization); auth != "" {
		return common.HashSHA256(auth)
	}
	if ip := ctx.IP(); ip != "" {
		return ip
	}
	return "anonymous"
}

type Config struct {
	// ExcludePaths are path prefixes that skip validation, e.g. webhook
	// callbacks that authenticate with request signatures.
	ExcludePaths []string
}

// Check returns a guard stage rejecting state-changing requests that do not
// echo a valid token in the X-CSRF-Token header. Safe methods pass through.
func Check(guard *Guard, config Config) func(*fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		switch ctx.Method() {
		case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
			return nil
		}
		for _, prefix := range config.ExcludePaths {
			if strings.HasPrefix(ctx.Path(), prefix) {
				return nil
			}
		}
		token := ctx.Get(params.CSRFHeaderName)
		if err := guard.Validate(ctx.Context(), CallerID(ctx), token); err != nil {
			return fiber.ErrForbidden
		}
		return nil
	}
}

// New wraps Check as route middleware.
func New(guard *Guard, config Config) fiber.Handler {
	check := Check(guard, config)
	return func(ctx *fiber.Ctx) error {
		if err := check(ctx); err != nil {
			return err
		}
		return ctx.Next()
	}
}
