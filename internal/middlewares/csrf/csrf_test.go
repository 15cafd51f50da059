package csrf

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/common"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/store"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/params"
	"github.com/stretchr/testify/require"
)

var errStorageDown = errors.New("storage down")

type brokenStorage struct{}

func (brokenStorage) Get(ctx context.Context, key string, val any) error { return errStorageDown }
func (brokenStorage) Set(ctx context.Context, key string, val any, expiresIn time.Duration) error {
	return errStorageDown
}
func (brokenStorage) Save(ctx context.Context, key string, val any) error { return errStorageDown }
func (brokenStorage) Delete(ctx context.Context, key string) error        { return errStorageDown }
func (brokenStorage) Expire(ctx context.Context, key string, expiresAt time.Time) error {
	return errStorageDown
}
func (brokenStorage) SetAttr(ctx context.Context, key string, field string, val any) error {
	return errStorageDown
}
func (brokenStorage) GetAttr(ctx context.Context, key, field string, val any) error {
	return errStorageDown
}
func (brokenStorage) IncrAttr(ctx context.Context, key, field string, delta int64) (int64, error) {
	return 0, errStorageDown
}
func (brokenStorage) DelAttr(ctx context.Context, key string, field string) error {
	return errStorageDown
}

// newTestGuard anchors the fake clock to the real clock because the memory
// storage expires entries against time.Now.
func newTestGuard() (*Guard, *time.Time) {
	guard := NewGuard(store.NewMemoryStorage())
	now := time.Now()
	guard.nowFunc = func() time.Time { return now }
	return guard, &now
}

func TestGuard(t *testing.T) {
	ctx := context.Background()

	t.Run("issue and validate", func(t *testing.T) {
		guard, _ := newTestGuard()
		token, err := guard.IssueToken(ctx, "caller-a")
		require.NoError(t, err)
		require.Len(t, token, params.CSRFTokenLength*2)

		require.NoError(t, guard.Validate(ctx, "caller-a", token))
		// the token is not consumed by validation
		require.NoError(t, guard.Validate(ctx, "caller-a", token))
	})

	t.Run("wrong token rejected", func(t *testing.T) {
		guard, _ := newTestGuard()
		_, err := guard.IssueToken(ctx, "caller-a")
		require.NoError(t, err)

		require.ErrorIs(t, guard.Validate(ctx, "caller-a", "bogus"), ErrInvalidToken)
		require.ErrorIs(t, guard.Validate(ctx, "caller-a", ""), ErrInvalidToken)
	})

	t.Run("tokens are per caller", func(t *testing.T) {
		guard, _ := newTestGuard()
		tokenA, err := guard.IssueToken(ctx, "caller-a")
		require.NoError(t, err)

		require.ErrorIs(t, guard.Validate(ctx, "caller-b", tokenA), ErrInvalidToken)
	})

	t.Run("reissue replaces the previous token", func(t *testing.T) {
		guard, _ := newTestGuard()
		first, err := guard.IssueToken(ctx, "caller-a")
		require.NoError(t, err)
		second, err := guard.IssueToken(ctx, "caller-a")
		require.NoError(t, err)
		require.NotEqual(t, first, second)

		require.ErrorIs(t, guard.Validate(ctx, "caller-a", first), ErrInvalidToken)
		require.NoError(t, guard.Validate(ctx, "caller-a", second))
	})

	t.Run("expired token rejected", func(t *testing.T) {
		guard, now := newTestGuard()
		token, err := guard.IssueToken(ctx, "caller-a")
		require.NoError(t, err)

		*now = now.Add(params.CSRFTokenExpiration + time.Second)
		require.ErrorIs(t, guard.Validate(ctx, "caller-a", token), ErrInvalidToken)
	})

	t.Run("storage outage fails closed", func(t *testing.T) {
		guard := NewGuard(brokenStorage{})
		_, err := guard.IssueToken(ctx, "caller-a")
		require.Error(t, err)
		require.ErrorIs(t, guard.Validate(ctx, "caller-a", "whatever"), ErrInvalidToken)
	})
}

func newTestApp(guard *Guard, config Config) *fiber.App {
	app := fiber.New()
	handler := func(ctx *fiber.Ctx) error { return ctx.SendStatus(fiber.StatusOK) }
	app.Get("/api/session", New(guard, config), handler)
	app.Post("/api/auth/login", New(guard, config), handler)
	app.Post("/api/webhooks/stripe", New(guard, config), handler)
	return app
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	config := Config{ExcludePaths: []string{"/api/webhooks/"}}

	t.Run("safe methods pass without a token", func(t *testing.T) {
		guard, _ := newTestGuard()
		app := newTestApp(guard, config)

		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/session", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("mutation without a token is forbidden", func(t *testing.T) {
		guard, _ := newTestGuard()
		app := newTestApp(guard, config)

		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/api/auth/login", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("mutation with the issued token passes", func(t *testing.T) {
		guard, _ := newTestGuard()
		app := newTestApp(guard, config)

		// authenticated callers are keyed by the digest of their credential
		token, err := guard.IssueToken(ctx, common.HashSHA256("Bearer abc123"))
		require.NoError(t, err)

		req := httptest.NewRequest(fiber.MethodPost, "/api/auth/login", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer abc123")
		req.Header.Set(params.CSRFHeaderName, token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("token does not transfer to another credential", func(t *testing.T) {
		guard, _ := newTestGuard()
		app := newTestApp(guard, config)

		token, err := guard.IssueToken(ctx, common.HashSHA256("Bearer abc123"))
		require.NoError(t, err)

		req := httptest.NewRequest(fiber.MethodPost, "/api/auth/login", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer other")
		req.Header.Set(params.CSRFHeaderName, token)
		resp, err := app.Test(req)
		require.NoError(t, err)
		require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("excluded prefixes skip validation", func(t *testing.T) {
		guard, _ := newTestGuard()
		app := newTestApp(guard, config)

		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/api/webhooks/stripe", nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	})
}
