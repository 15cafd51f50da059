package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/store"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/params"
)

// Class selects which limit applies to a request.
type Class string

const (
	ClassAuth    Class = "auth"
	ClassAPI     Class = "api"
	ClassAdmin   Class = "admin"
	ClassPayment Class = "payment"
	ClassWebhook Class = "webhook"
)

type Config struct {
	Requests int
	Window   time.Duration
}

// DefaultConfigs are the per-class limits, all on one-minute windows.
var DefaultConfigs = map[Class]Config{
	ClassAuth:    {Requests: 5, Window: time.Minute},
	ClassAPI:     {Requests: 30, Window: time.Minute},
	ClassAdmin:   {Requests: 60, Window: time.Minute},
	ClassPayment: {Requests: 3, Window: time.Minute},
	ClassWebhook: {Requests: 100, Window: time.Minute},
}

type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter counts requests per (identifier, class) in fixed windows whose start
// resets lazily on the first request after expiry. When the shared store
// errors the limiter falls back to process-local memory, and if that fails too
// the request is allowed: a counter outage must never block traffic.
type Limiter struct {
	storage  store.Storage
	fallback store.Storage
	configs  map[Class]Config
	nowFunc  func() time.Time
}

func NewLimiter(storage store.Storage) *Limiter {
	return &Limiter{
		storage:  store.StorageWithPrefix(storage, params.RateLimitKeyPrefix),
		fallback: store.StorageWithPrefix(store.NewMemoryStorage(), params.RateLimitKeyPrefix),
		configs:  DefaultConfigs,
		nowFunc:  time.Now,
	}
}

// Limit records one request for the identifier and reports whether it is
// allowed under the class limit.
func (l *Limiter) Limit(ctx context.Context, identifier string, class Class) Result {
	config, ok := l.configs[class]
	if !ok {
		config = l.configs[ClassAPI]
	}

	result, err := l.limitOn(ctx, l.storage, identifier, class, config, true)
	if err == nil {
		return result
	}
	slog.Warn("Rate limit store unavailable, using in-memory fallback", "class", class, "error", err)

	result, err = l.limitOn(ctx, l.fallback, identifier, class, config, true)
	if err != nil {
		slog.Warn("Rate limit fallback failed, allowing request", "class", class, "error", err)
		return Result{Allowed: true, Limit: config.Requests, Remaining: config.Requests, ResetAt: l.nowFunc().Add(config.Window)}
	}
	return result
}

func (l *Limiter) limitOn(ctx context.Context, storage store.Storage, identifier string, class Class, config Config, retry bool) (Result, error) {
	now := l.nowFunc()
	key := string(class) + ":" + identifier

	count, err := storage.IncrAttr(ctx, key, "count", 1)
	if err != nil {
		return Result{}, err
	}

	if count == 1 {
		// first request opens a new window
		resetAt := now.Add(config.Window)
		if err := storage.SetAttr(ctx, key, "reset_at", resetAt.UnixMilli()); err != nil {
			return Result{}, err
		}
		if err := storage.Expire(ctx, key, resetAt); err != nil {
			return Result{}, err
		}
		return Result{Allowed: true, Limit: config.Requests, Remaining: config.Requests - 1, ResetAt: resetAt}, nil
	}

	var resetMilli int64
	if err := storage.GetAttr(ctx, key, "reset_at", &resetMilli); err != nil {
		if err != store.ErrNotFound {
			return Result{}, err
		}
		// counter exists without a window marker, treat as freshly opened
		resetMilli = now.Add(config.Window).UnixMilli()
		if err := storage.SetAttr(ctx, key, "reset_at", resetMilli); err != nil {
			return Result{}, err
		}
	}
	resetAt := time.UnixMilli(resetMilli)

	if now.After(resetAt) {
		// window expired but the key survived, reset and count again
		if err := storage.Delete(ctx, key); err != nil && err != store.ErrNotFound {
			return Result{}, err
		}
		if retry {
			return l.limitOn(ctx, storage, identifier, class, config, false)
		}
		return Result{Allowed: true, Limit: config.Requests, Remaining: config.Requests - 1, ResetAt: now.Add(config.Window)}, nil
	}

	if count > int64(config.Requests) {
		return Result{Allowed: false, Limit: config.Requests, Remaining: 0, ResetAt: resetAt}, nil
	}
	return Result{Allowed: true, Limit: config.Requests, Remaining: config.Requests - int(count), ResetAt: resetAt}, nil
}
