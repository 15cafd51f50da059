package api

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/audit"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/config"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/customers"
	authmw "github.com/psyphiuk/marcello-whatsapp-pa-web/internal/middlewares/auth"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/middlewares/csrf"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/sessions"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/model"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/params"
)

type AuthHandler struct {
	customerService CustomerService
	sessionService  SessionService
	csrfGuard       *csrf.Guard
	cookieConfig    config.SessionConfig
}

func NewAuthHandler(customerService CustomerService, sessionService SessionService, csrfGuard *csrf.Guard, cookieConfig config.SessionConfig) *AuthHandler {
	return &AuthHandler{
		customerService: customerService,
		sessionService:  sessionService,
		csrfGuard:       csrfGuard,
		cookieConfig:    cookieConfig,
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token       string               `json:"token"`
	ExpiresAt   time.Time            `json:"expiresAt"`
	MFARequired bool                 `json:"mfaRequired"`
	Customer    customerInfoResponse `json:"customer"`
}

func clientMeta(ctx *fiber.Ctx) sessions.ClientMeta {
	return sessions.ClientMeta{IP: ctx.IP(), UserAgent: ctx.Get(fiber.HeaderUserAgent)}
}

// PostLogin authenticates an email/password pair and mints a session. When
// the account has MFA enabled the session starts unverified and the client
// must pass the challenge before reaching MFA-gated routes.
func (h *AuthHandler) PostLogin(ctx *fiber.Ctx) error {
	var req loginRequest
	if err := ctx.BodyParser(&req); err != nil || req.Email == "" || req.Password == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse(fiber.StatusBadRequest, "Missing required parameters"),
		)
	}

	if lockout := audit.CheckLockout(ctx.Context(), req.Email); lockout.Locked {
		audit.RecordFailedLogin(ctx.Context(), audit.FailedLoginRecord{
			Email:     req.Email,
			IP:        ctx.IP(),
			UserAgent: ctx.Get(fiber.HeaderUserAgent),
			ErrorType: model.LoginErrTooManyAttempts,
		})
		ctx.Set(fiber.HeaderRetryAfter, strconv.Itoa(lockout.RemainingSeconds))
		return fiber.ErrTooManyRequests
	}

	customer, err := h.customerService.Authenticate(ctx.Context(), req.Email, req.Password)
	if err != nil {
		errorType := model.LoginErrInvalidCredentials
		if errors.Is(err, customers.ErrAccountDisabled) {
			errorType = model.LoginErrAccountDisabled
		} else if !errors.Is(err, customers.ErrInvalidCredentials) {
			slog.Error("Login failed", "error", err)
			return fiber.ErrInternalServerError
		}
		audit.RecordFailedLogin(ctx.Context(), audit.FailedLoginRecord{
			Email:     req.Email,
			IP:        ctx.IP(),
			UserAgent: ctx.Get(fiber.HeaderUserAgent),
			ErrorType: errorType,
		})
		audit.RecordEvent(ctx.Context(), audit.SecurityEvent{
			Action:    audit.ActionLoginFailure,
			Resource:  "authentication",
			IP:        ctx.IP(),
			UserAgent: ctx.Get(fiber.HeaderUserAgent),
			Metadata:  map[string]any{"error_type": errorType},
		})
		// disabled accounts answer like bad credentials to avoid probing
		return fiber.ErrUnauthorized
	}

	session, err := h.sessionService.Create(ctx.Context(), customer.ID, clientMeta(ctx), !customer.MFAEnabled)
	if err != nil {
		slog.Error("Failed to create session", "customer", customer.ID, "error", err)
		return fiber.ErrInternalServerError
	}

	audit.RecordEvent(ctx.Context(), audit.SecurityEvent{
		CustomerID: customer.ID,
		Action:     audit.ActionLoginSuccess,
		Resource:   "authentication",
		IP:         ctx.IP(),
		UserAgent:  ctx.Get(fiber.HeaderUserAgent),
	})

	h.setSessionCookie(ctx, session.Token, session.ExpiresAt)
	return ctx.JSON(NewDataResponse(sessionResponse{
		Token:       session.Token,
		ExpiresAt:   session.ExpiresAt,
		MFARequired: customer.MFAEnabled,
		Customer:    newCustomerInfo(customer),
	}))
}

// PostLogout destroys the caller's session. Requires the session guard.
func (h *AuthHandler) PostLogout(ctx *fiber.Ctx) error {
	identity := authmw.Get(ctx)
	if identity == nil || identity.Session == "" {
		return fiber.ErrUnauthorized
	}
	if err := h.sessionService.Destroy(ctx.Context(), identity.Session); err != nil && !errors.Is(err, sessions.ErrSessionNotFound) {
		slog.Error("Failed to destroy session", "customer", identity.Customer.ID, "error", err)
		return fiber.ErrInternalServerError
	}

	audit.RecordEvent(ctx.Context(), audit.SecurityEvent{
		CustomerID: identity.Customer.ID,
		Action:     audit.ActionLogout,
		Resource:   "authentication",
		IP:         ctx.IP(),
		UserAgent:  ctx.Get(fiber.HeaderUserAgent),
	})

	h.clearSessionCookie(ctx)
	return ctx.JSON(NewDataResponse(fiber.Map{"success": true}))
}

// PostRefresh rotates the caller's session token, granting a fresh absolute
// expiry. The previous token is dead once this returns.
func (h *AuthHandler) PostRefresh(ctx *fiber.Ctx) error {
	identity := authmw.Get(ctx)
	if identity == nil || identity.Session == "" {
		return fiber.ErrUnauthorized
	}
	session, err := h.sessionService.Refresh(ctx.Context(), identity.Session)
	if err != nil {
		return fiber.ErrUnauthorized
	}

	audit.RecordEvent(ctx.Context(), audit.SecurityEvent{
		CustomerID: identity.Customer.ID,
		Action:     audit.ActionSessionRefresh,
		Resource:   "session",
		IP:         ctx.IP(),
		UserAgent:  ctx.Get(fiber.HeaderUserAgent),
	})

	h.setSessionCookie(ctx, session.Token, session.ExpiresAt)
	return ctx.JSON(NewDataResponse(fiber.Map{
		"token":     session.Token,
		"expiresAt": session.ExpiresAt,
	}))
}

// GetSession reports the caller's session state, including whether the token
// is close enough to expiry to warrant a refresh.
func (h *AuthHandler) GetSession(ctx *fiber.Ctx) error {
	identity := authmw.Get(ctx)
	if identity == nil {
		return fiber.ErrUnauthorized
	}
	response := fiber.Map{
		"customer":    newCustomerInfo(identity.Customer),
		"mfaVerified": identity.MFAVerified,
	}
	if identity.Session != "" {
		validation, err := h.sessionService.Validate(ctx.Context(), identity.Session)
		if err != nil {
			return fiber.ErrUnauthorized
		}
		response["needsRefresh"] = validation.NeedsRefresh
		response["remainingMin"] = validation.RemainingMin
	}
	return ctx.JSON(NewDataResponse(response))
}

// GetCSRFToken issues a fresh anti-forgery token for the caller, replacing
// any previous one, and mirrors it into a cookie for the double-submit check.
func (h *AuthHandler) GetCSRFToken(ctx *fiber.Ctx) error {
	token, err := h.csrfGuard.IssueToken(ctx.Context(), csrf.CallerID(ctx))
	if err != nil {
		slog.Error("Failed to issue CSRF token", "error", err)
		return fiber.ErrInternalServerError
	}
	ctx.Cookie(&fiber.Cookie{
		Name:     params.CSRFCookieName,
		Value:    token,
		HTTPOnly: true,
		Secure:   h.cookieConfig.CookieSecure,
		SameSite: fiber.CookieSameSiteStrictMode,
		Expires:  time.Now().Add(params.CSRFTokenExpiration),
		Path:     "/",
	})
	return ctx.JSON(NewDataResponse(fiber.Map{"token": token}))
}

func (h *AuthHandler) setSessionCookie(ctx *fiber.Ctx, token string, expiresAt time.Time) {
	ctx.Cookie(&fiber.Cookie{
		Name:     h.cookieConfig.CookieName,
		Value:    token,
		HTTPOnly: h.cookieConfig.CookieHttpOnly,
		Secure:   h.cookieConfig.CookieSecure,
		SameSite: fiber.CookieSameSiteStrictMode,
		Expires:  expiresAt,
		Path:     "/",
	})
}

func (h *AuthHandler) clearSessionCookie(ctx *fiber.Ctx) {
	ctx.Cookie(&fiber.Cookie{
		Name:     h.cookieConfig.CookieName,
		Value:    "",
		HTTPOnly: h.cookieConfig.CookieHttpOnly,
		Secure:   h.cookieConfig.CookieSecure,
		SameSite: fiber.CookieSameSiteStrictMode,
		Expires:  time.Unix(0, 0),
		Path:     "/",
	})
}
