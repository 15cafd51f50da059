package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/audit"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/config"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/customers"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/middlewares"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/middlewares/csrf"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/sessions"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/store"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/model"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/params"
	"github.com/stretchr/testify/require"
)

// the audit package holds one process-wide repository, so every test in this
// package shares this fake and clears it before use
var testAuditRepo = &fakeAuditRepo{}
var initAuditOnce sync.Once

type fakeAuditRepo struct {
	mu           sync.Mutex
	events       []*model.SecurityEvent
	failedLogins []*model.FailedLogin
}

func (r *fakeAuditRepo) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.failedLogins = nil
}

func (r *fakeAuditRepo) RecordEvent(ctx context.Context, event *model.SecurityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *fakeAuditRepo) RecordAdminAction(ctx context.Context, action *model.AdminAction) error {
	return nil
}

func (r *fakeAuditRepo) RecordFailedLogin(ctx context.Context, attempt *model.FailedLogin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now()
	}
	r.failedLogins = append(r.failedLogins, attempt)
	return nil
}

func (r *fakeAuditRepo) RecentFailedLogins(ctx context.Context, email string, since time.Time) ([]*model.FailedLogin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.FailedLogin
	for i := len(r.failedLogins) - 1; i >= 0; i-- {
		attempt := r.failedLogins[i]
		if attempt.Email == email && !attempt.CreatedAt.Before(since) {
			out = append(out, attempt)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) PurgeBefore(ctx context.Context, eventsBefore time.Time, failedLoginsBefore time.Time) error {
	return nil
}

func (r *fakeAuditRepo) lastAction() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return ""
	}
	return r.events[len(r.events)-1].Action
}

type fakeCustomerService struct {
	customers map[string]*model.Customer
	passwords map[string]string
}

func (s *fakeCustomerService) GetByID(ctx context.Context, id uint) (*model.Customer, error) {
	for _, customer := range s.customers {
		if customer.ID == id {
			return customer, nil
		}
	}
	return nil, customers.ErrCustomerNotFound
}

func (s *fakeCustomerService) Authenticate(ctx context.Context, email string, password string) (*model.Customer, error) {
	customer, ok := s.customers[email]
	if !ok || s.passwords[email] != password {
		return nil, customers.ErrInvalidCredentials
	}
	if customer.Disabled {
		return nil, customers.ErrAccountDisabled
	}
	return customer, nil
}

func (s *fakeCustomerService) CreateCustomer(ctx context.Context, opts customers.CreateCustomerOptions) (*model.Customer, error) {
	return nil, customers.ErrEmailTaken
}

func (s *fakeCustomerService) UpdatePassword(ctx context.Context, customerID uint, newPassword string) error {
	return nil
}

func (s *fakeCustomerService) SetDisabled(ctx context.Context, customerID uint, disabled bool) error {
	return nil
}

type createdCall struct {
	customerID  uint
	mfaVerified bool
}

type fakeSessionService struct {
	created   []createdCall
	destroyed []string
}

func (s *fakeSessionService) Create(ctx context.Context, customerID uint, meta sessions.ClientMeta, mfaVerified bool) (*sessions.CreatedSession, error) {
	s.created = append(s.created, createdCall{customerID: customerID, mfaVerified: mfaVerified})
	return &sessions.CreatedSession{Token: "session-token-1", ExpiresAt: time.Now().Add(params.SessionAbsoluteMaxAge)}, nil
}

func (s *fakeSessionService) Validate(ctx context.Context, token string) (*sessions.Validation, error) {
	return nil, sessions.ErrSessionNotFound
}

func (s *fakeSessionService) Refresh(ctx context.Context, token string) (*sessions.CreatedSession, error) {
	return nil, sessions.ErrSessionNotFound
}

func (s *fakeSessionService) Destroy(ctx context.Context, token string) error {
	s.destroyed = append(s.destroyed, token)
	return nil
}

func (s *fakeSessionService) DestroyAll(ctx context.Context, customerID uint) (int64, error) {
	return 0, nil
}

func (s *fakeSessionService) SetMFAVerified(ctx context.Context, token string, verified bool) error {
	return nil
}

func (s *fakeSessionService) ListForCustomer(ctx context.Context, customerID uint) ([]*model.Session, error) {
	return nil, nil
}

type loginFixture struct {
	app        *fiber.App
	sessionSvc *fakeSessionService
}

func newLoginFixture(t *testing.T) *loginFixture {
	t.Helper()
	initAuditOnce.Do(func() { audit.Initialize(testAuditRepo) })
	testAuditRepo.reset()

	customerSvc := &fakeCustomerService{
		customers: map[string]*model.Customer{
			"owner@example.com":   {ID: 1, Email: "owner@example.com", CompanyName: "Acme"},
			"careful@example.com": {ID: 2, Email: "careful@example.com", MFAEnabled: true},
			"closed@example.com":  {ID: 3, Email: "closed@example.com", Disabled: true},
		},
		passwords: map[string]string{
			"owner@example.com":   "correct-password",
			"careful@example.com": "correct-password",
			"closed@example.com":  "correct-password",
		},
	}
	sessionSvc := &fakeSessionService{}
	handler := NewAuthHandler(customerSvc, sessionSvc, csrf.NewGuard(store.NewMemoryStorage()), config.SessionConfig{
		CookieName:     params.SessionCookieName,
		CookieHttpOnly: true,
	})

	app := fiber.New(fiber.Config{ErrorHandler: middlewares.ErrorHandler})
	app.Post("/api/auth/login", handler.PostLogin)
	app.Get("/api/csrf-token", handler.GetCSRFToken)
	return &loginFixture{app: app, sessionSvc: sessionSvc}
}

func postLogin(t *testing.T, app *fiber.App, email string, password string) *http.Response {
	t.Helper()
	payload, err := json.Marshal(fiber.Map{"email": email, "password": password})
	require.NoError(t, err)
	req := httptest.NewRequest(fiber.MethodPost, "/api/auth/login", bytes.NewReader(payload))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == params.SessionCookieName {
			return cookie
		}
	}
	return nil
}

func TestPostLogin(t *testing.T) {
	t.Run("valid credentials mint a session", func(t *testing.T) {
		f := newLoginFixture(t)
		resp := postLogin(t, f.app, "owner@example.com", "correct-password")
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		body := decodeResponse(t, resp)
		data := body["data"].(map[string]any)
		require.Equal(t, "session-token-1", data["token"])
		require.Equal(t, false, data["mfaRequired"])

		cookie := sessionCookie(resp)
		require.NotNil(t, cookie)
		require.Equal(t, "session-token-1", cookie.Value)
		require.True(t, cookie.HttpOnly)

		require.Equal(t, []createdCall{{customerID: 1, mfaVerified: true}}, f.sessionSvc.created)
		require.Equal(t, audit.ActionLoginSuccess, testAuditRepo.lastAction())
	})

	t.Run("mfa accounts start unverified", func(t *testing.T) {
		f := newLoginFixture(t)
		resp := postLogin(t, f.app, "careful@example.com", "correct-password")
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		body := decodeResponse(t, resp)
		data := body["data"].(map[string]any)
		require.Equal(t, true, data["mfaRequired"])
		require.Equal(t, []createdCall{{customerID: 2, mfaVerified: false}}, f.sessionSvc.created)
	})

	t.Run("missing parameters", func(t *testing.T) {
		f := newLoginFixture(t)
		resp := postLogin(t, f.app, "owner@example.com", "")
		require.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		require.Empty(t, f.sessionSvc.created)
	})

	t.Run("wrong password answers generically", func(t *testing.T) {
		f := newLoginFixture(t)
		resp := postLogin(t, f.app, "owner@example.com", "wrong-password")
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

		body := decodeResponse(t, resp)
		require.Equal(t, "authentication required", body["error"])
		require.Equal(t, audit.ActionLoginFailure, testAuditRepo.lastAction())
	})

	t.Run("disabled accounts answer like bad credentials", func(t *testing.T) {
		f := newLoginFixture(t)
		resp := postLogin(t, f.app, "closed@example.com", "correct-password")
		require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

		body := decodeResponse(t, resp)
		require.Equal(t, "authentication required", body["error"])
		require.Empty(t, f.sessionSvc.created)
	})

	t.Run("repeated failures lock the account", func(t *testing.T) {
		f := newLoginFixture(t)
		for i := 0; i < params.LockoutMaxAttempts; i++ {
			resp := postLogin(t, f.app, "owner@example.com", "wrong-password")
			require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		}

		// even the correct password is refused while locked
		resp := postLogin(t, f.app, "owner@example.com", "correct-password")
		require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
		require.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))
		require.Empty(t, f.sessionSvc.created)
	})

	t.Run("lockout is scoped to the email", func(t *testing.T) {
		f := newLoginFixture(t)
		for i := 0; i < params.LockoutMaxAttempts; i++ {
			postLogin(t, f.app, "owner@example.com", "wrong-password")
		}

		resp := postLogin(t, f.app, "careful@example.com", "correct-password")
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
	})
}

func TestGetCSRFToken(t *testing.T) {
	f := newLoginFixture(t)
	resp, err := f.app.Test(httptest.NewRequest(fiber.MethodGet, "/api/csrf-token", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeResponse(t, resp)
	data := body["data"].(map[string]any)
	token, _ := data["token"].(string)
	require.Len(t, token, params.CSRFTokenLength*2)

	var mirrored *http.Cookie
	for _, cookie := range resp.Cookies() {
		if cookie.Name == params.CSRFCookieName {
			mirrored = cookie
		}
	}
	require.NotNil(t, mirrored)
	require.Equal(t, token, mirrored.Value)
	require.True(t, mirrored.HttpOnly)
}
