package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/customers"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/sessions"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/model"
	"github.com/stretchr/testify/require"
)

type fakeCustomerRepo struct {
	customers map[uint]*model.Customer
}

func (r *fakeCustomerRepo) GetByID(ctx context.Context, id uint) (*model.Customer, error) {
	customer, ok := r.customers[id]
	if !ok {
		return nil, customers.ErrCustomerNotFound
	}
	copied := *customer
	return &copied, nil
}

func (r *fakeCustomerRepo) GetByEmail(ctx context.Context, email string) (*model.Customer, error) {
	for _, customer := range r.customers {
		if customer.Email == email {
			copied := *customer
			return &copied, nil
		}
	}
	return nil, customers.ErrCustomerNotFound
}

func (r *fakeCustomerRepo) Create(ctx context.Context, customer *model.Customer) error {
	r.customers[customer.ID] = customer
	return nil
}

func (r *fakeCustomerRepo) Updates(ctx context.Context, id uint, columns map[string]interface{}) error {
	return nil
}

type fakeSessionRepo struct {
	sessions map[string]*model.Session
}

func (r *fakeSessionRepo) Create(ctx context.Context, session *model.Session) error {
	copied := *session
	r.sessions[session.Token] = &copied
	return nil
}

func (r *fakeSessionRepo) GetByToken(ctx context.Context, token string) (*model.Session, error) {
	session, ok := r.sessions[token]
	if !ok {
		return nil, sessions.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (r *fakeSessionRepo) TouchActivity(ctx context.Context, token string, at time.Time) error {
	if session, ok := r.sessions[token]; ok {
		session.LastActivity = at
	}
	return nil
}

func (r *fakeSessionRepo) Rotate(ctx context.Context, oldToken string, newToken string, expiresAt time.Time, at time.Time) (bool, error) {
	session, ok := r.sessions[oldToken]
	if !ok {
		return false, nil
	}
	delete(r.sessions, oldToken)
	session.Token = newToken
	session.ExpiresAt = expiresAt
	session.LastActivity = at
	r.sessions[newToken] = session
	return true, nil
}

func (r *fakeSessionRepo) SetMFAVerified(ctx context.Context, token string, verified bool) error {
	if session, ok := r.sessions[token]; ok {
		session.MFAVerified = verified
	}
	return nil
}

func (r *fakeSessionRepo) DeleteByToken(ctx context.Context, token string) error {
	if _, ok := r.sessions[token]; !ok {
		return sessions.ErrSessionNotFound
	}
	delete(r.sessions, token)
	return nil
}

func (r *fakeSessionRepo) DeleteByCustomer(ctx context.Context, customerID uint) (int64, error) {
	var deleted int64
	for token, session := range r.sessions {
		if session.CustomerID == customerID {
			delete(r.sessions, token)
			deleted++
		}
	}
	return deleted, nil
}

func (r *fakeSessionRepo) ListByCustomer(ctx context.Context, customerID uint) ([]*model.Session, error) {
	var out []*model.Session
	for _, session := range r.sessions {
		if session.CustomerID == customerID {
			copied := *session
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) DeleteExpiredBefore(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

func newTestIdentityService() (*IdentityService, *sessions.SessionService) {
	customerRepo := &fakeCustomerRepo{customers: map[uint]*model.Customer{
		1: {ID: 1, Email: "owner@example.com"},
		2: {ID: 2, Email: "root@example.com", IsAdmin: true},
	}}
	sessionSvc := sessions.NewSessionService(&fakeSessionRepo{sessions: make(map[string]*model.Session)})
	return NewIdentityService("test-master-key", sessionSvc, customerRepo), sessionSvc
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	meta := sessions.ClientMeta{IP: "1.2.3.4", UserAgent: "test-agent"}

	t.Run("empty bearer", func(t *testing.T) {
		service, _ := newTestIdentityService()
		_, err := service.Resolve(ctx, "")
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("garbage bearer", func(t *testing.T) {
		service, _ := newTestIdentityService()
		_, err := service.Resolve(ctx, "not-a-token")
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("session token", func(t *testing.T) {
		service, sessionSvc := newTestIdentityService()
		created, err := sessionSvc.Create(ctx, 1, meta, true)
		require.NoError(t, err)

		identity, err := service.Resolve(ctx, created.Token)
		require.NoError(t, err)
		require.Equal(t, uint(1), identity.Customer.ID)
		require.True(t, identity.MFAVerified)
		require.Equal(t, created.Token, identity.Session)
	})

	t.Run("session mfa state carries over", func(t *testing.T) {
		service, sessionSvc := newTestIdentityService()
		created, err := sessionSvc.Create(ctx, 1, meta, false)
		require.NoError(t, err)

		identity, err := service.Resolve(ctx, created.Token)
		require.NoError(t, err)
		require.False(t, identity.MFAVerified)
	})

	t.Run("signed access token", func(t *testing.T) {
		service, _ := newTestIdentityService()
		token, err := service.MintAccessToken(1, time.Hour)
		require.NoError(t, err)

		identity, err := service.Resolve(ctx, token)
		require.NoError(t, err)
		require.Equal(t, uint(1), identity.Customer.ID)
		require.False(t, identity.MFAVerified, "signed tokens never count as MFA verified")
		require.Empty(t, identity.Session)
	})

	t.Run("expired access token", func(t *testing.T) {
		service, _ := newTestIdentityService()
		token, err := service.MintAccessToken(1, -time.Minute)
		require.NoError(t, err)

		_, err = service.Resolve(ctx, token)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("token signed with another key", func(t *testing.T) {
		service, _ := newTestIdentityService()
		claims := jwt.RegisteredClaims{
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-key"))
		require.NoError(t, err)

		_, err = service.Resolve(ctx, forged)
		require.ErrorIs(t, err, ErrUnauthorized)
	})

	t.Run("token for a deleted customer", func(t *testing.T) {
		service, _ := newTestIdentityService()
		token, err := service.MintAccessToken(42, time.Hour)
		require.NoError(t, err)

		_, err = service.Resolve(ctx, token)
		require.ErrorIs(t, err, ErrUnauthorized)
	})
}

func TestVerifyAdmin(t *testing.T) {
	ctx := context.Background()

	service, sessionSvc := newTestIdentityService()
	meta := sessions.ClientMeta{IP: "1.2.3.4", UserAgent: "test-agent"}

	userSession, err := sessionSvc.Create(ctx, 1, meta, true)
	require.NoError(t, err)
	adminSession, err := sessionSvc.Create(ctx, 2, meta, true)
	require.NoError(t, err)

	_, err = service.VerifyAdmin(ctx, userSession.Token)
	require.ErrorIs(t, err, ErrForbidden)

	identity, err := service.VerifyAdmin(ctx, adminSession.Token)
	require.NoError(t, err)
	require.True(t, identity.Customer.IsAdmin)

	_, err = service.VerifyAdmin(ctx, "")
	require.ErrorIs(t, err, ErrUnauthorized)
}
