package sessions

import (
	"context"
	"time"

	"github.com/psyphiuk/marcello-whatsapp-pa-web/internal/common"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/model"
	"github.com/psyphiuk/marcello-whatsapp-pa-web/params"
)

// ClientMeta is the request metadata stamped on each session row.
type ClientMeta struct {
	IP        string
	UserAgent string
}

type CreatedSession struct {
	Token     string
	ExpiresAt time.Time
}

type Validation struct {
	CustomerID   uint
	MFAVerified  bool
	NeedsRefresh bool
	RemainingMin int
}

// SessionService issues, validates, refreshes and revokes session tokens.
// Sessions carry a dual timeout: the inactivity timeout limits exposure of an
// unattended client, the absolute timeout bounds a stolen-but-active token.
type SessionService struct {
	repo    SessionRepository
	nowFunc func() time.Time
}

func NewSessionService(repo SessionRepository) *SessionService {
	return &SessionService{
		repo:    repo,
		nowFunc: time.Now,
	}
}

func generateToken() string {
	return common.RandomToken(params.SessionTokenLength)
}

// Create mints a new session with a fresh unguessable token.
func (s *SessionService) Create(ctx context.Context, customerID uint, meta ClientMeta, mfaVerified bool) (*CreatedSession, error) {
	now := s.nowFunc()
	session := &model.Session{
		Token:        generateToken(),
		CustomerID:   customerID,
		IP:           meta.IP,
		UserAgent:    meta.UserAgent,
		MFAVerified:  mfaVerified,
		LastActivity: now,
		ExpiresAt:    now.Add(params.SessionAbsoluteMaxAge),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}
	return &CreatedSession{Token: session.Token, ExpiresAt: session.ExpiresAt}, nil
}

// Validate resolves the token and bumps the activity clock. Sessions past
// either timeout are destroyed on sight and reported expired.
func (s *SessionService) Validate(ctx context.Context, token string) (*Validation, error) {
	session, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	now := s.nowFunc()
	if now.After(session.ExpiresAt) {
		s.repo.DeleteByToken(ctx, token)
		return nil, ErrSessionExpired
	}
	if now.Sub(session.LastActivity) > params.SessionInactivityMaxAge {
		s.repo.DeleteByToken(ctx, token)
		return nil, ErrSessionExpired
	}

	if err := s.repo.TouchActivity(ctx, token, now); err != nil {
		return nil, err
	}

	remaining := session.ExpiresAt.Sub(now)
	return &Validation{
		CustomerID:   session.CustomerID,
		MFAVerified:  session.MFAVerified,
		NeedsRefresh: remaining < params.SessionRefreshThreshold,
		RemainingMin: int(remaining.Minutes()),
	}, nil
}

// Refresh re-validates and then rotates the token, granting a new absolute
// expiry. The old token stops working the moment the rotation lands; the
// caller must hand the new token to the client.
func (s *SessionService) Refresh(ctx context.Context, token string) (*CreatedSession, error) {
	if _, err := s.Validate(ctx, token); err != nil {
		return nil, err
	}

	now := s.nowFunc()
	newToken := generateToken()
	expiresAt := now.Add(params.SessionAbsoluteMaxAge)
	rotated, err := s.repo.Rotate(ctx, token, newToken, expiresAt, now)
	if err != nil {
		return nil, err
	}
	if !rotated {
		// lost the race against a concurrent rotation or revocation
		return nil, ErrSessionNotFound
	}
	return &CreatedSession{Token: newToken, ExpiresAt: expiresAt}, nil
}

func (s *SessionService) Destroy(ctx context.Context, token string) error {
	return s.repo.DeleteByToken(ctx, token)
}

// DestroyAll revokes every session of the customer, returning how many were
// dropped.
func (s *SessionService) DestroyAll(ctx context.Context, customerID uint) (int64, error) {
	return s.repo.DeleteByCustomer(ctx, customerID)
}

// SetMFAVerified flips the MFA bit on an established session, so a successful
// challenge does not force a new login.
func (s *SessionService) SetMFAVerified(ctx context.Context, token string, verified bool) error {
	return s.repo.SetMFAVerified(ctx, token, verified)
}

func (s *SessionService) ListForCustomer(ctx context.Context, customerID uint) ([]*model.Session, error) {
	return s.repo.ListByCustomer(ctx, customerID)
}

// CleanupExpired removes sessions past their absolute expiry. Run it
// periodically; the request path already destroys them lazily.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredBefore(ctx, s.nowFunc())
}
