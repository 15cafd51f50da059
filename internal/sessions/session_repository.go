package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/psyphiuk/marcello-whatsapp-pa-web/model"
	"gorm.io/gorm"
)

type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error
	GetByToken(ctx context.Context, token string) (*model.Session, error)
	TouchActivity(ctx context.Context, token string, at time.Time) error
	// Rotate swaps the token and expiry in one conditional update; it reports
	// whether the old token still matched a row.
	Rotate(ctx context.Context, oldToken string, newToken string, expiresAt time.Time, at time.Time) (bool, error)
	SetMFAVerified(ctx context.Context, token string, verified bool) error
	DeleteByToken(ctx context.Context, token string) error
	DeleteByCustomer(ctx context.Context, customerID uint) (int64, error)
	ListByCustomer(ctx context.Context, customerID uint) ([]*model.Session, error)
	DeleteExpiredBefore(ctx context.Context, now time.Time) (int64, error)
}

type sessionRepository struct {
	db *gorm.DB
}

func (r *sessionRepository) Create(ctx context.Context, session *model.Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepository) GetByToken(ctx context.Context, token string) (*model.Session, error) {
	var session model.Session
	err := r.db.WithContext(ctx).Where("token = ?", token).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *sessionRepository) TouchActivity(ctx context.Context, token string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&model.Session{}).
		Where("token = ?", token).
		Update("last_activity", at).Error
}

func (r *sessionRepository) Rotate(ctx context.Context, oldToken string, newToken string, expiresAt time.Time, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&model.Session{}).
		Where("token = ?", oldToken).
		Updates(map[string]interface{}{
			"token":         newToken,
			"expires_at":    expiresAt,
			"last_activity": at,
		})
	return result.RowsAffected > 0, result.Error
}

func (r *sessionRepository) SetMFAVerified(ctx context.Context, token string, verified bool) error {
	return r.db.WithContext(ctx).Model(&model.Session{}).
		Where("token = ?", token).
		Update("mfa_verified", verified).Error
}

func (r *sessionRepository) DeleteByToken(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).Where("token = ?", token).Delete(&model.Session{}).Error
}

func (r *sessionRepository) DeleteByCustomer(ctx context.Context, customerID uint) (int64, error) {
	result := r.db.WithContext(ctx).Where("customer_id = ?", customerID).Delete(&model.Session{})
	return result.RowsAffected, result.Error
}

func (r *sessionRepository) ListByCustomer(ctx context.Context, customerID uint) ([]*model.Session, error) {
	var sessions []*model.Session
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("last_activity DESC").
		Find(&sessions).Error
	return sessions, err
}

func (r *sessionRepository) DeleteExpiredBefore(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("expires_at < ?", now).Delete(&model.Session{})
	return result.RowsAffected, result.Error
}

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}
