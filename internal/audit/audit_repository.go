package audit

import (
	"context"
	"time"

	"github.com/psyphiuk/marcello-whatsapp-pa-web/model"
	"gorm.io/gorm"
)

type AuditRepository interface {
	RecordEvent(ctx context.Context, event *model.SecurityEvent) error
	RecordAdminAction(ctx context.Context, action *model.AdminAction) error
	RecordFailedLogin(ctx context.Context, attempt *model.FailedLogin) error
	RecentFailedLogins(ctx context.Context, email string, since time.Time) ([]*model.FailedLogin, error)
	PurgeBefore(ctx context.Context, eventsBefore time.Time, failedLoginsBefore time.Time) error
}

type auditRepository struct {
	db *gorm.DB
}

func (r *auditRepository) RecordEvent(ctx context.Context, event *model.SecurityEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *auditRepository) RecordAdminAction(ctx context.Context, action *model.AdminAction) error {
	return r.db.WithContext(ctx).Create(action).Error
}

func (r *auditRepository) RecordFailedLogin(ctx context.Context, attempt *model.FailedLogin) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *auditRepository) RecentFailedLogins(ctx context.Context, email string, since time.Time) ([]*model.FailedLogin, error) {
	var attempts []*model.FailedLogin
	err := r.db.WithContext(ctx).
		Where("email = ? AND created_at >= ?", email, since).
		Order("created_at DESC").
		Find(&attempts).Error
	return attempts, err
}

func (r *auditRepository) PurgeBefore(ctx context.Context, eventsBefore time.Time, failedLoginsBefore time.Time) error {
	if err := r.db.WithContext(ctx).Where("created_at < ?", eventsBefore).Delete(&model.SecurityEvent{}).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).Where("created_at < ?", failedLoginsBefore).Delete(&model.FailedLogin{}).Error
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}
