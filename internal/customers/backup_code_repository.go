package customers

import (
	"context"

	"github.com/psyphiuk/marcello-whatsapp-pa-web/model"
	"gorm.io/gorm"
)

type BackupCodeRepository interface {
	// ReplaceAll swaps the whole hash set in one transaction.
	ReplaceAll(ctx context.Context, customerID uint, hashes []string) error
	// Consume deletes the matching hash row and reports whether one existed.
	// The conditional delete makes check-and-remove atomic: of two concurrent
	// submissions of the same code, only one can observe an affected row.
	Consume(ctx context.Context, customerID uint, hash string) (bool, error)
	DeleteAll(ctx context.Context, customerID uint) error
	Count(ctx context.Context, customerID uint) (int, error)
}

type backupCodeRepository struct {
	db *gorm.DB
}

func (r *backupCodeRepository) ReplaceAll(ctx context.Context, customerID uint, hashes []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("customer_id = ?", customerID).Delete(&model.BackupCode{}).Error; err != nil {
			return err
		}
		for _, hash := range hashes {
			code := model.BackupCode{CustomerID: customerID, CodeHash: hash}
			if err := tx.Create(&code).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *backupCodeRepository) Consume(ctx context.Context, customerID uint, hash string) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("customer_id = ? AND code_hash = ?", customerID, hash).
		Delete(&model.BackupCode{})
	return result.RowsAffected > 0, result.Error
}

func (r *backupCodeRepository) DeleteAll(ctx context.Context, customerID uint) error {
	return r.db.WithContext(ctx).Where("customer_id = ?", customerID).Delete(&model.BackupCode{}).Error
}

func (r *backupCodeRepository) Count(ctx context.Context, customerID uint) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.BackupCode{}).
		Where("customer_id = ?", customerID).
		Count(&count).Error
	return int(count), err
}

func NewBackupCodeRepository(db *gorm.DB) BackupCodeRepository {
	return &backupCodeRepository{db: db}
}
