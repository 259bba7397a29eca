package repository

import (
	"time"

	"leadpulse-backend/internal/account/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type deviceTokenRepository struct {
	db *gorm.DB
}

func NewDeviceTokenRepository(db *gorm.DB) DeviceTokenRepository {
	return &deviceTokenRepository{db: db}
}

func (r *deviceTokenRepository) FindByOrgID(orgID string) ([]*domain.DeviceToken, error) {
	var tokens []*domain.DeviceToken
	err := r.db.Where("org_id = ?", orgID).Find(&tokens).Error
	return tokens, err
}

func (r *deviceTokenRepository) Register(token *domain.DeviceToken) error {
	if token.ID == "" {
		token.ID = uuid.New().String()
	}
	token.CreatedAt = time.Now()
	// Same device re-registering is a no-op.
	return r.db.Where("token = ?", token.Token).FirstOrCreate(token).Error
}

func (r *deviceTokenRepository) DeleteByToken(token string) error {
	return r.db.Where("token = ?", token).Delete(&domain.DeviceToken{}).Error
}
