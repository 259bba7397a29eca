package repository

import (
	"time"

	"leadpulse-backend/internal/alert/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) ExistsRecent(orgID, rule, leadRef string, since time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&domain.Notification{}).
		Where("org_id = ? AND rule = ? AND lead_ref = ? AND created_at >= ?", orgID, rule, leadRef, since).
		Count(&count).Error
	return count > 0, err
}

func (r *notificationRepository) Create(notification *domain.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.New().String()
	}
	notification.CreatedAt = time.Now()
	return r.db.Create(notification).Error
}

func (r *notificationRepository) FindByOrgID(orgID string, limit int) ([]*domain.Notification, error) {
	var notifications []*domain.Notification
	err := r.db.Where("org_id = ?", orgID).
		Order("created_at DESC").Limit(limit).Find(&notifications).Error
	return notifications, err
}
