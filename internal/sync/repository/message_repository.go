package repository

import (
	"time"

	"leadpulse-backend/internal/sync/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) FindByProviderID(orgID, providerMessageID string) (*domain.Message, error) {
	var message domain.Message
	err := r.db.Where("org_id = ? AND provider_message_id = ?", orgID, providerMessageID).
		First(&message).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) FindByID(orgID, id string) (*domain.Message, error) {
	var message domain.Message
	err := r.db.Where("org_id = ? AND id = ?", orgID, id).First(&message).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) Create(message *domain.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	message.CreatedAt = time.Now()
	message.UpdatedAt = message.CreatedAt
	return r.db.Create(message).Error
}
