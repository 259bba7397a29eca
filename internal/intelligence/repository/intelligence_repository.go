package repository

import (
	"time"

	"leadpulse-backend/internal/intelligence/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type intelligenceRepository struct {
	db *gorm.DB
}

func NewIntelligenceRepository(db *gorm.DB) IntelligenceRepository {
	return &intelligenceRepository{db: db}
}

func (r *intelligenceRepository) FindByEmailID(orgID, emailID string) (*domain.IntelligenceRecord, error) {
	var record domain.IntelligenceRecord
	err := r.db.Where("org_id = ? AND email_id = ?", orgID, emailID).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *intelligenceRepository) FindSince(orgID string, since time.Time) ([]*domain.IntelligenceRecord, error) {
	var records []*domain.IntelligenceRecord
	err := r.db.Where("org_id = ? AND created_at >= ?", orgID, since).
		Order("created_at ASC").Find(&records).Error
	return records, err
}

func (r *intelligenceRepository) Create(record *domain.IntelligenceRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	record.CreatedAt = time.Now()
	record.UpdatedAt = record.CreatedAt
	return r.db.Create(record).Error
}

type queueRepository struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) QueueRepository {
	return &queueRepository{db: db}
}

func (r *queueRepository) Enqueue(item *domain.ProcessingQueueItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	if item.Status == "" {
		item.Status = domain.QueueStatusPending
	}
	item.CreatedAt = time.Now()
	return r.db.Create(item).Error
}
