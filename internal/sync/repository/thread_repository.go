package repository

import (
	"time"

	"leadpulse-backend/internal/sync/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type threadRepository struct {
	db *gorm.DB
}

func NewThreadRepository(db *gorm.DB) ThreadRepository {
	return &threadRepository{db: db}
}

func (r *threadRepository) FindOrCreate(thread *domain.Thread) (*domain.Thread, bool, error) {
	var existing domain.Thread
	now := time.Now()

	if thread.ID == "" {
		thread.ID = uuid.New().String()
	}
	thread.CreatedAt = now
	thread.UpdatedAt = now
	if thread.LastMessageAt.IsZero() {
		thread.LastMessageAt = now
	}

	// FirstOrCreate races safely against the unique index: a concurrent
	// insert surfaces as a lookup hit on retry.
	result := r.db.Where("org_id = ? AND account_id = ? AND subject_index = ?",
		thread.OrgID, thread.AccountID, thread.SubjectIndex).
		Attrs(*thread).FirstOrCreate(&existing)
	if result.Error != nil {
		return nil, false, result.Error
	}

	return &existing, result.RowsAffected > 0, nil
}

func (r *threadRepository) Touch(threadID string) error {
	now := time.Now()
	return r.db.Model(&domain.Thread{}).Where("id = ?", threadID).
		Updates(map[string]interface{}{
			"message_count":   gorm.Expr("message_count + 1"),
			"last_message_at": now,
			"updated_at":      now,
		}).Error
}
