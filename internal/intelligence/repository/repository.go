package repository

import (
	"time"

	"leadpulse-backend/internal/intelligence/domain"
)

// IntelligenceRepository stores classification verdicts, one per email.
type IntelligenceRepository interface {
	FindByEmailID(orgID, emailID string) (*domain.IntelligenceRecord, error)
	FindSince(orgID string, since time.Time) ([]*domain.IntelligenceRecord, error)
	Create(record *domain.IntelligenceRecord) error
}

// QueueRepository appends high-signal records to the processing queue.
type QueueRepository interface {
	Enqueue(item *domain.ProcessingQueueItem) error
}
