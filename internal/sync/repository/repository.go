package repository

import (
	"leadpulse-backend/internal/sync/domain"
)

// ThreadRepository resolves and creates threads by their subject key.
type ThreadRepository interface {
	// FindOrCreate resolves the open thread for (orgID, accountID,
	// subjectIndex), creating it lazily. Returns the thread and whether it
	// was created by this call.
	FindOrCreate(thread *domain.Thread) (*domain.Thread, bool, error)
	Touch(threadID string) error
}

// MessageRepository stores normalized messages under the
// (orgID, providerMessageID) dedup key.
type MessageRepository interface {
	FindByProviderID(orgID, providerMessageID string) (*domain.Message, error)
	FindByID(orgID, id string) (*domain.Message, error)
	Create(message *domain.Message) error
}

// EventRepository stores calendar events under (orgID, providerEventID).
type EventRepository interface {
	FindByProviderID(orgID, providerEventID string) (*domain.CalendarEvent, error)
	Upsert(event *domain.CalendarEvent) (created bool, err error)
}
