package repository

import (
	"time"

	"leadpulse-backend/internal/sync/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) FindByProviderID(orgID, providerEventID string) (*domain.CalendarEvent, error) {
	var event domain.CalendarEvent
	err := r.db.Where("org_id = ? AND provider_event_id = ?", orgID, providerEventID).
		First(&event).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// Upsert creates the event or refreshes its mutable fields (calendars update
// events in place, unlike mail). Returns whether a new row was created.
func (r *eventRepository) Upsert(event *domain.CalendarEvent) (bool, error) {
	existing, err := r.FindByProviderID(event.OrgID, event.ProviderEventID)
	if err != nil {
		return false, err
	}

	now := time.Now()
	if existing == nil {
		if event.ID == "" {
			event.ID = uuid.New().String()
		}
		event.CreatedAt = now
		event.UpdatedAt = now
		return true, r.db.Create(event).Error
	}

	existing.Title = event.Title
	existing.Location = event.Location
	existing.OrganizerAddr = event.OrganizerAddr
	existing.StartsAt = event.StartsAt
	existing.EndsAt = event.EndsAt
	existing.Cancelled = event.Cancelled
	existing.UpdatedAt = now
	return false, r.db.Save(existing).Error
}
