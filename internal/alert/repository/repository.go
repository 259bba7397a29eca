package repository

import (
	"time"

	"leadpulse-backend/internal/alert/domain"
)

// NotificationRepository stores triggered alerts and answers dedup lookups.
type NotificationRepository interface {
	// ExistsRecent reports whether the same (org, rule, leadRef) alert fired
	// at or after the given time.
	ExistsRecent(orgID, rule, leadRef string, since time.Time) (bool, error)
	Create(notification *domain.Notification) error
	FindByOrgID(orgID string, limit int) ([]*domain.Notification, error)
}
