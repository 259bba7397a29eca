package domain

import "time"

// Account connection status, as exposed to operators.
const (
	StatusNotConnected = "not_connected"
	StatusConnected    = "connected"
	StatusActionNeeded = "action_needed"
	StatusError        = "error"
	StatusPaused       = "paused"
)

// Sync status for one account.
const (
	SyncStatusIdle    = "idle"
	SyncStatusSyncing = "syncing"
	SyncStatusError   = "error"
)

// Token status.
const (
	TokenStatusValid   = "valid"
	TokenStatusExpired = "expired"
	TokenStatusRevoked = "revoked"
)

// Providers and account kinds.
const (
	ProviderGmail   = "gmail"
	ProviderOutlook = "outlook"

	KindEmail    = "email"
	KindCalendar = "calendar"
)

// ProviderAccount is one connected mailbox or calendar belonging to an org.
// Cursor holds the provider-specific incremental token (Gmail historyId or a
// Graph/Calendar delta token). It is monotonically non-decreasing and is only
// advanced after the batch it represents has been durably persisted.
type ProviderAccount struct {
	ID       string `json:"id" gorm:"primaryKey"`
	OrgID    string `json:"org_id" gorm:"index;not null"`
	Provider string `json:"provider" gorm:"not null"`
	Kind     string `json:"kind" gorm:"not null"`
	Email    string `json:"email" gorm:"index;not null"`

	Status      string `json:"status" gorm:"default:not_connected"`
	SyncStatus  string `json:"sync_status" gorm:"default:idle"`
	TokenStatus string `json:"token_status" gorm:"default:valid"`
	ErrorReason string `json:"error_reason,omitempty"`

	// Encrypted at rest via the field encryption service.
	AccessToken  string `json:"-"`
	RefreshToken string `json:"-"`

	Cursor       string     `json:"cursor"`
	LastSyncedAt *time.Time `json:"last_synced_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Syncable reports whether the account should be picked up by a sync tick at
// all. Paused and never-connected accounts are not eligible.
func (a *ProviderAccount) Syncable() bool {
	return a.Status == StatusConnected || a.Status == StatusActionNeeded || a.Status == StatusError
}

// FreshWithin reports whether the account was synced recently enough to skip
// this tick. Used to bound provider API usage per account.
func (a *ProviderAccount) FreshWithin(cooldown time.Duration, now time.Time) bool {
	return a.LastSyncedAt != nil && now.Sub(*a.LastSyncedAt) < cooldown
}
