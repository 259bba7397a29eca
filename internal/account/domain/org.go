package domain

import "time"

// Org is the tenant boundary. Every entity in the system is scoped by OrgID;
// orgs are created at signup and never merged.
type Org struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeviceToken is a registered push target for an org's operators.
type DeviceToken struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	OrgID     string    `json:"org_id" gorm:"index;not null"`
	Token     string    `json:"token" gorm:"uniqueIndex;not null"`
	Platform  string    `json:"platform"`
	CreatedAt time.Time `json:"created_at"`
}
