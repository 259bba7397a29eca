package repository

import (
	"leadpulse-backend/internal/account/domain"
)

// OrgRepository provides access to tenants.
type OrgRepository interface {
	FindByID(id string) (*domain.Org, error)
	FindAll() ([]*domain.Org, error)
	Create(org *domain.Org) error
}

// AccountRepository provides access to provider accounts. Rotated OAuth
// tokens go through UpdateTokens so a full Save from a concurrent sync never
// clobbers them.
type AccountRepository interface {
	FindByID(id string) (*domain.ProviderAccount, error)
	FindByOrgID(orgID string) ([]*domain.ProviderAccount, error)
	FindSyncableByOrgID(orgID string) ([]*domain.ProviderAccount, error)
	FindByEmail(email string) (*domain.ProviderAccount, error)
	Create(account *domain.ProviderAccount) error
	Update(account *domain.ProviderAccount) error
	UpdateTokens(id, accessToken, refreshToken string) error
}

// DeviceTokenRepository stores push targets for an org.
type DeviceTokenRepository interface {
	FindByOrgID(orgID string) ([]*domain.DeviceToken, error)
	Register(token *domain.DeviceToken) error
	DeleteByToken(token string) error
}
