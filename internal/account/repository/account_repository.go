package repository

import (
	"time"

	"leadpulse-backend/internal/account/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

func (r *accountRepository) FindByID(id string) (*domain.ProviderAccount, error) {
	var account domain.ProviderAccount
	err := r.db.Where("id = ?", id).First(&account).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) FindByOrgID(orgID string) ([]*domain.ProviderAccount, error) {
	var accounts []*domain.ProviderAccount
	err := r.db.Where("org_id = ?", orgID).Order("created_at ASC").Find(&accounts).Error
	return accounts, err
}

// FindSyncableByOrgID returns accounts a tick may touch: connected accounts
// plus accounts in a recoverable error state. Paused and never-connected
// accounts are excluded at the query level.
func (r *accountRepository) FindSyncableByOrgID(orgID string) ([]*domain.ProviderAccount, error) {
	var accounts []*domain.ProviderAccount
	err := r.db.Where("org_id = ? AND status IN ?", orgID,
		[]string{domain.StatusConnected, domain.StatusActionNeeded, domain.StatusError}).
		Order("created_at ASC").Find(&accounts).Error
	return accounts, err
}

func (r *accountRepository) FindByEmail(email string) (*domain.ProviderAccount, error) {
	var account domain.ProviderAccount
	err := r.db.Where("email = ? AND kind = ?", email, domain.KindEmail).First(&account).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) Create(account *domain.ProviderAccount) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	account.CreatedAt = time.Now()
	account.UpdatedAt = account.CreatedAt
	return r.db.Create(account).Error
}

func (r *accountRepository) Update(account *domain.ProviderAccount) error {
	account.UpdatedAt = time.Now()
	return r.db.Save(account).Error
}

// UpdateTokens persists rotated OAuth tokens without touching sync state, so
// a concurrent sync cannot roll a refresh back.
func (r *accountRepository) UpdateTokens(id, accessToken, refreshToken string) error {
	updates := map[string]interface{}{
		"access_token": accessToken,
		"token_status": domain.TokenStatusValid,
		"updated_at":   time.Now(),
	}
	if refreshToken != "" {
		updates["refresh_token"] = refreshToken
	}
	return r.db.Model(&domain.ProviderAccount{}).Where("id = ?", id).Updates(updates).Error
}
