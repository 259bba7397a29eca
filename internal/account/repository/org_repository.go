package repository

import (
	"time"

	"leadpulse-backend/internal/account/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type orgRepository struct {
	db *gorm.DB
}

func NewOrgRepository(db *gorm.DB) OrgRepository {
	return &orgRepository{db: db}
}

func (r *orgRepository) FindByID(id string) (*domain.Org, error) {
	var org domain.Org
	err := r.db.Where("id = ?", id).First(&org).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}

func (r *orgRepository) FindAll() ([]*domain.Org, error) {
	var orgs []*domain.Org
	err := r.db.Order("created_at ASC").Find(&orgs).Error
	return orgs, err
}

func (r *orgRepository) Create(org *domain.Org) error {
	if org.ID == "" {
		org.ID = uuid.New().String()
	}
	org.CreatedAt = time.Now()
	org.UpdatedAt = org.CreatedAt
	return r.db.Create(org).Error
}
