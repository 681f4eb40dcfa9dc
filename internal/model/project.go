package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AssetRef points at an asset by type name and id. The target may have
// been deleted since the reference was stored.
type AssetRef struct {
	AssetType string    `json:"assetType" validate:"required,assettype"`
	AssetID   uuid.UUID `json:"assetId" validate:"required"`
}

// Project is a user-owned, ordered collection of asset references.
type Project struct {
	ID          uuid.UUID                     `json:"id" gorm:"type:char(36);primaryKey"`
	Name        string                        `json:"name" gorm:"size:100;not null"`
	Description string                        `json:"description,omitempty" gorm:"size:500"`
	UserID      uuid.UUID                     `json:"user" gorm:"type:char(36);not null;index"`
	Assets      datatypes.JSONSlice[AssetRef] `json:"assets"`
	CreatedAt   time.Time                     `json:"createdAt"`
	UpdatedAt   time.Time                     `json:"updatedAt"`
}

// BeforeCreate sets UUID before creating the record.
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Assets == nil {
		p.Assets = datatypes.JSONSlice[AssetRef]{}
	}
	return nil
}

// Favorite marks one asset for one user. The (user, type, asset) triple is
// checked for uniqueness before insert.
type Favorite struct {
	ID        uuid.UUID `json:"id" gorm:"type:char(36);primaryKey"`
	UserID    uuid.UUID `json:"user" gorm:"type:char(36);not null;index"`
	AssetType string    `json:"assetType" gorm:"size:32;not null"`
	AssetID   uuid.UUID `json:"assetId" gorm:"type:char(36);not null"`
	CreatedAt time.Time `json:"createdAt"`
}

// BeforeCreate sets UUID before creating the record.
func (f *Favorite) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}
