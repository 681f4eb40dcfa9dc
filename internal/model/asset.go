package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AssetStatus is the lifecycle state of a piece of infrastructure.
type AssetStatus string

const (
	AssetStatusExisting AssetStatus = "existing"
	AssetStatusPlanned  AssetStatus = "planned"
)

// Valid reports whether s is a known status.
func (s AssetStatus) Valid() bool {
	return s == AssetStatusExisting || s == AssetStatusPlanned
}

// Asset is one infrastructure document. Every asset type shares this row
// shape in its own table; type-specific attributes live in Attributes and
// the geometry is stored as GeoJSON with its bounding box alongside for
// index-assisted prefiltering. Indexes are created per table by the
// repository migration since the struct is shared.
type Asset struct {
	ID         uuid.UUID         `gorm:"type:char(36);primaryKey"`
	Name       string            `gorm:"size:255;not null"`
	Status     AssetStatus       `gorm:"type:varchar(20);not null;default:existing"`
	Owner      string            `gorm:"size:255"`
	CreatedBy  *uuid.UUID        `gorm:"type:char(36)"`
	Geometry   datatypes.JSON    `gorm:"not null"`
	Attributes datatypes.JSONMap
	MinLng     float64
	MaxLng     float64
	MinLat     float64
	MaxLat     float64
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// GeometryField is the document key the geometry is exposed under
	// ("location", "path" or "area").
	GeometryField string `gorm:"-"`
}

// BeforeCreate sets UUID before creating the record.
func (a *Asset) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// AfterFind turns numbers decoded as json.Number back into float64.
func (a *Asset) AfterFind(tx *gorm.DB) error {
	for k, v := range a.Attributes {
		if n, ok := v.(json.Number); ok {
			if f, err := n.Float64(); err == nil {
				a.Attributes[k] = f
			}
		}
	}
	return nil
}

// Document flattens the asset into the JSON document clients see.
func (a *Asset) Document() map[string]interface{} {
	doc := make(map[string]interface{}, len(a.Attributes)+8)
	for k, v := range a.Attributes {
		doc[k] = v
	}
	doc["id"] = a.ID
	doc["name"] = a.Name
	doc["status"] = string(a.Status)
	if a.Owner != "" {
		doc["owner"] = a.Owner
	}
	if a.CreatedBy != nil {
		doc["createdBy"] = a.CreatedBy
	}
	field := a.GeometryField
	if field == "" {
		field = "location"
	}
	doc[field] = json.RawMessage(a.Geometry)
	doc["createdAt"] = a.CreatedAt
	doc["updatedAt"] = a.UpdatedAt
	return doc
}

// MarshalJSON renders the flattened document.
func (a Asset) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Document())
}
