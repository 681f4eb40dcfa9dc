package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// OptimizationStatus tracks one optimizer round trip.
type OptimizationStatus string

const (
	OptimizationStatusPending OptimizationStatus = "pending"
	OptimizationStatusSuccess OptimizationStatus = "success"
	OptimizationStatusError   OptimizationStatus = "error"
)

// Valid reports whether s is a known status.
func (s OptimizationStatus) Valid() bool {
	switch s {
	case OptimizationStatusPending, OptimizationStatusSuccess, OptimizationStatusError:
		return true
	}
	return false
}

// OptimizationLog records an optimization request and its outcome.
// It is written as pending before the optimizer is called and updated after.
type OptimizationLog struct {
	ID        uuid.UUID          `json:"id" gorm:"type:char(36);primaryKey"`
	UserID    uuid.UUID          `json:"user" gorm:"type:char(36);not null;index"`
	ProjectID *uuid.UUID         `json:"project,omitempty" gorm:"type:char(36);index"`
	Kind      string             `json:"kind,omitempty" gorm:"size:32"`
	Input     datatypes.JSON     `json:"input" gorm:"not null"`
	Output    datatypes.JSON     `json:"output,omitempty"`
	Status    OptimizationStatus `json:"status" gorm:"type:varchar(20);not null;default:pending;index"`
	Error     string             `json:"error,omitempty" gorm:"type:text"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// BeforeCreate sets UUID before creating the record.
func (l *OptimizationLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.Status == "" {
		l.Status = OptimizationStatusPending
	}
	return nil
}
