package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base is the base model for ancillary entities keyed by UUID.
// Knowledge nodes do not embed it: their id type is part of the public
// contract (see NodeModel).
type Base struct {
	ID        string         `json:"id"       gorm:"type:char(36);primaryKey"`
	CreatedAt time.Time      `json:"created"`
	UpdatedAt time.Time      `json:"modified"`
	DeletedAt gorm.DeletedAt `json:"-"        gorm:"index"`
}

// BeforeCreate assigns a fresh UUID unless the caller picked the id.
func (b *Base) BeforeCreate(*gorm.DB) error {
	if b.ID != "" {
		return nil
	}
	b.ID = uuid.New().String()
	return nil
}
