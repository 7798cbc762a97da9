package models

import (
	"time"

	"gorm.io/gorm"
)

// AuditFields is embedded by every mutable entity. The core sets these on
// every write; they carry no business logic.
type AuditFields struct {
	CreatedBy string    `json:"created_by" gorm:"size:255"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedBy string    `json:"updated_by" gorm:"size:255"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SoftDelete is embedded by every entity that is never physically deleted.
type SoftDelete struct {
	DeletedBy *string        `json:"-" gorm:"size:255"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// SequenceCounter backs human-assigned sequential numbers (case numbers,
// appeal numbers). The row is incremented inside the creating transaction.
type SequenceCounter struct {
	Name  string `gorm:"primaryKey;size:50"`
	Value int64  `gorm:"not null;default:0"`
}

func (SequenceCounter) TableName() string {
	return "sequence_counters"
}
