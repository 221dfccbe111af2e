package models

import "time"

// LockRecord mirrors a lock held in the coordination store. The store
// is the authority; this row is best-effort observability and is never
// consulted for correctness.
type LockRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	LockKey    string    `gorm:"type:text;index;not null" json:"lock_key"`
	MachineID  string    `gorm:"type:text;index;not null" json:"machine_id"`
	AcquiredAt time.Time `gorm:"not null" json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	IsActive   bool      `gorm:"index;not null;default:true" json:"is_active"`
}

type LockRecords []*LockRecord
