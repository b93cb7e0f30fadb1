package schema

import "time"

// OwnerHistory is one entry in a token's append-only ownership chain.
// The mint writes a genesis row with purchase price 0; every
// OwnerHistoryUpdated event appends one more.
type OwnerHistory struct {
	ID            string    `gorm:"primaryKey;type:text"`
	TokenID       string    `gorm:"type:text;not null;index"`
	Owner         string    `gorm:"type:text;not null;index"`
	PurchasePrice string    `gorm:"type:numeric(78,0);not null"`
	Timestamp     time.Time `gorm:"not null"`
	TxHash        string    `gorm:"type:text;not null"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
}

func (OwnerHistory) TableName() string {
	return "owner_history"
}
