package schema

import "time"

// PlatformFee is an immutable record of a fee taken by the marketplace
type PlatformFee struct {
	ID        string    `gorm:"primaryKey;type:text"`
	TokenID   string    `gorm:"type:text;not null;index"`
	Amount    string    `gorm:"type:numeric(78,0);not null"`
	Timestamp time.Time `gorm:"not null"`
	TxHash    string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (PlatformFee) TableName() string {
	return "platform_fees"
}
