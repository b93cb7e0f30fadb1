package schema

import "time"

// Sale is an immutable record of a completed marketplace sale.
// ID is "<tx_hash>-<log_index>", unique per emitted log.
type Sale struct {
	ID          string    `gorm:"primaryKey;type:text"`
	TokenID     string    `gorm:"type:text;not null;index"`
	Seller      string    `gorm:"type:text;not null;index"`
	Buyer       string    `gorm:"type:text;not null;index"`
	Price       string    `gorm:"type:numeric(78,0);not null"`
	Profit      string    `gorm:"type:numeric(78,0);not null"`
	Timestamp   time.Time `gorm:"not null;index"`
	TxHash      string    `gorm:"type:text;not null"`
	BlockNumber uint64    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

func (Sale) TableName() string {
	return "sales"
}
