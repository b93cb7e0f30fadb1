package schema

import "time"

// Listing is the single marketplace slot per token. A new Listed event
// overwrites the whole row; Delisted and Sale only clear the active flag.
type Listing struct {
	TokenID   string    `gorm:"primaryKey;type:text"`
	Seller    string    `gorm:"type:text;not null;index"`
	Price     string    `gorm:"type:numeric(78,0);not null"`
	Active    bool      `gorm:"not null;index"`
	ListedAt  time.Time `gorm:"not null"`
	TxHash    string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Listing) TableName() string {
	return "listings"
}
