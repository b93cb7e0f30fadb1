package schema

import (
	"time"

	"gorm.io/datatypes"
)

// Token is one RWA NFT. Created exactly once by the mint event; the owner
// column is the only field mutated afterwards.
type Token struct {
	TokenID         string         `gorm:"primaryKey;type:text"`
	Minter          string         `gorm:"type:text;not null;index"`
	Owner           string         `gorm:"type:text;not null;index"`
	TokenURI        *string        `gorm:"type:text"`
	Depth           int            `gorm:"not null"`
	ProfitSplitsBps datatypes.JSON `gorm:"type:jsonb;not null"`
	MintedAt        time.Time      `gorm:"not null;index"`
	MintTxHash      string         `gorm:"type:text;not null"`
	CreatedAt       time.Time      `gorm:"autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime"`
}

func (Token) TableName() string {
	return "tokens"
}
