package schema

import "time"

// ProfitDistribution is one cascade payout to a prior owner.
// SaleID stays null; the contract emits no deterministic link between a
// distribution log and the sale that funded it.
type ProfitDistribution struct {
	ID         string    `gorm:"primaryKey;type:text"`
	TokenID    string    `gorm:"type:text;not null;index"`
	SaleID     *string   `gorm:"type:text"`
	Recipient  string    `gorm:"type:text;not null;index"`
	Amount     string    `gorm:"type:numeric(78,0);not null"`
	Generation int       `gorm:"not null"`
	Timestamp  time.Time `gorm:"not null;index"`
	TxHash     string    `gorm:"type:text;not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (ProfitDistribution) TableName() string {
	return "profit_distributions"
}
