package schema

import "time"

// UserStats holds per-address aggregates. Rows are created lazily with
// zeroes and every counter is monotonically non-decreasing.
type UserStats struct {
	Address        string    `gorm:"primaryKey;type:text"`
	TokensMinted   int       `gorm:"not null;default:0"`
	TokensBought   int       `gorm:"not null;default:0"`
	TokensSold     int       `gorm:"not null;default:0"`
	TotalSpent     string    `gorm:"type:numeric(78,0);not null;default:0"`
	TotalEarned    string    `gorm:"type:numeric(78,0);not null;default:0"`
	ProfitReceived string    `gorm:"type:numeric(78,0);not null;default:0"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

func (UserStats) TableName() string {
	return "user_stats"
}
