package store

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/louissarvin/reloop/internal/domain"
	"github.com/louissarvin/reloop/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// AutoMigrate creates or updates the derived tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&schema.Token{},
		&schema.Listing{},
		&schema.Sale{},
		&schema.OwnerHistory{},
		&schema.ProfitDistribution{},
		&schema.PlatformFee{},
		&schema.UserStats{},
		&schema.KeyValueStore{},
	)
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection. Zero values fall back to defaults:
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// addAmounts sums two decimal wei strings
func addAmounts(current, delta string) (string, error) {
	a, ok := new(big.Int).SetString(current, 10)
	if !ok {
		return "", fmt.Errorf("invalid amount: %q", current)
	}
	b, ok := new(big.Int).SetString(delta, 10)
	if !ok {
		return "", fmt.Errorf("invalid amount: %q", delta)
	}
	return new(big.Int).Add(a, b).String(), nil
}

// subAmounts subtracts two decimal wei strings
func subAmounts(current, delta string) (string, error) {
	a, ok := new(big.Int).SetString(current, 10)
	if !ok {
		return "", fmt.Errorf("invalid amount: %q", current)
	}
	b, ok := new(big.Int).SetString(delta, 10)
	if !ok {
		return "", fmt.Errorf("invalid amount: %q", delta)
	}
	return new(big.Int).Sub(a, b).String(), nil
}

// mutateUserStats lazily creates the stats row for an address and applies an
// in-place mutation under a row lock. Must run inside a transaction.
func mutateUserStats(tx *gorm.DB, address string, mutate func(*schema.UserStats) error) error {
	address = domain.NormalizeAddress(address)

	seed := schema.UserStats{
		Address:        address,
		TotalSpent:     "0",
		TotalEarned:    "0",
		ProfitReceived: "0",
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		DoNothing: true,
	}).Create(&seed).Error; err != nil {
		return fmt.Errorf("failed to seed user stats: %w", err)
	}

	var stats schema.UserStats
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("address = ?", address).
		First(&stats).Error; err != nil {
		return fmt.Errorf("failed to lock user stats: %w", err)
	}

	if err := mutate(&stats); err != nil {
		return err
	}

	if err := tx.Save(&stats).Error; err != nil {
		return fmt.Errorf("failed to update user stats: %w", err)
	}

	return nil
}

// CreateTokenMint inserts the token, its genesis ownership row, and bumps the
// minter's stats in one transaction. A replayed mint is a complete no-op.
func (s *pgStore) CreateTokenMint(ctx context.Context, token *schema.Token, genesis *schema.OwnerHistory) error {
	token.Minter = domain.NormalizeAddress(token.Minter)
	token.Owner = domain.NormalizeAddress(token.Owner)
	genesis.Owner = domain.NormalizeAddress(genesis.Owner)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token_id"}},
			DoNothing: true,
		}).Create(token)
		if result.Error != nil {
			return fmt.Errorf("failed to create token: %w", result.Error)
		}

		// Token already exists, so the history row and stats bump were
		// committed by the first delivery. Skip both.
		if result.RowsAffected == 0 {
			return nil
		}

		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(genesis).Error; err != nil {
			return fmt.Errorf("failed to create genesis owner history: %w", err)
		}

		return mutateUserStats(tx, token.Minter, func(stats *schema.UserStats) error {
			stats.TokensMinted++
			return nil
		})
	})
}

// UpdateTokenOwner sets the current owner of a token
func (s *pgStore) UpdateTokenOwner(ctx context.Context, tokenID, newOwner string) error {
	err := s.db.WithContext(ctx).
		Model(&schema.Token{}).
		Where("token_id = ?", tokenID).
		Update("owner", domain.NormalizeAddress(newOwner)).Error
	if err != nil {
		return fmt.Errorf("failed to update token owner: %w", err)
	}
	return nil
}

// AppendOwnerHistory inserts one ownership record, ignoring duplicates
func (s *pgStore) AppendOwnerHistory(ctx context.Context, record *schema.OwnerHistory) error {
	record.Owner = domain.NormalizeAddress(record.Owner)

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(record).Error
	if err != nil {
		return fmt.Errorf("failed to append owner history: %w", err)
	}
	return nil
}

// UpsertListing overwrites the token's single listing slot
func (s *pgStore) UpsertListing(ctx context.Context, listing *schema.Listing) error {
	listing.Seller = domain.NormalizeAddress(listing.Seller)

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"seller", "price", "active", "listed_at", "tx_hash", "updated_at"}),
	}).Create(listing).Error
	if err != nil {
		return fmt.Errorf("failed to upsert listing: %w", err)
	}
	return nil
}

// DeactivateListing clears the active flag on the token's listing
func (s *pgStore) DeactivateListing(ctx context.Context, tokenID string) error {
	err := s.db.WithContext(ctx).
		Model(&schema.Listing{}).
		Where("token_id = ?", tokenID).
		Update("active", false).Error
	if err != nil {
		return fmt.Errorf("failed to deactivate listing: %w", err)
	}
	return nil
}

// CreateSale inserts the sale, deactivates the listing, and updates seller and
// buyer stats in one transaction. A replayed sale is a complete no-op.
//
// The seller earns the sale price net of the cascade slice; the buyer's spend
// is the gross price.
func (s *pgStore) CreateSale(ctx context.Context, sale *schema.Sale) error {
	sale.Seller = domain.NormalizeAddress(sale.Seller)
	sale.Buyer = domain.NormalizeAddress(sale.Buyer)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).Create(sale)
		if result.Error != nil {
			return fmt.Errorf("failed to create sale: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}

		if err := tx.Model(&schema.Listing{}).
			Where("token_id = ?", sale.TokenID).
			Update("active", false).Error; err != nil {
			return fmt.Errorf("failed to deactivate listing: %w", err)
		}

		earned, err := subAmounts(sale.Price, sale.Profit)
		if err != nil {
			return fmt.Errorf("invalid sale amounts: %w", err)
		}

		if err := mutateUserStats(tx, sale.Seller, func(stats *schema.UserStats) error {
			stats.TokensSold++
			stats.TotalEarned, err = addAmounts(stats.TotalEarned, earned)
			return err
		}); err != nil {
			return err
		}

		return mutateUserStats(tx, sale.Buyer, func(stats *schema.UserStats) error {
			stats.TokensBought++
			stats.TotalSpent, err = addAmounts(stats.TotalSpent, sale.Price)
			return err
		})
	})
}

// CreateProfitDistribution inserts one cascade payout and bumps the
// recipient's received total. A replayed distribution is a complete no-op.
func (s *pgStore) CreateProfitDistribution(ctx context.Context, dist *schema.ProfitDistribution) error {
	dist.Recipient = domain.NormalizeAddress(dist.Recipient)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).Create(dist)
		if result.Error != nil {
			return fmt.Errorf("failed to create profit distribution: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}

		return mutateUserStats(tx, dist.Recipient, func(stats *schema.UserStats) error {
			var err error
			stats.ProfitReceived, err = addAmounts(stats.ProfitReceived, dist.Amount)
			return err
		})
	})
}

// CreatePlatformFee inserts one platform fee record, ignoring duplicates
func (s *pgStore) CreatePlatformFee(ctx context.Context, fee *schema.PlatformFee) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(fee).Error
	if err != nil {
		return fmt.Errorf("failed to create platform fee: %w", err)
	}
	return nil
}

// GetEventCursor retrieves the last committed event position for a chain
func (s *pgStore) GetEventCursor(ctx context.Context, chain string) (*domain.Cursor, error) {
	key := fmt.Sprintf("event_cursor:%s", chain)

	var kv schema.KeyValueStore
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get event cursor: %w", err)
	}

	cursor, err := domain.ParseCursor(kv.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to parse event cursor: %w", err)
	}

	return &cursor, nil
}

// SetEventCursor stores the last committed event position for a chain
func (s *pgStore) SetEventCursor(ctx context.Context, chain string, cursor domain.Cursor) error {
	kv := schema.KeyValueStore{
		Key:   fmt.Sprintf("event_cursor:%s", chain),
		Value: cursor.String(),
	}

	err := s.db.WithContext(ctx).Save(&kv).Error
	if err != nil {
		return fmt.Errorf("failed to set event cursor: %w", err)
	}

	return nil
}

// GetToken retrieves a token by ID
func (s *pgStore) GetToken(ctx context.Context, tokenID string) (*schema.Token, error) {
	var token schema.Token
	err := s.db.WithContext(ctx).Where("token_id = ?", tokenID).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return &token, nil
}

// ListTokens retrieves tokens ordered by mint time descending
func (s *pgStore) ListTokens(ctx context.Context, limit, offset int) ([]schema.Token, error) {
	var tokens []schema.Token
	err := s.db.WithContext(ctx).
		Order("minted_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&tokens).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	return tokens, nil
}

// ListTokensByOwner retrieves tokens currently owned by an address
func (s *pgStore) ListTokensByOwner(ctx context.Context, owner string) ([]schema.Token, error) {
	var tokens []schema.Token
	err := s.db.WithContext(ctx).
		Where("owner = ?", domain.NormalizeAddress(owner)).
		Order("minted_at DESC").
		Find(&tokens).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens by owner: %w", err)
	}
	return tokens, nil
}

// ListTokensByMinter retrieves tokens minted by an address
func (s *pgStore) ListTokensByMinter(ctx context.Context, minter string) ([]schema.Token, error) {
	var tokens []schema.Token
	err := s.db.WithContext(ctx).
		Where("minter = ?", domain.NormalizeAddress(minter)).
		Order("minted_at DESC").
		Find(&tokens).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens by minter: %w", err)
	}
	return tokens, nil
}

// GetListing retrieves a token's listing slot
func (s *pgStore) GetListing(ctx context.Context, tokenID string) (*schema.Listing, error) {
	var listing schema.Listing
	err := s.db.WithContext(ctx).Where("token_id = ?", tokenID).First(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return &listing, nil
}

// ListActiveListings retrieves active listings ordered by listing time descending
func (s *pgStore) ListActiveListings(ctx context.Context, limit, offset int) ([]schema.Listing, error) {
	var listings []schema.Listing
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("listed_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&listings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active listings: %w", err)
	}
	return listings, nil
}

// ListSales retrieves sales ordered by timestamp descending
func (s *pgStore) ListSales(ctx context.Context, limit, offset int) ([]schema.Sale, error) {
	var sales []schema.Sale
	err := s.db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&sales).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	return sales, nil
}

// ListSalesByToken retrieves a token's sales ordered by timestamp descending
func (s *pgStore) ListSalesByToken(ctx context.Context, tokenID string) ([]schema.Sale, error) {
	var sales []schema.Sale
	err := s.db.WithContext(ctx).
		Where("token_id = ?", tokenID).
		Order("timestamp DESC").
		Find(&sales).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sales by token: %w", err)
	}
	return sales, nil
}

// ListOwnerHistory retrieves a token's ownership chain, newest first
func (s *pgStore) ListOwnerHistory(ctx context.Context, tokenID string) ([]schema.OwnerHistory, error) {
	var records []schema.OwnerHistory
	err := s.db.WithContext(ctx).
		Where("token_id = ?", tokenID).
		Order("timestamp DESC").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list owner history: %w", err)
	}
	return records, nil
}

// ListProfitDistributionsByToken retrieves a token's cascade payouts, newest first
func (s *pgStore) ListProfitDistributionsByToken(ctx context.Context, tokenID string) ([]schema.ProfitDistribution, error) {
	var dists []schema.ProfitDistribution
	err := s.db.WithContext(ctx).
		Where("token_id = ?", tokenID).
		Order("timestamp DESC").
		Find(&dists).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list profit distributions by token: %w", err)
	}
	return dists, nil
}

// ListProfitDistributionsByRecipient retrieves the most recent payouts to an address
func (s *pgStore) ListProfitDistributionsByRecipient(ctx context.Context, recipient string, limit int) ([]schema.ProfitDistribution, error) {
	var dists []schema.ProfitDistribution
	err := s.db.WithContext(ctx).
		Where("recipient = ?", domain.NormalizeAddress(recipient)).
		Order("timestamp DESC").
		Limit(limit).
		Find(&dists).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list profit distributions by recipient: %w", err)
	}
	return dists, nil
}

// GetUserStats retrieves per-address aggregates
func (s *pgStore) GetUserStats(ctx context.Context, address string) (*schema.UserStats, error) {
	var stats schema.UserStats
	err := s.db.WithContext(ctx).
		Where("address = ?", domain.NormalizeAddress(address)).
		First(&stats).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user stats: %w", err)
	}
	return &stats, nil
}

// GetMarketplaceStats computes marketplace-wide aggregates at query time
func (s *pgStore) GetMarketplaceStats(ctx context.Context) (*MarketplaceStats, error) {
	var stats MarketplaceStats

	if err := s.db.WithContext(ctx).Model(&schema.Token{}).Count(&stats.TotalTokens).Error; err != nil {
		return nil, fmt.Errorf("failed to count tokens: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&schema.Sale{}).Count(&stats.TotalSales).Error; err != nil {
		return nil, fmt.Errorf("failed to count sales: %w", err)
	}

	row := s.db.WithContext(ctx).
		Model(&schema.Sale{}).
		Select("COALESCE(SUM(price), 0)::text, COALESCE(SUM(profit), 0)::text").
		Row()
	if err := row.Scan(&stats.TotalVolume, &stats.TotalProfitDistributed); err != nil {
		return nil, fmt.Errorf("failed to sum sale amounts: %w", err)
	}

	if err := s.db.WithContext(ctx).
		Model(&schema.Listing{}).
		Where("active = ?", true).
		Count(&stats.ActiveListings).Error; err != nil {
		return nil, fmt.Errorf("failed to count active listings: %w", err)
	}

	return &stats, nil
}
