package store

import (
	"context"

	"github.com/louissarvin/reloop/internal/domain"
	"github.com/louissarvin/reloop/internal/store/schema"
)

// MarketplaceStats holds query-time aggregates over the derived tables
type MarketplaceStats struct {
	TotalTokens            int64  `json:"total_tokens"`
	TotalSales             int64  `json:"total_sales"`
	TotalVolume            string `json:"total_volume"`
	TotalProfitDistributed string `json:"total_profit_distributed"`
	ActiveListings         int64  `json:"active_listings"`
}

// ProjectionStore is the write side used by the single-writer projector.
// Every method runs its derived mutations in one transaction and is
// idempotent under event redelivery.
type ProjectionStore interface {
	// CreateTokenMint inserts the token, its genesis ownership row, and bumps
	// the minter's stats. A replayed mint (token row already present) is a
	// complete no-op.
	CreateTokenMint(ctx context.Context, token *schema.Token, genesis *schema.OwnerHistory) error

	// UpdateTokenOwner sets the current owner of a token
	UpdateTokenOwner(ctx context.Context, tokenID, newOwner string) error

	// AppendOwnerHistory inserts one ownership record, ignoring duplicates
	AppendOwnerHistory(ctx context.Context, record *schema.OwnerHistory) error

	// UpsertListing overwrites the token's single listing slot
	UpsertListing(ctx context.Context, listing *schema.Listing) error

	// DeactivateListing clears the active flag on the token's listing
	DeactivateListing(ctx context.Context, tokenID string) error

	// CreateSale inserts the sale, deactivates the listing, and updates
	// seller/buyer stats. A replayed sale is a complete no-op.
	CreateSale(ctx context.Context, sale *schema.Sale) error

	// CreateProfitDistribution inserts one cascade payout and bumps the
	// recipient's received total. A replayed distribution is a no-op.
	CreateProfitDistribution(ctx context.Context, dist *schema.ProfitDistribution) error

	// CreatePlatformFee inserts one platform fee record, ignoring duplicates
	CreatePlatformFee(ctx context.Context, fee *schema.PlatformFee) error

	// GetEventCursor retrieves the last committed event position for a chain,
	// nil when no event has been processed yet
	GetEventCursor(ctx context.Context, chain string) (*domain.Cursor, error)

	// SetEventCursor stores the last committed event position for a chain
	SetEventCursor(ctx context.Context, chain string, cursor domain.Cursor) error
}

// QueryStore is the read side backing the REST API
type QueryStore interface {
	// GetToken retrieves a token by ID, nil when absent
	GetToken(ctx context.Context, tokenID string) (*schema.Token, error)

	// ListTokens retrieves tokens ordered by mint time descending
	ListTokens(ctx context.Context, limit, offset int) ([]schema.Token, error)

	// ListTokensByOwner retrieves tokens currently owned by an address
	ListTokensByOwner(ctx context.Context, owner string) ([]schema.Token, error)

	// ListTokensByMinter retrieves tokens minted by an address
	ListTokensByMinter(ctx context.Context, minter string) ([]schema.Token, error)

	// GetListing retrieves a token's listing slot, nil when absent
	GetListing(ctx context.Context, tokenID string) (*schema.Listing, error)

	// ListActiveListings retrieves active listings ordered by listing time descending
	ListActiveListings(ctx context.Context, limit, offset int) ([]schema.Listing, error)

	// ListSales retrieves sales ordered by timestamp descending
	ListSales(ctx context.Context, limit, offset int) ([]schema.Sale, error)

	// ListSalesByToken retrieves a token's sales ordered by timestamp descending
	ListSalesByToken(ctx context.Context, tokenID string) ([]schema.Sale, error)

	// ListOwnerHistory retrieves a token's ownership chain, newest first
	ListOwnerHistory(ctx context.Context, tokenID string) ([]schema.OwnerHistory, error)

	// ListProfitDistributionsByToken retrieves a token's cascade payouts, newest first
	ListProfitDistributionsByToken(ctx context.Context, tokenID string) ([]schema.ProfitDistribution, error)

	// ListProfitDistributionsByRecipient retrieves the most recent payouts to an address
	ListProfitDistributionsByRecipient(ctx context.Context, recipient string, limit int) ([]schema.ProfitDistribution, error)

	// GetUserStats retrieves per-address aggregates, nil when the address has
	// never appeared in an event
	GetUserStats(ctx context.Context, address string) (*schema.UserStats, error)

	// GetMarketplaceStats computes marketplace-wide aggregates at query time
	GetMarketplaceStats(ctx context.Context) (*MarketplaceStats, error)
}

// Store combines the projection and query sides
type Store interface {
	ProjectionStore
	QueryStore
}
