package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/louissarvin/reloop/internal/domain"
	"github.com/louissarvin/reloop/internal/store/schema"
)

// =============================================================================
// Test Data Builders
// =============================================================================

func buildTestToken(tokenID, minter string, mintedAt time.Time) *schema.Token {
	uri := fmt.Sprintf("ipfs://QmTest/%s", tokenID)
	return &schema.Token{
		TokenID:         tokenID,
		Minter:          minter,
		Owner:           minter,
		TokenURI:        &uri,
		Depth:           3,
		ProfitSplitsBps: datatypes.JSON(`[500,300,200]`),
		MintedAt:        mintedAt,
		MintTxHash:      fmt.Sprintf("0xmint%s", tokenID),
	}
}

func buildTestGenesis(tokenID, minter string, ts time.Time) *schema.OwnerHistory {
	return &schema.OwnerHistory{
		ID:            fmt.Sprintf("0xmint%s-0", tokenID),
		TokenID:       tokenID,
		Owner:         minter,
		PurchasePrice: "0",
		Timestamp:     ts,
		TxHash:        fmt.Sprintf("0xmint%s", tokenID),
	}
}

func buildTestSale(id, tokenID, seller, buyer, price, profit string, ts time.Time) *schema.Sale {
	return &schema.Sale{
		ID:          id,
		TokenID:     tokenID,
		Seller:      seller,
		Buyer:       buyer,
		Price:       price,
		Profit:      profit,
		Timestamp:   ts,
		TxHash:      "0xsale",
		BlockNumber: 1000,
	}
}

// =============================================================================
// Test: CreateTokenMint
// =============================================================================

func testCreateTokenMint(t *testing.T, store Store) {
	ctx := context.Background()
	minter := "0x1234567890123456789012345678901234567890"
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("successful mint creates token, genesis history, and minter stats", func(t *testing.T) {
		token := buildTestToken("1", minter, now)
		genesis := buildTestGenesis("1", minter, now)
		require.NoError(t, store.CreateTokenMint(ctx, token, genesis))

		got, err := store.GetToken(ctx, "1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, minter, got.Minter)
		assert.Equal(t, minter, got.Owner)
		assert.Equal(t, 3, got.Depth)

		history, err := store.ListOwnerHistory(ctx, "1")
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, "0", history[0].PurchasePrice)
		assert.Equal(t, minter, history[0].Owner)

		stats, err := store.GetUserStats(ctx, minter)
		require.NoError(t, err)
		require.NotNil(t, stats)
		assert.Equal(t, 1, stats.TokensMinted)
		assert.Equal(t, "0", stats.TotalSpent)
	})

	t.Run("replayed mint is a complete no-op", func(t *testing.T) {
		token := buildTestToken("2", minter, now)
		genesis := buildTestGenesis("2", minter, now)
		require.NoError(t, store.CreateTokenMint(ctx, token, genesis))

		replay := buildTestToken("2", minter, now)
		replayGenesis := buildTestGenesis("2", minter, now)
		require.NoError(t, store.CreateTokenMint(ctx, replay, replayGenesis))

		history, err := store.ListOwnerHistory(ctx, "2")
		require.NoError(t, err)
		assert.Len(t, history, 1)

		stats, err := store.GetUserStats(ctx, minter)
		require.NoError(t, err)
		require.NotNil(t, stats)
		// One bump for token 1, one for token 2, none for the replay
		assert.Equal(t, 2, stats.TokensMinted)
	})

	t.Run("mixed-case minter is stored lowercase", func(t *testing.T) {
		upper := "0xABCDEF1234567890123456789012345678901234"
		token := buildTestToken("3", upper, now)
		genesis := buildTestGenesis("3", upper, now)
		require.NoError(t, store.CreateTokenMint(ctx, token, genesis))

		got, err := store.GetToken(ctx, "3")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, domain.NormalizeAddress(upper), got.Minter)
		assert.Equal(t, domain.NormalizeAddress(upper), got.Owner)
	})
}

// =============================================================================
// Test: UpdateTokenOwner
// =============================================================================

func testUpdateTokenOwner(t *testing.T, store Store) {
	ctx := context.Background()
	minter := "0x1234567890123456789012345678901234567890"
	newOwner := "0xABCDEF1234567890123456789012345678901234"
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, store.CreateTokenMint(ctx, buildTestToken("1", minter, now), buildTestGenesis("1", minter, now)))

	require.NoError(t, store.UpdateTokenOwner(ctx, "1", newOwner))

	got, err := store.GetToken(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.NormalizeAddress(newOwner), got.Owner)
	assert.Equal(t, minter, got.Minter)

	// Updating a non-existent token is not an error, just zero rows
	require.NoError(t, store.UpdateTokenOwner(ctx, "999", newOwner))
}

// =============================================================================
// Test: AppendOwnerHistory
// =============================================================================

func testAppendOwnerHistory(t *testing.T, store Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	record := &schema.OwnerHistory{
		ID:            "0xtx-5",
		TokenID:       "1",
		Owner:         "0xABCDEF1234567890123456789012345678901234",
		PurchasePrice: "1000",
		Timestamp:     now,
		TxHash:        "0xtx",
	}
	require.NoError(t, store.AppendOwnerHistory(ctx, record))

	// Redelivery of the same log is ignored
	dup := *record
	dup.PurchasePrice = "9999"
	require.NoError(t, store.AppendOwnerHistory(ctx, &dup))

	history, err := store.ListOwnerHistory(ctx, "1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "1000", history[0].PurchasePrice)
	assert.Equal(t, "0xabcdef1234567890123456789012345678901234", history[0].Owner)
}

// =============================================================================
// Test: Listings
// =============================================================================

func testListings(t *testing.T, store Store) {
	ctx := context.Background()
	seller := "0x1234567890123456789012345678901234567890"
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("upsert overwrites the whole slot", func(t *testing.T) {
		require.NoError(t, store.UpsertListing(ctx, &schema.Listing{
			TokenID:  "1",
			Seller:   seller,
			Price:    "1000",
			Active:   true,
			ListedAt: now,
			TxHash:   "0xlist1",
		}))

		require.NoError(t, store.UpsertListing(ctx, &schema.Listing{
			TokenID:  "1",
			Seller:   seller,
			Price:    "2000",
			Active:   true,
			ListedAt: now.Add(time.Minute),
			TxHash:   "0xlist2",
		}))

		listing, err := store.GetListing(ctx, "1")
		require.NoError(t, err)
		require.NotNil(t, listing)
		assert.Equal(t, "2000", listing.Price)
		assert.Equal(t, "0xlist2", listing.TxHash)
		assert.True(t, listing.Active)
	})

	t.Run("deactivate clears the active flag", func(t *testing.T) {
		require.NoError(t, store.DeactivateListing(ctx, "1"))

		listing, err := store.GetListing(ctx, "1")
		require.NoError(t, err)
		require.NotNil(t, listing)
		assert.False(t, listing.Active)
		assert.Equal(t, "2000", listing.Price)
	})

	t.Run("relisting reactivates the slot", func(t *testing.T) {
		require.NoError(t, store.UpsertListing(ctx, &schema.Listing{
			TokenID:  "1",
			Seller:   seller,
			Price:    "3000",
			Active:   true,
			ListedAt: now.Add(2 * time.Minute),
			TxHash:   "0xlist3",
		}))

		listing, err := store.GetListing(ctx, "1")
		require.NoError(t, err)
		require.NotNil(t, listing)
		assert.True(t, listing.Active)
		assert.Equal(t, "3000", listing.Price)
	})

	t.Run("active listings excludes deactivated slots", func(t *testing.T) {
		require.NoError(t, store.UpsertListing(ctx, &schema.Listing{
			TokenID:  "2",
			Seller:   seller,
			Price:    "500",
			Active:   true,
			ListedAt: now.Add(3 * time.Minute),
			TxHash:   "0xlist4",
		}))
		require.NoError(t, store.DeactivateListing(ctx, "2"))

		listings, err := store.ListActiveListings(ctx, 10, 0)
		require.NoError(t, err)
		require.Len(t, listings, 1)
		assert.Equal(t, "1", listings[0].TokenID)
	})
}

// =============================================================================
// Test: CreateSale
// =============================================================================

func testCreateSale(t *testing.T, store Store) {
	ctx := context.Background()
	seller := "0x1111111111111111111111111111111111111111"
	buyer := "0x2222222222222222222222222222222222222222"
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("sale deactivates listing and updates both sides' stats", func(t *testing.T) {
		require.NoError(t, store.UpsertListing(ctx, &schema.Listing{
			TokenID:  "1",
			Seller:   seller,
			Price:    "1000",
			Active:   true,
			ListedAt: now,
			TxHash:   "0xlist",
		}))

		sale := buildTestSale("0xsale-1", "1", seller, buyer, "1000", "80", now)
		require.NoError(t, store.CreateSale(ctx, sale))

		listing, err := store.GetListing(ctx, "1")
		require.NoError(t, err)
		require.NotNil(t, listing)
		assert.False(t, listing.Active)

		sellerStats, err := store.GetUserStats(ctx, seller)
		require.NoError(t, err)
		require.NotNil(t, sellerStats)
		assert.Equal(t, 1, sellerStats.TokensSold)
		// Seller earns price net of the cascade slice
		assert.Equal(t, "920", sellerStats.TotalEarned)
		assert.Equal(t, "0", sellerStats.TotalSpent)

		buyerStats, err := store.GetUserStats(ctx, buyer)
		require.NoError(t, err)
		require.NotNil(t, buyerStats)
		assert.Equal(t, 1, buyerStats.TokensBought)
		assert.Equal(t, "1000", buyerStats.TotalSpent)
	})

	t.Run("replayed sale is a complete no-op", func(t *testing.T) {
		replay := buildTestSale("0xsale-1", "1", seller, buyer, "1000", "80", now)
		require.NoError(t, store.CreateSale(ctx, replay))

		sellerStats, err := store.GetUserStats(ctx, seller)
		require.NoError(t, err)
		require.NotNil(t, sellerStats)
		assert.Equal(t, 1, sellerStats.TokensSold)
		assert.Equal(t, "920", sellerStats.TotalEarned)

		sales, err := store.ListSalesByToken(ctx, "1")
		require.NoError(t, err)
		assert.Len(t, sales, 1)
	})

	t.Run("stats accumulate across sales", func(t *testing.T) {
		sale := buildTestSale("0xsale-2", "2", seller, buyer, "500", "50", now.Add(time.Minute))
		require.NoError(t, store.CreateSale(ctx, sale))

		sellerStats, err := store.GetUserStats(ctx, seller)
		require.NoError(t, err)
		require.NotNil(t, sellerStats)
		assert.Equal(t, 2, sellerStats.TokensSold)
		assert.Equal(t, "1370", sellerStats.TotalEarned)

		buyerStats, err := store.GetUserStats(ctx, buyer)
		require.NoError(t, err)
		require.NotNil(t, buyerStats)
		assert.Equal(t, "1500", buyerStats.TotalSpent)
	})
}

// =============================================================================
// Test: CreateProfitDistribution
// =============================================================================

func testCreateProfitDistribution(t *testing.T, store Store) {
	ctx := context.Background()
	recipient := "0x3333333333333333333333333333333333333333"
	now := time.Now().UTC().Truncate(time.Microsecond)

	dist := &schema.ProfitDistribution{
		ID:         "0xsale-2",
		TokenID:    "1",
		Recipient:  recipient,
		Amount:     "50",
		Generation: 1,
		Timestamp:  now,
		TxHash:     "0xsale",
	}
	require.NoError(t, store.CreateProfitDistribution(ctx, dist))

	// Replay must not double the received total
	replay := *dist
	require.NoError(t, store.CreateProfitDistribution(ctx, &replay))

	stats, err := store.GetUserStats(ctx, recipient)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, "50", stats.ProfitReceived)
	assert.Equal(t, 0, stats.TokensMinted)

	dists, err := store.ListProfitDistributionsByToken(ctx, "1")
	require.NoError(t, err)
	require.Len(t, dists, 1)
	assert.Nil(t, dists[0].SaleID)
	assert.Equal(t, 1, dists[0].Generation)

	byRecipient, err := store.ListProfitDistributionsByRecipient(ctx, recipient, 10)
	require.NoError(t, err)
	assert.Len(t, byRecipient, 1)
}

// =============================================================================
// Test: CreatePlatformFee
// =============================================================================

func testCreatePlatformFee(t *testing.T, store Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	fee := &schema.PlatformFee{
		ID:        "0xsale-3",
		TokenID:   "1",
		Amount:    "20",
		Timestamp: now,
		TxHash:    "0xsale",
	}
	require.NoError(t, store.CreatePlatformFee(ctx, fee))

	replay := *fee
	replay.Amount = "999"
	require.NoError(t, store.CreatePlatformFee(ctx, &replay))
}

// =============================================================================
// Test: Event cursor
// =============================================================================

func testEventCursor(t *testing.T, store Store) {
	ctx := context.Background()
	chain := "eip155:11155111"

	t.Run("absent cursor returns nil", func(t *testing.T) {
		cursor, err := store.GetEventCursor(ctx, chain)
		require.NoError(t, err)
		assert.Nil(t, cursor)
	})

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, store.SetEventCursor(ctx, chain, domain.Cursor{BlockNumber: 100, LogIndex: 7}))

		cursor, err := store.GetEventCursor(ctx, chain)
		require.NoError(t, err)
		require.NotNil(t, cursor)
		assert.Equal(t, uint64(100), cursor.BlockNumber)
		assert.Equal(t, uint(7), cursor.LogIndex)
	})

	t.Run("overwrite advances the cursor", func(t *testing.T) {
		require.NoError(t, store.SetEventCursor(ctx, chain, domain.Cursor{BlockNumber: 101, LogIndex: 0}))

		cursor, err := store.GetEventCursor(ctx, chain)
		require.NoError(t, err)
		require.NotNil(t, cursor)
		assert.Equal(t, uint64(101), cursor.BlockNumber)
		assert.Equal(t, uint(0), cursor.LogIndex)
	})

	t.Run("cursors are isolated per chain", func(t *testing.T) {
		other, err := store.GetEventCursor(ctx, "eip155:1")
		require.NoError(t, err)
		assert.Nil(t, other)
	})
}

// =============================================================================
// Test: Queries
// =============================================================================

func testQueries(t *testing.T, store Store) {
	ctx := context.Background()
	minter := "0x1234567890123456789012345678901234567890"
	other := "0x9999999999999999999999999999999999999999"
	base := time.Now().UTC().Truncate(time.Microsecond)

	for i := 1; i <= 3; i++ {
		tokenID := fmt.Sprintf("%d", i)
		mintedAt := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.CreateTokenMint(ctx,
			buildTestToken(tokenID, minter, mintedAt),
			buildTestGenesis(tokenID, minter, mintedAt)))
	}
	require.NoError(t, store.UpdateTokenOwner(ctx, "3", other))

	t.Run("list tokens newest first with pagination", func(t *testing.T) {
		tokens, err := store.ListTokens(ctx, 2, 0)
		require.NoError(t, err)
		require.Len(t, tokens, 2)
		assert.Equal(t, "3", tokens[0].TokenID)
		assert.Equal(t, "2", tokens[1].TokenID)

		rest, err := store.ListTokens(ctx, 2, 2)
		require.NoError(t, err)
		require.Len(t, rest, 1)
		assert.Equal(t, "1", rest[0].TokenID)
	})

	t.Run("list tokens by owner follows transfers", func(t *testing.T) {
		owned, err := store.ListTokensByOwner(ctx, other)
		require.NoError(t, err)
		require.Len(t, owned, 1)
		assert.Equal(t, "3", owned[0].TokenID)

		stillOwned, err := store.ListTokensByOwner(ctx, minter)
		require.NoError(t, err)
		assert.Len(t, stillOwned, 2)
	})

	t.Run("list tokens by minter is immutable", func(t *testing.T) {
		minted, err := store.ListTokensByMinter(ctx, minter)
		require.NoError(t, err)
		assert.Len(t, minted, 3)
	})

	t.Run("unknown user stats returns nil", func(t *testing.T) {
		stats, err := store.GetUserStats(ctx, "0x0000000000000000000000000000000000000042")
		require.NoError(t, err)
		assert.Nil(t, stats)
	})

	t.Run("marketplace stats aggregates sales and listings", func(t *testing.T) {
		require.NoError(t, store.UpsertListing(ctx, &schema.Listing{
			TokenID:  "1",
			Seller:   minter,
			Price:    "1000",
			Active:   true,
			ListedAt: base,
			TxHash:   "0xlist",
		}))
		require.NoError(t, store.CreateSale(ctx,
			buildTestSale("0xsale-9", "2", minter, other, "1000", "80", base)))

		stats, err := store.GetMarketplaceStats(ctx)
		require.NoError(t, err)
		require.NotNil(t, stats)
		assert.Equal(t, int64(3), stats.TotalTokens)
		assert.Equal(t, int64(1), stats.TotalSales)
		assert.Equal(t, "1000", stats.TotalVolume)
		assert.Equal(t, "80", stats.TotalProfitDistributed)
		assert.Equal(t, int64(1), stats.ActiveListings)
	})
}

// RunStoreTests runs the store test suite against a Store implementation
func RunStoreTests(t *testing.T, initDB func(t *testing.T) Store, cleanupDB func(t *testing.T)) {
	tests := []struct {
		name string
		fn   func(*testing.T, Store)
	}{
		{"CreateTokenMint", testCreateTokenMint},
		{"UpdateTokenOwner", testUpdateTokenOwner},
		{"AppendOwnerHistory", testAppendOwnerHistory},
		{"Listings", testListings},
		{"CreateSale", testCreateSale},
		{"CreateProfitDistribution", testCreateProfitDistribution},
		{"CreatePlatformFee", testCreatePlatformFee},
		{"EventCursor", testEventCursor},
		{"Queries", testQueries},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := initDB(t)
			defer cleanupDB(t)
			tt.fn(t, store)
		})
	}
}
