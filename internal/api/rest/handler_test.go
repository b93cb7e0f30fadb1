package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/louissarvin/reloop/internal/logger"
	"github.com/louissarvin/reloop/internal/store"
	"github.com/louissarvin/reloop/internal/store/schema"
	"github.com/louissarvin/reloop/internal/uri"
)

// fakeQueryStore is an in-memory QueryStore for handler tests
type fakeQueryStore struct {
	tokens   map[string]*schema.Token
	listings map[string]*schema.Listing
	sales    []schema.Sale
	history  []schema.OwnerHistory
	profits  []schema.ProfitDistribution
	stats    map[string]*schema.UserStats
}

func newFakeQueryStore() *fakeQueryStore {
	return &fakeQueryStore{
		tokens:   make(map[string]*schema.Token),
		listings: make(map[string]*schema.Listing),
		stats:    make(map[string]*schema.UserStats),
	}
}

func (f *fakeQueryStore) GetToken(_ context.Context, tokenID string) (*schema.Token, error) {
	return f.tokens[tokenID], nil
}

func (f *fakeQueryStore) ListTokens(_ context.Context, limit, offset int) ([]schema.Token, error) {
	var result []schema.Token
	for _, t := range f.tokens {
		result = append(result, *t)
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (f *fakeQueryStore) ListTokensByOwner(_ context.Context, owner string) ([]schema.Token, error) {
	var result []schema.Token
	for _, t := range f.tokens {
		if t.Owner == owner {
			result = append(result, *t)
		}
	}
	return result, nil
}

func (f *fakeQueryStore) ListTokensByMinter(_ context.Context, minter string) ([]schema.Token, error) {
	var result []schema.Token
	for _, t := range f.tokens {
		if t.Minter == minter {
			result = append(result, *t)
		}
	}
	return result, nil
}

func (f *fakeQueryStore) GetListing(_ context.Context, tokenID string) (*schema.Listing, error) {
	return f.listings[tokenID], nil
}

func (f *fakeQueryStore) ListActiveListings(_ context.Context, limit, offset int) ([]schema.Listing, error) {
	var result []schema.Listing
	for _, l := range f.listings {
		if l.Active {
			result = append(result, *l)
		}
	}
	return result, nil
}

func (f *fakeQueryStore) ListSales(_ context.Context, limit, offset int) ([]schema.Sale, error) {
	return f.sales, nil
}

func (f *fakeQueryStore) ListSalesByToken(_ context.Context, tokenID string) ([]schema.Sale, error) {
	var result []schema.Sale
	for _, s := range f.sales {
		if s.TokenID == tokenID {
			result = append(result, s)
		}
	}
	return result, nil
}

func (f *fakeQueryStore) ListOwnerHistory(_ context.Context, tokenID string) ([]schema.OwnerHistory, error) {
	var result []schema.OwnerHistory
	for _, r := range f.history {
		if r.TokenID == tokenID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (f *fakeQueryStore) ListProfitDistributionsByToken(_ context.Context, tokenID string) ([]schema.ProfitDistribution, error) {
	var result []schema.ProfitDistribution
	for _, d := range f.profits {
		if d.TokenID == tokenID {
			result = append(result, d)
		}
	}
	return result, nil
}

func (f *fakeQueryStore) ListProfitDistributionsByRecipient(_ context.Context, recipient string, limit int) ([]schema.ProfitDistribution, error) {
	var result []schema.ProfitDistribution
	for _, d := range f.profits {
		if d.Recipient == recipient {
			result = append(result, d)
		}
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (f *fakeQueryStore) GetUserStats(_ context.Context, address string) (*schema.UserStats, error) {
	return f.stats[address], nil
}

func (f *fakeQueryStore) GetMarketplaceStats(_ context.Context) (*store.MarketplaceStats, error) {
	return &store.MarketplaceStats{
		TotalTokens:            int64(len(f.tokens)),
		TotalSales:             int64(len(f.sales)),
		TotalVolume:            "0",
		TotalProfitDistributed: "0",
		ActiveListings:         0,
	}, nil
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := logger.Initialize(logger.Config{Debug: true}); err != nil {
		panic(err)
	}
	m.Run()
}

func setupRouter(fake *fakeQueryStore) *gin.Engine {
	router := gin.New()
	SetupRoutes(router, NewHandler(fake, uri.NewRewriter("https://ipfs.io")))
	return router
}

func doRequest(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func seedToken(f *fakeQueryStore, tokenID, minter, owner string) {
	tokenURI := "ipfs://QmTest/" + tokenID
	f.tokens[tokenID] = &schema.Token{
		TokenID:         tokenID,
		Minter:          minter,
		Owner:           owner,
		TokenURI:        &tokenURI,
		Depth:           3,
		ProfitSplitsBps: datatypes.JSON(`[500,300,200]`),
		MintedAt:        time.Now().UTC(),
		MintTxHash:      "0xabc",
	}
}

func TestHealthCheck(t *testing.T) {
	w := doRequest(t, setupRouter(newFakeQueryStore()), "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestGetToken(t *testing.T) {
	fake := newFakeQueryStore()
	seedToken(fake, "7", "0xminter", "0xowner")
	fake.history = append(fake.history, schema.OwnerHistory{
		ID:            "0xabc-0",
		TokenID:       "7",
		Owner:         "0xminter",
		PurchasePrice: "0",
		Timestamp:     time.Now().UTC(),
		TxHash:        "0xabc",
	})
	fake.listings["7"] = &schema.Listing{
		TokenID:  "7",
		Seller:   "0xowner",
		Price:    "1000",
		Active:   true,
		ListedAt: time.Now().UTC(),
		TxHash:   "0xdef",
	}

	router := setupRouter(fake)

	t.Run("found", func(t *testing.T) {
		w := doRequest(t, router, "/api/v1/tokens/7")
		require.Equal(t, http.StatusOK, w.Code)

		var detail TokenDetailDTO
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
		assert.Equal(t, "7", detail.Token.TokenID)
		assert.Equal(t, []uint16{500, 300, 200}, detail.Token.ProfitSplitsBps)
		require.NotNil(t, detail.Token.MetadataURL)
		assert.Equal(t, "https://ipfs.io/ipfs/QmTest/7", *detail.Token.MetadataURL)
		assert.Len(t, detail.OwnerHistory, 1)
		require.NotNil(t, detail.Listing)
		assert.Equal(t, "1000", detail.Listing.Price)
	})

	t.Run("not found", func(t *testing.T) {
		w := doRequest(t, router, "/api/v1/tokens/999")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("inactive listing omitted", func(t *testing.T) {
		fake.listings["7"].Active = false
		defer func() { fake.listings["7"].Active = true }()

		w := doRequest(t, router, "/api/v1/tokens/7")
		require.Equal(t, http.StatusOK, w.Code)

		var detail TokenDetailDTO
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
		assert.Nil(t, detail.Listing)
	})
}

func TestListTokens(t *testing.T) {
	fake := newFakeQueryStore()
	seedToken(fake, "1", "0xminter", "0xowner")
	seedToken(fake, "2", "0xminter", "0xowner")

	w := doRequest(t, setupRouter(fake), "/api/v1/tokens?limit=1")
	require.Equal(t, http.StatusOK, w.Code)

	var resp ListResponse[TokenDTO]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, 1)
	assert.Equal(t, 1, resp.Limit)
	assert.Equal(t, 0, resp.Offset)
}

func TestListTokensCapsLimit(t *testing.T) {
	fake := newFakeQueryStore()

	w := doRequest(t, setupRouter(fake), "/api/v1/tokens?limit=5000")
	require.Equal(t, http.StatusOK, w.Code)

	var resp ListResponse[TokenDTO]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, MAX_PAGE_SIZE, resp.Limit)
}

func TestGetTokenProfits(t *testing.T) {
	fake := newFakeQueryStore()
	seedToken(fake, "7", "0xminter", "0xowner")
	fake.profits = append(fake.profits, schema.ProfitDistribution{
		ID:         "0xsale-2",
		TokenID:    "7",
		Recipient:  "0xminter",
		Amount:     "50",
		Generation: 1,
		Timestamp:  time.Now().UTC(),
		TxHash:     "0xsale",
	})

	router := setupRouter(fake)

	t.Run("found", func(t *testing.T) {
		w := doRequest(t, router, "/api/v1/tokens/7/profits")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"amount":"50"`)
	})

	t.Run("token not found", func(t *testing.T) {
		w := doRequest(t, router, "/api/v1/tokens/999/profits")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestGetUser(t *testing.T) {
	address := "0x00000000000000000000000000000000000000aa"
	fake := newFakeQueryStore()
	seedToken(fake, "7", address, address)
	fake.stats[address] = &schema.UserStats{
		Address:        address,
		TokensMinted:   1,
		TotalSpent:     "0",
		TotalEarned:    "0",
		ProfitReceived: "50",
	}

	router := setupRouter(fake)

	t.Run("known address", func(t *testing.T) {
		w := doRequest(t, router, "/api/v1/users/"+address)
		require.Equal(t, http.StatusOK, w.Code)

		var user UserDTO
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
		assert.Equal(t, address, user.Address)
		assert.Equal(t, 1, user.Stats.TokensMinted)
		assert.Equal(t, "50", user.Stats.ProfitReceived)
		assert.Len(t, user.OwnedTokens, 1)
		assert.Len(t, user.MintedTokens, 1)
	})

	t.Run("unknown address gets zero stats", func(t *testing.T) {
		w := doRequest(t, router, "/api/v1/users/0x00000000000000000000000000000000000000bb")
		require.Equal(t, http.StatusOK, w.Code)

		var user UserDTO
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
		assert.Equal(t, 0, user.Stats.TokensMinted)
		assert.Equal(t, "0", user.Stats.TotalSpent)
		assert.Equal(t, "0", user.Stats.ProfitReceived)
		assert.Empty(t, user.OwnedTokens)
	})

	t.Run("uppercase address normalized", func(t *testing.T) {
		w := doRequest(t, router, "/api/v1/users/0x00000000000000000000000000000000000000AA")
		require.Equal(t, http.StatusOK, w.Code)

		var user UserDTO
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
		assert.Equal(t, address, user.Address)
		assert.Equal(t, 1, user.Stats.TokensMinted)
	})

	t.Run("invalid address", func(t *testing.T) {
		w := doRequest(t, router, "/api/v1/users/not-an-address")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetStats(t *testing.T) {
	fake := newFakeQueryStore()
	seedToken(fake, "1", "0xminter", "0xowner")

	w := doRequest(t, setupRouter(fake), "/api/v1/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var stats store.MarketplaceStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.TotalTokens)
}
