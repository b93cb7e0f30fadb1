package rest

import (
	"encoding/json"
	"time"

	"github.com/louissarvin/reloop/internal/store/schema"
	"github.com/louissarvin/reloop/internal/uri"
)

// TokenDTO is the API representation of a token. All monetary amounts in
// this package are decimal strings in the chain's smallest unit.
type TokenDTO struct {
	TokenID         string    `json:"token_id"`
	Minter          string    `json:"minter"`
	Owner           string    `json:"owner"`
	TokenURI        *string   `json:"token_uri"`
	MetadataURL     *string   `json:"metadata_url"`
	Depth           int       `json:"depth"`
	ProfitSplitsBps []uint16  `json:"profit_splits_bps"`
	MintedAt        time.Time `json:"minted_at"`
	MintTxHash      string    `json:"mint_tx_hash"`
}

// ListingDTO is the API representation of a marketplace listing
type ListingDTO struct {
	TokenID  string    `json:"token_id"`
	Seller   string    `json:"seller"`
	Price    string    `json:"price"`
	Active   bool      `json:"active"`
	ListedAt time.Time `json:"listed_at"`
	TxHash   string    `json:"tx_hash"`
}

// SaleDTO is the API representation of a completed sale
type SaleDTO struct {
	ID          string    `json:"id"`
	TokenID     string    `json:"token_id"`
	Seller      string    `json:"seller"`
	Buyer       string    `json:"buyer"`
	Price       string    `json:"price"`
	Profit      string    `json:"profit"`
	Timestamp   time.Time `json:"timestamp"`
	TxHash      string    `json:"tx_hash"`
	BlockNumber uint64    `json:"block_number"`
}

// OwnerHistoryDTO is one entry of a token's ownership chain
type OwnerHistoryDTO struct {
	ID            string    `json:"id"`
	TokenID       string    `json:"token_id"`
	Owner         string    `json:"owner"`
	PurchasePrice string    `json:"purchase_price"`
	Timestamp     time.Time `json:"timestamp"`
	TxHash        string    `json:"tx_hash"`
}

// ProfitDistributionDTO is one cascade payout
type ProfitDistributionDTO struct {
	ID         string    `json:"id"`
	TokenID    string    `json:"token_id"`
	SaleID     *string   `json:"sale_id"`
	Recipient  string    `json:"recipient"`
	Amount     string    `json:"amount"`
	Generation int       `json:"generation"`
	Timestamp  time.Time `json:"timestamp"`
	TxHash     string    `json:"tx_hash"`
}

// TokenDetailDTO bundles a token with its ownership chain, active listing,
// and sales for the single-token endpoint
type TokenDetailDTO struct {
	Token        TokenDTO          `json:"token"`
	OwnerHistory []OwnerHistoryDTO `json:"owner_history"`
	Listing      *ListingDTO       `json:"listing"`
	Sales        []SaleDTO         `json:"sales"`
}

// UserStatsDTO holds per-address aggregates. Addresses never seen in an
// event get all-zero values.
type UserStatsDTO struct {
	TokensMinted   int    `json:"tokens_minted"`
	TokensBought   int    `json:"tokens_bought"`
	TokensSold     int    `json:"tokens_sold"`
	TotalSpent     string `json:"total_spent"`
	TotalEarned    string `json:"total_earned"`
	ProfitReceived string `json:"profit_received"`
}

// UserDTO bundles an address's stats with its tokens and recent payouts
type UserDTO struct {
	Address       string                  `json:"address"`
	Stats         UserStatsDTO            `json:"stats"`
	OwnedTokens   []TokenDTO              `json:"owned_tokens"`
	MintedTokens  []TokenDTO              `json:"minted_tokens"`
	RecentProfits []ProfitDistributionDTO `json:"recent_profits"`
}

// ListResponse is the envelope for paginated list endpoints
type ListResponse[T any] struct {
	Items  []T `json:"items"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func mapToken(t *schema.Token, rewriter *uri.Rewriter) TokenDTO {
	var splits []uint16
	// Stored by the projector as a JSON array; a decode failure leaves an
	// empty slice rather than failing the request.
	_ = json.Unmarshal(t.ProfitSplitsBps, &splits)
	if splits == nil {
		splits = []uint16{}
	}

	var metadataURL *string
	if t.TokenURI != nil {
		rewritten := rewriter.Rewrite(*t.TokenURI)
		metadataURL = &rewritten
	}

	return TokenDTO{
		TokenID:         t.TokenID,
		Minter:          t.Minter,
		Owner:           t.Owner,
		TokenURI:        t.TokenURI,
		MetadataURL:     metadataURL,
		Depth:           t.Depth,
		ProfitSplitsBps: splits,
		MintedAt:        t.MintedAt,
		MintTxHash:      t.MintTxHash,
	}
}

func mapTokens(tokens []schema.Token, rewriter *uri.Rewriter) []TokenDTO {
	result := make([]TokenDTO, 0, len(tokens))
	for i := range tokens {
		result = append(result, mapToken(&tokens[i], rewriter))
	}
	return result
}

func mapListing(l *schema.Listing) ListingDTO {
	return ListingDTO{
		TokenID:  l.TokenID,
		Seller:   l.Seller,
		Price:    l.Price,
		Active:   l.Active,
		ListedAt: l.ListedAt,
		TxHash:   l.TxHash,
	}
}

func mapListings(listings []schema.Listing) []ListingDTO {
	result := make([]ListingDTO, 0, len(listings))
	for i := range listings {
		result = append(result, mapListing(&listings[i]))
	}
	return result
}

func mapSale(s *schema.Sale) SaleDTO {
	return SaleDTO{
		ID:          s.ID,
		TokenID:     s.TokenID,
		Seller:      s.Seller,
		Buyer:       s.Buyer,
		Price:       s.Price,
		Profit:      s.Profit,
		Timestamp:   s.Timestamp,
		TxHash:      s.TxHash,
		BlockNumber: s.BlockNumber,
	}
}

func mapSales(sales []schema.Sale) []SaleDTO {
	result := make([]SaleDTO, 0, len(sales))
	for i := range sales {
		result = append(result, mapSale(&sales[i]))
	}
	return result
}

func mapOwnerHistory(records []schema.OwnerHistory) []OwnerHistoryDTO {
	result := make([]OwnerHistoryDTO, 0, len(records))
	for _, r := range records {
		result = append(result, OwnerHistoryDTO{
			ID:            r.ID,
			TokenID:       r.TokenID,
			Owner:         r.Owner,
			PurchasePrice: r.PurchasePrice,
			Timestamp:     r.Timestamp,
			TxHash:        r.TxHash,
		})
	}
	return result
}

func mapProfitDistributions(dists []schema.ProfitDistribution) []ProfitDistributionDTO {
	result := make([]ProfitDistributionDTO, 0, len(dists))
	for _, d := range dists {
		result = append(result, ProfitDistributionDTO{
			ID:         d.ID,
			TokenID:    d.TokenID,
			SaleID:     d.SaleID,
			Recipient:  d.Recipient,
			Amount:     d.Amount,
			Generation: d.Generation,
			Timestamp:  d.Timestamp,
			TxHash:     d.TxHash,
		})
	}
	return result
}

func mapUserStats(s *schema.UserStats) UserStatsDTO {
	if s == nil {
		return UserStatsDTO{
			TotalSpent:     "0",
			TotalEarned:    "0",
			ProfitReceived: "0",
		}
	}

	return UserStatsDTO{
		TokensMinted:   s.TokensMinted,
		TokensBought:   s.TokensBought,
		TokensSold:     s.TokensSold,
		TotalSpent:     s.TotalSpent,
		TotalEarned:    s.TotalEarned,
		ProfitReceived: s.ProfitReceived,
	}
}
