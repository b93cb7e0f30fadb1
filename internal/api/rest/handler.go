package rest

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/louissarvin/reloop/internal/domain"
	"github.com/louissarvin/reloop/internal/store"
	"github.com/louissarvin/reloop/internal/uri"
)

// RECENT_PROFITS_LIMIT caps the cascade payouts returned on the user endpoint
const RECENT_PROFITS_LIMIT = 50

// Handler defines the interface for REST API handlers
//
//go:generate mockgen -source=handler.go -destination=../../mocks/api_handler.go -package=mocks -mock_names=Handler=MockAPIHandler
type Handler interface {
	// GetToken retrieves a token with its ownership chain, listing, and sales
	// GET /api/v1/tokens/:id
	GetToken(c *gin.Context)

	// ListTokens retrieves tokens ordered by mint time descending
	// GET /api/v1/tokens?limit=<limit>&offset=<offset>
	ListTokens(c *gin.Context)

	// GetTokenProfits retrieves a token's cascade payouts, newest first
	// GET /api/v1/tokens/:id/profits
	GetTokenProfits(c *gin.Context)

	// ListListings retrieves active listings ordered by listing time descending
	// GET /api/v1/listings?limit=<limit>&offset=<offset>
	ListListings(c *gin.Context)

	// ListSales retrieves sales ordered by timestamp descending
	// GET /api/v1/sales?limit=<limit>&offset=<offset>
	ListSales(c *gin.Context)

	// GetUser retrieves an address's stats, tokens, and recent payouts
	// GET /api/v1/users/:address
	GetUser(c *gin.Context)

	// GetStats retrieves marketplace-wide aggregates
	// GET /api/v1/stats
	GetStats(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	store    store.QueryStore
	rewriter *uri.Rewriter
}

// NewHandler creates a new REST API handler
func NewHandler(s store.QueryStore, rewriter *uri.Rewriter) Handler {
	return &handler{
		store:    s,
		rewriter: rewriter,
	}
}

// GetToken retrieves a token with its ownership chain, listing, and sales
func (h *handler) GetToken(c *gin.Context) {
	tokenID := c.Param("id")
	if tokenID == "" {
		respondBadRequest(c, "Token ID is required")
		return
	}

	ctx := c.Request.Context()

	token, err := h.store.GetToken(ctx, tokenID)
	if err != nil {
		respondInternalError(c, err, "Failed to get token")
		return
	}
	if token == nil {
		respondNotFound(c, "Token not found")
		return
	}

	history, err := h.store.ListOwnerHistory(ctx, tokenID)
	if err != nil {
		respondInternalError(c, err, "Failed to get owner history")
		return
	}

	listing, err := h.store.GetListing(ctx, tokenID)
	if err != nil {
		respondInternalError(c, err, "Failed to get listing")
		return
	}

	sales, err := h.store.ListSalesByToken(ctx, tokenID)
	if err != nil {
		respondInternalError(c, err, "Failed to get sales")
		return
	}

	detail := TokenDetailDTO{
		Token:        mapToken(token, h.rewriter),
		OwnerHistory: mapOwnerHistory(history),
		Sales:        mapSales(sales),
	}
	if listing != nil && listing.Active {
		dto := mapListing(listing)
		detail.Listing = &dto
	}

	c.JSON(http.StatusOK, detail)
}

// ListTokens retrieves tokens ordered by mint time descending
func (h *handler) ListTokens(c *gin.Context) {
	params, err := ParsePageQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	tokens, err := h.store.ListTokens(c.Request.Context(), params.Limit, params.Offset)
	if err != nil {
		respondInternalError(c, err, "Failed to list tokens")
		return
	}

	c.JSON(http.StatusOK, ListResponse[TokenDTO]{
		Items:  mapTokens(tokens, h.rewriter),
		Limit:  params.Limit,
		Offset: params.Offset,
	})
}

// GetTokenProfits retrieves a token's cascade payouts, newest first
func (h *handler) GetTokenProfits(c *gin.Context) {
	tokenID := c.Param("id")
	if tokenID == "" {
		respondBadRequest(c, "Token ID is required")
		return
	}

	ctx := c.Request.Context()

	token, err := h.store.GetToken(ctx, tokenID)
	if err != nil {
		respondInternalError(c, err, "Failed to get token")
		return
	}
	if token == nil {
		respondNotFound(c, "Token not found")
		return
	}

	dists, err := h.store.ListProfitDistributionsByToken(ctx, tokenID)
	if err != nil {
		respondInternalError(c, err, "Failed to get profit distributions")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token_id": tokenID,
		"profits":  mapProfitDistributions(dists),
	})
}

// ListListings retrieves active listings ordered by listing time descending
func (h *handler) ListListings(c *gin.Context) {
	params, err := ParsePageQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	listings, err := h.store.ListActiveListings(c.Request.Context(), params.Limit, params.Offset)
	if err != nil {
		respondInternalError(c, err, "Failed to list listings")
		return
	}

	c.JSON(http.StatusOK, ListResponse[ListingDTO]{
		Items:  mapListings(listings),
		Limit:  params.Limit,
		Offset: params.Offset,
	})
}

// ListSales retrieves sales ordered by timestamp descending
func (h *handler) ListSales(c *gin.Context) {
	params, err := ParsePageQuery(c)
	if err != nil {
		respondValidationError(c, err.Error())
		return
	}

	sales, err := h.store.ListSales(c.Request.Context(), params.Limit, params.Offset)
	if err != nil {
		respondInternalError(c, err, "Failed to list sales")
		return
	}

	c.JSON(http.StatusOK, ListResponse[SaleDTO]{
		Items:  mapSales(sales),
		Limit:  params.Limit,
		Offset: params.Offset,
	})
}

// GetUser retrieves an address's stats, tokens, and recent payouts
func (h *handler) GetUser(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		respondBadRequest(c, "Invalid address")
		return
	}
	address = domain.NormalizeAddress(address)

	ctx := c.Request.Context()

	stats, err := h.store.GetUserStats(ctx, address)
	if err != nil {
		respondInternalError(c, err, "Failed to get user stats")
		return
	}

	owned, err := h.store.ListTokensByOwner(ctx, address)
	if err != nil {
		respondInternalError(c, err, "Failed to get owned tokens")
		return
	}

	minted, err := h.store.ListTokensByMinter(ctx, address)
	if err != nil {
		respondInternalError(c, err, "Failed to get minted tokens")
		return
	}

	profits, err := h.store.ListProfitDistributionsByRecipient(ctx, address, RECENT_PROFITS_LIMIT)
	if err != nil {
		respondInternalError(c, err, "Failed to get profit distributions")
		return
	}

	c.JSON(http.StatusOK, UserDTO{
		Address:       address,
		Stats:         mapUserStats(stats),
		OwnedTokens:   mapTokens(owned, h.rewriter),
		MintedTokens:  mapTokens(minted, h.rewriter),
		RecentProfits: mapProfitDistributions(profits),
	})
}

// GetStats retrieves marketplace-wide aggregates
func (h *handler) GetStats(c *gin.Context) {
	stats, err := h.store.GetMarketplaceStats(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Failed to get marketplace stats")
		return
	}

	c.JSON(http.StatusOK, stats)
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":  "ok",
		"service": "reloop-api",
	})
}
