package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EventType identifies a token or marketplace lifecycle event emitted on-chain
type EventType string

const (
	EventTypeTokenMinted          EventType = "token_minted"
	EventTypeTransfer             EventType = "transfer"
	EventTypeOwnerHistoryUpdated  EventType = "owner_history_updated"
	EventTypeListed               EventType = "listed"
	EventTypeDelisted             EventType = "delisted"
	EventTypeSale                 EventType = "sale"
	EventTypeProfitDistributed    EventType = "profit_distributed"
	EventTypePlatformFeeCollected EventType = "platform_fee_collected"
)

// Event is a decoded on-chain event in chain order.
// Exactly one payload pointer is set, matching Type.
type Event struct {
	Chain           string    `json:"chain"`
	Type            EventType `json:"type"`
	ContractAddress string    `json:"contract_address"`
	TxHash          string    `json:"tx_hash"`
	BlockNumber     uint64    `json:"block_number"`
	LogIndex        uint      `json:"log_index"`
	Timestamp       time.Time `json:"timestamp"`

	TokenMinted          *TokenMintedPayload          `json:"token_minted,omitempty"`
	Transfer             *TransferPayload             `json:"transfer,omitempty"`
	OwnerHistoryUpdated  *OwnerHistoryUpdatedPayload  `json:"owner_history_updated,omitempty"`
	Listed               *ListedPayload               `json:"listed,omitempty"`
	Delisted             *DelistedPayload             `json:"delisted,omitempty"`
	Sale                 *SalePayload                 `json:"sale,omitempty"`
	ProfitDistributed    *ProfitDistributedPayload    `json:"profit_distributed,omitempty"`
	PlatformFeeCollected *PlatformFeeCollectedPayload `json:"platform_fee_collected,omitempty"`
}

// ID returns the natural event key "<tx_hash>-<log_index>".
// A transaction emits each log at a unique index, so the pair is unique chain-wide.
func (e *Event) ID() string {
	return fmt.Sprintf("%s-%d", e.TxHash, e.LogIndex)
}

// Cursor returns the position of this event in the log stream
func (e *Event) Cursor() Cursor {
	return Cursor{BlockNumber: e.BlockNumber, LogIndex: e.LogIndex}
}

// TokenMintedPayload holds the decoded TokenMinted event fields.
// Amounts and token IDs are decimal strings to survive uint256 ranges.
type TokenMintedPayload struct {
	TokenID         string   `json:"token_id"`
	Minter          string   `json:"minter"`
	Depth           int      `json:"depth"`
	ProfitSplitsBps []uint16 `json:"profit_splits_bps"`
}

// TransferPayload holds the decoded ERC-721 Transfer event fields
type TransferPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	TokenID string `json:"token_id"`
}

// OwnerHistoryUpdatedPayload holds the decoded OwnerHistoryUpdated event fields
type OwnerHistoryUpdatedPayload struct {
	TokenID       string `json:"token_id"`
	NewOwner      string `json:"new_owner"`
	PurchasePrice string `json:"purchase_price"`
}

// ListedPayload holds the decoded Listed event fields
type ListedPayload struct {
	TokenID string `json:"token_id"`
	Seller  string `json:"seller"`
	Price   string `json:"price"`
}

// DelistedPayload holds the decoded Delisted event fields
type DelistedPayload struct {
	TokenID string `json:"token_id"`
}

// SalePayload holds the decoded Sale event fields.
// Price is the gross amount paid by the buyer; Profit is the slice of it
// routed into the cascade.
type SalePayload struct {
	TokenID string `json:"token_id"`
	Seller  string `json:"seller"`
	Buyer   string `json:"buyer"`
	Price   string `json:"price"`
	Profit  string `json:"profit"`
}

// ProfitDistributedPayload holds the decoded ProfitDistributed event fields
type ProfitDistributedPayload struct {
	TokenID    string `json:"token_id"`
	Recipient  string `json:"recipient"`
	Amount     string `json:"amount"`
	Generation int    `json:"generation"`
}

// PlatformFeeCollectedPayload holds the decoded PlatformFeeCollected event fields
type PlatformFeeCollectedPayload struct {
	TokenID string `json:"token_id"`
	Amount  string `json:"amount"`
}

// Cursor is a durable position in the ordered event log stream
type Cursor struct {
	BlockNumber uint64 `json:"block_number"`
	LogIndex    uint   `json:"log_index"`
}

// String encodes the cursor as "<block>:<log_index>"
func (c Cursor) String() string {
	return fmt.Sprintf("%d:%d", c.BlockNumber, c.LogIndex)
}

// Before reports whether c is strictly earlier than other in chain order
func (c Cursor) Before(other Cursor) bool {
	if c.BlockNumber != other.BlockNumber {
		return c.BlockNumber < other.BlockNumber
	}
	return c.LogIndex < other.LogIndex
}

// ParseCursor decodes a cursor from its "<block>:<log_index>" form
func ParseCursor(s string) (Cursor, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return Cursor{}, fmt.Errorf("invalid cursor format: %q", s)
	}

	blockNumber, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor block number: %w", err)
	}

	logIndex, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Cursor{}, fmt.Errorf("invalid cursor log index: %w", err)
	}

	return Cursor{BlockNumber: blockNumber, LogIndex: uint(logIndex)}, nil
}

// NormalizeAddress lowercases a hex address so that mixed-case checksummed
// forms collapse into a single canonical key
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// NormalizeAddresses normalizes a list of addresses
func NormalizeAddresses(addresses []string) []string {
	result := make([]string, 0, len(addresses))
	for _, address := range addresses {
		result = append(result, NormalizeAddress(address))
	}
	return result
}
