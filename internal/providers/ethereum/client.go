package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/louissarvin/reloop/internal/adapter"
	"github.com/louissarvin/reloop/internal/domain"
)

// Event signatures for the RWA token and marketplace contracts
var (
	tokenMintedEventSignature          = crypto.Keccak256Hash([]byte("TokenMinted(uint256,address,uint8,uint16[])"))
	transferEventSignature             = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	ownerHistoryUpdatedEventSignature  = crypto.Keccak256Hash([]byte("OwnerHistoryUpdated(uint256,address,uint256)"))
	listedEventSignature               = crypto.Keccak256Hash([]byte("Listed(uint256,address,uint256)"))
	delistedEventSignature             = crypto.Keccak256Hash([]byte("Delisted(uint256)"))
	saleEventSignature                 = crypto.Keccak256Hash([]byte("Sale(uint256,address,address,uint256,uint256)"))
	profitDistributedEventSignature    = crypto.Keccak256Hash([]byte("ProfitDistributed(uint256,address,uint256,uint256)"))
	platformFeeCollectedEventSignature = crypto.Keccak256Hash([]byte("PlatformFeeCollected(uint256,uint256)"))
)

// EventSignatures returns all topic hashes the indexer subscribes to
func EventSignatures() []common.Hash {
	return []common.Hash{
		tokenMintedEventSignature,
		transferEventSignature,
		ownerHistoryUpdatedEventSignature,
		listedEventSignature,
		delistedEventSignature,
		saleEventSignature,
		profitDistributedEventSignature,
		platformFeeCollectedEventSignature,
	}
}

// tokenMintedDataArgs decodes the non-indexed TokenMinted fields
// (cascade depth and the per-generation split table in basis points)
var tokenMintedDataArgs = func() abi.Arguments {
	uint8Type, err := abi.NewType("uint8", "", nil)
	if err != nil {
		panic(err)
	}
	uint16ArrayType, err := abi.NewType("uint16[]", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{
		{Name: "depth", Type: uint8Type},
		{Name: "profitSplitsBps", Type: uint16ArrayType},
	}
}()

type EthereumClient interface {
	// FilterLogs retrieves logs that match the filter query
	FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)

	// HeaderByNumber returns a header by number
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)

	// ParseEventLog decodes an Ethereum log into a typed event.
	// Unknown signatures yield (nil, nil).
	ParseEventLog(vLog types.Log, timestamp time.Time) (*domain.Event, error)

	// TokenURI fetches the tokenURI from the RWA contract
	TokenURI(ctx context.Context, contractAddress, tokenID string) (string, error)

	// Close closes the connection
	Close()
}

type ethereumClient struct {
	chainID string
	client  adapter.EthClient
}

// NewClient creates an Ethereum client for the given chain
func NewClient(chainID string, client adapter.EthClient) EthereumClient {
	return &ethereumClient{chainID: chainID, client: client}
}

// FilterLogs retrieves logs that match the filter query
func (c *ethereumClient) FilterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	return c.client.FilterLogs(ctx, query)
}

// HeaderByNumber returns a header by number
func (c *ethereumClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return c.client.HeaderByNumber(ctx, number)
}

// TokenURI fetches the tokenURI from the RWA contract
func (c *ethereumClient) TokenURI(ctx context.Context, contractAddress, tokenID string) (string, error) {
	// ERC721 tokenURI function signature: tokenURI(uint256) returns (string)
	tokenURIABI, err := abi.JSON(strings.NewReader(`[{"constant":true,"inputs":[{"name":"tokenId","type":"uint256"}],"name":"tokenURI","outputs":[{"name":"","type":"string"}],"payable":false,"stateMutability":"view","type":"function"}]`))
	if err != nil {
		return "", fmt.Errorf("failed to parse ABI: %w", err)
	}

	id, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return "", fmt.Errorf("invalid token ID: %s", tokenID)
	}

	data, err := tokenURIABI.Pack("tokenURI", id)
	if err != nil {
		return "", fmt.Errorf("failed to pack data: %w", err)
	}

	contractAddr := common.HexToAddress(contractAddress)
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &contractAddr,
		Data: data,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to call contract: %w", err)
	}

	var uri string
	if err := tokenURIABI.UnpackIntoInterface(&uri, "tokenURI", result); err != nil {
		return "", fmt.Errorf("failed to unpack result: %w", err)
	}

	return uri, nil
}

// ParseEventLog decodes an Ethereum log into a typed event
func (c *ethereumClient) ParseEventLog(vLog types.Log, timestamp time.Time) (*domain.Event, error) {
	if len(vLog.Topics) == 0 {
		return nil, nil
	}

	event := &domain.Event{
		Chain:           c.chainID,
		ContractAddress: domain.NormalizeAddress(vLog.Address.Hex()),
		TxHash:          strings.ToLower(vLog.TxHash.Hex()),
		BlockNumber:     vLog.BlockNumber,
		LogIndex:        vLog.Index,
		Timestamp:       timestamp,
	}

	switch vLog.Topics[0] {
	case tokenMintedEventSignature:
		// TokenMinted(uint256 indexed tokenId, address indexed minter, uint8 depth, uint16[] profitSplitsBps)
		if len(vLog.Topics) != 3 {
			return nil, fmt.Errorf("invalid TokenMinted event: expected 3 topics, got %d", len(vLog.Topics))
		}

		values, err := tokenMintedDataArgs.Unpack(vLog.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode TokenMinted data: %w", err)
		}
		depth, ok := values[0].(uint8)
		if !ok {
			return nil, fmt.Errorf("invalid TokenMinted depth type %T", values[0])
		}
		splits, ok := values[1].([]uint16)
		if !ok {
			return nil, fmt.Errorf("invalid TokenMinted splits type %T", values[1])
		}

		event.Type = domain.EventTypeTokenMinted
		event.TokenMinted = &domain.TokenMintedPayload{
			TokenID:         new(big.Int).SetBytes(vLog.Topics[1].Bytes()).String(),
			Minter:          topicAddress(vLog.Topics[2]),
			Depth:           int(depth),
			ProfitSplitsBps: splits,
		}

	case transferEventSignature:
		// ERC721 Transfer(address indexed from, address indexed to, uint256 indexed tokenId).
		// The 3-topic ERC20 shape shares this signature and is skipped.
		if len(vLog.Topics) == 3 {
			return nil, nil
		}
		if len(vLog.Topics) != 4 {
			return nil, fmt.Errorf("invalid Transfer event: expected 4 topics, got %d", len(vLog.Topics))
		}

		event.Type = domain.EventTypeTransfer
		event.Transfer = &domain.TransferPayload{
			From:    topicAddress(vLog.Topics[1]),
			To:      topicAddress(vLog.Topics[2]),
			TokenID: new(big.Int).SetBytes(vLog.Topics[3].Bytes()).String(),
		}

	case ownerHistoryUpdatedEventSignature:
		// OwnerHistoryUpdated(uint256 indexed tokenId, address indexed newOwner, uint256 purchasePrice)
		if len(vLog.Topics) != 3 {
			return nil, fmt.Errorf("invalid OwnerHistoryUpdated event: expected 3 topics, got %d", len(vLog.Topics))
		}
		if len(vLog.Data) < 32 {
			return nil, fmt.Errorf("invalid OwnerHistoryUpdated event: insufficient data")
		}

		event.Type = domain.EventTypeOwnerHistoryUpdated
		event.OwnerHistoryUpdated = &domain.OwnerHistoryUpdatedPayload{
			TokenID:       new(big.Int).SetBytes(vLog.Topics[1].Bytes()).String(),
			NewOwner:      topicAddress(vLog.Topics[2]),
			PurchasePrice: new(big.Int).SetBytes(vLog.Data[0:32]).String(),
		}

	case listedEventSignature:
		// Listed(uint256 indexed tokenId, address indexed seller, uint256 price)
		if len(vLog.Topics) != 3 {
			return nil, fmt.Errorf("invalid Listed event: expected 3 topics, got %d", len(vLog.Topics))
		}
		if len(vLog.Data) < 32 {
			return nil, fmt.Errorf("invalid Listed event: insufficient data")
		}

		event.Type = domain.EventTypeListed
		event.Listed = &domain.ListedPayload{
			TokenID: new(big.Int).SetBytes(vLog.Topics[1].Bytes()).String(),
			Seller:  topicAddress(vLog.Topics[2]),
			Price:   new(big.Int).SetBytes(vLog.Data[0:32]).String(),
		}

	case delistedEventSignature:
		// Delisted(uint256 indexed tokenId)
		if len(vLog.Topics) != 2 {
			return nil, fmt.Errorf("invalid Delisted event: expected 2 topics, got %d", len(vLog.Topics))
		}

		event.Type = domain.EventTypeDelisted
		event.Delisted = &domain.DelistedPayload{
			TokenID: new(big.Int).SetBytes(vLog.Topics[1].Bytes()).String(),
		}

	case saleEventSignature:
		// Sale(uint256 indexed tokenId, address indexed seller, address indexed buyer, uint256 price, uint256 profit)
		if len(vLog.Topics) != 4 {
			return nil, fmt.Errorf("invalid Sale event: expected 4 topics, got %d", len(vLog.Topics))
		}
		if len(vLog.Data) < 64 {
			return nil, fmt.Errorf("invalid Sale event: insufficient data")
		}

		event.Type = domain.EventTypeSale
		event.Sale = &domain.SalePayload{
			TokenID: new(big.Int).SetBytes(vLog.Topics[1].Bytes()).String(),
			Seller:  topicAddress(vLog.Topics[2]),
			Buyer:   topicAddress(vLog.Topics[3]),
			Price:   new(big.Int).SetBytes(vLog.Data[0:32]).String(),
			Profit:  new(big.Int).SetBytes(vLog.Data[32:64]).String(),
		}

	case profitDistributedEventSignature:
		// ProfitDistributed(uint256 indexed tokenId, address indexed recipient, uint256 amount, uint256 generation)
		if len(vLog.Topics) != 3 {
			return nil, fmt.Errorf("invalid ProfitDistributed event: expected 3 topics, got %d", len(vLog.Topics))
		}
		if len(vLog.Data) < 64 {
			return nil, fmt.Errorf("invalid ProfitDistributed event: insufficient data")
		}

		event.Type = domain.EventTypeProfitDistributed
		event.ProfitDistributed = &domain.ProfitDistributedPayload{
			TokenID:    new(big.Int).SetBytes(vLog.Topics[1].Bytes()).String(),
			Recipient:  topicAddress(vLog.Topics[2]),
			Amount:     new(big.Int).SetBytes(vLog.Data[0:32]).String(),
			Generation: int(new(big.Int).SetBytes(vLog.Data[32:64]).Int64()),
		}

	case platformFeeCollectedEventSignature:
		// PlatformFeeCollected(uint256 indexed tokenId, uint256 amount)
		if len(vLog.Topics) != 2 {
			return nil, fmt.Errorf("invalid PlatformFeeCollected event: expected 2 topics, got %d", len(vLog.Topics))
		}
		if len(vLog.Data) < 32 {
			return nil, fmt.Errorf("invalid PlatformFeeCollected event: insufficient data")
		}

		event.Type = domain.EventTypePlatformFeeCollected
		event.PlatformFeeCollected = &domain.PlatformFeeCollectedPayload{
			TokenID: new(big.Int).SetBytes(vLog.Topics[1].Bytes()).String(),
			Amount:  new(big.Int).SetBytes(vLog.Data[0:32]).String(),
		}

	default:
		return nil, nil
	}

	return event, nil
}

// topicAddress extracts a normalized address from an indexed topic
func topicAddress(topic common.Hash) string {
	return domain.NormalizeAddress(common.BytesToAddress(topic.Bytes()).Hex())
}

// Close closes the connection
func (c *ethereumClient) Close() {
	c.client.Close()
}
