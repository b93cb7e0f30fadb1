package projector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/louissarvin/reloop/internal/domain"
	"github.com/louissarvin/reloop/internal/logger"
	"github.com/louissarvin/reloop/internal/messaging"
	"github.com/louissarvin/reloop/internal/store"
	"github.com/louissarvin/reloop/internal/store/schema"
)

// MetadataReader resolves the off-chain metadata pointer of a token
//
//go:generate mockgen -source=projector.go -destination=../mocks/metadata_reader.go -package=mocks -mock_names=MetadataReader=MockMetadataReader
type MetadataReader interface {
	TokenURI(ctx context.Context, contractAddress, tokenID string) (string, error)
}

// Config holds the projector configuration
type Config struct {
	Chain           string
	RWAContract     string
	MetadataTimeout time.Duration
}

// Projector folds decoded chain events into the derived tables. It is the
// single writer; every event runs one store method, then the cursor is
// persisted, then the event goes out on the broker best-effort.
type Projector struct {
	cfg       Config
	store     store.ProjectionStore
	metadata  MetadataReader
	publisher messaging.Publisher
}

// New creates a projector. publisher may be nil when no broker is configured.
func New(cfg Config, s store.ProjectionStore, metadata MetadataReader, publisher messaging.Publisher) *Projector {
	if cfg.MetadataTimeout == 0 {
		cfg.MetadataTimeout = 15 * time.Second
	}

	return &Projector{
		cfg:       cfg,
		store:     s,
		metadata:  metadata,
		publisher: publisher,
	}
}

// Handle processes one event. On success the cursor has been durably
// advanced; on error nothing is committed and the event will be redelivered.
func (p *Projector) Handle(ctx context.Context, event *domain.Event) error {
	var err error
	switch event.Type {
	case domain.EventTypeTokenMinted:
		err = p.handleTokenMinted(ctx, event)
	case domain.EventTypeTransfer:
		err = p.handleTransfer(ctx, event)
	case domain.EventTypeOwnerHistoryUpdated:
		err = p.handleOwnerHistoryUpdated(ctx, event)
	case domain.EventTypeListed:
		err = p.handleListed(ctx, event)
	case domain.EventTypeDelisted:
		err = p.handleDelisted(ctx, event)
	case domain.EventTypeSale:
		err = p.handleSale(ctx, event)
	case domain.EventTypeProfitDistributed:
		err = p.handleProfitDistributed(ctx, event)
	case domain.EventTypePlatformFeeCollected:
		err = p.handlePlatformFeeCollected(ctx, event)
	default:
		logger.WarnCtx(ctx, "Skipping unknown event type",
			zap.String("type", string(event.Type)),
			zap.String("event_id", event.ID()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to project event %s: %w", event.ID(), err)
	}

	if err := p.store.SetEventCursor(ctx, event.Chain, event.Cursor()); err != nil {
		return fmt.Errorf("failed to persist cursor after event %s: %w", event.ID(), err)
	}

	p.publish(ctx, event)

	return nil
}

func (p *Projector) handleTokenMinted(ctx context.Context, event *domain.Event) error {
	payload := event.TokenMinted
	if payload == nil {
		return fmt.Errorf("missing token minted payload")
	}

	splits, err := json.Marshal(payload.ProfitSplitsBps)
	if err != nil {
		return fmt.Errorf("failed to marshal profit splits: %w", err)
	}

	token := &schema.Token{
		TokenID:         payload.TokenID,
		Minter:          payload.Minter,
		Owner:           payload.Minter,
		TokenURI:        p.resolveTokenURI(ctx, payload.TokenID),
		Depth:           payload.Depth,
		ProfitSplitsBps: datatypes.JSON(splits),
		MintedAt:        event.Timestamp,
		MintTxHash:      event.TxHash,
	}

	genesis := &schema.OwnerHistory{
		ID:            event.ID(),
		TokenID:       payload.TokenID,
		Owner:         payload.Minter,
		PurchasePrice: "0",
		Timestamp:     event.Timestamp,
		TxHash:        event.TxHash,
	}

	return p.store.CreateTokenMint(ctx, token, genesis)
}

// resolveTokenURI reads the metadata pointer with bounded retry. Failure is
// tolerated; the token is stored without a URI rather than stalling the
// pipeline.
func (p *Projector) resolveTokenURI(ctx context.Context, tokenID string) *string {
	var uri string
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = p.cfg.MetadataTimeout

	err := backoff.Retry(func() error {
		var err error
		uri, err = p.metadata.TokenURI(ctx, p.cfg.RWAContract, tokenID)
		return err
	}, backoff.WithContext(b, ctx))
	if err != nil {
		logger.WarnCtx(ctx, "Failed to resolve token URI",
			zap.Error(err),
			zap.String("token_id", tokenID))
		return nil
	}

	return &uri
}

func (p *Projector) handleTransfer(ctx context.Context, event *domain.Event) error {
	payload := event.Transfer
	if payload == nil {
		return fmt.Errorf("missing transfer payload")
	}

	// The mint itself emits a Transfer from the zero address; ownership was
	// already established by the mint handler.
	if domain.NormalizeAddress(payload.From) == domain.ETHEREUM_ZERO_ADDRESS {
		return nil
	}

	return p.store.UpdateTokenOwner(ctx, payload.TokenID, payload.To)
}

func (p *Projector) handleOwnerHistoryUpdated(ctx context.Context, event *domain.Event) error {
	payload := event.OwnerHistoryUpdated
	if payload == nil {
		return fmt.Errorf("missing owner history payload")
	}

	return p.store.AppendOwnerHistory(ctx, &schema.OwnerHistory{
		ID:            event.ID(),
		TokenID:       payload.TokenID,
		Owner:         payload.NewOwner,
		PurchasePrice: payload.PurchasePrice,
		Timestamp:     event.Timestamp,
		TxHash:        event.TxHash,
	})
}

func (p *Projector) handleListed(ctx context.Context, event *domain.Event) error {
	payload := event.Listed
	if payload == nil {
		return fmt.Errorf("missing listed payload")
	}

	return p.store.UpsertListing(ctx, &schema.Listing{
		TokenID:  payload.TokenID,
		Seller:   payload.Seller,
		Price:    payload.Price,
		Active:   true,
		ListedAt: event.Timestamp,
		TxHash:   event.TxHash,
	})
}

func (p *Projector) handleDelisted(ctx context.Context, event *domain.Event) error {
	payload := event.Delisted
	if payload == nil {
		return fmt.Errorf("missing delisted payload")
	}

	return p.store.DeactivateListing(ctx, payload.TokenID)
}

func (p *Projector) handleSale(ctx context.Context, event *domain.Event) error {
	payload := event.Sale
	if payload == nil {
		return fmt.Errorf("missing sale payload")
	}

	return p.store.CreateSale(ctx, &schema.Sale{
		ID:          event.ID(),
		TokenID:     payload.TokenID,
		Seller:      payload.Seller,
		Buyer:       payload.Buyer,
		Price:       payload.Price,
		Profit:      payload.Profit,
		Timestamp:   event.Timestamp,
		TxHash:      event.TxHash,
		BlockNumber: event.BlockNumber,
	})
}

func (p *Projector) handleProfitDistributed(ctx context.Context, event *domain.Event) error {
	payload := event.ProfitDistributed
	if payload == nil {
		return fmt.Errorf("missing profit distributed payload")
	}

	return p.store.CreateProfitDistribution(ctx, &schema.ProfitDistribution{
		ID:         event.ID(),
		TokenID:    payload.TokenID,
		Recipient:  payload.Recipient,
		Amount:     payload.Amount,
		Generation: payload.Generation,
		Timestamp:  event.Timestamp,
		TxHash:     event.TxHash,
	})
}

func (p *Projector) handlePlatformFeeCollected(ctx context.Context, event *domain.Event) error {
	payload := event.PlatformFeeCollected
	if payload == nil {
		return fmt.Errorf("missing platform fee payload")
	}

	return p.store.CreatePlatformFee(ctx, &schema.PlatformFee{
		ID:        event.ID(),
		TokenID:   payload.TokenID,
		Amount:    payload.Amount,
		Timestamp: event.Timestamp,
		TxHash:    event.TxHash,
	})
}

// publish forwards the event to the broker. Best-effort: a broker outage
// must never block or roll back indexing.
func (p *Projector) publish(ctx context.Context, event *domain.Event) {
	if p.publisher == nil {
		return
	}

	if err := p.publisher.PublishEvent(ctx, event); err != nil {
		logger.WarnCtx(ctx, "Failed to publish event",
			zap.Error(err),
			zap.String("event_id", event.ID()),
			zap.String("type", string(event.Type)))
	}
}
