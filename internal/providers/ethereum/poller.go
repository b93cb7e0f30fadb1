package ethereum

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/louissarvin/reloop/internal/adapter"
	"github.com/louissarvin/reloop/internal/domain"
	"github.com/louissarvin/reloop/internal/eventsource"
	"github.com/louissarvin/reloop/internal/logger"
)

// Config holds the poller configuration
type Config struct {
	ChainID             string
	RWAContract         string
	MarketplaceContract string
	StartBlock          uint64
	PollInterval        time.Duration
	BlockBatchSize      uint64
	WorkerPoolSize      int
	WorkerQueueSize     int
}

// Poller implements eventsource.Source by polling FilterLogs in bounded
// block ranges and delivering decoded events in chain order.
type Poller struct {
	cfg       Config
	client    EthereumClient
	clock     adapter.Clock
	pool      pond.Pool
	addresses []common.Address
	topics    [][]common.Hash
}

// NewPoller creates a log poller over the RWA and marketplace contracts
func NewPoller(cfg Config, client EthereumClient, clock adapter.Clock) *Poller {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 12 * time.Second
	}
	if cfg.BlockBatchSize == 0 {
		cfg.BlockBatchSize = 2000
	}
	if cfg.WorkerPoolSize == 0 {
		cfg.WorkerPoolSize = 8
	}
	if cfg.WorkerQueueSize == 0 {
		cfg.WorkerQueueSize = 1024
	}

	return &Poller{
		cfg:    cfg,
		client: client,
		clock:  clock,
		pool:   pond.NewPool(cfg.WorkerPoolSize, pond.WithQueueSize(cfg.WorkerQueueSize)),
		addresses: []common.Address{
			common.HexToAddress(cfg.RWAContract),
			common.HexToAddress(cfg.MarketplaceContract),
		},
		topics: [][]common.Hash{EventSignatures()},
	}
}

// Run delivers events strictly after the given cursor until ctx is canceled
// or a handler rejects an event.
func (p *Poller) Run(ctx context.Context, from *domain.Cursor, handle eventsource.Handler) error {
	next := p.cfg.StartBlock
	var last domain.Cursor
	resuming := false
	if from != nil {
		last = *from
		// Re-scan the cursor block; already-processed logs inside it are
		// filtered out by cursor comparison below.
		next = from.BlockNumber
		resuming = true
	}

	logger.InfoCtx(ctx, "Starting event poller",
		zap.String("chain", p.cfg.ChainID),
		zap.Uint64("from_block", next),
		zap.Bool("resuming", resuming))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		head, err := p.headWithRetry(ctx)
		if err != nil {
			return fmt.Errorf("failed to get chain head: %w", err)
		}

		if next > head {
			// Caught up; wait for new blocks
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.clock.After(p.cfg.PollInterval):
			}
			continue
		}

		to := next + p.cfg.BlockBatchSize - 1
		if to > head {
			to = head
		}

		logs, err := p.fetchRange(ctx, next, to)
		if err != nil {
			return fmt.Errorf("failed to fetch logs for range %d-%d: %w", next, to, err)
		}

		if err := p.deliver(ctx, logs, &last, &resuming, handle); err != nil {
			return err
		}

		next = to + 1
	}
}

// headWithRetry fetches the latest block number, retrying transient RPC errors
func (p *Poller) headWithRetry(ctx context.Context) (uint64, error) {
	var head uint64
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(func() error {
		header, err := p.client.HeaderByNumber(ctx, nil)
		if err != nil {
			return err
		}
		head = header.Number.Uint64()
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return 0, err
	}

	return head, nil
}

// fetchRange retrieves and orders all relevant logs in [from, to]
func (p *Poller) fetchRange(ctx context.Context, from, to uint64) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: p.addresses,
		Topics:    p.topics,
	}

	logs, err := p.client.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}

	sort.Slice(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	return logs, nil
}

// blockTimestamps prefetches the timestamp of every distinct block in the
// batch through the worker pool
func (p *Poller) blockTimestamps(ctx context.Context, logs []types.Log) (map[uint64]time.Time, error) {
	blocks := make(map[uint64]struct{})
	for _, vLog := range logs {
		blocks[vLog.BlockNumber] = struct{}{}
	}

	var mu sync.Mutex
	timestamps := make(map[uint64]time.Time, len(blocks))

	group := p.pool.NewGroup()
	for blockNumber := range blocks {
		group.SubmitErr(func() error {
			header, err := p.client.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
			if err != nil {
				return fmt.Errorf("failed to get header %d: %w", blockNumber, err)
			}
			mu.Lock()
			timestamps[blockNumber] = p.clock.Unix(int64(header.Time), 0).UTC() //nolint:gosec,G115 // header.Time is a uint64 from geth which is safe to cast
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return timestamps, nil
}

// deliver decodes and hands each log to the handler in order
func (p *Poller) deliver(ctx context.Context, logs []types.Log, last *domain.Cursor, resuming *bool, handle eventsource.Handler) error {
	if len(logs) == 0 {
		return nil
	}

	timestamps, err := p.blockTimestamps(ctx, logs)
	if err != nil {
		return fmt.Errorf("failed to prefetch block timestamps: %w", err)
	}

	for _, vLog := range logs {
		if vLog.Removed {
			continue
		}

		position := domain.Cursor{BlockNumber: vLog.BlockNumber, LogIndex: vLog.Index}
		if *resuming && !last.Before(position) {
			continue
		}

		event, err := p.client.ParseEventLog(vLog, timestamps[vLog.BlockNumber])
		if err != nil {
			logger.WarnCtx(ctx, "Failed to parse event log",
				zap.Error(err),
				zap.String("tx_hash", vLog.TxHash.Hex()),
				zap.Uint64("block_number", vLog.BlockNumber))
			continue
		}
		if event == nil {
			continue
		}

		if err := handle(ctx, event); err != nil {
			return fmt.Errorf("handler rejected event %s: %w", event.ID(), err)
		}

		*last = position
		*resuming = true
	}

	return nil
}

// Close releases the worker pool and the RPC connection
func (p *Poller) Close() {
	p.pool.StopAndWait()
	p.client.Close()
}
