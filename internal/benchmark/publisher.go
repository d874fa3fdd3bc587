package benchmark

import (
	"context"
	"net"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/0xkanth/tx-shepherd/internal/blockhash"
	"github.com/0xkanth/tx-shepherd/internal/leader"
	"github.com/0xkanth/tx-shepherd/internal/solclient"
)

// PublisherConfig parameterizes one BenchmarkPublisher's run loop.
type PublisherConfig struct {
	Payer     solana.PrivateKey
	Publisher solana.PrivateKey
	ProgramID solana.PublicKey
	Buffer    solana.PublicKey

	FirstFeedIndex    uint32
	FeedCount         uint32
	PriceUpdatesPerTx int
	UpdateFrequency   time.Duration
	FanoutSlots       uint64
	PriceMean         int64
	PriceRange        uint64
	ConfidenceMean    uint64
	ConfidenceRange   uint64
}

// PriceUpdateResult reports the outcome of sending one chunk's worth of
// price updates to one target.
type PriceUpdateResult struct {
	Success bool
}

// Publisher runs one benchmark publisher's send loop for the lifetime of
// ctx, generating prices for FeedCount feeds, chunking them into
// transactions, and fanning each chunk out as both an RPC send and one UDP
// datagram per resolved TPU target.
type Publisher struct {
	cfg    PublisherConfig
	client *solclient.Client
	cache  *blockhash.Cache
	leader *leader.Service
	logger zerolog.Logger
	conn   *net.UDPConn

	sources []*PriceSource
}

// NewPublisher builds a Publisher, binding the UDP socket it will reuse for
// every send in its lifetime.
func NewPublisher(cfg PublisherConfig, client *solclient.Client, cache *blockhash.Cache, leaderSvc *leader.Service, logger zerolog.Logger) (*Publisher, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, err
	}

	sources := make([]*PriceSource, cfg.FeedCount)
	for i := range sources {
		sources[i] = NewPriceSource(PriceSourceConfig{
			PriceMean:       cfg.PriceMean,
			PriceRange:      cfg.PriceRange,
			ConfidenceMean:  cfg.ConfidenceMean,
			ConfidenceRange: cfg.ConfidenceRange,
		})
	}

	return &Publisher{
		cfg:     cfg,
		client:  client,
		cache:   cache,
		leader:  leaderSvc,
		logger:  logger.With().Str("component", "benchmark_publisher").Uint32("first_feed", cfg.FirstFeedIndex).Logger(),
		conn:    conn,
		sources: sources,
	}, nil
}

// Run executes the publisher's send loop until ctx is canceled, forwarding
// to results one PriceUpdateResult per chunk per UDP target, or a single
// failed result for a chunk that could not be built or serialized or had no
// known target. RPC send outcomes are logged, not forwarded.
func (p *Publisher) Run(ctx context.Context, results chan<- PriceUpdateResult) {
	defer p.conn.Close()

	start := time.Now()
	for {
		iterationStart := time.Now()

		select {
		case <-ctx.Done():
			return
		default:
		}

		p.publishOneIteration(ctx, time.Since(start).Seconds(), results)

		elapsed := time.Since(iterationStart)
		wait := p.cfg.UpdateFrequency - elapsed
		if wait > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
		}
	}
}

func (p *Publisher) publishOneIteration(ctx context.Context, t float64, results chan<- PriceUpdateResult) {
	bh := p.cache.Get()
	targets := p.leader.TpuForNextInSchedule(p.cfg.FanoutSlots)

	prices := make([]BufferedPrice, len(p.sources))
	for i, src := range p.sources {
		price, confidence := src.Get(t)
		prices[i] = BufferedPrice{
			Status:     TradingStatusTrading,
			FeedIndex:  p.cfg.FirstFeedIndex + uint32(i),
			Price:      price,
			Confidence: confidence,
		}
	}

	for chunkStart := 0; chunkStart < len(prices); chunkStart += p.cfg.PriceUpdatesPerTx {
		chunkEnd := chunkStart + p.cfg.PriceUpdatesPerTx
		if chunkEnd > len(prices) {
			chunkEnd = len(prices)
		}
		chunk := prices[chunkStart:chunkEnd]

		tx, err := p.buildTransaction(bh, chunk)
		if err != nil {
			p.logger.Warn().Err(err).Msg("failed to build chunk transaction")
			results <- PriceUpdateResult{Success: false}
			continue
		}

		wire, err := tx.MarshalBinary()
		if err != nil {
			p.logger.Warn().Err(err).Msg("failed to serialize chunk transaction")
			results <- PriceUpdateResult{Success: false}
			continue
		}

		if _, err := p.client.SendTransaction(ctx, tx); err != nil {
			p.logger.Debug().Err(err).Msg("rpc send failed for benchmark chunk")
		}

		if len(targets) == 0 {
			results <- PriceUpdateResult{Success: false}
			continue
		}
		for _, target := range targets {
			_, err := p.conn.WriteTo(wire, target)
			results <- PriceUpdateResult{Success: err == nil}
		}
	}
}

// buildTransaction signs and returns a transaction submitting chunk's price
// updates: one instruction per price, whose data is the packed
// BufferedPrice and whose accounts are the publisher (signer) and the
// buffer (writable). It does not use internal/pricestore's
// InstructionBuilder.
func (p *Publisher) buildTransaction(bh blockhash.Blockhash, chunk []BufferedPrice) (*solana.Transaction, error) {
	instructions := make([]solana.Instruction, 0, len(chunk))
	for _, price := range chunk {
		data, err := price.Pack()
		if err != nil {
			return nil, err
		}
		instructions = append(instructions, solana.NewInstruction(
			p.cfg.ProgramID,
			solana.AccountMetaSlice{
				solana.NewAccountMeta(p.cfg.Publisher.PublicKey(), false, true),
				solana.NewAccountMeta(p.cfg.Buffer, true, false),
			},
			data,
		))
	}

	tx, err := solana.NewTransaction(instructions, bh.Hash, solana.TransactionPayer(p.cfg.Payer.PublicKey()))
	if err != nil {
		return nil, err
	}

	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		switch key {
		case p.cfg.Payer.PublicKey():
			return &p.cfg.Payer
		case p.cfg.Publisher.PublicKey():
			return &p.cfg.Publisher
		default:
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}
