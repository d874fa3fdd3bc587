package benchmark

import (
	"context"
	"sync"
	"time"

	"github.com/paulbellamy/ratecounter"
	"github.com/rs/zerolog"
)

// RunStats accumulates the successful and failed send counts across every
// publisher in a benchmark run.
type RunStats struct {
	SuccessfulTx uint64
	FailedTx     uint64
}

// Add merges other into s.
func (s *RunStats) Add(other RunStats) {
	s.SuccessfulTx += other.SuccessfulTx
	s.FailedTx += other.FailedTx
}

// Aggregator drains PriceUpdateResults from every running publisher,
// maintaining a running total plus a live tx/sec figure, and logs a summary
// line on every StatsUpdateInterval tick.
type Aggregator struct {
	logger              zerolog.Logger
	statsUpdateInterval time.Duration

	mu    sync.Mutex
	stats RunStats
	rate  *ratecounter.RateCounter
}

// NewAggregator builds an Aggregator reporting every statsUpdateInterval.
func NewAggregator(logger zerolog.Logger, statsUpdateInterval time.Duration) *Aggregator {
	return &Aggregator{
		logger:              logger.With().Str("component", "benchmark_aggregator").Logger(),
		statsUpdateInterval: statsUpdateInterval,
		rate:                ratecounter.NewRateCounter(1 * time.Second),
	}
}

// Run drains results until ctx is canceled or the channel closes, logging a
// periodic stats line and returning the final totals.
func (a *Aggregator) Run(ctx context.Context, results <-chan PriceUpdateResult) RunStats {
	ticker := time.NewTicker(a.statsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return a.snapshot()

		case res, ok := <-results:
			if !ok {
				return a.snapshot()
			}
			a.mu.Lock()
			if res.Success {
				a.stats.SuccessfulTx++
				a.rate.Incr(1)
			} else {
				a.stats.FailedTx++
			}
			a.mu.Unlock()

		case <-ticker.C:
			snap := a.snapshot()
			a.logger.Info().
				Uint64("succeeded", snap.SuccessfulTx).
				Uint64("failed", snap.FailedTx).
				Int64("tx_per_sec", a.rate.Rate()).
				Msg("benchmark stats")
		}
	}
}

func (a *Aggregator) snapshot() RunStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// RunAll launches every publisher in publishers as its own goroutine,
// collects their PriceUpdateResults through a shared Aggregator, and
// returns once every publisher's Run has returned.
func RunAll(ctx context.Context, publishers []*Publisher, aggregator *Aggregator) RunStats {
	results := make(chan PriceUpdateResult, len(publishers)*8)

	var wg sync.WaitGroup
	for _, pub := range publishers {
		wg.Add(1)
		go func(p *Publisher) {
			defer wg.Done()
			p.Run(ctx, results)
		}(pub)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(results)
		close(done)
	}()

	stats := aggregator.Run(ctx, results)
	<-done
	return stats
}
