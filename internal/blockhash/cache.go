// Package blockhash holds the cluster's latest blockhash, refreshed on a
// background loop so every transaction builder can read a recent value
// without issuing its own RPC call.
package blockhash

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"github.com/0xkanth/tx-shepherd/internal/solclient"
)

// Blockhash is a snapshot of the cache's contents at the moment Get was
// called.
type Blockhash struct {
	Hash                 solana.Hash
	LastValidBlockHeight uint64
}

// Cache holds the latest known blockhash behind a mutex. Exactly one
// goroutine (RunRefreshLoop) ever writes to it; any number of goroutines may
// call Get concurrently.
type Cache struct {
	mu  sync.RWMutex
	val Blockhash

	logger zerolog.Logger
}

// New returns an uninitialized cache. Init or RunRefreshLoop must populate
// it before Get returns a usable value.
func New(logger zerolog.Logger) *Cache {
	return &Cache{logger: logger.With().Str("component", "blockhash_cache").Logger()}
}

// Get returns the most recently cached blockhash.
func (c *Cache) Get() Blockhash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.val
}

// Init blocks until the cache holds a non-zero blockhash, retrying
// Refresh on every transient failure.
func (c *Cache) Init(ctx context.Context, client *solclient.Client) error {
	for {
		if err := c.Refresh(ctx, client); err != nil {
			c.logger.Warn().Err(err).Msg("initial blockhash refresh failed, retrying")
		} else if c.Get().Hash != (solana.Hash{}) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// Refresh issues one GetLatestBlockhash RPC call and, on success, replaces
// the cached value. It is not an error for the new hash to equal the
// previous one — that only means the cluster has not minted a new block
// since the last refresh — but it is logged at warn level since it usually
// signals the refresh loop is running faster than the cluster.
func (c *Cache) Refresh(ctx context.Context, client *solclient.Client) error {
	result, err := client.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return fmt.Errorf("fetching latest blockhash: %w", err)
	}

	c.mu.Lock()
	previous := c.val.Hash
	c.val = Blockhash{
		Hash:                 result.Value.Blockhash,
		LastValidBlockHeight: result.Value.LastValidBlockHeight,
	}
	c.mu.Unlock()

	if previous == result.Value.Blockhash {
		c.logger.Warn().Str("blockhash", result.Value.Blockhash.String()).Msg("blockhash unchanged since last refresh")
	}
	return nil
}

// RunRefreshLoop refreshes the cache forever, enforcing a minimum period
// between successful refreshes so a slow RPC endpoint cannot be hammered
// faster than minPeriod. It returns only when ctx is canceled, or an error
// for any caller observing it to treat as a programmer-invariant violation:
// a correctly running refresh loop never exits on its own.
func (c *Cache) RunRefreshLoop(ctx context.Context, client *solclient.Client, minPeriod time.Duration) error {
	for {
		start := time.Now()
		if err := c.Refresh(ctx, client); err != nil {
			c.logger.Warn().Err(err).Msg("blockhash refresh failed")
		}

		elapsed := time.Since(start)
		wait := minPeriod - elapsed
		if wait < 0 {
			wait = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
