// Package fanout composes the blockhash cache and leader address service
// background loops around a single user operation, the common entrypoint
// every CLI subcommand drives through.
package fanout

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/0xkanth/tx-shepherd/internal/blockhash"
	"github.com/0xkanth/tx-shepherd/internal/leader"
	"github.com/0xkanth/tx-shepherd/internal/solclient"
)

// Operation is the user-supplied unit of work a Runner drives to
// completion, given an initialized blockhash cache and (optionally) a
// leader address service.
type Operation func(ctx context.Context, cache *blockhash.Cache, leaderSvc *leader.Service) error

// Config controls which background services Run starts before invoking the
// operation.
type Config struct {
	WithLeaderService bool
	WSURL             string
	BlockhashInterval time.Duration
}

// Runner wires BlockhashCache (and, optionally, LeaderAddressService)
// background loops around a single Operation, enforcing that neither
// background loop is ever allowed to terminate while the operation is
// still running.
type Runner struct {
	client *solclient.Client
	logger zerolog.Logger
	cfg    Config
}

// New builds a Runner.
func New(client *solclient.Client, cfg Config, logger zerolog.Logger) *Runner {
	return &Runner{
		client: client,
		logger: logger.With().Str("component", "fanout_runner").Logger(),
		cfg:    cfg,
	}
}

// Run starts the background services, invokes op, and tears everything
// down once op returns. Background-loop termination observed before op
// completes is a programmer-invariant violation and panics.
func (r *Runner) Run(parent context.Context, op Operation) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	cache := blockhash.New(r.logger)
	if err := cache.Init(ctx, r.client); err != nil {
		return fmt.Errorf("initializing blockhash cache: %w", err)
	}

	cacheDone := make(chan error, 1)
	go func() {
		cacheDone <- cache.RunRefreshLoop(ctx, r.client, r.cfg.BlockhashInterval)
	}()

	var leaderSvc *leader.Service
	leaderDone := make(chan error, 1)
	if r.cfg.WithLeaderService {
		svc, err := leader.Init(ctx, r.client, r.cfg.WSURL, r.logger)
		if err != nil {
			return fmt.Errorf("initializing leader address service: %w", err)
		}
		leaderSvc = svc
		go func() {
			leaderDone <- svc.Run(ctx)
		}()
	} else {
		// No leader service requested: treat its completion channel as
		// permanently quiescent so the select below never fires on it.
		leaderDone = nil
	}

	opDone := make(chan error, 1)
	go func() {
		opDone <- op(ctx, cache, leaderSvc)
	}()

	var opErr error
	select {
	case opErr = <-opDone:
	case err := <-cacheDone:
		panic(fmt.Sprintf("fanout: blockhash refresh loop exited before operation completed: %v", err))
	case err := <-leaderDoneOrNil(leaderDone):
		panic(fmt.Sprintf("fanout: leader address service exited before operation completed: %v", err))
	}

	cancel()

	var merr *multierror.Error
	if opErr != nil {
		merr = multierror.Append(merr, fmt.Errorf("operation: %w", opErr))
	}
	if err := <-cacheDone; err != nil && err != context.Canceled {
		merr = multierror.Append(merr, fmt.Errorf("blockhash cache shutdown: %w", err))
	}
	if leaderDone != nil {
		if err := <-leaderDone; err != nil && err != context.Canceled {
			merr = multierror.Append(merr, fmt.Errorf("leader address service shutdown: %w", err))
		}
	}

	return merr.ErrorOrNil()
}

// leaderDoneOrNil returns ch, or a channel that's never ready if the leader
// service was not started — a nil channel blocks forever in a select,
// which is exactly the behavior wanted when there's nothing to watch.
func leaderDoneOrNil(ch chan error) chan error {
	return ch
}
