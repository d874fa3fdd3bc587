// Package leader tracks the cluster's leader schedule and resolves it to
// TPU socket addresses so a transaction sender can fan a datagram out to
// the next few leaders without waiting on a fresh RPC round trip.
package leader

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/0xkanth/tx-shepherd/internal/solclient"
)

// maxFanoutSlots bounds how many future slots the cache is willing to
// resolve into TPU sockets in a single call.
const maxFanoutSlots = 100

const clusterRefreshPeriod = 5 * time.Minute

// Service maintains the cluster's leader schedule and TPU socket map,
// refreshing each piece on its own cadence in a background goroutine.
type Service struct {
	client *solclient.Client
	wsURL  string

	logger zerolog.Logger

	mu     sync.RWMutex
	recent recentSlots
	cache  tpuCache

	clusterGate *gocache.Cache

	updates chan *ws.SlotsUpdatesResult
}

// tpuCache is the leader-schedule-derived state, replaced wholesale by the
// background refresh loop and read piecemeal by TpuForNextInSchedule.
type tpuCache struct {
	firstSlot         uint64
	leaders           []solana.PublicKey
	leaderTPU         map[solana.PublicKey]*net.UDPAddr
	slotsInEpoch      uint64
	lastEpochInfoSlot uint64
}

// Init performs the three priming RPC calls (current slot, epoch info,
// slot leaders) plus a best-effort cluster-nodes fetch. It does not
// subscribe to slot updates; Run does that when wsURL is non-empty. The
// returned Service's background loop must be started with Run.
func Init(ctx context.Context, client *solclient.Client, wsURL string, logger zerolog.Logger) (*Service, error) {
	s := &Service{
		client:      client,
		wsURL:       wsURL,
		logger:      logger.With().Str("component", "leader_address_service").Logger(),
		clusterGate: gocache.New(clusterRefreshPeriod, clusterRefreshPeriod),
		updates:     make(chan *ws.SlotsUpdatesResult, 1),
	}

	startSlot, err := client.GetSlot(ctx, rpc.CommitmentProcessed)
	if err != nil {
		return nil, fmt.Errorf("fetching start slot: %w", err)
	}
	s.recent.record(startSlot)

	epochInfo, err := client.GetEpochInfo(ctx, rpc.CommitmentProcessed)
	if err != nil {
		return nil, fmt.Errorf("fetching epoch info: %w", err)
	}

	leaders, err := client.GetSlotLeaders(ctx, startSlot, fanoutFor(epochInfo.SlotsInEpoch))
	if err != nil {
		return nil, fmt.Errorf("fetching slot leaders: %w", err)
	}

	s.cache = tpuCache{
		firstSlot:         startSlot,
		leaders:           leaders,
		leaderTPU:         map[solana.PublicKey]*net.UDPAddr{},
		slotsInEpoch:      epochInfo.SlotsInEpoch,
		lastEpochInfoSlot: startSlot,
	}

	if err := s.refreshClusterNodes(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("initial cluster nodes fetch failed")
	}

	return s, nil
}

// fanoutFor returns the number of upcoming leaders to resolve: the smaller
// of 2*maxFanoutSlots and the epoch length.
func fanoutFor(slotsInEpoch uint64) uint64 {
	if slotsInEpoch < 2*maxFanoutSlots {
		return slotsInEpoch
	}
	return 2 * maxFanoutSlots
}

// Run drives the background refresh loop until ctx is canceled. A correctly
// functioning Run never returns except via ctx cancellation; callers
// observing any other termination should treat it as a programmer-invariant
// violation.
func (s *Service) Run(ctx context.Context) error {
	var sub *ws.SlotsUpdatesSubscription
	if s.wsURL != "" {
		var wsClient *ws.Client
		err := backoff.Retry(func() error {
			c, dialErr := ws.Connect(ctx, s.wsURL)
			if dialErr != nil {
				return dialErr
			}
			wsClient = c
			return nil
		}, backoff.WithContext(backoff.NewConstantBackOff(3*time.Second), ctx))
		if err != nil {
			s.logger.Warn().Err(err).Msg("could not establish slot-update subscription, falling back to polling only")
		} else {
			defer wsClient.Close()
			sub, err = wsClient.SlotsUpdatesSubscribe()
			if err != nil {
				s.logger.Warn().Err(err).Msg("slot-update subscribe failed, falling back to polling only")
				sub = nil
			} else {
				defer sub.Unsubscribe()
				go s.pumpSlotUpdates(ctx, sub)
			}
		}
	}

	sleep := time.Second
	for {
		if sub != nil {
			s.drainSlotUpdates()
		}

		if err := s.maybeFetchCacheInfo(ctx); err != nil {
			sleep = 100 * time.Millisecond
			s.logger.Warn().Err(err).Msg("cache refresh failed")
		} else {
			sleep = time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// pumpSlotUpdates forwards the subscription's notifications onto s.updates
// until ctx is canceled or the subscription errors, matching the
// dedicated-reader-goroutine shape slot-update subscribers in this
// ecosystem use since Recv blocks.
func (s *Service) pumpSlotUpdates(ctx context.Context, sub *ws.SlotsUpdatesSubscription) {
	for {
		update, err := sub.Recv()
		if err != nil {
			return
		}
		select {
		case s.updates <- update:
		case <-ctx.Done():
			return
		default:
			// Drop the stale buffered update rather than block; Run only
			// needs the latest slot, not every notification.
			select {
			case <-s.updates:
			default:
			}
			select {
			case s.updates <- update:
			default:
			}
		}
	}
}

// drainSlotUpdates applies the single most recent buffered slot-update
// notification, if any, without blocking.
func (s *Service) drainSlotUpdates() {
	select {
	case update := <-s.updates:
		s.applySlotUpdate(update)
	default:
	}
}

func (s *Service) applySlotUpdate(update *ws.SlotsUpdatesResult) {
	switch update.Type {
	case ws.SlotsUpdatesCompleted:
		s.mu.Lock()
		s.recent.record(update.Slot + 1)
		s.mu.Unlock()
	case ws.SlotsUpdatesFirstShredReceived:
		s.mu.Lock()
		s.recent.record(update.Slot)
		s.mu.Unlock()
	}
}

// maybeFetchCacheInfo refreshes whichever of cluster nodes / epoch info /
// slot leaders is due, each gated independently.
func (s *Service) maybeFetchCacheInfo(ctx context.Context) error {
	var firstErr error

	if _, found := s.clusterGate.Get("refreshed"); !found {
		if err := s.refreshClusterNodes(ctx); err != nil {
			firstErr = err
		} else {
			s.clusterGate.Set("refreshed", true, gocache.DefaultExpiration)
		}
	}

	estimated := s.EstimatedCurrentSlot()

	s.mu.RLock()
	needEpochInfo := estimated+s.cache.slotsInEpoch >= s.cache.lastEpochInfoSlot
	needLeaders := estimated+maxFanoutSlots >= s.cache.firstSlot+uint64(len(s.cache.leaders))
	s.mu.RUnlock()

	if needEpochInfo {
		if err := s.refreshEpochInfo(ctx, estimated); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if needLeaders {
		if err := s.refreshLeaders(ctx, estimated); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

func (s *Service) refreshClusterNodes(ctx context.Context) error {
	nodes, err := s.client.GetClusterNodes(ctx)
	if err != nil {
		return fmt.Errorf("fetching cluster nodes: %w", err)
	}

	tpuMap := map[solana.PublicKey]*net.UDPAddr{}
	for _, n := range nodes {
		if n.TPU == nil || *n.TPU == "" {
			continue
		}
		addr, err := net.ResolveUDPAddr("udp", *n.TPU)
		if err != nil {
			continue
		}
		tpuMap[n.Pubkey] = addr
	}

	s.mu.Lock()
	s.cache.leaderTPU = tpuMap
	s.mu.Unlock()
	return nil
}

func (s *Service) refreshEpochInfo(ctx context.Context, estimatedSlot uint64) error {
	info, err := s.client.GetEpochInfo(ctx, rpc.CommitmentProcessed)
	if err != nil {
		return fmt.Errorf("fetching epoch info: %w", err)
	}
	s.mu.Lock()
	s.cache.slotsInEpoch = info.SlotsInEpoch
	s.cache.lastEpochInfoSlot = estimatedSlot
	s.mu.Unlock()
	return nil
}

func (s *Service) refreshLeaders(ctx context.Context, estimatedSlot uint64) error {
	s.mu.RLock()
	slotsInEpoch := s.cache.slotsInEpoch
	s.mu.RUnlock()

	leaders, err := s.client.GetSlotLeaders(ctx, estimatedSlot, fanoutFor(slotsInEpoch))
	if err != nil {
		return fmt.Errorf("fetching slot leaders: %w", err)
	}

	s.mu.Lock()
	s.cache.firstSlot = estimatedSlot
	s.cache.leaders = leaders
	s.mu.Unlock()
	return nil
}

// EstimatedCurrentSlot returns the cache's best estimate of the slot the
// cluster is currently processing.
func (s *Service) EstimatedCurrentSlot() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recent.estimatedCurrentSlot()
}

// TpuForNextInSchedule returns a new slice holding up to fanoutSlots worth
// of deduplicated upcoming leaders' TPU socket addresses, skipping leaders
// whose TPU address is not currently known.
func (s *Service) TpuForNextInSchedule(fanoutSlots uint64) []*net.UDPAddr {
	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.recent.estimatedCurrentSlot()
	if s.cache.firstSlot > current {
		current = s.cache.firstSlot
	}

	var out []*net.UDPAddr
	seen := map[string]struct{}{}
	for slot := current; slot < current+fanoutSlots; slot++ {
		idx := slot - s.cache.firstSlot
		if idx >= uint64(len(s.cache.leaders)) {
			break
		}
		leader := s.cache.leaders[idx]
		addr, ok := s.cache.leaderTPU[leader]
		if !ok {
			continue
		}
		key := addr.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}
	return out
}
