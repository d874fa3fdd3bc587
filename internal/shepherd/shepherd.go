// Package shepherd drives a batch of transactions through send, confirm,
// and retry until each has either succeeded or exhausted its retries.
package shepherd

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/0xkanth/tx-shepherd/internal/blockhash"
	"github.com/0xkanth/tx-shepherd/internal/solclient"
)

// statusPollInterval paces status-poll batches and the spinner refresh; it
// is fixed, independent of statusFailureRetryDelay (which instead delays
// re-sends after an absent or on-chain-failed signature).
const statusPollInterval = 500 * time.Millisecond

// rpcClient is the slice of *solclient.Client the shepherd actually calls,
// narrowed so tests can substitute a fake without a live cluster.
type rpcClient interface {
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
	GetSignatureStatuses(ctx context.Context, sigs []solana.Signature) (*rpc.GetSignatureStatusesResult, error)
}

// TxBuilder produces a signed transaction from the current blockhash. It is
// called once per send attempt, so it must embed whatever retry-specific
// state (e.g. a fresh blockhash) the caller wants reflected in each attempt.
type TxBuilder func(bh blockhash.Blockhash) (*solana.Transaction, error)

// Option configures a Shepherd.
type Option func(*Shepherd)

// WithRPCFailureRetryDelay sets the delay before retrying a send that
// failed at the RPC layer. Default 400ms.
func WithRPCFailureRetryDelay(d time.Duration) Option {
	return func(s *Shepherd) { s.rpcFailureRetryDelay = d }
}

// WithStatusFailureRetryDelay sets the delay before re-sending a target
// whose signature came back absent or on-chain-failed. Default 1200ms.
// Status polling itself is paced on a fixed 500ms interval, independent of
// this delay.
func WithStatusFailureRetryDelay(d time.Duration) Option {
	return func(s *Shepherd) { s.statusFailureRetryDelay = d }
}

// WithRetryCount sets how many additional attempts each target gets after
// its first. Default 3.
func WithRetryCount(n int) Option {
	return func(s *Shepherd) { s.retryCount = n }
}

// WithProgressBar enables or disables the live spinner. Enabled by default.
func WithProgressBar(enabled bool) Option {
	return func(s *Shepherd) { s.showProgress = enabled }
}

// Shepherd drives a batch of TxBuilders to completion.
type Shepherd struct {
	client rpcClient
	cache  *blockhash.Cache
	logger zerolog.Logger

	rpcFailureRetryDelay    time.Duration
	statusFailureRetryDelay time.Duration
	retryCount              int
	showProgress            bool
}

// New builds a Shepherd with the given defaults, overridden by opts.
func New(client *solclient.Client, cache *blockhash.Cache, logger zerolog.Logger, opts ...Option) *Shepherd {
	s := &Shepherd{
		client:                  client,
		cache:                   cache,
		logger:                  logger.With().Str("component", "shepherd").Logger(),
		rpcFailureRetryDelay:    400 * time.Millisecond,
		statusFailureRetryDelay: 1200 * time.Millisecond,
		retryCount:              3,
		showProgress:            true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result summarizes what happened to every target once Run returns.
type Result struct {
	Succeeded int
	Failed    int
	Failures  []string
}

type sendResult struct {
	index int
	sig   solana.Signature
	err   error
}

// Run drives every builder in builders through the send/confirm/retry state
// machine until all have reached Success or Failed, or ctx is canceled.
func (s *Shepherd) Run(ctx context.Context, builders []TxBuilder) (Result, error) {
	statuses := make([]status, len(builders))
	for i := range statuses {
		statuses[i] = sending(s.retryCount)
	}

	sendResults := make(chan sendResult, len(builders))
	inFlightSends := map[int]struct{}{}
	inStatusCheck := map[int]struct{}{}

	var bar *progressbar.ProgressBar
	if s.showProgress {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetDescription("submitting transactions"),
		)
	}

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	var lastStatusCheck time.Time
	statusResults := make(chan map[int]*rpcStatusEntry, 1)

	launchSend := func(i int, delay time.Duration) {
		inFlightSends[i] = struct{}{}
		go func() {
			if delay > 0 {
				select {
				case <-ctx.Done():
					sendResults <- sendResult{index: i, err: ctx.Err()}
					return
				case <-time.After(delay):
				}
			}
			bh := s.cache.Get()
			tx, err := builders[i](bh)
			if err != nil {
				sendResults <- sendResult{index: i, err: err}
				return
			}
			sig, err := s.client.SendTransaction(ctx, tx)
			sendResults <- sendResult{index: i, sig: sig, err: err}
		}()
	}

	for i := range builders {
		launchSend(i, 0)
	}

	for !allTerminal(statuses) {
		select {
		case <-ctx.Done():
			return summarize(statuses), ctx.Err()

		case res := <-sendResults:
			delete(inFlightSends, res.index)
			var resendDelay time.Duration
			if res.err != nil {
				resendDelay = s.rpcFailureRetryDelay
				statuses[res.index] = statuses[res.index].sendFailed(res.err.Error())
			} else {
				statuses[res.index] = statuses[res.index].sendSuccess(res.sig, time.Now())
			}
			if statuses[res.index].kind_ == kindSending {
				launchSend(res.index, resendDelay)
			}

		case entries := <-statusResults:
			now := time.Now()
			for i, entry := range entries {
				delete(inStatusCheck, i)
				st := statuses[i]
				switch {
				case entry == nil:
					action, next := st.statusAbsent(now)
					statuses[i] = next
					if action == absentRetry {
						launchSend(i, s.statusFailureRetryDelay)
					}
				case entry.err != "":
					action, next := st.statusFailed(entry.err)
					statuses[i] = next
					if action == absentRetry {
						launchSend(i, s.statusFailureRetryDelay)
					}
				case entry.confirmations >= maxConfirmations:
					statuses[i] = st.statusSuccess()
				default:
					statuses[i] = st.statusConfirmations(entry.confirmations)
				}
			}

		case <-ticker.C:
			if bar != nil {
				_ = bar.Add(0)
				bar.Describe(progressLine(statuses))
			}

			if time.Since(lastStatusCheck) >= statusPollInterval {
				pending := pendingStatusChecks(statuses, inStatusCheck)
				if len(pending) > 0 {
					lastStatusCheck = time.Now()
					for _, i := range pending {
						inStatusCheck[i] = struct{}{}
					}
					go s.pollStatuses(ctx, pending, statuses, statusResults)
				}
			}
		}
	}

	if bar != nil {
		_ = bar.Finish()
	}
	return summarize(statuses), nil
}

type rpcStatusEntry struct {
	confirmations uint8
	err           string
}

func (s *Shepherd) pollStatuses(ctx context.Context, indices []int, statuses []status, out chan<- map[int]*rpcStatusEntry) {
	sigs := make([]solana.Signature, len(indices))
	for i, idx := range indices {
		sigs[i] = statuses[idx].signature
	}

	result, err := s.client.GetSignatureStatuses(ctx, sigs)
	entries := map[int]*rpcStatusEntry{}
	if err != nil {
		s.logger.Warn().Err(err).Msg("status poll failed")
		for _, idx := range indices {
			entries[idx] = nil
		}
		out <- entries
		return
	}

	for i, idx := range indices {
		v := result.Value[i]
		if v == nil {
			entries[idx] = nil
			continue
		}
		if v.Err != nil {
			entries[idx] = &rpcStatusEntry{err: fmt.Sprintf("%v", v.Err)}
			continue
		}
		conf := uint8(maxConfirmations)
		if v.Confirmations != nil {
			conf = uint8(*v.Confirmations)
		}
		entries[idx] = &rpcStatusEntry{confirmations: conf}
	}
	out <- entries
}

func pendingStatusChecks(statuses []status, inFlight map[int]struct{}) []int {
	var out []int
	for i, st := range statuses {
		if st.kind_ != kindWaitingConfirmation {
			continue
		}
		if _, busy := inFlight[i]; busy {
			continue
		}
		out = append(out, i)
	}
	return out
}

func allTerminal(statuses []status) bool {
	for _, st := range statuses {
		if !st.isTerminal() {
			return false
		}
	}
	return true
}

func summarize(statuses []status) Result {
	var r Result
	for _, st := range statuses {
		switch st.kind_ {
		case kindSuccess:
			r.Succeeded++
		case kindFailed:
			r.Failed++
			r.Failures = append(r.Failures, st.failure)
		}
	}
	return r
}

func progressLine(statuses []status) string {
	var sending, waiting, succeeded, failed int
	minConfirmations := uint8(maxConfirmations)
	for _, st := range statuses {
		switch st.kind_ {
		case kindSending:
			sending++
		case kindWaitingConfirmation:
			waiting++
			c := uint8(0)
			if st.confirmations != nil {
				c = *st.confirmations
			}
			if c < minConfirmations {
				minConfirmations = c
			}
		case kindSuccess:
			succeeded++
		case kindFailed:
			failed++
		}
	}
	if waiting == 0 {
		minConfirmations = 0
	}
	line := fmt.Sprintf("[%d/%d] Sending: %d / Confirming: %d / Succeeded: %d",
		minConfirmations, maxConfirmations, sending, waiting, succeeded)
	if failed > 0 {
		line += fmt.Sprintf(" / Failed: %d", failed)
	}
	return line
}
