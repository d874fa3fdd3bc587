// Package solclient wraps the Solana JSON-RPC client with call-rate
// throttling, per-method call accounting, and error classification. It
// intentionally stays thin: it is not a general-purpose RPC client, only a
// shared chokepoint the rest of this toolkit calls through.
package solclient

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/kevinms/leakybucket-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var rpcCallTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "shepherd",
	Subsystem: "rpc",
	Name:      "calls_total",
	Help:      "RPC calls issued, labeled by method and outcome.",
}, []string{"method", "outcome"})

// Client wraps *rpc.Client with throttling, metrics, and error
// classification shared across the blockhash cache, leader address
// service, and shepherd.
type Client struct {
	rpc    *rpc.Client
	bucket *leakybucket.Collector
}

// New builds a Client around rawURL, throttled to callsPerSecond with the
// given burst allowance.
func New(rawURL string, callsPerSecond, burst float64) *Client {
	return &Client{
		rpc:    rpc.New(rawURL),
		bucket: leakybucket.NewCollector(callsPerSecond, burst, true),
	}
}

// Raw exposes the underlying *rpc.Client for call sites that need a method
// this wrapper does not cover.
func (c *Client) Raw() *rpc.Client { return c.rpc }

func (c *Client) throttle(ctx context.Context) error {
	for {
		if c.bucket.Add(1) > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (c *Client) record(method string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	rpcCallTotal.WithLabelValues(method, outcome).Inc()
}

// GetLatestBlockhash fetches the latest blockhash at the given commitment.
func (c *Client) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	out, err := c.rpc.GetLatestBlockhash(ctx, commitment)
	c.record("getLatestBlockhash", err)
	return out, err
}

// GetSlot fetches the current slot at the given commitment.
func (c *Client) GetSlot(ctx context.Context, commitment rpc.CommitmentType) (uint64, error) {
	if err := c.throttle(ctx); err != nil {
		return 0, err
	}
	out, err := c.rpc.GetSlot(ctx, commitment)
	c.record("getSlot", err)
	return uint64(out), err
}

// GetEpochInfo fetches epoch metadata at the given commitment.
func (c *Client) GetEpochInfo(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetEpochInfoResult, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	out, err := c.rpc.GetEpochInfo(ctx, commitment)
	c.record("getEpochInfo", err)
	return out, err
}

// GetSlotLeaders fetches up to limit leaders starting at startSlot.
func (c *Client) GetSlotLeaders(ctx context.Context, startSlot uint64, limit uint64) ([]solana.PublicKey, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	out, err := c.rpc.GetSlotLeaders(ctx, startSlot, limit)
	c.record("getSlotLeaders", err)
	return out, err
}

// GetClusterNodes fetches the current cluster node set, including each
// node's TPU socket address.
func (c *Client) GetClusterNodes(ctx context.Context) ([]*rpc.GetClusterNodesResult, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	out, err := c.rpc.GetClusterNodes(ctx)
	c.record("getClusterNodes", err)
	return out, err
}

// SendTransaction submits a signed transaction without waiting for
// confirmation.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	if err := c.throttle(ctx); err != nil {
		return solana.Signature{}, err
	}
	out, err := c.rpc.SendTransaction(ctx, tx)
	c.record("sendTransaction", err)
	return out, err
}

// GetSignatureStatuses batches a signature-status lookup for up to 256
// signatures.
func (c *Client) GetSignatureStatuses(ctx context.Context, sigs []solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	out, err := c.rpc.GetSignatureStatuses(ctx, true, sigs...)
	c.record("getSignatureStatuses", err)
	return out, err
}

// GetAccountInfoLamportsOnly fetches account info with a zero-length data
// slice, so no account data is transferred, and returns the account's
// lamport balance; an account that does not exist reports 0.
func (c *Client) GetAccountInfoLamportsOnly(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	if err := c.throttle(ctx); err != nil {
		return 0, err
	}
	out, err := c.rpc.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{
		DataSlice: &rpc.DataSlice{Offset: new(uint64), Length: new(uint64)},
	})
	c.record("getAccountInfo", err)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if out == nil || out.Value == nil {
		return 0, nil
	}
	return out.Value.Lamports, nil
}

// ErrorClass is the error taxonomy the shepherd and leader service classify
// RPC failures into, instead of each re-implementing string matching.
type ErrorClass int

const (
	// ClassTransient covers timeouts, connection resets, and rate limits:
	// retry with no change in behavior.
	ClassTransient ErrorClass = iota
	// ClassPermanent covers malformed requests and auth failures: retrying
	// will not help.
	ClassPermanent
)

// Classify buckets err into the shared RPC error taxonomy.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}
	msg := strings.ToLower(err.Error())
	for _, substr := range []string{"timeout", "connection reset", "eof", "too many requests", "rate limit", "temporarily unavailable"} {
		if strings.Contains(msg, substr) {
			return ClassTransient
		}
	}
	for _, substr := range []string{"invalid", "unauthorized", "forbidden", "not found", "parse error"} {
		if strings.Contains(msg, substr) {
			return ClassPermanent
		}
	}
	return ClassTransient
}

// IsTransient reports whether err should be retried by the caller.
func IsTransient(err error) bool {
	return err != nil && Classify(err) == ClassTransient
}
