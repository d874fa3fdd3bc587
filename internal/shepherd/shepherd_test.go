package shepherd

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/0xkanth/tx-shepherd/internal/blockhash"
)

// fakeClient implements rpcClient with scripted behavior per signature,
// letting each scenario drive the shepherd without a live cluster.
type fakeClient struct {
	mu sync.Mutex

	sendErr      error
	onStatus     func(sig solana.Signature) (confirmations *uint8, failed string, absent bool)
	confirmCount uint8
}

func (f *fakeClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return solana.Signature{}, f.sendErr
	}
	var sig solana.Signature
	sig[0] = byte(len(tx.Signatures) + 1)
	return sig, nil
}

func (f *fakeClient) GetSignatureStatuses(ctx context.Context, sigs []solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	values := make([]*rpc.SignatureStatusesResult, len(sigs))
	for i, sig := range sigs {
		confirmations, failReason, absent := f.onStatus(sig)
		if absent {
			values[i] = nil
			continue
		}
		entry := &rpc.SignatureStatusesResult{}
		if failReason != "" {
			entry.Err = failReason
		}
		if confirmations != nil {
			c := uint64(*confirmations)
			entry.Confirmations = &c
		}
		values[i] = entry
	}
	return &rpc.GetSignatureStatusesResult{Value: values}, nil
}

func testCache() *blockhash.Cache {
	c := blockhash.New(zerolog.Nop())
	// Populate the cache directly through a successful Refresh-equivalent
	// path isn't exposed; tests only need Get() to return a stable value,
	// and the zero value is fine since builders below never inspect it.
	return c
}

func oneShotBuilder() TxBuilder {
	return func(bh blockhash.Blockhash) (*solana.Transaction, error) {
		return &solana.Transaction{}, nil
	}
}

func TestShepherdHappyPath(t *testing.T) {
	confirmed := uint8(maxConfirmations)
	client := &fakeClient{
		onStatus: func(sig solana.Signature) (*uint8, string, bool) {
			return &confirmed, "", false
		},
	}

	s := &Shepherd{
		client:                  client,
		cache:                   testCache(),
		logger:                  zerolog.Nop(),
		rpcFailureRetryDelay:    time.Millisecond,
		statusFailureRetryDelay: time.Millisecond,
		retryCount:              3,
		showProgress:            false,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := s.Run(ctx, []TxBuilder{oneShotBuilder(), oneShotBuilder(), oneShotBuilder()})
	require.NoError(t, err)
	require.Equal(t, 3, result.Succeeded)
	require.Equal(t, 0, result.Failed)
}

func TestShepherdFlakyRPCEventuallySucceeds(t *testing.T) {
	var attempts int
	var mu sync.Mutex
	confirmed := uint8(maxConfirmations)

	client := &flakyClient{
		attempts: &attempts,
		mu:       &mu,
		onStatus: func(sig solana.Signature) (*uint8, string, bool) {
			return &confirmed, "", false
		},
	}

	s := &Shepherd{
		client:                  client,
		cache:                   testCache(),
		logger:                  zerolog.Nop(),
		rpcFailureRetryDelay:    time.Millisecond,
		statusFailureRetryDelay: time.Millisecond,
		retryCount:              3,
		showProgress:            false,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := s.Run(ctx, []TxBuilder{oneShotBuilder()})
	require.NoError(t, err)
	require.Equal(t, 1, result.Succeeded)
}

// flakyClient fails the first two SendTransaction calls with a transient
// error, then succeeds.
type flakyClient struct {
	mu       *sync.Mutex
	attempts *int
	onStatus func(sig solana.Signature) (*uint8, string, bool)
}

func (f *flakyClient) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.attempts++
	if *f.attempts <= 2 {
		return solana.Signature{}, &timeoutError{}
	}
	var sig solana.Signature
	sig[0] = 1
	return sig, nil
}

func (f *flakyClient) GetSignatureStatuses(ctx context.Context, sigs []solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	values := make([]*rpc.SignatureStatusesResult, len(sigs))
	for i := range sigs {
		confirmations, failReason, absent := f.onStatus(sigs[i])
		if absent {
			continue
		}
		entry := &rpc.SignatureStatusesResult{}
		if failReason != "" {
			entry.Err = failReason
		}
		if confirmations != nil {
			c := uint64(*confirmations)
			entry.Confirmations = &c
		}
		values[i] = entry
	}
	return &rpc.GetSignatureStatusesResult{Value: values}, nil
}

type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

func TestShepherdAbsenceTimeoutExhaustsRetries(t *testing.T) {
	client := &fakeClient{
		onStatus: func(sig solana.Signature) (*uint8, string, bool) {
			return nil, "", true
		},
	}

	s := &Shepherd{
		client:                  client,
		cache:                   testCache(),
		logger:                  zerolog.Nop(),
		rpcFailureRetryDelay:    time.Millisecond,
		statusFailureRetryDelay: time.Millisecond,
		retryCount:              0,
		showProgress:            false,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := s.Run(ctx, []TxBuilder{oneShotBuilder()})
	require.NoError(t, err)
	require.Equal(t, 1, result.Failed)
	require.Equal(t, 0, result.Succeeded)
}

func TestShepherdSucceededPlusFailedEqualsInputCount(t *testing.T) {
	confirmed := uint8(maxConfirmations)
	client := &fakeClient{
		onStatus: func(sig solana.Signature) (*uint8, string, bool) {
			if sig[0]%2 == 0 {
				return nil, "", true
			}
			return &confirmed, "", false
		},
	}

	s := &Shepherd{
		client:                  client,
		cache:                   testCache(),
		logger:                  zerolog.Nop(),
		rpcFailureRetryDelay:    time.Millisecond,
		statusFailureRetryDelay: time.Millisecond,
		retryCount:              0,
		showProgress:            false,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	builders := make([]TxBuilder, 4)
	for i := range builders {
		builders[i] = oneShotBuilder()
	}

	result, err := s.Run(ctx, builders)
	require.NoError(t, err)
	require.Equal(t, len(builders), result.Succeeded+result.Failed)
}
