package shepherd

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendFailedDecrementsRetryCount(t *testing.T) {
	s := sending(2)
	s = s.sendFailed("connection reset")
	require.Equal(t, kindSending, s.kind_)
	assert.Equal(t, 1, s.retryCount)
}

func TestSendFailedExhaustedTransitionsToFailed(t *testing.T) {
	s := sending(0)
	s = s.sendFailed("connection reset")
	require.Equal(t, kindFailed, s.kind_)
	assert.Equal(t, "connection reset", s.failure)
}

func TestSendSuccessTransitionsToWaitingConfirmation(t *testing.T) {
	s := sending(3)
	s = s.sendSuccess(solana.Signature{}, time.Now())
	require.Equal(t, kindWaitingConfirmation, s.kind_)
	assert.Equal(t, 3, s.retryCount)
}

func TestStatusSuccessRequiresWaitingConfirmation(t *testing.T) {
	s := sending(3)
	assert.Panics(t, func() { s.statusSuccess() })
}

func TestStatusAbsentWaitsBeforeRetrying(t *testing.T) {
	s := sending(3).sendSuccess(solana.Signature{}, time.Now())
	action, next := s.statusAbsent(s.waitStart.Add(time.Second))
	assert.Equal(t, absentWaitMore, action)
	assert.Equal(t, kindWaitingConfirmation, next.kind_)
}

func TestStatusAbsentRetriesAfterTimeout(t *testing.T) {
	s := sending(3).sendSuccess(solana.Signature{}, time.Now())
	action, next := s.statusAbsent(s.waitStart.Add(3 * time.Second))
	assert.Equal(t, absentRetry, action)
	assert.Equal(t, kindSending, next.kind_)
	assert.Equal(t, 2, next.retryCount)
}

func TestStatusAbsentFailsWhenRetriesExhausted(t *testing.T) {
	s := sending(0).sendSuccess(solana.Signature{}, time.Now())
	action, next := s.statusAbsent(s.waitStart.Add(3 * time.Second))
	assert.Equal(t, absentFailed, action)
	assert.Equal(t, kindFailed, next.kind_)
	assert.Contains(t, next.failure, "5 slots")
}

func TestStatusFailedRetriesBeforeExhausted(t *testing.T) {
	s := sending(3).sendSuccess(solana.Signature{}, time.Now())
	action, next := s.statusFailed("on-chain error")
	assert.Equal(t, absentRetry, action)
	assert.Equal(t, kindSending, next.kind_)
	assert.Equal(t, 2, next.retryCount)
}

func TestStatusFailedExhaustedTransitionsToFailed(t *testing.T) {
	s := sending(0).sendSuccess(solana.Signature{}, time.Now())
	action, next := s.statusFailed("on-chain error")
	assert.Equal(t, absentFailed, action)
	assert.Equal(t, kindFailed, next.kind_)
	assert.Equal(t, "on-chain error", next.failure)
}
