package shepherd

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

// maxConfirmations is one past the cluster's maximum lockout history: once
// a signature has accumulated this many confirmations it is as final as
// this toolkit will ever observe.
const maxConfirmations = 32

// maxAbsentSlots bounds how many slots (400ms each) a submitted signature
// may stay absent from GetSignatureStatuses, counted from its submission,
// before the submission is retried.
const maxAbsentSlots = 5

type statusKind int

const (
	kindSending statusKind = iota
	kindWaitingConfirmation
	kindSuccess
	kindFailed
)

// status is the tagged variant for one in-flight transaction target's
// execution state. Its mutating methods assert the variant they expect and
// panic otherwise — an invalid transition here is a bug in this package,
// never a condition a caller is expected to handle.
type status struct {
	kind_ statusKind

	retryCount int

	signature     solana.Signature
	waitStart     time.Time
	confirmations *uint8

	failure string
}

func sending(retryCount int) status {
	return status{kind_: kindSending, retryCount: retryCount}
}

func (s status) Kind() statusKind { return s.kind_ }

func (s status) String() string {
	switch s.kind_ {
	case kindSending:
		return fmt.Sprintf("Sending{retry=%d}", s.retryCount)
	case kindWaitingConfirmation:
		return fmt.Sprintf("WaitingConfirmation{sig=%s, confirmations=%v}", s.signature, s.confirmations)
	case kindSuccess:
		return "Success"
	case kindFailed:
		return fmt.Sprintf("Failed(%s)", s.failure)
	default:
		return "unknown"
	}
}

func (s status) isTerminal() bool {
	return s.kind_ == kindSuccess || s.kind_ == kindFailed
}

// sendSuccess transitions a Sending target to WaitingConfirmation once its
// transaction has been submitted.
func (s status) sendSuccess(sig solana.Signature, now time.Time) status {
	if s.kind_ != kindSending {
		panic(fmt.Sprintf("shepherd: sendSuccess called on %s", s))
	}
	return status{
		kind_:      kindWaitingConfirmation,
		retryCount: s.retryCount,
		signature:  sig,
		waitStart:  now,
	}
}

// sendFailed transitions a Sending target back to Sending with one fewer
// retry remaining, or to Failed if none remain.
func (s status) sendFailed(reason string) status {
	if s.kind_ != kindSending {
		panic(fmt.Sprintf("shepherd: sendFailed called on %s", s))
	}
	if s.retryCount <= 0 {
		return status{kind_: kindFailed, failure: reason}
	}
	return status{kind_: kindSending, retryCount: s.retryCount - 1}
}

// statusSuccess transitions a WaitingConfirmation target to Success once
// its confirmation count has reached maxConfirmations.
func (s status) statusSuccess() status {
	if s.kind_ != kindWaitingConfirmation {
		panic(fmt.Sprintf("shepherd: statusSuccess called on %s", s))
	}
	return status{kind_: kindSuccess}
}

// statusConfirmations records an updated (non-terminal) confirmation count
// for a WaitingConfirmation target.
func (s status) statusConfirmations(confirmations uint8) status {
	if s.kind_ != kindWaitingConfirmation {
		panic(fmt.Sprintf("shepherd: statusConfirmations called on %s", s))
	}
	c := confirmations
	s.confirmations = &c
	return s
}

type absentAction int

const (
	absentWaitMore absentAction = iota
	absentRetry
	absentFailed
)

// statusAbsent classifies how long a WaitingConfirmation target has gone
// without its signature appearing in GetSignatureStatuses, and returns
// both the action the caller should take and (for absentRetry/absentFailed)
// the resulting status.
func (s status) statusAbsent(now time.Time) (absentAction, status) {
	if s.kind_ != kindWaitingConfirmation {
		panic(fmt.Sprintf("shepherd: statusAbsent called on %s", s))
	}
	elapsed := now.Sub(s.waitStart)
	if elapsed < maxAbsentSlots*400*time.Millisecond {
		return absentWaitMore, s
	}
	if s.retryCount <= 0 {
		return absentFailed, status{kind_: kindFailed, failure: "Transaction not present in the chain even after 5 slots"}
	}
	return absentRetry, status{kind_: kindSending, retryCount: s.retryCount - 1}
}

// statusFailed classifies an on-chain failure reported by
// GetSignatureStatuses, applying the same retry policy as statusAbsent: the
// target goes back to Sending with one fewer retry, or to Failed once
// retries are exhausted.
func (s status) statusFailed(reason string) (absentAction, status) {
	if s.kind_ != kindWaitingConfirmation {
		panic(fmt.Sprintf("shepherd: statusFailed called on %s", s))
	}
	if s.retryCount <= 0 {
		return absentFailed, status{kind_: kindFailed, failure: reason}
	}
	return absentRetry, status{kind_: kindSending, retryCount: s.retryCount - 1}
}
