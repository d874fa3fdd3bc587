package fanout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/0xkanth/tx-shepherd/internal/blockhash"
	"github.com/0xkanth/tx-shepherd/internal/leader"
)

func TestLeaderDoneOrNilBlocksForeverWhenNil(t *testing.T) {
	ch := leaderDoneOrNil(nil)
	select {
	case <-ch:
		t.Fatal("expected nil channel to never be ready")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestOperationTypeSignatureCompiles(t *testing.T) {
	var op Operation = func(ctx context.Context, cache *blockhash.Cache, leaderSvc *leader.Service) error {
		require.NotNil(t, ctx)
		return nil
	}
	require.NotNil(t, op)
}
