package pricestore

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestPlanFillUpToSkipsFundedRecipients(t *testing.T) {
	a := solana.NewWallet().PublicKey()
	b := solana.NewWallet().PublicKey()

	balances := map[solana.PublicKey]uint64{
		a: 500,
		b: 2_000,
	}

	plans := PlanFillUpTo(balances, 1_000)
	require.Len(t, plans, 1)
	require.Equal(t, a, plans[0].Recipient)
	require.Equal(t, uint64(500), plans[0].Lamports)
}

func TestPlanFillUpToReturnsNoneWhenAllFunded(t *testing.T) {
	a := solana.NewWallet().PublicKey()
	plans := PlanFillUpTo(map[solana.PublicKey]uint64{a: 5_000}, 1_000)
	require.Empty(t, plans)
}
