// Package pricestore wires the price-store program's one-shot CLI
// subcommands (initialize, initialize-publisher, submit-prices) through
// the shared shepherd. The continuous benchmark workload lives in
// internal/benchmark instead; this package only covers the single-shot
// operations original_source groups alongside it.
package pricestore

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/0xkanth/tx-shepherd/internal/blockhash"
	"github.com/0xkanth/tx-shepherd/internal/shepherd"
)

// InstructionBuilder produces the on-chain instruction one price-store
// subcommand submits.
type InstructionBuilder func() (solana.Instruction, error)

// FillUpToPlan describes one recipient's balance top-up, computed by the
// caller from a live account lookup (see internal/solclient's
// GetAccountInfoLamportsOnly) before the transfers are driven through the
// shepherd.
type FillUpToPlan struct {
	Recipient solana.PublicKey
	Lamports  uint64
}

// Submit builds one transaction from build, signs it with payer plus any
// extra signers, and drives it through sh to completion.
func Submit(ctx context.Context, sh *shepherd.Shepherd, payer solana.PrivateKey, signers []solana.PrivateKey, build InstructionBuilder, logger zerolog.Logger) error {
	builder := func(bh blockhash.Blockhash) (*solana.Transaction, error) {
		instr, err := build()
		if err != nil {
			return nil, fmt.Errorf("building price-store instruction: %w", err)
		}

		tx, err := solana.NewTransaction([]solana.Instruction{instr}, bh.Hash, solana.TransactionPayer(payer.PublicKey()))
		if err != nil {
			return nil, fmt.Errorf("building transaction: %w", err)
		}

		keys := map[solana.PublicKey]*solana.PrivateKey{payer.PublicKey(): &payer}
		for i := range signers {
			keys[signers[i].PublicKey()] = &signers[i]
		}
		if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey { return keys[key] }); err != nil {
			return nil, fmt.Errorf("signing transaction: %w", err)
		}
		return tx, nil
	}

	result, err := sh.Run(ctx, []shepherd.TxBuilder{builder})
	if err != nil {
		return err
	}
	if result.Failed > 0 {
		return fmt.Errorf("price-store submission failed: %s", result.Failures[0])
	}
	logger.Info().Msg("price-store instruction confirmed")
	return nil
}

// PlanFillUpTo computes the lamports shortfall for each recipient against
// targetBalance, skipping recipients already at or above it, mirroring
// original_source's balance-top-up planning step.
func PlanFillUpTo(balances map[solana.PublicKey]uint64, targetBalance uint64) []FillUpToPlan {
	var plans []FillUpToPlan
	for recipient, balance := range balances {
		if balance >= targetBalance {
			continue
		}
		plans = append(plans, FillUpToPlan{Recipient: recipient, Lamports: targetBalance - balance})
	}
	return plans
}
