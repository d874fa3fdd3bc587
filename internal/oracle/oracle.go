// Package oracle wires the oracle program's CLI subcommands (add-price,
// add-product, add-publisher, init-mapping, update-permissions) through the
// shared shepherd; there is no get-price-feed-index subcommand. Instruction encoding
// for the oracle program itself is out of scope; callers supply it via
// InstructionBuilder.
package oracle

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/rs/zerolog"

	"github.com/0xkanth/tx-shepherd/internal/blockhash"
	"github.com/0xkanth/tx-shepherd/internal/shepherd"
)

// InstructionBuilder produces the single on-chain instruction an oracle
// subcommand submits. The binary layout of that instruction is the
// program's concern, not this package's.
type InstructionBuilder func() (solana.Instruction, error)

// Submit builds one transaction from build, signs it with signers, and
// drives it through sh to completion — the common shape every oracle
// subcommand (add-price, add-product, add-publisher, init-mapping,
// update-permissions) reduces to.
func Submit(ctx context.Context, sh *shepherd.Shepherd, payer solana.PrivateKey, signers []solana.PrivateKey, build InstructionBuilder, logger zerolog.Logger) error {
	builder := func(bh blockhash.Blockhash) (*solana.Transaction, error) {
		instr, err := build()
		if err != nil {
			return nil, fmt.Errorf("building oracle instruction: %w", err)
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
		return fmt.Errorf("oracle submission failed: %s", result.Failures[0])
	}
	logger.Info().Msg("oracle instruction confirmed")
	return nil
}
