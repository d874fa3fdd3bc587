package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/0xkanth/tx-shepherd/internal/blockhash"
	"github.com/0xkanth/tx-shepherd/internal/fanout"
	"github.com/0xkanth/tx-shepherd/internal/leader"
	"github.com/0xkanth/tx-shepherd/internal/pricestore"
	"github.com/0xkanth/tx-shepherd/internal/shepherd"
	"github.com/0xkanth/tx-shepherd/internal/solclient"
)

func newTransferCmd() *cobra.Command {
	transfer := &cobra.Command{
		Use:   "transfer",
		Short: "Move lamports between accounts",
	}
	transfer.AddCommand(newFillUpToCmd())
	return transfer
}

func newFillUpToCmd() *cobra.Command {
	var payerKeypairPath string
	var recipientKeypairPaths []string
	var targetBalance uint64

	cmd := &cobra.Command{
		Use:   "fill-up-to",
		Short: "Top up each recipient to a target lamport balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}

			payer, err := loadKeypair(payerKeypairPath)
			if err != nil {
				return fmt.Errorf("loading payer keypair: %w", err)
			}

			recipients := make([]solana.PublicKey, 0, len(recipientKeypairPaths))
			for _, path := range recipientKeypairPaths {
				key, err := loadKeypair(path)
				if err != nil {
					return fmt.Errorf("loading recipient keypair %q: %w", path, err)
				}
				recipients = append(recipients, key.PublicKey())
			}

			client := solclient.New(cfg.RPCURL, cfg.RPCCallsPerSecond, cfg.RPCBurst)

			runner := fanout.New(client, fanout.Config{
				WithLeaderService: false,
				BlockhashInterval: cfg.BlockhashInterval,
			}, logger)

			return runner.Run(context.Background(), func(ctx context.Context, cache *blockhash.Cache, _ *leader.Service) error {
				balances := map[solana.PublicKey]uint64{}
				for _, r := range recipients {
					lamports, err := client.GetAccountInfoLamportsOnly(ctx, r)
					if err != nil {
						return fmt.Errorf("fetching balance for %s: %w", r, err)
					}
					balances[r] = lamports
				}

				plans := pricestore.PlanFillUpTo(balances, targetBalance)
				if len(plans) == 0 {
					logger.Info().Msg("every recipient already at or above target balance")
					return nil
				}

				sh := shepherd.New(client, cache, logger,
					shepherd.WithRPCFailureRetryDelay(cfg.RPCFailureRetryDelay),
					shepherd.WithStatusFailureRetryDelay(cfg.StatusFailureRetryDelay),
					shepherd.WithRetryCount(int(cfg.RetryCount)),
				)

				builders := make([]shepherd.TxBuilder, len(plans))
				for i, plan := range plans {
					p := plan
					builders[i] = func(bh blockhash.Blockhash) (*solana.Transaction, error) {
						instr := solana.NewTransferInstruction(p.Lamports, payer.PublicKey(), p.Recipient).Build()
						tx, err := solana.NewTransaction([]solana.Instruction{instr}, bh.Hash, solana.TransactionPayer(payer.PublicKey()))
						if err != nil {
							return nil, err
						}
						_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
							if key == payer.PublicKey() {
								return &payer
							}
							return nil
						})
						return tx, err
					}
				}

				result, err := sh.Run(ctx, builders)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "succeeded=%d failed=%d\n", result.Succeeded, result.Failed)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&payerKeypairPath, "payer", "", "path to the funding account's keypair file")
	cmd.Flags().StringArrayVar(&recipientKeypairPaths, "recipient", nil, "path to a recipient keypair file (repeatable)")
	cmd.Flags().Uint64Var(&targetBalance, "target-lamports", 0, "lamport balance every recipient should be topped up to")
	return cmd
}

func loadKeypair(path string) (solana.PrivateKey, error) {
	return solana.PrivateKeyFromSolanaKeygenFile(path)
}
