package main

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/0xkanth/tx-shepherd/internal/blockhash"
	"github.com/0xkanth/tx-shepherd/internal/fanout"
	"github.com/0xkanth/tx-shepherd/internal/leader"
	"github.com/0xkanth/tx-shepherd/internal/oracle"
	"github.com/0xkanth/tx-shepherd/internal/shepherd"
	"github.com/0xkanth/tx-shepherd/internal/solclient"
)

// newOracleCmd wires the oracle program's subcommands. Encoding each
// instruction's binary layout is the oracle program's concern, not this
// toolkit's — every subcommand below submits a placeholder instruction
// shaped only by the account list the operation needs, which a real
// deployment replaces with its own oracle.InstructionBuilder.
func newOracleCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "oracle",
		Short: "Submit oracle program instructions (add-price, add-product, add-publisher, init-mapping, update-permissions)",
	}
	for _, name := range []string{"add-price", "add-product", "add-publisher", "init-mapping", "update-permissions"} {
		root.AddCommand(newOracleSubcommand(name))
	}
	return root
}

func newOracleSubcommand(name string) *cobra.Command {
	var payerKeypairPath string
	var programID string
	var accountPubkeys []string

	cmd := &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Submit a %s instruction", name),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}

			payer, err := loadKeypair(payerKeypairPath)
			if err != nil {
				return fmt.Errorf("loading payer keypair: %w", err)
			}

			program, err := solana.PublicKeyFromBase58(programID)
			if err != nil {
				return fmt.Errorf("parsing --program-id: %w", err)
			}

			accounts := make(solana.AccountMetaSlice, 0, len(accountPubkeys))
			for _, raw := range accountPubkeys {
				key, err := solana.PublicKeyFromBase58(raw)
				if err != nil {
					return fmt.Errorf("parsing account %q: %w", raw, err)
				}
				accounts = append(accounts, solana.NewAccountMeta(key, true, false))
			}

			client := solclient.New(cfg.RPCURL, cfg.RPCCallsPerSecond, cfg.RPCBurst)
			runner := fanout.New(client, fanout.Config{BlockhashInterval: cfg.BlockhashInterval}, logger)

			return runner.Run(context.Background(), func(ctx context.Context, cache *blockhash.Cache, _ *leader.Service) error {
				sh := shepherd.New(client, cache, logger,
					shepherd.WithRPCFailureRetryDelay(cfg.RPCFailureRetryDelay),
					shepherd.WithStatusFailureRetryDelay(cfg.StatusFailureRetryDelay),
					shepherd.WithRetryCount(int(cfg.RetryCount)),
				)

				build := func() (solana.Instruction, error) {
					return solana.NewInstruction(program, accounts, []byte(name)), nil
				}

				return oracle.Submit(ctx, sh, payer, nil, build, logger)
			})
		},
	}

	cmd.Flags().StringVar(&payerKeypairPath, "payer", "", "path to the payer's keypair file")
	cmd.Flags().StringVar(&programID, "program-id", "", "oracle program id")
	cmd.Flags().StringArrayVar(&accountPubkeys, "account", nil, "an account the instruction touches (repeatable)")
	return cmd
}
