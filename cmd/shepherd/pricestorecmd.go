package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/0xkanth/tx-shepherd/internal/benchmark"
	"github.com/0xkanth/tx-shepherd/internal/blockhash"
	"github.com/0xkanth/tx-shepherd/internal/fanout"
	"github.com/0xkanth/tx-shepherd/internal/leader"
	"github.com/0xkanth/tx-shepherd/internal/pricestore"
	"github.com/0xkanth/tx-shepherd/internal/shepherd"
	"github.com/0xkanth/tx-shepherd/internal/solclient"
)

func newPriceStoreCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "price-store",
		Short: "Submit price-store program instructions, or run the benchmark1 load generator",
	}
	for _, name := range []string{"initialize", "initialize-publisher", "submit-prices"} {
		root.AddCommand(newPriceStoreSubcommand(name))
	}
	root.AddCommand(newBenchmark1Cmd())
	return root
}

func newPriceStoreSubcommand(name string) *cobra.Command {
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

				return pricestore.Submit(ctx, sh, payer, nil, build, logger)
			})
		},
	}

	cmd.Flags().StringVar(&payerKeypairPath, "payer", "", "path to the payer's keypair file")
	cmd.Flags().StringVar(&programID, "program-id", "", "price-store program id")
	cmd.Flags().StringArrayVar(&accountPubkeys, "account", nil, "an account the instruction touches (repeatable)")
	return cmd
}

func newBenchmark1Cmd() *cobra.Command {
	var payerKeypairPath, publisherKeypairPath string
	var programID, bufferPubkey string
	var firstFeedIndex, feedCount uint32
	var priceUpdatesPerTx int
	var updateFrequency, duration time.Duration
	var priceMean int64
	var priceRange, confidenceMean, confidenceRange uint64

	cmd := &cobra.Command{
		Use:   "benchmark1",
		Short: "Run a continuous synthetic price-update load generator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadRuntime()
			if err != nil {
				return err
			}

			payer, err := loadKeypair(payerKeypairPath)
			if err != nil {
				return fmt.Errorf("loading payer keypair: %w", err)
			}
			publisher, err := loadKeypair(publisherKeypairPath)
			if err != nil {
				return fmt.Errorf("loading publisher keypair: %w", err)
			}
			program, err := solana.PublicKeyFromBase58(programID)
			if err != nil {
				return fmt.Errorf("parsing --program-id: %w", err)
			}
			buffer, err := solana.PublicKeyFromBase58(bufferPubkey)
			if err != nil {
				return fmt.Errorf("parsing --buffer: %w", err)
			}

			client := solclient.New(cfg.RPCURL, cfg.RPCCallsPerSecond, cfg.RPCBurst)
			runner := fanout.New(client, fanout.Config{
				WithLeaderService: true,
				WSURL:             cfg.WSURL,
				BlockhashInterval: cfg.BlockhashInterval,
			}, logger)

			return runner.Run(context.Background(), func(ctx context.Context, cache *blockhash.Cache, leaderSvc *leader.Service) error {
				runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				var cancel context.CancelFunc
				if duration > 0 {
					runCtx, cancel = context.WithTimeout(runCtx, duration)
					defer cancel()
				}

				pub, err := benchmark.NewPublisher(benchmark.PublisherConfig{
					Payer:             payer,
					Publisher:         publisher,
					ProgramID:         program,
					Buffer:            buffer,
					FirstFeedIndex:    firstFeedIndex,
					FeedCount:         feedCount,
					PriceUpdatesPerTx: priceUpdatesPerTx,
					UpdateFrequency:   updateFrequency,
					FanoutSlots:       cfg.FanoutSlots,
					PriceMean:         priceMean,
					PriceRange:        priceRange,
					ConfidenceMean:    confidenceMean,
					ConfidenceRange:   confidenceRange,
				}, client, cache, leaderSvc, logger)
				if err != nil {
					return fmt.Errorf("building benchmark publisher: %w", err)
				}

				aggregator := benchmark.NewAggregator(logger, 60*time.Second)
				stats := benchmark.RunAll(runCtx, []*benchmark.Publisher{pub}, aggregator)
				logger.Info().
					Uint64("succeeded", stats.SuccessfulTx).
					Uint64("failed", stats.FailedTx).
					Msg("benchmark1 complete")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&payerKeypairPath, "payer", "", "path to the funding account's keypair file")
	cmd.Flags().StringVar(&publisherKeypairPath, "publisher", "", "path to the publisher account's keypair file")
	cmd.Flags().StringVar(&programID, "program-id", "", "price-store program id")
	cmd.Flags().StringVar(&bufferPubkey, "buffer", "", "price buffer account")
	cmd.Flags().Uint32Var(&firstFeedIndex, "first-feed-index", 0, "first feed index this publisher owns")
	cmd.Flags().Uint32Var(&feedCount, "feed-count", 1, "number of feeds this publisher owns")
	cmd.Flags().IntVar(&priceUpdatesPerTx, "price-updates-per-tx", 10, "feeds to pack into each transaction (1-50)")
	cmd.Flags().DurationVar(&updateFrequency, "update-frequency", 400*time.Millisecond, "delay between publish iterations")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 = run until canceled)")
	cmd.Flags().Int64Var(&priceMean, "price-mean", 100_000, "mean generated price")
	cmd.Flags().Uint64Var(&priceRange, "price-range", 1_000, "price noise amplitude")
	cmd.Flags().Uint64Var(&confidenceMean, "confidence-mean", 100, "mean generated confidence")
	cmd.Flags().Uint64Var(&confidenceRange, "confidence-range", 10, "confidence noise amplitude")
	return cmd
}
