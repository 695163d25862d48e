package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/complylabs/verdict/internal/llm"
	"github.com/complylabs/verdict/internal/store"
)

func pollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll <run-id>",
		Short: "Poll outstanding provider batches for a run",
		Long: `Poll checks every non-terminal batch job of a run against the provider.
Completed batches have their results written into the run's response cache;
the run can then be resumed and will pick the results up without any new
provider calls.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			watch, _ := cmd.Flags().GetBool("watch")
			return runPoll(cmd.Context(), args[0], watch)
		},
	}
	cmd.Flags().Bool("watch", false, "keep polling until no batches remain in flight")
	return cmd
}

func runPoll(ctx context.Context, runID string, watch bool) error {
	opener, closeStore, err := initOpener()
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() { _ = closeStore() }()

	st, err := opener.Open(runID)
	if err != nil {
		return err
	}

	provider, cfg, err := initBatchProvider()
	if err != nil {
		return err
	}

	// Refuse to poll a run that was started under a different provider or
	// model; results would not line up with the recorded jobs.
	meta, err := llm.LoadRunMeta(ctx, st)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to load run metadata: %w", err)
	}
	if meta != nil && (meta.Provider != cfg.Provider || meta.Model != provider.ModelName()) {
		return fmt.Errorf("run %s was started with %s/%s but current configuration is %s/%s",
			runID, meta.Provider, meta.Model, cfg.Provider, provider.ModelName())
	}

	poller := llm.NewPoller(provider, st, cfg.Provider, runID, nil)

	for {
		result, err := poller.Poll(ctx)
		if err != nil {
			return fmt.Errorf("poll failed: %w", err)
		}
		printPollResult(runID, result)

		if result.Done() {
			if meta != nil && meta.Status == llm.RunInterrupted {
				fmt.Println("All batches resolved - the run is ready to resume.")
			}
			return nil
		}
		if !watch {
			return nil
		}

		interval := watchInterval()
		fmt.Printf("Waiting %s before next poll...\n", interval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func printPollResult(runID string, result *llm.PollResult) {
	fmt.Printf("Run %s: %d completed, %d failed, %d still processing\n",
		runID, result.Completed, result.Failed, result.StillPending)
	for _, msg := range result.Errors {
		fmt.Printf("  warning: %s\n", msg)
	}
	if result.StillPending > 0 && !viper.GetBool("poll.quiet") {
		fmt.Printf("%d batch(es) still processing - retry later.\n", result.StillPending)
	}
}
