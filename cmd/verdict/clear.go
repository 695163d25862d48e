package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/complylabs/verdict/internal/llm"
)

func clearCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear <run-id>",
		Short: "Clear a finished run's cache and batch job records",
		Long: `Clear removes a run's response cache and batch job records. The cache is
working state for resumability, not a permanent record: run this once the
whole analysis flow has completed successfully.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			return runClear(cmd.Context(), args[0], force)
		},
	}
	cmd.Flags().Bool("force", false, "clear even if batches are still in flight")
	return cmd
}

func runClear(ctx context.Context, runID string, force bool) error {
	opener, closeStore, err := initOpener()
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() { _ = closeStore() }()

	st, err := opener.Open(runID)
	if err != nil {
		return err
	}

	if !force {
		jobs, err := llm.ListBatchJobs(ctx, st)
		if err != nil {
			return fmt.Errorf("failed to list batch jobs: %w", err)
		}
		for _, job := range jobs {
			if !job.Status.Terminal() {
				return fmt.Errorf("run %s has batch %s still in flight; poll first or use --force",
					runID, job.BatchID)
			}
		}
	}

	if err := st.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear run: %w", err)
	}

	fmt.Printf("Cleared run %s\n", runID)
	return nil
}
