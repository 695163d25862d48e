package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/complylabs/verdict/internal/llm"
	"github.com/complylabs/verdict/internal/store"
)

func runsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List known runs and their batch job status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRuns(cmd.Context())
		},
	}
}

func runRuns(ctx context.Context) error {
	opener, closeStore, err := initOpener()
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer func() { _ = closeStore() }()

	runs, err := opener.ListRuns(ctx)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTATUS\tJOBS\tIN FLIGHT")

	for _, runID := range runs {
		st, err := opener.Open(runID)
		if err != nil {
			return err
		}

		status := "-"
		meta, err := llm.LoadRunMeta(ctx, st)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to load metadata for run %s: %w", runID, err)
		}
		if meta != nil {
			status = string(meta.Status)
		}

		jobs, err := llm.ListBatchJobs(ctx, st)
		if err != nil {
			return fmt.Errorf("failed to list jobs for run %s: %w", runID, err)
		}
		inFlight := 0
		for _, job := range jobs {
			if !job.Status.Terminal() {
				inFlight++
			}
		}

		fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", runID, status, len(jobs), inFlight)
	}
	return w.Flush()
}
