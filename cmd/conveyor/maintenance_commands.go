package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newSweepCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reclaim expired leases once and return abandoned work",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withServices(cmd.Context(), func(ctx context.Context, svc *services) error {
				reclaimed, err := svc.sweeper.RunOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reclaimed %d lease(s)\n", reclaimed)
				return nil
			})
		},
	}
}

func newActivityCommand(cctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show recent activity-log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withServices(cmd.Context(), func(ctx context.Context, svc *services) error {
				entries, err := svc.store.RecentActivity(ctx, limit)
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No activity recorded")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					rows = append(rows, []string{
						formatTimestamp(entry.CreatedAt),
						entry.Actor,
						entry.EventType,
						entry.EntityType + " #" + strconv.FormatInt(entry.EntityID, 10),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"When", "Actor", "Event", "Entity"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show")
	return cmd
}

func newHealthCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Summarize item counts across the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withServices(cmd.Context(), func(ctx context.Context, svc *services) error {
				health, err := svc.store.Health(ctx)
				if err != nil {
					return err
				}
				rows := [][]string{
					{"Total", strconv.Itoa(health.Total)},
					{"Queued", strconv.Itoa(health.Queued)},
					{"Active", strconv.Itoa(health.Active)},
					{"Completed", strconv.Itoa(health.Completed)},
					{"Returned", strconv.Itoa(health.Returned)},
					{"Blocked", strconv.Itoa(health.Blocked)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Bucket", "Count"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
}
