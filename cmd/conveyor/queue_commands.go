package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"conveyor/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the work queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueuePauseCommand(ctx))
	queueCmd.AddCommand(newQueueResumeCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-status item counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withServices(cmd.Context(), func(ctx context.Context, svc *services) error {
				stats, err := svc.store.Stats(ctx)
				if err != nil {
					return err
				}
				if len(stats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(stats))
				for _, status := range queue.AllStatuses() {
					count, ok := stats[status]
					if !ok {
						continue
					}
					rows = append(rows, []string{displayStatus(status), strconv.Itoa(count)})
				}
				out := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func newQueueListCommand(cctx *commandContext) *cobra.Command {
	var listStatuses []string
	var listSegment string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]queue.Status, 0, len(listStatuses))
			for _, raw := range listStatuses {
				status, ok := queue.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				statuses = append(statuses, status)
			}
			return cctx.withServices(cmd.Context(), func(ctx context.Context, svc *services) error {
				var items []*queue.Item
				var err error
				if listSegment != "" {
					items, err = svc.store.ItemsForSegment(ctx, listSegment, statuses...)
				} else {
					items, err = svc.store.ListItems(ctx, statuses...)
				}
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No matching items")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, itemRow(item))
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(itemHeaders, rows, itemAligns))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVar(&listStatuses, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVar(&listSegment, "segment", "", "Filter by pipeline segment")
	return cmd
}

func newQueuePauseCommand(cctx *commandContext) *cobra.Command {
	var owner string
	var ttlMinutes int

	cmd := &cobra.Command{
		Use:   "pause <segment>",
		Short: "Take a queue-scope lease so a segment stops handing out work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			segment := args[0]
			return cctx.withServices(cmd.Context(), func(ctx context.Context, svc *services) error {
				q, err := svc.store.QueueBySegmentStatus(ctx, segment, queue.StatusQueued)
				if err != nil {
					return err
				}
				if q == nil {
					return fmt.Errorf("no queue for segment %q", segment)
				}
				ttl := time.Duration(ttlMinutes) * time.Minute
				if ttl <= 0 {
					ttl = time.Duration(svc.cfg.Leases.DefaultTTLMinutes) * time.Minute
				}
				lock, err := svc.leases.Acquire(ctx, queue.ScopeQueue, q.ID, owner, ttl)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Paused %s until %s (token %s)\n",
					displaySegment(segment), formatTimestamp(lock.ExpiresAt), lock.Token)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "admin", "Lease owner recorded on the pause")
	cmd.Flags().IntVar(&ttlMinutes, "ttl", 0, "Pause duration in minutes (default: lease TTL from config)")
	return cmd
}

func newQueueResumeCommand(cctx *commandContext) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "resume <segment>",
		Short: "Release a segment's queue-scope lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			segment := args[0]
			return cctx.withServices(cmd.Context(), func(ctx context.Context, svc *services) error {
				q, err := svc.store.QueueBySegmentStatus(ctx, segment, queue.StatusQueued)
				if err != nil {
					return err
				}
				if q == nil {
					return fmt.Errorf("no queue for segment %q", segment)
				}
				lock, err := svc.store.LockFor(ctx, queue.ScopeQueue, q.ID)
				if err != nil {
					return err
				}
				if lock == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is not paused\n", displaySegment(segment))
					return nil
				}
				if err := svc.leases.Release(ctx, lock.Token, owner); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Resumed %s\n", displaySegment(segment))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "admin", "Owner that holds the pause lease")
	return cmd
}
