package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"conveyor/internal/assign"
	"conveyor/internal/queue"
)

func newNextCommand(cctx *commandContext) *cobra.Command {
	var agentID string

	cmd := &cobra.Command{
		Use:   "next",
		Short: "Show the agent's next task without claiming it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withServices(cmd.Context(), func(ctx context.Context, svc *services) error {
				item, err := svc.engine.FindNextTask(ctx, agentID)
				if err != nil {
					return err
				}
				if item == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to do")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(itemHeaders, [][]string{itemRow(item)}, itemAligns))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "Agent id")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func newClaimCommand(cctx *commandContext) *cobra.Command {
	var (
		agentID       string
		segments      []string
		priorityFloor int
	)

	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim the agent's next task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withServices(cmd.Context(), func(ctx context.Context, svc *services) error {
				got, err := svc.engine.ClaimTask(ctx, agentID, assign.ClaimOptions{
					SegmentsOverride: segments,
					PriorityFloor:    priorityFloor,
				})
				if err != nil {
					return err
				}
				if got == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "Nothing to claim")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Claimed item #%d, lease expires %s\n",
					got.Item.ID, formatTimestamp(got.Lease.ExpiresAt))
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(itemHeaders, [][]string{itemRow(got.Item)}, itemAligns))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "Agent id")
	cmd.Flags().StringSliceVar(&segments, "segment", nil, "Restrict the claim to these segments (repeatable)")
	cmd.Flags().IntVar(&priorityFloor, "priority-floor", 0, "Skip items below this priority")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func newReleaseCommand(cctx *commandContext) *cobra.Command {
	var (
		agentID string
		note    string
	)

	cmd := &cobra.Command{
		Use:   "release <item-id>",
		Short: "Hand a claimed task back to its pickup pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return cctx.withServices(cmd.Context(), func(ctx context.Context, svc *services) error {
				item, err := svc.store.ItemByID(ctx, id)
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("item %d not found", id)
				}
				released, err := svc.engine.ReleaseTask(ctx, agentID, id, item.Version, note)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Released item #%d back to %s\n",
					released.ID, displayStatus(released.Status))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "Agent id")
	cmd.Flags().StringVar(&note, "note", "", "Reason recorded in the item history")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func newCompleteCommand(cctx *commandContext) *cobra.Command {
	var (
		agentID string
		note    string
	)

	cmd := &cobra.Command{
		Use:   "complete <item-id>",
		Short: "Complete a task and hand it off to successor segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return cctx.withServices(cmd.Context(), func(ctx context.Context, svc *services) error {
				item, err := svc.store.ItemByID(ctx, id)
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("item %d not found", id)
				}

				completed, err := svc.processor.UpdateItem(ctx, commandFor(item, agentID, note))
				if err != nil {
					return err
				}

				// Drop the agent's lease now that the work is done.
				if lock, err := svc.store.LockFor(ctx, queue.ScopeItem, id); err == nil && lock != nil && lock.Owner == agentID {
					_ = svc.leases.Release(ctx, lock.Token, agentID)
				}

				successors, err := svc.coordinator.Trigger(ctx, completed, "completed")
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Completed item #%d\n", completed.ID)
				for _, successor := range successors {
					fmt.Fprintf(cmd.OutOrStdout(), "  handed off to %s as item #%d (%s)\n",
						displaySegment(successor.Segment), successor.ID, successor.ExternalRef)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "Agent id")
	cmd.Flags().StringVar(&note, "note", "", "Completion note recorded in the item history")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}
