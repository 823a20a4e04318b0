package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"conveyor/internal/queue"
)

// newSeedCommand installs the canonical status values plus a demo agent and
// routing rules so a fresh deployment can be exercised immediately.
func newSeedCommand(cctx *commandContext) *cobra.Command {
	var agentID string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed status values, a demo agent, and handoff rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withServices(cmd.Context(), func(ctx context.Context, svc *services) error {
				if err := svc.catalog.Seed(ctx); err != nil {
					return err
				}

				for _, segment := range svc.cfg.Routing.AllowedSegments {
					if _, err := svc.store.EnsureQueue(ctx, segment, queue.StatusQueued, "seed"); err != nil {
						return err
					}
				}

				if err := svc.store.UpsertAgent(ctx, &queue.Agent{ID: agentID, Name: agentID, Active: true}); err != nil {
					return err
				}
				pref := &queue.Preference{
					AgentID:              agentID,
					PrimarySegments:      svc.cfg.Routing.AllowedSegments,
					PickupStatuses:       []queue.Status{queue.StatusQueued, queue.StatusReturned},
					ActiveStatuses:       []queue.Status{queue.StatusInProgress, queue.StatusInReview},
					AcceptStatus:         queue.StatusInProgress,
					ReturnStatus:         queue.StatusQueued,
					MaxInProgressMinutes: svc.cfg.Leases.DefaultTTLMinutes,
				}
				if err := svc.store.SavePreference(ctx, pref); err != nil {
					return err
				}

				// Chain each allowed segment to the next on completion.
				segments := svc.cfg.Routing.AllowedSegments
				completed := queue.StatusCompleted
				for i := 0; i+1 < len(segments); i++ {
					existing, err := svc.store.RulesFor(ctx, segments[i], completed)
					if err != nil {
						return err
					}
					if len(existing) > 0 {
						continue
					}
					rule := &queue.HandoffRule{
						CurrentSegment: segments[i],
						Status:         &completed,
						NextSegment:    segments[i+1],
					}
					if err := svc.store.InsertRule(ctx, rule); err != nil {
						return err
					}
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d segments and agent %q\n",
					len(segments), agentID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "demo", "Agent id to seed")
	return cmd
}
