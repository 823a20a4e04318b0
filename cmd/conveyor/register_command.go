package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"conveyor/internal/queue"
)

// newRegisterCommand enrolls an agent with its routing preference so the
// assignment engine will serve it work.
func newRegisterCommand(cctx *commandContext) *cobra.Command {
	var (
		agentID    string
		name       string
		primary    []string
		fallback   []string
		pickup     []string
		active     []string
		accept     string
		returned   string
		maxMinutes int
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an agent and its routing preference",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withServices(cmd.Context(), func(ctx context.Context, svc *services) error {
				for _, segment := range append(append([]string{}, primary...), fallback...) {
					if !svc.cfg.SegmentAllowed(segment) {
						return fmt.Errorf("unknown segment %q", segment)
					}
				}
				acceptStatus, ok := queue.ParseStatus(accept)
				if !ok {
					return fmt.Errorf("unknown status %q", accept)
				}
				returnStatus, ok := queue.ParseStatus(returned)
				if !ok {
					return fmt.Errorf("unknown status %q", returned)
				}
				if name == "" {
					name = agentID
				}
				if maxMinutes <= 0 {
					maxMinutes = svc.cfg.Leases.DefaultTTLMinutes
				}

				if err := svc.store.UpsertAgent(ctx, &queue.Agent{ID: agentID, Name: name, Active: true}); err != nil {
					return err
				}
				pref := &queue.Preference{
					AgentID:              agentID,
					PrimarySegments:      primary,
					FallbackSegments:     fallback,
					PickupStatuses:       queue.Statuses(pickup),
					ActiveStatuses:       queue.Statuses(active),
					AcceptStatus:         acceptStatus,
					ReturnStatus:         returnStatus,
					MaxInProgressMinutes: maxMinutes,
				}
				if err := svc.store.SavePreference(ctx, pref); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "Registered agent %q for %d segments\n",
					agentID, len(primary)+len(fallback))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&agentID, "agent", "", "Agent id")
	cmd.Flags().StringVar(&name, "name", "", "Display name (default: agent id)")
	cmd.Flags().StringSliceVar(&primary, "primary", nil, "Primary segment (repeatable)")
	cmd.Flags().StringSliceVar(&fallback, "fallback", nil, "Fallback segment (repeatable)")
	cmd.Flags().StringSliceVar(&pickup, "pickup", []string{"queued", "returned"}, "Status codes the agent picks up from (repeatable)")
	cmd.Flags().StringSliceVar(&active, "active", []string{"in_progress", "in_review"}, "Status codes counting as active work (repeatable)")
	cmd.Flags().StringVar(&accept, "accept", "in_progress", "Status set when the agent accepts work")
	cmd.Flags().StringVar(&returned, "return", "queued", "Status set when the agent releases work")
	cmd.Flags().IntVar(&maxMinutes, "max-minutes", 0, "Lease minutes for accepted work (default: configured TTL)")
	_ = cmd.MarkFlagRequired("agent")
	_ = cmd.MarkFlagRequired("primary")
	return cmd
}
