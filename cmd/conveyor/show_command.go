package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newShowCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show one item with its history and attachments",
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

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Item #%d  %s\n", item.ID, item.Title)
				fmt.Fprintf(out, "  Ref:       %s\n", item.ExternalRef)
				fmt.Fprintf(out, "  Segment:   %s\n", displaySegment(item.Segment))
				fmt.Fprintf(out, "  Status:    %s (version %d)\n", displayStatus(item.Status), item.Version)
				fmt.Fprintf(out, "  Priority:  %d\n", item.Priority)
				fmt.Fprintf(out, "  Assignee:  %s\n", formatAssignee(item.AssignedTo))
				fmt.Fprintf(out, "  Due:       %s\n", formatOptionalTime(item.DueAt))
				fmt.Fprintf(out, "  Locked:    %s\n", formatLockState(item))
				fmt.Fprintf(out, "  Created:   %s by %s\n", formatTimestamp(item.CreatedAt), item.CreatedBy)
				fmt.Fprintf(out, "  Updated:   %s\n", formatTimestamp(item.UpdatedAt))

				states, err := svc.store.StatesForItem(ctx, item.ID)
				if err != nil {
					return err
				}
				if len(states) > 0 {
					rows := make([][]string, 0, len(states))
					for _, state := range states {
						rows = append(rows, []string{
							formatTimestamp(state.CreatedAt),
							displayStatus(state.Status),
							state.Actor,
							state.Note,
						})
					}
					fmt.Fprintln(out, "\nHistory:")
					fmt.Fprintln(out, renderTable(
						[]string{"When", "Status", "Actor", "Note"},
						rows,
						[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
					))
				}

				templates, err := svc.store.TemplatesForItem(ctx, item.ID)
				if err != nil {
					return err
				}
				if len(templates) > 0 {
					rows := make([][]string, 0, len(templates))
					for _, tpl := range templates {
						rows = append(rows, []string{tpl.Code, string(tpl.Kind), tpl.URI})
					}
					fmt.Fprintln(out, "\nTemplates:")
					fmt.Fprintln(out, renderTable(
						[]string{"Code", "Kind", "URI"},
						rows,
						[]columnAlignment{alignLeft, alignLeft, alignLeft},
					))
				}

				artifacts, err := svc.store.ArtifactsForItem(ctx, item.ID)
				if err != nil {
					return err
				}
				if len(artifacts) > 0 {
					fmt.Fprintln(out, "\nArtifacts:")
					for _, artifact := range artifacts {
						fmt.Fprintf(out, "  %s  %s\n", artifact.Code, strconv.Quote(artifact.URI))
					}
				}
				return nil
			})
		},
	}
}
