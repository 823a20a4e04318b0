package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"conveyor/internal/ingest"
	"conveyor/internal/queue"
)

func newIngestCommand(cctx *commandContext) *cobra.Command {
	var (
		sourceID      string
		segment       string
		priority      int
		payload       string
		actor         string
		note          string
		knowledgeRefs []string
		checklists    []string
		references    []string
	)

	cmd := &cobra.Command{
		Use:   "ingest <title>",
		Short: "Admit a new item through the ingestion gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withServices(cmd.Context(), func(ctx context.Context, svc *services) error {
				if segment == "" {
					segment = svc.cfg.Routing.CreationSegment
				}
				if sourceID == "" {
					sourceID = "cli-" + uuid.NewString()
				}

				req := ingest.Request{
					SourceID:      sourceID,
					Segment:       segment,
					Title:         args[0],
					Priority:      priority,
					Payload:       payload,
					Actor:         actor,
					Note:          note,
					KnowledgeRefs: knowledgeRefs,
				}
				for _, code := range checklists {
					req.Templates = append(req.Templates, ingest.TemplateSpec{Code: code, Kind: queue.TemplateChecklist})
				}
				for _, code := range references {
					req.Templates = append(req.Templates, ingest.TemplateSpec{Code: code, Kind: queue.TemplateReference})
				}

				item, err := svc.gateway.Ingest(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Ingested item #%d (%s) into %s\n",
					item.ID, item.ExternalRef, displaySegment(item.Segment))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&sourceID, "source", "", "Upstream source id (default: minted)")
	cmd.Flags().StringVar(&segment, "segment", "", "Target segment (default: configured creation segment)")
	cmd.Flags().IntVar(&priority, "priority", 0, "Item priority, higher is picked first")
	cmd.Flags().StringVar(&payload, "payload", "", "Item payload, usually JSON")
	cmd.Flags().StringVar(&actor, "actor", "cli", "Actor recorded on the initial history row")
	cmd.Flags().StringVar(&note, "note", "", "Note on the initial history row")
	cmd.Flags().StringSliceVar(&knowledgeRefs, "knowledge", nil, "Knowledge reference (repeatable)")
	cmd.Flags().StringSliceVar(&checklists, "checklist", nil, "Checklist template code (repeatable)")
	cmd.Flags().StringSliceVar(&references, "reference", nil, "Reference template code (repeatable)")
	return cmd
}
