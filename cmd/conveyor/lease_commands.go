package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newLeaseCommand(ctx *commandContext) *cobra.Command {
	leaseCmd := &cobra.Command{
		Use:   "lease",
		Short: "Inspect and manage leases",
	}

	leaseCmd.AddCommand(newLeaseListCommand(ctx))
	leaseCmd.AddCommand(newLeaseReleaseCommand(ctx))

	return leaseCmd
}

func newLeaseListCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List live and expired leases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withServices(cmd.Context(), func(ctx context.Context, svc *services) error {
				locks, err := svc.store.ListLocks(ctx)
				if err != nil {
					return err
				}
				if len(locks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No leases")
					return nil
				}
				rows := make([][]string, 0, len(locks))
				for _, lock := range locks {
					rows = append(rows, []string{
						string(lock.Scope),
						strconv.FormatInt(lock.TargetID, 10),
						lock.Owner,
						lock.Token,
						formatTimestamp(lock.ExpiresAt),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Scope", "Target", "Owner", "Token", "Expires"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newLeaseReleaseCommand(cctx *commandContext) *cobra.Command {
	var owner string

	cmd := &cobra.Command{
		Use:   "release <token>",
		Short: "Release a lease by token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cctx.withServices(cmd.Context(), func(ctx context.Context, svc *services) error {
				if err := svc.leases.Release(ctx, args[0], owner); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Lease released")
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner recorded on the lease")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
