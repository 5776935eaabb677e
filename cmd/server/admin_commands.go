package main

import (
	"context"
	"fmt"
	"strconv"

	"talkinghead/internal/auth"
	"talkinghead/internal/database"
	"talkinghead/pkg/money"

	"github.com/spf13/cobra"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := ctx.openDB()
			if err != nil {
				return err
			}
			if err := database.AutoMigrate(db); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Query the gateway for stale pending payments once and settle them",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.services()
			if err != nil {
				return err
			}
			c, cancel := context.WithTimeout(cmd.Context(), ctx.cfg.Reconcile.Interval)
			defer cancel()
			report, err := svc.Reconciler.RunOnce(c)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(report.Items))
			for _, it := range report.Items {
				errText := ""
				if it.Err != nil {
					errText = it.Err.Error()
				}
				rows = append(rows, []string{strconv.FormatUint(uint64(it.PaymentID), 10), it.GatewayID, it.Outcome, it.Status, errText})
			}
			out := cmd.OutOrStdout()
			if len(rows) > 0 {
				fmt.Fprintln(out, renderTable([]string{"Payment", "Gateway ID", "Outcome", "Status", "Error"}, rows, []columnAlignment{alignRight}))
			}
			fmt.Fprintf(out, "checked %d, errors %d\n", report.Checked, report.Errors())
			if report.Errors() > 0 {
				return fmt.Errorf("%d payments could not be reconciled", report.Errors())
			}
			return nil
		},
	}
}

func newAuditCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "audit",
		Short: "Check every bonus balance against its totals and ledger rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.services()
			if err != nil {
				return err
			}
			drift, err := svc.Ledger.Audit()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(drift) == 0 {
				fmt.Fprintln(out, "ledger consistent")
				return nil
			}
			rows := make([][]string, 0, len(drift))
			for _, d := range drift {
				rows = append(rows, []string{
					strconv.FormatUint(uint64(d.UserID), 10),
					money.Format(d.Balance),
					money.Format(d.TotalEarned),
					money.Format(d.TotalSpent),
					money.Format(d.LedgerSum),
				})
			}
			right := []columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight}
			fmt.Fprintln(out, renderTable([]string{"User", "Balance", "Earned", "Spent", "Ledger sum"}, rows, right))
			return fmt.Errorf("%d bonus accounts out of balance", len(drift))
		},
	}
}

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint an access token for local testing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil || id == 0 {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			tok, err := auth.GenerateAccessToken(&ctx.cfg.JWT, uint(id), email)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	return cmd
}
