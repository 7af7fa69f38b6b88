package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/pawtrait/pawtrait-api/internal/config"
	"github.com/pawtrait/pawtrait-api/internal/domain/credit"
)

func newCreditsCmd(cfg *config.Config, opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credits",
		Short: "Inspect and correct credit balances",
	}
	cmd.AddCommand(newBalanceCmd(cfg, opts))
	cmd.AddCommand(newApplyCmd(cfg, opts))
	cmd.AddCommand(newHistoryCmd(cfg, opts))
	return cmd
}

func parseAccount(arg string) (uuid.UUID, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id %q: %w", arg, err)
	}
	return id, nil
}

func newBalanceCmd(cfg *config.Config, opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "balance USER_ID",
		Short: "Print a user's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccount(args[0])
			if err != nil {
				return err
			}
			ledger, closeFn, err := openLedger(cmd.Context(), cfg, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			balance, err := ledger.GetBalance(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), balance)
			return nil
		},
	}
}

func newApplyCmd(cfg *config.Config, opts *options) *cobra.Command {
	var (
		kind   string
		amount int64
		key    string
		reason string
	)

	cmd := &cobra.Command{
		Use:   "apply USER_ID",
		Short: "Apply one ledger operation",
		Long: `Apply one add, subtract or set operation. With --key the operation is
idempotent: running the same command twice changes the balance once.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccount(args[0])
			if err != nil {
				return err
			}
			k, err := credit.ParseKind(kind)
			if err != nil {
				return err
			}
			ledger, closeFn, err := openLedger(cmd.Context(), cfg, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := ledger.Apply(cmd.Context(), credit.Operation{
				AccountID:      id,
				Kind:           k,
				Amount:         amount,
				IdempotencyKey: key,
				Source:         credit.SourceCLI,
				Description:    reason,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case res.Applied:
				fmt.Fprintf(out, "applied %s %d, balance %d\n", k, amount, res.NewBalance)
			case res.Replayed():
				fmt.Fprintf(out, "already applied, balance %d\n", res.NewBalance)
			default:
				fmt.Fprintf(out, "rejected: %s, balance %d\n", res.RejectionReason, res.NewBalance)
			}
			return res.Err()
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Operation kind: add, subtract or set")
	cmd.Flags().Int64Var(&amount, "amount", 0, "Amount of credits")
	cmd.Flags().StringVar(&key, "key", "", "Idempotency key")
	cmd.Flags().StringVar(&reason, "reason", "", "Audit description")
	_ = cmd.MarkFlagRequired("kind")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func newHistoryCmd(cfg *config.Config, opts *options) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "history USER_ID",
		Short: "List a user's ledger operations, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAccount(args[0])
			if err != nil {
				return err
			}
			ledger, closeFn, err := openLedger(cmd.Context(), cfg, opts)
			if err != nil {
				return err
			}
			defer closeFn()

			records, err := ledger.History(cmd.Context(), id, credit.Pagination{Limit: limit, Offset: offset})
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tKIND\tAMOUNT\tBALANCE\tAPPLIED\tSOURCE\tKEY")
			for _, rec := range records {
				key := "-"
				if rec.IdempotencyKey != nil {
					key = *rec.IdempotencyKey
				}
				applied := "yes"
				if !rec.Applied {
					applied = string(rec.RejectionReason)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
					rec.CreatedAt.Format(time.RFC3339), rec.Kind, rec.Amount, rec.BalanceAfter, applied, rec.Source, key)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Rows to show (max 100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	return cmd
}
