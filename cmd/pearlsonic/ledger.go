package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/pearlsonic/internal/ledger"
	ledgerdomain "github.com/smallbiznis/pearlsonic/internal/ledger/domain"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and reconcile user credit balances",
	}
	cmd.AddCommand(ledgerCreditCmd())
	cmd.AddCommand(ledgerBalanceCmd())
	return cmd
}

// withLedger runs fn against a fully wired ledger service.
func withLedger(ctx context.Context, fn func(ledgerdomain.Service) error) error {
	var svc ledgerdomain.Service
	var runErr error
	err := runOnce(ctx, fx.Options(infrastructure(), ledger.Module),
		fx.Populate(&svc),
		fx.Invoke(func(lc fx.Lifecycle) {
			lc.Append(fx.StartHook(func(ctx context.Context) error {
				runErr = fn(svc)
				return nil
			}))
		}),
	)
	if err != nil {
		return err
	}
	return runErr
}

func ledgerCreditCmd() *cobra.Command {
	var (
		rawUser     string
		amount      int64
		ref         string
		txnType     string
		description string
	)

	cmd := &cobra.Command{
		Use:   "credit",
		Short: "Grant credits once per external reference",
		Long: `Grant credits to a user. The external reference makes the credit
idempotent, so rerunning the command with the same --ref is a no-op.

Typical use is settling a payment event whose price id was not in the
catalog:
  pearlsonic ledger credit --user 1790000000000000000 --amount 3 --ref txn_01hv...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := snowflake.ParseString(strings.TrimSpace(rawUser))
			if err != nil || userID <= 0 {
				return fmt.Errorf("invalid --user %q", rawUser)
			}
			if description == "" {
				description = fmt.Sprintf("Manual credit: %d credits", amount)
			}

			return withLedger(cmd.Context(), func(svc ledgerdomain.Service) error {
				result, err := svc.Credit(cmd.Context(), ledgerdomain.CreditRequest{
					UserID:      userID,
					Amount:      amount,
					Type:        ledgerdomain.TransactionType(txnType),
					ExternalRef: ref,
					Description: description,
				})
				if err != nil {
					return err
				}
				if result.Duplicate {
					fmt.Fprintf(cmd.OutOrStdout(), "reference %s already applied, balance %d\n", ref, result.NewBalance)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "credited %d, balance %d\n", amount, result.NewBalance)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&rawUser, "user", "", "user id")
	cmd.Flags().Int64Var(&amount, "amount", 0, "credits to grant")
	cmd.Flags().StringVar(&ref, "ref", "", "external reference, usually the provider transaction id")
	cmd.Flags().StringVar(&txnType, "type", string(ledgerdomain.TransactionPurchase), "transaction type")
	cmd.Flags().StringVar(&description, "description", "", "ledger description")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("ref")

	return cmd
}

func ledgerBalanceCmd() *cobra.Command {
	var rawUser string
	var limit int

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Print a user's balance, ledger drift and recent transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := snowflake.ParseString(strings.TrimSpace(rawUser))
			if err != nil || userID <= 0 {
				return fmt.Errorf("invalid --user %q", rawUser)
			}

			return withLedger(cmd.Context(), func(svc ledgerdomain.Service) error {
				rec, err := svc.Reconcile(cmd.Context(), userID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "user %s: %d credits (subscription active: %t)\n", userID, rec.Balance.Credits, rec.Balance.SubscriptionActive)
				fmt.Fprintf(out, "ledger sum %d, drift %d\n", rec.LedgerSum, rec.Drift)

				txns, err := svc.ListTransactions(cmd.Context(), userID, limit)
				if err != nil {
					return err
				}
				for _, txn := range txns {
					fmt.Fprintf(out, "%s  %+6d  %-28s %s\n", txn.CreatedAt.Format("2006-01-02 15:04:05"), txn.Amount, txn.Type, txn.Description)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&rawUser, "user", "", "user id")
	cmd.Flags().IntVar(&limit, "limit", 20, "transactions to show")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
