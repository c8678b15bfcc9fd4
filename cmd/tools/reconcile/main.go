// Command reconcile checks campaign counters against the donation ledger and
// works the settlement anomaly queue from the shell.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/arsenic-art/DreamFundr/internal/config"
	"github.com/arsenic-art/DreamFundr/internal/db"
	"github.com/arsenic-art/DreamFundr/internal/modules/payments"
	"github.com/arsenic-art/DreamFundr/internal/storage"
)

type app struct {
	db        *gorm.DB
	anomalies *payments.AnomalyQueue
	engine    *payments.SettlementEngine
	ledger    *payments.Ledger
}

func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	gdb, err := db.Open(cfg.DB)
	if err != nil {
		return nil, err
	}
	archive, err := storage.FromConfig(ctx, cfg.Archive)
	if err != nil {
		return nil, err
	}

	q := payments.NewAnomalyQueue(gdb, archive.Storage)
	q.SetLogger(logger)
	e := payments.NewSettlementEngine(gdb, q)
	e.SetLogger(logger)
	return &app{db: gdb, anomalies: q, engine: e, ledger: payments.NewLedger(gdb)}, nil
}

func main() {
	root := &cobra.Command{
		Use:   "reconcile",
		Short: "Ledger reconciliation and anomaly queue tools",
	}
	root.AddCommand(checkCmd(), anomaliesCmd(), resolveCmd(), reattributeCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func checkCmd() *cobra.Command {
	var campaignID string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare raised amounts with donations minus refunds",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}

			var rows []payments.Reconciliation
			if campaignID != "" {
				r, err := a.ledger.Reconcile(ctx, campaignID)
				if err != nil {
					return err
				}
				rows = append(rows, r)
			} else {
				rows, err = a.ledger.ReconcileAll(ctx)
				if err != nil {
					return err
				}
			}

			if len(rows) == 0 {
				fmt.Println("all campaigns reconcile")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FUNDRAISER\tRAISED\tDONATED\tREFUNDED\tDRIFT")
			drifted := 0
			for _, r := range rows {
				if !r.OK {
					drifted++
				}
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", r.CampaignID, r.Raised, r.Donated, r.Refunded, r.Drift)
			}
			w.Flush()
			if drifted > 0 {
				return fmt.Errorf("%d campaign(s) drifted", drifted)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&campaignID, "fundraiser", "", "check a single fundraiser")
	return cmd
}

func anomaliesCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "anomalies",
		Short: "List open settlement anomalies",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			list, err := a.anomalies.ListOpen(ctx, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tREASON\tSOURCE\tPAYMENT\tFUNDRAISER\tUSER\tAMOUNT\tCREATED")
			for _, an := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d %s\t%s\n",
					an.ID, an.Reason, an.Source, an.ProviderPaymentID, an.CampaignID, an.PayerID,
					an.Amount, an.Currency, an.CreatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "max rows")
	return cmd
}

func resolveCmd() *cobra.Command {
	var note string
	var purge bool

	cmd := &cobra.Command{
		Use:   "resolve <anomaly-id>",
		Short: "Mark an anomaly handled without settling it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			if err := a.anomalies.Resolve(ctx, args[0], note); err != nil {
				return err
			}
			if purge {
				if err := a.anomalies.PurgeArchive(ctx, args[0]); err != nil {
					return err
				}
			}
			fmt.Println("resolved", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "resolution note")
	cmd.Flags().BoolVar(&purge, "purge", false, "delete the archived payload")
	return cmd
}

func reattributeCmd() *cobra.Command {
	var campaignID, payerID, note string

	cmd := &cobra.Command{
		Use:   "reattribute <anomaly-id>",
		Short: "Settle a parked payment against a fundraiser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if campaignID == "" {
				return fmt.Errorf("--fundraiser is required")
			}
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			res, err := a.engine.Reattribute(ctx, args[0], campaignID, payerID, note)
			if err != nil {
				return err
			}
			state := "settled"
			if !res.Created {
				state = "already settled"
			}
			fmt.Printf("%s: donation %s, %d %s to %s\n", state, res.Donation.ID, res.Donation.Amount, res.Donation.Currency, res.Donation.CampaignID)
			return nil
		},
	}
	cmd.Flags().StringVar(&campaignID, "fundraiser", "", "target fundraiser id")
	cmd.Flags().StringVar(&payerID, "user", "", "payer id when the anomaly has none")
	cmd.Flags().StringVar(&note, "note", "", "resolution note")
	return cmd
}
