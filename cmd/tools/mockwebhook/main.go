// Command mockwebhook sends signed processor events to a local server and
// prints checkout signatures, for exercising both settlement paths by hand.
package main

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/arsenic-art/DreamFundr/internal/config"
	"github.com/arsenic-art/DreamFundr/internal/db"
	"github.com/arsenic-art/DreamFundr/internal/http/middleware"
	"github.com/arsenic-art/DreamFundr/internal/modules/payments"
)

type sendOpts struct {
	url     string
	secret  string
	eventID string
	dryRun  bool
}

func main() {
	var opts sendOpts

	root := &cobra.Command{
		Use:   "mockwebhook",
		Short: "Send signed payment events to a local server",
	}
	root.PersistentFlags().StringVar(&opts.url, "url", "http://localhost:8080/api/payments/webhook", "webhook URL")
	root.PersistentFlags().StringVar(&opts.secret, "secret", os.Getenv("RAZORPAY_WEBHOOK_SECRET"), "webhook secret")
	root.PersistentFlags().StringVar(&opts.eventID, "event-id", "", "x-razorpay-event-id header (random when empty)")
	root.PersistentFlags().BoolVar(&opts.dryRun, "dry-run", false, "print the signed request without sending")

	root.AddCommand(
		capturedCmd(&opts),
		failedCmd(&opts),
		refundCmd(&opts),
		signCmd(),
		sessionCmd(),
	)

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func capturedCmd(opts *sendOpts) *cobra.Command {
	var paymentID, orderID, campaignID, payerID string
	var amount int64

	cmd := &cobra.Command{
		Use:   "captured",
		Short: "Send payment.captured",
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(opts, envelope(payments.EventPaymentCaptured, map[string]any{
				"payment": entity(map[string]any{
					"id":       paymentID,
					"order_id": orderID,
					"amount":   amount,
					"currency": "INR",
					"status":   "captured",
					"notes":    map[string]string{"userId": payerID, "fundraiserId": campaignID},
				}),
			}))
		},
	}
	cmd.Flags().StringVar(&paymentID, "payment-id", "pay_"+randomHex(7), "payment id")
	cmd.Flags().StringVar(&orderID, "order-id", "order_"+randomHex(7), "order id")
	cmd.Flags().StringVar(&campaignID, "fundraiser", "", "fundraiser id in notes")
	cmd.Flags().StringVar(&payerID, "user", "", "payer id in notes")
	cmd.Flags().Int64Var(&amount, "amount", 50000, "amount in paise")
	return cmd
}

func failedCmd(opts *sendOpts) *cobra.Command {
	var paymentID, orderID string

	cmd := &cobra.Command{
		Use:   "failed",
		Short: "Send payment.failed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(opts, envelope(payments.EventPaymentFailed, map[string]any{
				"payment": entity(map[string]any{
					"id":                paymentID,
					"order_id":          orderID,
					"status":            "failed",
					"error_description": "Payment was declined by the bank",
				}),
			}))
		},
	}
	cmd.Flags().StringVar(&paymentID, "payment-id", "pay_"+randomHex(7), "payment id")
	cmd.Flags().StringVar(&orderID, "order-id", "order_"+randomHex(7), "order id")
	return cmd
}

func refundCmd(opts *sendOpts) *cobra.Command {
	var refundID, paymentID string
	var amount int64

	cmd := &cobra.Command{
		Use:   "refund",
		Short: "Send refund.created",
		RunE: func(cmd *cobra.Command, args []string) error {
			if paymentID == "" {
				return fmt.Errorf("--payment-id is required")
			}
			return send(opts, envelope(payments.EventRefundCreated, map[string]any{
				"refund": entity(map[string]any{
					"id":         refundID,
					"payment_id": paymentID,
					"amount":     amount,
					"currency":   "INR",
				}),
				"payment": entity(map[string]any{"id": paymentID}),
			}))
		},
	}
	cmd.Flags().StringVar(&refundID, "refund-id", "rfnd_"+randomHex(7), "refund id")
	cmd.Flags().StringVar(&paymentID, "payment-id", "", "refunded payment id")
	cmd.Flags().Int64Var(&amount, "amount", 50000, "amount in paise")
	return cmd
}

func signCmd() *cobra.Command {
	var orderID, paymentID, keySecret string

	cmd := &cobra.Command{
		Use:   "sign-confirmation",
		Short: "Print the checkout signature for an order and payment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if orderID == "" || paymentID == "" || keySecret == "" {
				return fmt.Errorf("--order-id, --payment-id and --key-secret are required")
			}
			sig := payments.Sign(payments.ConfirmationPayload(orderID, paymentID), keySecret)
			out, _ := json.MarshalIndent(map[string]string{
				"razorpay_order_id":   orderID,
				"razorpay_payment_id": paymentID,
				"razorpay_signature":  sig,
			}, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&orderID, "order-id", "", "order id")
	cmd.Flags().StringVar(&paymentID, "payment-id", "pay_"+randomHex(7), "payment id")
	cmd.Flags().StringVar(&keySecret, "key-secret", os.Getenv("RAZORPAY_KEY_SECRET"), "key secret")
	return cmd
}

// sessionCmd issues a bearer token against the configured database so the
// authenticated endpoints can be called locally.
func sessionCmd() *cobra.Command {
	var userID string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Issue a development session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			gdb, err := db.Open(cfg.DB)
			if err != nil {
				return err
			}
			token, sess, err := middleware.CreateSession(gdb, userID, ttl)
			if err != nil {
				return err
			}
			fmt.Printf("Authorization: Bearer %s\n(expires %s)\n", token, sess.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "session lifetime")
	return cmd
}

func envelope(event string, payload map[string]any) map[string]any {
	return map[string]any{
		"entity":     "event",
		"event":      event,
		"payload":    payload,
		"created_at": time.Now().Unix(),
	}
}

func entity(e map[string]any) map[string]any {
	return map[string]any{"entity": e}
}

func send(opts *sendOpts, ev map[string]any) error {
	if opts.secret == "" {
		return fmt.Errorf("--secret not provided and RAZORPAY_WEBHOOK_SECRET not set")
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	eventID := opts.eventID
	if eventID == "" {
		eventID = "evt_" + randomHex(7)
	}
	sig := payments.Sign(body, opts.secret)

	fmt.Printf("X-Razorpay-Signature: %s\nX-Razorpay-Event-Id: %s\nBody: %s\n", sig, eventID, body)
	if opts.dryRun {
		fmt.Println("\n[DRY RUN] Not sending request")
		return nil
	}

	req, err := http.NewRequest(http.MethodPost, opts.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Razorpay-Signature", sig)
	req.Header.Set("X-Razorpay-Event-Id", eventID)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	fmt.Printf("\nStatus: %d\nResponse: %s\n", resp.StatusCode, respBody)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook rejected with status %d", resp.StatusCode)
	}
	return nil
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
