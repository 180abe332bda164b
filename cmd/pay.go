package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"prs-wallet/config"
	"prs-wallet/pkg/client"
	"prs-wallet/pkg/finance"
	"prs-wallet/pkg/payment"
	"prs-wallet/pkg/verification"
)

var (
	payMemo       string
	payUseBalance bool
	payRecipient  string
	payAccount    string
)

var payCmd = &cobra.Command{
	Use:   "pay <amount> <currency>",
	Short: "Make a payment",
	Long: `Pay an amount in the given currency.

By default the payment is proxied: the backend returns a payment URL to open
in an external wallet, and this command waits until settlement is confirmed.
With --use-balance the amount is debited from the account balance directly
and completes immediately.

Examples:
  prs-wallet pay 12.5 CNY --memo "coffee"
  prs-wallet pay 10 CNY --use-balance --recipient other.account`,
	Args: cobra.ExactArgs(2),
	Run:  runPay,
}

func init() {
	rootCmd.AddCommand(payCmd)

	payCmd.Flags().StringVar(&payMemo, "memo", "", "Optional payment memo (max 20 characters)")
	payCmd.Flags().BoolVar(&payUseBalance, "use-balance", false, "Debit the account balance instead of a proxied payment")
	payCmd.Flags().StringVar(&payRecipient, "recipient", "", "Recipient account (balance payments)")
	payCmd.Flags().StringVar(&payAccount, "account", "", "Payer account name (defaults to configured account)")
}

func runPay(cmd *cobra.Command, args []string) {
	amount := args[0]
	currency := strings.ToUpper(args[1])

	// The length cap applies to typed input only; it is not re-checked inside
	// the flow.
	if _, err := finance.CheckEntered(amount, currency); err != nil {
		printError(err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	account := payAccount
	if account == "" {
		account = cfg.AccountName
	}

	apiClient := client.New(cfg.BaseURL)

	available := ""
	if payUseBalance && account != "" {
		if balance, err := apiClient.GetBalance(context.Background(), account); err == nil {
			available = balance[currency]
		}
	}

	capability := &walletCapability{
		client:     apiClient,
		currency:   currency,
		recipient:  payRecipient,
		useBalance: payUseBalance,
		minPending: cfg.MinPending,
	}

	done := make(chan struct{})
	flow := payment.NewFlow(payment.Options{
		Currency:         currency,
		UseBalance:       payUseBalance,
		AvailableBalance: available,
		Capability:       capability,
		Gate:             terminalGate(account),
		PollInterval:     cfg.SettlementPollInterval,
		OnDone:           func() { close(done) },
		Logf: func(format string, a ...interface{}) {
			color.Red(format, a...)
		},
	})
	defer flow.Close()

	if err := flow.Submit(context.Background(), amount, payMemo); err != nil {
		printError(err)
		os.Exit(1)
	}

	session := flow.Session()
	if session.Step == payment.CollectingAmount {
		// Cancelled verification or failed initiation; the flow stays
		// retryable, but a one-shot command just exits.
		os.Exit(1)
	}

	if session.Step == payment.Done {
		printSuccess(color.GreenString("✓ Payment complete. %s %s debited from your balance.", amount, currency))
		return
	}

	displayPaymentSurface(session.PaymentURL, amount, currency)

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Waiting for payment confirmation..."
	s.Start()
	<-done
	s.Stop()

	printSuccess(color.GreenString("✓ Payment confirmed. %s %s settled.", amount, currency))
}

func displayPaymentSurface(paymentURL, amount, currency string) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Yellow("                 SCAN TO PAY")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("\nOpen this payment URL in your wallet app to pay %s %s:\n\n", amount, currency)
	color.Cyan("  %s\n", paymentURL)
	fmt.Println("\n" + strings.Repeat("=", 60))
}

// walletCapability backs the pay command: balance payments settle through a
// direct transfer, proxied payments through a deposit initiation plus a
// balance-increase settlement check against a pre-payment snapshot.
type walletCapability struct {
	client     *client.Client
	currency   string
	recipient  string
	useBalance bool
	minPending time.Duration

	mu       sync.Mutex
	snapshot string
}

func (w *walletCapability) Pay(ctx context.Context, creds *verification.Credentials, amount, memo string) (string, error) {
	if w.useBalance {
		return "", w.client.Transfer(ctx, creds.PrivateKey, creds.AccountName, w.recipient, amount, w.currency, memo)
	}

	if balance, err := w.client.GetBalance(ctx, creds.AccountName); err == nil {
		w.mu.Lock()
		w.snapshot = balance[w.currency]
		w.mu.Unlock()
	}

	result, err := w.client.Deposit(ctx, creds.PrivateKey, creds.AccountName, amount, w.currency, memo, w.minPending)
	if err != nil {
		return "", err
	}
	return result.PaymentURL, nil
}

func (w *walletCapability) CheckResult(ctx context.Context, accountName, amount string) (bool, error) {
	balance, err := w.client.GetBalance(ctx, accountName)
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	snapshot := w.snapshot
	w.mu.Unlock()

	return finance.Larger(balance[w.currency], snapshot), nil
}

func (w *walletCapability) Done() {}
