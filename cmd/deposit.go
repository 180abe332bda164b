package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"prs-wallet/config"
	"prs-wallet/pkg/client"
	"prs-wallet/pkg/deposit"
	"prs-wallet/pkg/finance"
	"prs-wallet/pkg/quote"
)

var (
	depositAccount string
	depositYes     bool
)

var depositCmd = &cobra.Command{
	Use:   "deposit <amount> <currency-a> <currency-b>",
	Short: "Deposit two currencies into a liquidity pool",
	Long: `Deposit liquidity into the pool for a currency pair. The amount is the
quantity of the first currency; the second leg's amount is derived from a
dry-run exchange quote. Both legs are paid through an external wallet via
payment URLs, and completion is confirmed by watching the pair balance.

Examples:
  prs-wallet deposit 100 CNY PRS
  prs-wallet deposit 0.5 BTC USDT --yes`,
	Args: cobra.ExactArgs(3),
	Run:  runDeposit,
}

func init() {
	rootCmd.AddCommand(depositCmd)

	depositCmd.Flags().StringVar(&depositAccount, "account", "", "Account name (defaults to configured account)")
	depositCmd.Flags().BoolVarP(&depositYes, "yes", "y", false, "Skip confirmation prompt")
}

func runDeposit(cmd *cobra.Command, args []string) {
	amount := args[0]
	currencyA := strings.ToUpper(args[1])
	currencyB := strings.ToUpper(args[2])

	if _, err := finance.CheckEntered(amount, currencyA); err != nil {
		printError(err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	account := depositAccount
	if account == "" {
		account = cfg.AccountName
	}

	apiClient := client.New(cfg.BaseURL)
	ctx := context.Background()

	finished := make(chan string, 1)
	coordinator := deposit.NewCoordinator(ctx, deposit.Options{
		Backend:       apiClient,
		Gate:          terminalGate(account),
		CurrencyA:     currencyA,
		CurrencyB:     currencyB,
		QuoteDebounce: cfg.QuoteDebounce,
		PollInterval:  cfg.DepositPollInterval,
		MinPending:    cfg.MinPending,
		Notify:        func(message string) { finished <- message },
		Logf: func(format string, a ...interface{}) {
			color.Red(format, a...)
		},
	})
	defer coordinator.Close()

	// Fetch the dry-run quote for the entered amount.
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Fetching exchange quote..."
	s.Start()
	coordinator.EditAmount(quote.SideA, amount)
	quoted := waitFor(func() bool {
		return coordinator.State().QuoteEstablished
	}, 30*time.Second)
	s.Stop()

	if !quoted {
		printError(fmt.Errorf("could not establish a quote for %s/%s", currencyA, currencyB))
		os.Exit(1)
	}

	displayDepositQuote(coordinator.Quote())

	if !depositYes && !confirmPrompt("Proceed with deposit?") {
		fmt.Println("\nDeposit cancelled.")
		os.Exit(0)
	}

	if err := coordinator.Submit(ctx); err != nil {
		printError(err)
		os.Exit(1)
	}

	state := coordinator.State()
	if !state.Established {
		// Cancelled verification; nothing was submitted.
		os.Exit(1)
	}

	payDepositLeg(ctx, coordinator, deposit.LegA, state.LegA)
	payDepositLeg(ctx, coordinator, deposit.LegB, state.LegB)

	if err := coordinator.Done(ctx); err != nil {
		printError(err)
		os.Exit(1)
	}

	s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Verifying deposit against pair balance..."
	s.Start()
	message := <-finished
	s.Stop()

	printSuccess(color.GreenString("✓ %s", message))
}

func payDepositLeg(ctx context.Context, coordinator *deposit.Coordinator, leg deposit.Leg, legState deposit.LegState) {
	displayPaymentSurface(legState.PaymentURL, legState.Amount, legState.Currency)

	flow, err := coordinator.PayLeg(ctx, leg)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer flow.Close()

	if !confirmPrompt(fmt.Sprintf("Paid %s %s?", legState.Amount, legState.Currency)) {
		fmt.Println("\nDeposit aborted; legs already paid remain credited to the pending swap.")
		os.Exit(1)
	}
	flow.ConfirmClicked()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = fmt.Sprintf(" Confirming %s leg...", legState.Currency)
	s.Start()
	paid := waitFor(func() bool {
		current := coordinator.State()
		if leg == deposit.LegA {
			return current.LegA.Paid
		}
		return current.LegB.Paid
	}, 2*time.Minute)
	s.Stop()

	if !paid {
		printError(fmt.Errorf("the %s leg was not confirmed", legState.Currency))
		os.Exit(1)
	}

	color.Green("✓ %s leg paid", legState.Currency)
}

func displayDepositQuote(q *quote.Quote) {
	if q == nil {
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                   DEPOSIT QUOTE")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("\n  Leg A:  %s %s\n", q.AmountA, color.YellowString(q.CurrencyA))
	fmt.Printf("  Leg B:  %s %s\n", q.AmountB, color.YellowString(q.CurrencyB))
	if q.Rate != "" {
		fmt.Printf("  Rate:   1 %s = %s %s\n", q.CurrencyA, q.Rate, q.CurrencyB)
	}
	fmt.Println("\n" + strings.Repeat("=", 60))
}
