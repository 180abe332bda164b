package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"prs-wallet/config"
	"prs-wallet/pkg/client"
)

var balanceCmd = &cobra.Command{
	Use:   "balance [account]",
	Short: "Show per-currency balances for an account",
	Long: `Fetch the account's balances from the ledger backend.

Examples:
  prs-wallet balance my.account
  prs-wallet balance            (uses the configured account name)`,
	Args: cobra.MaximumNArgs(1),
	Run:  runBalance,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func runBalance(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	account := cfg.AccountName
	if len(args) > 0 {
		account = args[0]
	}
	if account == "" {
		printError(fmt.Errorf("no account given. Pass one as an argument or set PRS_WALLET_ACCOUNT_NAME"))
		os.Exit(1)
	}

	apiClient := client.New(cfg.BaseURL)

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching balances..."
		s.Start()
	}

	balance, err := apiClient.GetBalance(context.Background(), account)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(balance, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	displayBalance(account, balance)
}

func displayBalance(account string, balance client.Balance) {
	fmt.Println("\n" + strings.Repeat("=", 50))
	color.Green("                    BALANCES")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("\n  Account: %s\n\n", color.CyanString(account))

	currencies := make([]string, 0, len(balance))
	for currency := range balance {
		currencies = append(currencies, currency)
	}
	sort.Strings(currencies)

	for _, currency := range currencies {
		fmt.Printf("  %-12s %s\n", color.YellowString(currency), balance[currency])
	}

	fmt.Println("\n" + strings.Repeat("=", 50) + "\n")
}
