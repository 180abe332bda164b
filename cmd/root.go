package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"prs-wallet/pkg/verification"
)

var rootCmd = &cobra.Command{
	Use:   "prs-wallet",
	Short: "A CLI wallet for PRS account payments and liquidity deposits",
	Long: `prs-wallet is a command-line wallet front-end for a blockchain-based
account/token system. It supports direct balance payments, proxied payments
completed in an external wallet via a payment URL, and dual-leg liquidity
pool deposits.

Examples:
  prs-wallet balance my.account
  prs-wallet pay 12.5 CNY --memo "coffee"
  prs-wallet pay 10 CNY --use-balance --recipient other.account
  prs-wallet deposit 100 CNY PRS`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}

// terminalGate collects signing material from stdin. Empty input cancels.
func terminalGate(defaultAccount string) verification.Gate {
	return verification.GateFunc(func(ctx context.Context) (*verification.Credentials, error) {
		reader := bufio.NewReader(os.Stdin)

		account := defaultAccount
		if account == "" {
			fmt.Print("\nAccount name: ")
			line, err := reader.ReadString('\n')
			if err != nil {
				return nil, nil
			}
			account = strings.TrimSpace(line)
		}

		fmt.Print("Private key (leave empty to cancel): ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, nil
		}
		privateKey := strings.TrimSpace(line)
		if privateKey == "" {
			return nil, nil
		}

		return &verification.Credentials{
			PrivateKey:  privateKey,
			AccountName: account,
		}, nil
	})
}

func confirmPrompt(question string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\n%s (y/N): ", question)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

// waitFor polls condition every 100ms until it holds or the timeout passes.
func waitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(100 * time.Millisecond)
	}
	return condition()
}
