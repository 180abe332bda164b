package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Balance maps currency symbols to amount strings as returned by the ledger.
type Balance map[string]string

// DryRunResult is the outcome of a read-only addLiquid computation.
type DryRunResult struct {
	AmountA   string `json:"amount_a"`
	AmountB   string `json:"amount_b"`
	CurrencyA string `json:"currency_a"`
	CurrencyB string `json:"currency_b"`
	Pool      string `json:"pool"`
	Receiver  string `json:"receiver"`
	Memo      string `json:"memo"`
}

// PaymentRequestEntry describes one payment surface established by the
// backend for a single leg.
type PaymentRequestEntry struct {
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	PaymentURL string `json:"payment_url"`
}

// AddLiquidResult is the outcome of a committed addLiquid call: the two leg
// amounts plus a payment request per leg, keyed by an opaque request id.
type AddLiquidResult struct {
	DryRunResult
	PaymentRequest struct {
		PaymentRequest map[string]PaymentRequestEntry `json:"payment_request"`
	} `json:"payment_request"`
}

// DepositResult is the outcome of a deposit initiation: an externally
// rendered payment surface for the requested amount.
type DepositResult struct {
	Amount     string `json:"amount"`
	Memo       string `json:"memo"`
	PaymentURL string `json:"paymentUrl"`
	Trace      string `json:"trace"`
}

// GetBalance fetches the account's per-currency balances.
func (c *Client) GetBalance(ctx context.Context, accountName string) (Balance, error) {
	resp, err := c.Fetch(ctx, Request{
		ID:      "getBalance",
		Actions: [2]string{"account", "getBalance"},
		Args:    []interface{}{accountName},
	})
	if err != nil {
		return nil, err
	}

	var balance Balance
	if err := json.Unmarshal(resp, &balance); err != nil {
		return nil, fmt.Errorf("getBalance: failed to decode response: %w", err)
	}
	return balance, nil
}

// CancelSwap cancels any pending swap for the account. Called before a new
// liquidity submission so stale requests cannot absorb the payment.
func (c *Client) CancelSwap(ctx context.Context, privateKey, accountName string) error {
	_, err := c.Fetch(ctx, Request{
		ID:      "exchange.cancelSwap",
		Actions: [2]string{"exchange", "cancelSwap"},
		Args:    []interface{}{privateKey, accountName},
	})
	return err
}

// AddLiquidDryRun computes the counter-leg amount for a proposed liquidity
// deposit without committing funds.
func (c *Client) AddLiquidDryRun(ctx context.Context, currencyIn, amountIn, currencyOut string, minPending time.Duration) (*DryRunResult, error) {
	resp, err := c.Fetch(ctx, Request{
		ID:      "swapToken.addLiquid.dryrun",
		Actions: [2]string{"exchange", "addLiquid"},
		Args: []interface{}{
			nil, nil,
			currencyIn, amountIn, currencyOut,
			nil, nil,
			map[string]bool{"dryrun": true},
		},
		MinPending: minPending,
	})
	if err != nil {
		return nil, err
	}

	var result DryRunResult
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("addLiquid dryrun: failed to decode response: %w", err)
	}
	return &result, nil
}

// AddLiquid commits a liquidity deposit and returns the two payment legs.
func (c *Client) AddLiquid(ctx context.Context, privateKey, accountName, currencyA, amountA, currencyB string, minPending time.Duration) (*AddLiquidResult, error) {
	resp, err := c.Fetch(ctx, Request{
		ID:      "swapToken.addLiquid",
		Actions: [2]string{"exchange", "addLiquid"},
		Args: []interface{}{
			privateKey, accountName,
			currencyA, amountA, currencyB,
			nil, nil,
		},
		MinPending: minPending,
	})
	if err != nil {
		return nil, err
	}

	var result AddLiquidResult
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("addLiquid: failed to decode response: %w", err)
	}
	return &result, nil
}

// Deposit initiates a proxied top-up and returns the payment surface.
func (c *Client) Deposit(ctx context.Context, privateKey, accountName, amount, currency, memo string, minPending time.Duration) (*DepositResult, error) {
	resp, err := c.Fetch(ctx, Request{
		ID:         "atm.deposit",
		Actions:    [2]string{"atm", "deposit"},
		Args:       []interface{}{privateKey, accountName, amount, currency, memo},
		MinPending: minPending,
	})
	if err != nil {
		return nil, err
	}

	var result DepositResult
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("atm.deposit: failed to decode response: %w", err)
	}
	return &result, nil
}

// Transfer debits the account balance directly. Settlement is synchronous:
// when the call returns without error the payment is complete.
func (c *Client) Transfer(ctx context.Context, privateKey, accountName, recipient, amount, currency, memo string) error {
	_, err := c.Fetch(ctx, Request{
		ID:      "atm.transfer",
		Actions: [2]string{"atm", "transfer"},
		Args:    []interface{}{privateKey, accountName, recipient, amount, currency, memo},
	})
	return err
}
