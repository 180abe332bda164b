package deposit

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"prs-wallet/pkg/client"
	"prs-wallet/pkg/finance"
	"prs-wallet/pkg/payment"
	"prs-wallet/pkg/polling"
	"prs-wallet/pkg/quote"
	"prs-wallet/pkg/verification"
)

// DefaultPollInterval is the pair-balance check interval while waiting for a
// deposit to land.
const DefaultPollInterval = 5 * time.Second

// Leg identifies one of the two currency transfers of a liquidity deposit.
type Leg int

const (
	LegA Leg = iota
	LegB
)

// LegState tracks one payment leg.
type LegState struct {
	ID         string
	Amount     string
	Currency   string
	PaymentURL string
	Paid       bool
}

// Backend is the slice of the settlement RPC the coordinator needs.
// *client.Client satisfies it.
type Backend interface {
	CancelSwap(ctx context.Context, privateKey, accountName string) error
	GetBalance(ctx context.Context, accountName string) (client.Balance, error)
	AddLiquidDryRun(ctx context.Context, currencyIn, amountIn, currencyOut string, minPending time.Duration) (*client.DryRunResult, error)
	AddLiquid(ctx context.Context, privateKey, accountName, currencyA, amountA, currencyB string, minPending time.Duration) (*client.AddLiquidResult, error)
}

// LegChecker probes whether a single leg's proxied payment settled. External
// settlement confirmation is unreliable per leg, so this only gates the leg's
// paid flag; the pair-balance poll remains the authoritative signal.
type LegChecker interface {
	Check(ctx context.Context, leg Leg, accountName string) (bool, error)
}

// LegCheckerFunc adapts a function to the LegChecker interface.
type LegCheckerFunc func(ctx context.Context, leg Leg, accountName string) (bool, error)

// Check implements LegChecker.
func (f LegCheckerFunc) Check(ctx context.Context, leg Leg, accountName string) (bool, error) {
	return f(ctx, leg, accountName)
}

// DelayedChecker reports settlement after a fixed delay. This mirrors the
// proxied wallet's behavior of acknowledging a scan without a per-leg
// receipt; real confirmation comes from the pair-balance poll.
type DelayedChecker struct {
	Delay time.Duration
}

// Check implements LegChecker.
func (c DelayedChecker) Check(ctx context.Context, leg Leg, accountName string) (bool, error) {
	timer := time.NewTimer(c.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		return true, nil
	}
}

// State is a snapshot of the coordinator, exposed to the rendering layer.
type State struct {
	AmountA          string
	AmountB          string
	CurrencyA        string
	CurrencyB        string
	QuoteEstablished bool
	Established      bool
	Submitting       bool
	Checking         bool
	AccountName      string
	BalanceSnapshot  string
	LegA             LegState
	LegB             LegState
}

// Options configures a Coordinator.
type Options struct {
	Backend   Backend
	Gate      verification.Gate
	CurrencyA string
	CurrencyB string

	// QuoteDebounce overrides quote.DefaultQuiet.
	QuoteDebounce time.Duration

	// PollInterval overrides DefaultPollInterval.
	PollInterval time.Duration

	// LegPollInterval is passed to the per-leg payment flows.
	LegPollInterval time.Duration

	// MinPending is forwarded to addLiquid calls.
	MinPending time.Duration

	// LegChecker defaults to DelayedChecker{Delay: time.Second}.
	LegChecker LegChecker

	// Notify surfaces the user-visible success notice.
	Notify func(message string)

	// Logf receives non-fatal failures. Defaults to stderr.
	Logf func(format string, args ...interface{})
}

// Coordinator orchestrates a dual-leg liquidity-pool deposit: a debounced
// dry-run quote while amounts are edited, one addLiquid call establishing
// both legs, two independent proxied payment flows, and a pair-balance poll
// as the authoritative completion signal.
type Coordinator struct {
	mu    sync.Mutex
	state State

	backend    Backend
	gate       verification.Gate
	poller     *polling.Poller
	debouncer  *quote.Debouncer
	legChecker LegChecker
	notify     func(string)
	logf       func(string, ...interface{})

	pollInterval    time.Duration
	legPollInterval time.Duration
	minPending      time.Duration

	legFlows [2]*payment.Flow
}

// NewCoordinator creates a coordinator for one currency pair.
func NewCoordinator(ctx context.Context, opts Options) *Coordinator {
	pollInterval := opts.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	legChecker := opts.LegChecker
	if legChecker == nil {
		legChecker = DelayedChecker{Delay: time.Second}
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(format string, args ...interface{}) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}

	c := &Coordinator{
		state: State{
			CurrencyA: opts.CurrencyA,
			CurrencyB: opts.CurrencyB,
		},
		backend:         opts.Backend,
		gate:            opts.Gate,
		poller:          polling.NewPoller(),
		legChecker:      legChecker,
		notify:          opts.Notify,
		logf:            logf,
		pollInterval:    pollInterval,
		legPollInterval: opts.LegPollInterval,
		minPending:      opts.MinPending,
	}

	c.debouncer = quote.New(ctx, quote.DryRunnerFunc(
		func(ctx context.Context, currencyIn, amountIn, currencyOut string) (string, error) {
			result, err := opts.Backend.AddLiquidDryRun(ctx, currencyIn, amountIn, currencyOut, opts.MinPending)
			if err != nil {
				return "", err
			}
			return result.AmountB, nil
		},
	), opts.CurrencyA, opts.CurrencyB, opts.QuoteDebounce, c.applyQuote)

	return c
}

// State returns a snapshot of the coordinator's state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pair is the combined pair currency credited on completion.
func (c *Coordinator) Pair() string {
	return c.state.CurrencyA + c.state.CurrencyB
}

// EditAmount registers an amount edit on one side and schedules a debounced
// quote recomputation. The previous quote is no longer trustworthy until the
// recomputation lands.
func (c *Coordinator) EditAmount(side quote.Side, amount string) {
	c.mu.Lock()
	if c.state.Established {
		// The legs are fixed once addLiquid ran; edits apply to the next
		// deposit, after completion resets the state.
		c.mu.Unlock()
		return
	}
	if side == quote.SideA {
		c.state.AmountA = amount
	} else {
		c.state.AmountB = amount
	}
	c.state.QuoteEstablished = false
	c.mu.Unlock()

	c.debouncer.Edit(side, amount)
}

// applyQuote publishes a debounced quote result: the counter side's amount is
// overwritten with the derived value so the two fields always reflect the
// last computed exchange ratio.
func (c *Coordinator) applyQuote(edited quote.Side, q *quote.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Established {
		// A debounced recomputation that lands after submission must not
		// overwrite the established leg amounts.
		return
	}
	if q == nil {
		c.state.QuoteEstablished = false
		return
	}
	c.state.AmountA = q.AmountA
	c.state.AmountB = q.AmountB
	c.state.QuoteEstablished = true
}

// Quote returns the current dry-run quote, or nil when none is established.
func (c *Coordinator) Quote() *quote.Quote {
	return c.debouncer.Quote()
}

// Submit validates the quoted amounts, runs verification, cancels any stale
// swap, snapshots the pair balance, and establishes both payment legs. A
// submit while one is in flight is dropped.
func (c *Coordinator) Submit(ctx context.Context) error {
	c.mu.Lock()
	if !c.state.QuoteEstablished {
		c.mu.Unlock()
		return fmt.Errorf("no exchange quote established for %s/%s", c.state.CurrencyA, c.state.CurrencyB)
	}
	if c.state.Submitting {
		c.mu.Unlock()
		return nil
	}
	amountA := c.state.AmountA
	currencyA := c.state.CurrencyA
	currencyB := c.state.CurrencyB
	c.state.Submitting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.state.Submitting = false
		c.mu.Unlock()
	}()

	if _, err := finance.CheckAmount(amountA, currencyA); err != nil {
		return err
	}

	creds, err := c.gate.RequestSigningMaterial(ctx)
	if err != nil {
		return err
	}
	if creds == nil || creds.PrivateKey == "" {
		// User cancelled verification: silent no-op abort.
		return nil
	}

	// Pending swaps would absorb the leg payments; cancellation failures are
	// tolerated because a missing pending swap reports one.
	if err := c.backend.CancelSwap(ctx, creds.PrivateKey, creds.AccountName); err != nil {
		c.logf("cancelSwap before deposit failed: %v", err)
	}

	snapshot := "0"
	if balance, err := c.backend.GetBalance(ctx, creds.AccountName); err != nil {
		c.logf("balance snapshot failed: %v", err)
	} else if amount, ok := balance[c.Pair()]; ok {
		snapshot = amount
	}

	result, err := c.backend.AddLiquid(ctx, creds.PrivateKey, creds.AccountName, currencyA, amountA, currencyB, c.minPending)
	if err != nil {
		return fmt.Errorf("failed to establish deposit legs: %w", err)
	}

	legA, legB := splitLegs(result, currencyA)

	c.mu.Lock()
	c.state.AccountName = creds.AccountName
	c.state.BalanceSnapshot = snapshot
	c.state.LegA = legA
	c.state.LegB = legB
	c.state.Established = true
	c.mu.Unlock()

	return nil
}

// splitLegs assigns the backend's payment requests to the pair's A/B
// orientation, matching by currency and falling back to encounter order.
func splitLegs(result *client.AddLiquidResult, currencyA string) (LegState, LegState) {
	var legs []LegState
	for id, entry := range result.PaymentRequest.PaymentRequest {
		legs = append(legs, LegState{
			ID:         id,
			Amount:     entry.Amount,
			Currency:   entry.Currency,
			PaymentURL: entry.PaymentURL,
		})
	}

	var a, b LegState
	for _, leg := range legs {
		if leg.Currency == currencyA && a.ID == "" {
			a = leg
		} else if b.ID == "" {
			b = leg
		} else if a.ID == "" {
			a = leg
		}
	}
	return a, b
}

// PayLeg starts the proxied payment flow for one leg. The returned flow is
// already past amount collection; the caller drives its confirm/back
// interactions. Leg completion flips the leg's paid flag.
func (c *Coordinator) PayLeg(ctx context.Context, leg Leg) (*payment.Flow, error) {
	c.mu.Lock()
	if !c.state.Established {
		c.mu.Unlock()
		return nil, fmt.Errorf("deposit legs not established yet")
	}
	legState := c.state.LegA
	if leg == LegB {
		legState = c.state.LegB
	}
	accountName := c.state.AccountName
	c.mu.Unlock()

	paymentURL := legState.PaymentURL
	flow := payment.NewFlow(payment.Options{
		Currency: legState.Currency,
		// The leg was authorized by the deposit submission; no second
		// verification pass.
		SkipVerification: true,
		AccountName:      accountName,
		Capability: legCapability{
			payEntry: paymentURL,
			check: func(ctx context.Context) (bool, error) {
				return c.legChecker.Check(ctx, leg, accountName)
			},
			done: func() { c.markPaid(leg) },
		},
		PollInterval: c.legPollInterval,
		Logf:         c.logf,
	})

	c.mu.Lock()
	if prev := c.legFlows[leg]; prev != nil {
		prev.Close()
	}
	c.legFlows[leg] = flow
	c.mu.Unlock()

	if err := flow.Submit(ctx, legState.Amount, ""); err != nil {
		flow.Close()
		return nil, err
	}
	return flow, nil
}

// legCapability adapts one established leg to the payment capability
// boundary: initiation just hands back the leg's payment surface.
type legCapability struct {
	payEntry string
	check    func(ctx context.Context) (bool, error)
	done     func()
}

func (l legCapability) Pay(ctx context.Context, creds *verification.Credentials, amount, memo string) (string, error) {
	return l.payEntry, nil
}

func (l legCapability) CheckResult(ctx context.Context, accountName, amount string) (bool, error) {
	return l.check(ctx)
}

func (l legCapability) Done() {
	l.done()
}

func (c *Coordinator) markPaid(leg Leg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if leg == LegA {
		c.state.LegA.Paid = true
	} else {
		c.state.LegB.Paid = true
	}
}

// Done starts the authoritative completion check: a pair-balance poll that
// succeeds on a strict increase over the pre-submission snapshot. It is only
// meaningful once the legs are established and both report paid.
func (c *Coordinator) Done(ctx context.Context) error {
	c.mu.Lock()
	if !c.state.Established {
		c.mu.Unlock()
		return fmt.Errorf("deposit not submitted")
	}
	if !c.state.LegA.Paid || !c.state.LegB.Paid {
		c.mu.Unlock()
		return fmt.Errorf("both legs must be paid before finishing")
	}
	if c.state.Checking {
		c.mu.Unlock()
		return nil
	}
	c.state.Checking = true
	accountName := c.state.AccountName
	snapshot := c.state.BalanceSnapshot
	c.mu.Unlock()

	pair := c.Pair()
	handle := c.poller.Start(ctx, func(ctx context.Context) (bool, error) {
		balance, err := c.backend.GetBalance(ctx, accountName)
		if err != nil {
			return false, err
		}
		return finance.Larger(balance[pair], snapshot), nil
	}, c.pollInterval)

	go func() {
		<-handle.Done()
		if handle.Completed() {
			c.finish(pair)
		}
	}()

	return nil
}

// finish resets all per-leg and quote state and surfaces the success notice.
func (c *Coordinator) finish(pair string) {
	c.mu.Lock()
	c.state.Checking = false
	c.state.Established = false
	c.state.QuoteEstablished = false
	c.state.AmountA = ""
	c.state.AmountB = ""
	c.state.BalanceSnapshot = ""
	c.state.LegA = LegState{}
	c.state.LegB = LegState{}
	notify := c.notify
	c.mu.Unlock()

	if notify != nil {
		notify(fmt.Sprintf("Deposit complete. The %s pair has been credited to your assets.", pair))
	}
}

// Close tears down the coordinator: the quote debouncer, the balance poll,
// and any leg flows still open.
func (c *Coordinator) Close() {
	c.debouncer.Close()
	c.poller.Stop()

	c.mu.Lock()
	flows := c.legFlows
	c.legFlows = [2]*payment.Flow{}
	c.mu.Unlock()

	for _, flow := range flows {
		if flow != nil {
			flow.Close()
		}
	}
}
