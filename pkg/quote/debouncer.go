package quote

import (
	"context"
	"sync"
	"time"

	"prs-wallet/pkg/finance"
)

// DefaultQuiet is the input quiescence window before a recomputation fires.
const DefaultQuiet = 500 * time.Millisecond

// Side identifies which amount field the user is editing.
type Side int

const (
	SideA Side = iota
	SideB
)

// Quote is the ephemeral result of a dry-run exchange computation, in the
// pair's canonical A/B orientation. Quotes are recomputed, never mutated;
// each one atomically supersedes the previous.
type Quote struct {
	AmountA   string
	AmountB   string
	CurrencyA string
	CurrencyB string

	// Rate is AmountB/AmountA, the displayed conversion ratio.
	Rate string
}

// DryRunner performs the read-only exchange computation. AmountOut is the
// derived counter-value for amountIn.
type DryRunner interface {
	DryRun(ctx context.Context, currencyIn, amountIn, currencyOut string) (amountOut string, err error)
}

// DryRunnerFunc adapts a function to the DryRunner interface.
type DryRunnerFunc func(ctx context.Context, currencyIn, amountIn, currencyOut string) (string, error)

// DryRun implements DryRunner.
func (f DryRunnerFunc) DryRun(ctx context.Context, currencyIn, amountIn, currencyOut string) (string, error) {
	return f(ctx, currencyIn, amountIn, currencyOut)
}

// Debouncer coalesces rapid amount edits into rate-limited dry-run
// recomputations. Every edit restarts the quiet timer and invalidates any
// recomputation still in flight: each attempt carries a generation tag and
// only the newest generation may publish, so an older, slower response can
// never overwrite a newer quote.
type Debouncer struct {
	mu     sync.Mutex
	ctx    context.Context
	runner DryRunner
	quiet  time.Duration

	currencyA string
	currencyB string

	// onQuote receives each published quote. A nil quote means the last
	// recomputation failed and the display must be cleared.
	onQuote func(edited Side, q *Quote)

	timer         *time.Timer
	gen           uint64
	pendingSide   Side
	pendingAmount string
	current       *Quote
	closed        bool
}

// New creates a debouncer for one currency pair.
func New(ctx context.Context, runner DryRunner, currencyA, currencyB string, quiet time.Duration, onQuote func(Side, *Quote)) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	return &Debouncer{
		ctx:       ctx,
		runner:    runner,
		quiet:     quiet,
		currencyA: currencyA,
		currencyB: currencyB,
		onQuote:   onQuote,
	}
}

// Edit registers an amount edit on one side. The recomputation fires only
// after the quiet window passes with no further edits.
func (d *Debouncer) Edit(side Side, amount string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return
	}

	d.gen++
	g := d.gen
	d.pendingSide = side
	d.pendingAmount = amount

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, func() { d.fire(g) })
}

// Quote returns the last published quote, or nil if none is current.
func (d *Debouncer) Quote() *Quote {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Close stops the timer and invalidates any in-flight recomputation.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
	}
}

func (d *Debouncer) fire(g uint64) {
	d.mu.Lock()
	if d.closed || g != d.gen {
		d.mu.Unlock()
		return
	}
	side := d.pendingSide
	amount := d.pendingAmount
	in, out := d.currencyA, d.currencyB
	if side == SideB {
		in, out = out, in
	}
	d.mu.Unlock()

	derived, err := d.runner.DryRun(d.ctx, in, amount, out)

	d.mu.Lock()
	if d.closed || g != d.gen {
		// Superseded while in flight; the result is dropped, not queued.
		d.mu.Unlock()
		return
	}
	if err != nil {
		d.current = nil
		d.mu.Unlock()
		d.notify(side, nil)
		return
	}

	q := &Quote{
		CurrencyA: d.currencyA,
		CurrencyB: d.currencyB,
	}
	if side == SideA {
		q.AmountA = amount
		q.AmountB = derived
	} else {
		q.AmountA = derived
		q.AmountB = amount
	}
	q.Rate = finance.DeriveRate(q.AmountA, q.AmountB)
	d.current = q
	d.mu.Unlock()
	d.notify(side, q)
}

func (d *Debouncer) notify(side Side, q *Quote) {
	if d.onQuote != nil {
		d.onQuote(side, q)
	}
}
