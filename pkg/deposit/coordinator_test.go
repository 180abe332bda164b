package deposit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"prs-wallet/pkg/client"
	"prs-wallet/pkg/quote"
	"prs-wallet/pkg/verification"
)

type fakeBackend struct {
	mu          sync.Mutex
	pairBalance string
	cancelCalls int
	liquidCalls int
	dryRunErr   error
}

func (f *fakeBackend) setPairBalance(amount string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pairBalance = amount
}

func (f *fakeBackend) CancelSwap(ctx context.Context, privateKey, accountName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	return nil
}

func (f *fakeBackend) GetBalance(ctx context.Context, accountName string) (client.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return client.Balance{"CNYPRS": f.pairBalance, "CNY": "1000", "PRS": "1000"}, nil
}

func (f *fakeBackend) AddLiquidDryRun(ctx context.Context, currencyIn, amountIn, currencyOut string, minPending time.Duration) (*client.DryRunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dryRunErr != nil {
		return nil, f.dryRunErr
	}
	return &client.DryRunResult{
		AmountA:   amountIn,
		AmountB:   amountIn + "0", // a fake tenfold rate
		CurrencyA: currencyIn,
		CurrencyB: currencyOut,
	}, nil
}

func (f *fakeBackend) AddLiquid(ctx context.Context, privateKey, accountName, currencyA, amountA, currencyB string, minPending time.Duration) (*client.AddLiquidResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.liquidCalls++

	result := &client.AddLiquidResult{}
	result.PaymentRequest.PaymentRequest = map[string]client.PaymentRequestEntry{
		"req-b": {Amount: amountA + "0", Currency: currencyB, PaymentURL: "https://pay.example/b"},
		"req-a": {Amount: amountA, Currency: currencyA, PaymentURL: "https://pay.example/a"},
	}
	return result, nil
}

var testCreds = &verification.Credentials{PrivateKey: "pk", AccountName: "alice"}

func newTestCoordinator(t *testing.T, backend Backend, notify func(string)) *Coordinator {
	t.Helper()
	c := NewCoordinator(context.Background(), Options{
		Backend:         backend,
		Gate:            verification.Static(testCreds),
		CurrencyA:       "CNY",
		CurrencyB:       "PRS",
		QuoteDebounce:   10 * time.Millisecond,
		PollInterval:    10 * time.Millisecond,
		LegPollInterval: 10 * time.Millisecond,
		LegChecker:      DelayedChecker{Delay: time.Millisecond},
		Notify:          notify,
		Logf:            func(format string, args ...interface{}) {},
	})
	t.Cleanup(c.Close)
	return c
}

func establishQuote(t *testing.T, c *Coordinator) {
	t.Helper()
	c.EditAmount(quote.SideA, "100")
	require.Eventually(t, func() bool {
		return c.State().QuoteEstablished
	}, 2*time.Second, 5*time.Millisecond)
}

func payBothLegs(t *testing.T, c *Coordinator) {
	t.Helper()
	for _, leg := range []Leg{LegA, LegB} {
		flow, err := c.PayLeg(context.Background(), leg)
		require.NoError(t, err)
		defer flow.Close()
	}
	require.Eventually(t, func() bool {
		state := c.State()
		return state.LegA.Paid && state.LegB.Paid
	}, 2*time.Second, 5*time.Millisecond)
}

func TestQuoteUpdatesCounterAmount(t *testing.T) {
	backend := &fakeBackend{pairBalance: "0"}
	c := newTestCoordinator(t, backend, nil)

	establishQuote(t, c)

	state := c.State()
	require.Equal(t, "100", state.AmountA)
	require.Equal(t, "1000", state.AmountB)
	require.Equal(t, "10", c.Quote().Rate)
}

func TestEditInvalidatesQuoteUntilRecomputed(t *testing.T) {
	backend := &fakeBackend{pairBalance: "0"}
	c := newTestCoordinator(t, backend, nil)

	establishQuote(t, c)
	c.EditAmount(quote.SideA, "200")
	require.False(t, c.State().QuoteEstablished)
}

func TestSubmitRequiresQuote(t *testing.T) {
	backend := &fakeBackend{pairBalance: "0"}
	c := newTestCoordinator(t, backend, nil)

	require.Error(t, c.Submit(context.Background()))
	require.Equal(t, 0, backend.liquidCalls)
}

func TestSubmitEstablishesLegsAndSnapshot(t *testing.T) {
	backend := &fakeBackend{pairBalance: "5"}
	c := newTestCoordinator(t, backend, nil)

	establishQuote(t, c)
	require.NoError(t, c.Submit(context.Background()))

	state := c.State()
	require.True(t, state.Established)
	require.Equal(t, "alice", state.AccountName)
	require.Equal(t, "5", state.BalanceSnapshot)

	// Legs are matched to the pair orientation by currency.
	require.Equal(t, "CNY", state.LegA.Currency)
	require.Equal(t, "https://pay.example/a", state.LegA.PaymentURL)
	require.Equal(t, "PRS", state.LegB.Currency)
	require.Equal(t, "https://pay.example/b", state.LegB.PaymentURL)
	require.False(t, state.LegA.Paid)
	require.False(t, state.LegB.Paid)

	require.Equal(t, 1, backend.cancelCalls)
}

func TestCancelledVerificationSubmitsNothing(t *testing.T) {
	backend := &fakeBackend{pairBalance: "0"}
	c := NewCoordinator(context.Background(), Options{
		Backend:       backend,
		Gate:          verification.Denied(),
		CurrencyA:     "CNY",
		CurrencyB:     "PRS",
		QuoteDebounce: 10 * time.Millisecond,
	})
	t.Cleanup(c.Close)

	establishQuote(t, c)
	require.NoError(t, c.Submit(context.Background()))
	require.False(t, c.State().Established)
	require.Equal(t, 0, backend.liquidCalls)
}

func TestPayLegFlipsPaidFlagsIndependently(t *testing.T) {
	backend := &fakeBackend{pairBalance: "0"}
	c := newTestCoordinator(t, backend, nil)

	establishQuote(t, c)
	require.NoError(t, c.Submit(context.Background()))

	// Pay leg B first: order is insensitive.
	flow, err := c.PayLeg(context.Background(), LegB)
	require.NoError(t, err)
	defer flow.Close()

	require.Eventually(t, func() bool {
		return c.State().LegB.Paid
	}, 2*time.Second, 5*time.Millisecond)
	require.False(t, c.State().LegA.Paid)
}

func TestPayLegAcceptsBackendDerivedAmounts(t *testing.T) {
	backend := &fakeBackend{pairBalance: "0"}
	c := newTestCoordinator(t, backend, nil)

	// The derived counter amount exceeds the typed-input length cap, which
	// must not apply to amounts the backend established.
	c.EditAmount(quote.SideA, "103.3333")
	require.Eventually(t, func() bool {
		return c.State().QuoteEstablished
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, c.Submit(context.Background()))
	require.Equal(t, "103.33330", c.State().LegB.Amount)

	flow, err := c.PayLeg(context.Background(), LegB)
	require.NoError(t, err)
	defer flow.Close()

	require.Eventually(t, func() bool {
		return c.State().LegB.Paid
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEditAfterSubmitDoesNotBlockCompletion(t *testing.T) {
	backend := &fakeBackend{pairBalance: "5"}
	c := newTestCoordinator(t, backend, nil)

	establishQuote(t, c)
	require.NoError(t, c.Submit(context.Background()))
	payBothLegs(t, c)

	// Edits after submission are dropped: the legs are already fixed.
	c.EditAmount(quote.SideA, "777")
	state := c.State()
	require.Equal(t, "100", state.AmountA)
	require.True(t, state.QuoteEstablished)

	require.NoError(t, c.Done(context.Background()))
	require.True(t, c.State().Checking)
}

func TestDoneRequiresBothLegsPaid(t *testing.T) {
	backend := &fakeBackend{pairBalance: "0"}
	c := newTestCoordinator(t, backend, nil)

	establishQuote(t, c)
	require.NoError(t, c.Submit(context.Background()))

	require.Error(t, c.Done(context.Background()))

	flow, err := c.PayLeg(context.Background(), LegA)
	require.NoError(t, err)
	defer flow.Close()
	require.Eventually(t, func() bool {
		return c.State().LegA.Paid
	}, 2*time.Second, 5*time.Millisecond)

	// One paid leg is still insufficient.
	require.Error(t, c.Done(context.Background()))
}

func TestDoneRequiresBalanceIncreaseNotJustPaidFlags(t *testing.T) {
	backend := &fakeBackend{pairBalance: "5"}
	notified := make(chan string, 1)
	c := newTestCoordinator(t, backend, func(message string) { notified <- message })

	establishQuote(t, c)
	require.NoError(t, c.Submit(context.Background()))
	payBothLegs(t, c)

	require.NoError(t, c.Done(context.Background()))

	// Both paid flags alone must not complete the deposit: the pair balance
	// has not moved past the snapshot.
	select {
	case <-notified:
		t.Fatal("deposit completed without a balance increase")
	case <-time.After(200 * time.Millisecond):
	}
	require.True(t, c.State().Checking)

	// The balance increase is the authoritative signal.
	backend.setPairBalance("6")
	select {
	case message := <-notified:
		require.Contains(t, message, "CNYPRS")
	case <-time.After(2 * time.Second):
		t.Fatal("deposit never completed after balance increase")
	}

	// Completion resets all per-leg and quote state.
	state := c.State()
	require.False(t, state.Checking)
	require.False(t, state.Established)
	require.False(t, state.QuoteEstablished)
	require.Empty(t, state.AmountA)
	require.Empty(t, state.AmountB)
	require.False(t, state.LegA.Paid)
	require.False(t, state.LegB.Paid)
}

func TestDuplicateDoneIsDropped(t *testing.T) {
	backend := &fakeBackend{pairBalance: "5"}
	c := newTestCoordinator(t, backend, nil)

	establishQuote(t, c)
	require.NoError(t, c.Submit(context.Background()))
	payBothLegs(t, c)

	require.NoError(t, c.Done(context.Background()))
	require.NoError(t, c.Done(context.Background()))
	require.True(t, c.State().Checking)
}

func TestPluggableLegChecker(t *testing.T) {
	backend := &fakeBackend{pairBalance: "0"}
	checkErr := fmt.Errorf("not settled yet")

	var allowed sync.Map
	c := NewCoordinator(context.Background(), Options{
		Backend:         backend,
		Gate:            verification.Static(testCreds),
		CurrencyA:       "CNY",
		CurrencyB:       "PRS",
		QuoteDebounce:   10 * time.Millisecond,
		LegPollInterval: 10 * time.Millisecond,
		LegChecker: LegCheckerFunc(func(ctx context.Context, leg Leg, accountName string) (bool, error) {
			if _, ok := allowed.Load(leg); !ok {
				return false, checkErr
			}
			return true, nil
		}),
		Logf: func(format string, args ...interface{}) {},
	})
	t.Cleanup(c.Close)

	establishQuote(t, c)
	require.NoError(t, c.Submit(context.Background()))

	flow, err := c.PayLeg(context.Background(), LegA)
	require.NoError(t, err)
	defer flow.Close()

	time.Sleep(50 * time.Millisecond)
	require.False(t, c.State().LegA.Paid)

	allowed.Store(LegA, true)
	require.Eventually(t, func() bool {
		return c.State().LegA.Paid
	}, 2*time.Second, 5*time.Millisecond)
}
