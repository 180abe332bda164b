package quote

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type quoteRecorder struct {
	mu     sync.Mutex
	quotes []*Quote
}

func (r *quoteRecorder) record(side Side, q *Quote) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotes = append(r.quotes, q)
}

func (r *quoteRecorder) last() *Quote {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.quotes) == 0 {
		return nil
	}
	return r.quotes[len(r.quotes)-1]
}

func (r *quoteRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.quotes)
}

func doubler() DryRunner {
	return DryRunnerFunc(func(ctx context.Context, currencyIn, amountIn, currencyOut string) (string, error) {
		return amountIn + amountIn, nil
	})
}

func TestRapidEditsCoalesceIntoOneRecomputation(t *testing.T) {
	var runs atomic.Int32
	var lastAmount atomic.Value
	runner := DryRunnerFunc(func(ctx context.Context, currencyIn, amountIn, currencyOut string) (string, error) {
		runs.Add(1)
		lastAmount.Store(amountIn)
		return "1", nil
	})

	recorder := &quoteRecorder{}
	d := New(context.Background(), runner, "CNY", "PRS", 200*time.Millisecond, recorder.record)
	defer d.Close()

	// Edits spaced well inside the quiet window: each restarts the timer.
	for _, amount := range []string{"1", "12", "123", "123.5"} {
		d.Edit(SideA, amount)
		time.Sleep(50 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return recorder.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.EqualValues(t, 1, runs.Load())
	require.Equal(t, "123.5", lastAmount.Load())

	// No further recomputation fires without a new edit.
	time.Sleep(300 * time.Millisecond)
	require.EqualValues(t, 1, runs.Load())
}

func TestStaleResponseNeverOverwritesNewerQuote(t *testing.T) {
	block := make(chan struct{})
	var calls atomic.Int32
	runner := DryRunnerFunc(func(ctx context.Context, currencyIn, amountIn, currencyOut string) (string, error) {
		if calls.Add(1) == 1 {
			// First (older) request is slow.
			<-block
			return "old", nil
		}
		return "new", nil
	})

	recorder := &quoteRecorder{}
	d := New(context.Background(), runner, "CNY", "PRS", 20*time.Millisecond, recorder.record)
	defer d.Close()

	d.Edit(SideA, "1")
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	// Second edit supersedes the in-flight request and completes fast.
	d.Edit(SideA, "2")
	require.Eventually(t, func() bool { return recorder.count() == 1 }, time.Second, time.Millisecond)
	require.Equal(t, "new", recorder.last().AmountB)

	// Now the older response returns: it must be dropped.
	close(block)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, recorder.count())
	require.Equal(t, "new", d.Quote().AmountB)
}

func TestFailureClearsDisplayedQuote(t *testing.T) {
	fail := atomic.Bool{}
	runner := DryRunnerFunc(func(ctx context.Context, currencyIn, amountIn, currencyOut string) (string, error) {
		if fail.Load() {
			return "", fmt.Errorf("dry run rejected")
		}
		return "42", nil
	})

	recorder := &quoteRecorder{}
	d := New(context.Background(), runner, "CNY", "PRS", 10*time.Millisecond, recorder.record)
	defer d.Close()

	d.Edit(SideA, "21")
	require.Eventually(t, func() bool { return d.Quote() != nil }, time.Second, time.Millisecond)

	fail.Store(true)
	d.Edit(SideA, "22")
	require.Eventually(t, func() bool { return d.Quote() == nil }, time.Second, time.Millisecond)
	require.Nil(t, recorder.last())
}

func TestEditOrientationFollowsEditedSide(t *testing.T) {
	recorder := &quoteRecorder{}
	d := New(context.Background(), doubler(), "CNY", "PRS", 10*time.Millisecond, recorder.record)
	defer d.Close()

	d.Edit(SideA, "7")
	require.Eventually(t, func() bool { return recorder.count() == 1 }, time.Second, time.Millisecond)

	q := recorder.last()
	require.Equal(t, "7", q.AmountA)
	require.Equal(t, "77", q.AmountB)
	require.Equal(t, "CNY", q.CurrencyA)
	require.Equal(t, "PRS", q.CurrencyB)
	require.Equal(t, "11", q.Rate)

	// Editing side B writes the derived value into side A.
	d.Edit(SideB, "5")
	require.Eventually(t, func() bool { return recorder.count() == 2 }, time.Second, time.Millisecond)

	q = recorder.last()
	require.Equal(t, "55", q.AmountA)
	require.Equal(t, "5", q.AmountB)
}

func TestCloseDropsPendingRecomputation(t *testing.T) {
	var runs atomic.Int32
	runner := DryRunnerFunc(func(ctx context.Context, currencyIn, amountIn, currencyOut string) (string, error) {
		runs.Add(1)
		return "1", nil
	})

	d := New(context.Background(), runner, "CNY", "PRS", 20*time.Millisecond, nil)
	d.Edit(SideA, "1")
	d.Close()

	time.Sleep(60 * time.Millisecond)
	require.EqualValues(t, 0, runs.Load())
}
