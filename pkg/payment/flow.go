package payment

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"prs-wallet/pkg/polling"
	"prs-wallet/pkg/verification"
)

// DefaultPollInterval is the settlement check interval for proxied payments.
const DefaultPollInterval = time.Second

// Capability is the payment boundary the flow orchestrates. Pay initiates
// settlement, CheckResult probes for completion, Done is called exactly once
// upon confirmed settlement.
type Capability interface {
	Pay(ctx context.Context, creds *verification.Credentials, amount, memo string) (paymentURL string, err error)
	CheckResult(ctx context.Context, accountName, amount string) (bool, error)
	Done()
}

// Options configures a payment flow.
type Options struct {
	Currency         string
	UseBalance       bool
	AvailableBalance string

	// SkipVerification submits without consulting the gate. AccountName
	// identifies the payer for settlement checks in that case.
	SkipVerification bool
	AccountName      string

	Capability Capability
	Gate       verification.Gate

	// PollInterval overrides DefaultPollInterval.
	PollInterval time.Duration

	// OnDone runs after confirmed settlement, after Capability.Done. The
	// owning dialog uses it to tear itself down.
	OnDone func()

	// Logf receives non-fatal failures. Defaults to stderr.
	Logf func(format string, args ...interface{})
}

// Flow drives one payment session from amount collection to confirmed
// settlement. Methods are safe for concurrent use.
type Flow struct {
	mu      sync.Mutex
	session Session

	capability Capability
	gate       verification.Gate
	poller     *polling.Poller
	interval   time.Duration
	onDone     func()
	logf       func(format string, args ...interface{})

	settled sync.Once
	closed  bool
}

// NewFlow creates a flow in CollectingAmount.
func NewFlow(opts Options) *Flow {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(format string, args ...interface{}) {
			fmt.Fprintf(os.Stderr, format+"\n", args...)
		}
	}

	return &Flow{
		session: Session{
			ID:               uuid.NewString(),
			Step:             CollectingAmount,
			Currency:         opts.Currency,
			AccountName:      opts.AccountName,
			UseBalance:       opts.UseBalance,
			AvailableBalance: opts.AvailableBalance,
			SkipVerification: opts.SkipVerification,
		},
		capability: opts.Capability,
		gate:       opts.Gate,
		poller:     polling.NewPoller(),
		interval:   interval,
		onDone:     opts.OnDone,
		logf:       logf,
	}
}

// Session returns a snapshot of the current session state.
func (f *Flow) Session() Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

// Submit validates the entered amount and, when accepted, runs verification
// and settlement initiation. A validation failure is returned synchronously;
// a submit issued while another is in flight is silently dropped.
func (f *Flow) Submit(ctx context.Context, amount, memo string) error {
	return f.apply(ctx, SubmitRequested{Amount: amount, Memo: memo})
}

// ConfirmClicked moves the session to ConfirmingSettlement. Advisory only:
// completion is still driven by the settlement poll.
func (f *Flow) ConfirmClicked() {
	_ = f.apply(context.Background(), ConfirmClicked{})
}

// BackToQRCode returns from ConfirmingSettlement to the payment surface.
func (f *Flow) BackToQRCode() {
	_ = f.apply(context.Background(), BackToQRCode{})
}

// SurfaceLoaded clears the payment surface's loading flag.
func (f *Flow) SurfaceLoaded() {
	_ = f.apply(context.Background(), SurfaceLoaded{})
}

// Close tears the flow down, cancelling any active settlement poll. Safe to
// call on every exit path, including after completion.
func (f *Flow) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.poller.Stop()
}

// apply runs one transition and executes the resulting effects. The mutex
// covers only the session swap; effects run unlocked so they may feed
// further events back in.
func (f *Flow) apply(ctx context.Context, ev Event) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	next, effects := Transition(f.session, ev)
	f.session = next
	f.mu.Unlock()

	var firstErr error
	for _, effect := range effects {
		if err := f.perform(ctx, effect); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *Flow) perform(ctx context.Context, effect Effect) error {
	switch effect := effect.(type) {
	case RejectAmount:
		return effect.Err

	case RequestCredentials:
		creds, err := f.gate.RequestSigningMaterial(ctx)
		if err != nil {
			return f.apply(ctx, InitiationFailed{Err: err})
		}
		return f.apply(ctx, CredentialsSupplied{Creds: creds})

	case InitiatePayment:
		url, err := f.capability.Pay(ctx, effect.Creds, effect.Amount, effect.Memo)
		if err != nil {
			return f.apply(ctx, InitiationFailed{Err: err})
		}
		return f.apply(ctx, InitiationSucceeded{PaymentURL: url})

	case StartSettlementPoll:
		f.startSettlementPoll(ctx)
		return nil

	case CancelPoll:
		f.poller.Stop()
		return nil

	case NotifySettled:
		f.settled.Do(func() {
			f.capability.Done()
			if f.onDone != nil {
				f.onDone()
			}
		})
		return nil

	case LogFailure:
		f.logf("payment initiation failed: %v", effect.Err)
		return nil
	}

	return nil
}

func (f *Flow) startSettlementPoll(ctx context.Context) {
	session := f.Session()

	handle := f.poller.Start(ctx, func(ctx context.Context) (bool, error) {
		return f.capability.CheckResult(ctx, session.AccountName, session.Amount)
	}, f.interval)

	go func() {
		<-handle.Done()
		if handle.Completed() {
			_ = f.apply(ctx, SettlementObserved{})
		}
	}()
}

// PollActive reports whether a settlement poll is currently running.
func (f *Flow) PollActive() bool {
	return f.poller.Active()
}
