package payment

import (
	"prs-wallet/pkg/finance"
	"prs-wallet/pkg/verification"
)

// Step is the advisory position of a payment session. Actual completion is
// driven solely by the settlement poll, not by the step the user is on.
type Step int

const (
	CollectingAmount Step = iota + 1
	AwaitingExternalSettlement
	ConfirmingSettlement
	Done
)

// Session is one payment dialog's state. It is owned by its Flow, never
// persisted, and exposed to callers only as a value snapshot.
type Session struct {
	ID          string
	Step        Step
	Currency    string
	Amount      string
	Memo        string
	PaymentURL  string
	AccountName string

	// UseBalance marks a balance-funded flow: settlement is synchronous and
	// the session collapses straight to Done.
	UseBalance       bool
	AvailableBalance string

	// SkipVerification marks a flow whose signing material was already
	// collected upstream (deposit legs); submission goes straight to
	// settlement initiation.
	SkipVerification bool

	// Transient UI-facing busy flags.
	Submitting    bool
	IframeLoading bool
	Checking      bool
}

// Event is an input to Transition.
type Event interface{ isEvent() }

type (
	// SubmitRequested carries the user-entered amount and memo.
	SubmitRequested struct {
		Amount string
		Memo   string
	}

	// CredentialsSupplied reports the verification gate's outcome. A nil
	// Creds means the user cancelled.
	CredentialsSupplied struct {
		Creds *verification.Credentials
	}

	// InitiationSucceeded reports that the settlement-initiation call
	// returned. PaymentURL is empty for balance-funded flows.
	InitiationSucceeded struct {
		PaymentURL string
	}

	// InitiationFailed reports a failed settlement-initiation call.
	InitiationFailed struct {
		Err error
	}

	// SettlementObserved reports that the poll predicate confirmed
	// settlement.
	SettlementObserved struct{}

	// ConfirmClicked is the user reporting the proxied payment as made.
	ConfirmClicked struct{}

	// BackToQRCode is the user reporting the payment surface was dismissed
	// prematurely.
	BackToQRCode struct{}

	// SurfaceLoaded reports that the external payment surface finished
	// rendering.
	SurfaceLoaded struct{}
)

func (SubmitRequested) isEvent()     {}
func (CredentialsSupplied) isEvent() {}
func (InitiationSucceeded) isEvent() {}
func (InitiationFailed) isEvent()    {}
func (SettlementObserved) isEvent()  {}
func (ConfirmClicked) isEvent()      {}
func (BackToQRCode) isEvent()        {}
func (SurfaceLoaded) isEvent()       {}

// Effect is a side effect the Flow runner must perform after a transition.
type Effect interface{ isEffect() }

type (
	// RequestCredentials asks the verification gate for signing material.
	RequestCredentials struct{}

	// InitiatePayment calls the settlement backend. Creds is nil on
	// skip-verification flows.
	InitiatePayment struct {
		Creds  *verification.Credentials
		Amount string
		Memo   string
	}

	// StartSettlementPoll begins the settlement check loop.
	StartSettlementPoll struct{}

	// CancelPoll tears down the active poll handle.
	CancelPoll struct{}

	// NotifySettled fires the capability's done hook and the completion
	// callback. Emitted exactly once per session.
	NotifySettled struct{}

	// RejectAmount surfaces a validation failure to the user.
	RejectAmount struct {
		Err error
	}

	// LogFailure records a non-fatal initiation failure.
	LogFailure struct {
		Err error
	}
)

func (RequestCredentials) isEffect()  {}
func (InitiatePayment) isEffect()     {}
func (StartSettlementPoll) isEffect() {}
func (CancelPoll) isEffect()          {}
func (NotifySettled) isEffect()       {}
func (RejectAmount) isEffect()        {}
func (LogFailure) isEffect()          {}

// Transition computes the next session snapshot and the side effects to
// perform. It is pure: all I/O happens in the Flow runner.
func Transition(s Session, ev Event) (Session, []Effect) {
	switch ev := ev.(type) {
	case SubmitRequested:
		if s.Step != CollectingAmount {
			return s, nil
		}
		if s.Submitting {
			// Best-effort debounce against double-submission; the duplicate
			// request is dropped, not queued.
			return s, nil
		}
		if err := checkAmount(s, ev.Amount); err != nil {
			return s, []Effect{RejectAmount{Err: err}}
		}
		if err := finance.CheckMemo(ev.Memo); err != nil {
			return s, []Effect{RejectAmount{Err: err}}
		}
		s.Amount = ev.Amount
		s.Memo = ev.Memo
		s.Submitting = true
		if s.SkipVerification {
			return s, []Effect{InitiatePayment{Amount: s.Amount, Memo: s.Memo}}
		}
		return s, []Effect{RequestCredentials{}}

	case CredentialsSupplied:
		if ev.Creds == nil || ev.Creds.PrivateKey == "" {
			// User cancelled verification: silent no-op abort.
			s.Submitting = false
			return s, nil
		}
		s.AccountName = ev.Creds.AccountName
		return s, []Effect{InitiatePayment{Creds: ev.Creds, Amount: s.Amount, Memo: s.Memo}}

	case InitiationSucceeded:
		s.Submitting = false
		if s.UseBalance {
			s.Step = Done
			return s, []Effect{NotifySettled{}}
		}
		if ev.PaymentURL != "" {
			s.PaymentURL = ev.PaymentURL
			s.IframeLoading = true
			s.Step = AwaitingExternalSettlement
		}
		return s, []Effect{StartSettlementPoll{}}

	case InitiationFailed:
		s.Submitting = false
		return s, []Effect{LogFailure{Err: ev.Err}}

	case SettlementObserved:
		if s.Step == Done {
			return s, nil
		}
		s.Step = Done
		s.Checking = false
		return s, []Effect{CancelPoll{}, NotifySettled{}}

	case ConfirmClicked:
		if s.Step != AwaitingExternalSettlement {
			return s, nil
		}
		s.Step = ConfirmingSettlement
		s.Checking = true
		return s, nil

	case BackToQRCode:
		if s.Step != ConfirmingSettlement {
			return s, nil
		}
		s.Step = AwaitingExternalSettlement
		s.IframeLoading = true
		s.Checking = false
		return s, nil

	case SurfaceLoaded:
		s.IframeLoading = false
		return s, nil
	}

	return s, nil
}

func checkAmount(s Session, amount string) error {
	if s.UseBalance && s.AvailableBalance != "" {
		_, err := finance.CheckAmountWithBalance(amount, s.Currency, s.AvailableBalance)
		return err
	}
	_, err := finance.CheckAmount(amount, s.Currency)
	return err
}
