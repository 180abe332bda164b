package verification

import "context"

// Credentials is the signing material produced by a successful verification.
type Credentials struct {
	PrivateKey  string
	AccountName string
}

// Gate authenticates the user and yields signing material. Implementations
// suspend the caller until the user supplies credentials or cancels.
//
// A (nil, nil) return means the user cancelled: callers must treat it as a
// silent abort, not an error — no retry, no side effects.
type Gate interface {
	RequestSigningMaterial(ctx context.Context) (*Credentials, error)
}

// GateFunc adapts a function to the Gate interface.
type GateFunc func(ctx context.Context) (*Credentials, error)

// RequestSigningMaterial implements Gate.
func (f GateFunc) RequestSigningMaterial(ctx context.Context) (*Credentials, error) {
	return f(ctx)
}

// Static returns a gate that always yields the given credentials without
// user interaction. Used by skip-verification flows where signing material
// was already collected, and by tests.
func Static(creds *Credentials) Gate {
	return GateFunc(func(ctx context.Context) (*Credentials, error) {
		return creds, nil
	})
}

// Denied returns a gate that always reports cancellation.
func Denied() Gate {
	return GateFunc(func(ctx context.Context) (*Credentials, error) {
		return nil, nil
	})
}
