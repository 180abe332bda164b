package finance

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Validation failure reasons. Callers classify with errors.Is.
var (
	ErrInvalidAmount    = fmt.Errorf("invalid amount")
	ErrBelowMinimum     = fmt.Errorf("amount below minimum")
	ErrExceedsAvailable = fmt.Errorf("amount exceeds available balance")
)

// MaxAmountLength caps user-typed amounts, matching the input field limit.
// Backend-derived amounts (quoted counter amounts, established leg amounts)
// are exempt and may be arbitrarily long.
const MaxAmountLength = 8

// MaxMemoLength caps the optional payment memo.
const MaxMemoLength = 20

// ErrMemoTooLong rejects memos above MaxMemoLength.
var ErrMemoTooLong = fmt.Errorf("memo is too long")

// CheckMemo validates the optional payment memo.
func CheckMemo(memo string) error {
	if len([]rune(memo)) > MaxMemoLength {
		return fmt.Errorf("%w: at most %d characters", ErrMemoTooLong, MaxMemoLength)
	}
	return nil
}

// amountPattern is the accepted grammar: digits ('.' digits?)?
var amountPattern = regexp.MustCompile(`^[0-9]+[.]?[0-9]*$`)

// minimums holds per-currency minimum payment amounts. Currencies without an
// entry accept any positive amount.
var minimums = map[string]decimal.Decimal{
	"CNY":  decimal.RequireFromString("0.0001"),
	"USDT": decimal.RequireFromString("0.0001"),
	"BTC":  decimal.RequireFromString("0.00000001"),
	"ETH":  decimal.RequireFromString("0.00000001"),
	"EOS":  decimal.RequireFromString("0.0001"),
	"PRS":  decimal.RequireFromString("0.0001"),
}

// CheckAmount validates a user-entered amount against the amount grammar and
// the currency's minimum. It returns the amount unchanged on success; no
// rounding is performed here.
func CheckAmount(raw, currency string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: amount is empty", ErrInvalidAmount)
	}
	if !amountPattern.MatchString(raw) {
		return "", fmt.Errorf("%w: %q is not a valid number", ErrInvalidAmount, raw)
	}

	// The grammar permits a trailing dot; decimal parsing does not.
	amount, err := decimal.NewFromString(strings.TrimSuffix(raw, "."))
	if err != nil {
		return "", fmt.Errorf("%w: %q is not a valid number", ErrInvalidAmount, raw)
	}
	if amount.IsZero() {
		return "", fmt.Errorf("%w: amount must be greater than 0", ErrInvalidAmount)
	}

	if min, ok := minimums[currency]; ok && amount.LessThan(min) {
		return "", fmt.Errorf("%w: minimum for %s is %s", ErrBelowMinimum, currency, min)
	}

	return raw, nil
}

// CheckEntered validates a user-typed amount: the input length cap on top of
// CheckAmount. Amounts the backend computed do not go through here.
func CheckEntered(raw, currency string) (string, error) {
	if len(raw) > MaxAmountLength {
		return "", fmt.Errorf("%w: amount is too long (max %d characters)", ErrInvalidAmount, MaxAmountLength)
	}
	return CheckAmount(raw, currency)
}

// CheckAmountWithBalance validates like CheckAmount and additionally rejects
// amounts above the available balance. Used by balance-funded flows.
func CheckAmountWithBalance(raw, currency, available string) (string, error) {
	amount, err := CheckAmount(raw, currency)
	if err != nil {
		return "", err
	}
	if !LargerEq(available, amount) {
		return "", fmt.Errorf("%w: %s %s available", ErrExceedsAvailable, available, currency)
	}
	return amount, nil
}

// LargerEq reports whether a >= b. Unparseable operands compare as zero.
func LargerEq(a, b string) bool {
	return parse(a).GreaterThanOrEqual(parse(b))
}

// Larger reports whether a > b. Unparseable operands compare as zero.
func Larger(a, b string) bool {
	return parse(a).GreaterThan(parse(b))
}

// DeriveRate returns amountB/amountA as a display string, the exchange ratio
// shown alongside a swap quote. Returns "" when the ratio is undefined.
func DeriveRate(amountA, amountB string) string {
	a := parse(amountA)
	if a.IsZero() {
		return ""
	}
	return parse(amountB).DivRound(a, 8).String()
}

func parse(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
