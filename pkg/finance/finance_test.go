package finance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAmount(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		currency string
		wantErr  error
	}{
		{name: "valid integer", raw: "12", currency: "CNY"},
		{name: "valid decimal", raw: "12.5", currency: "CNY"},
		{name: "trailing dot", raw: "12.", currency: "CNY"},
		{name: "empty", raw: "", currency: "CNY", wantErr: ErrInvalidAmount},
		{name: "zero", raw: "0", currency: "CNY", wantErr: ErrInvalidAmount},
		{name: "zero decimal", raw: "0.000", currency: "CNY", wantErr: ErrInvalidAmount},
		{name: "two dots", raw: "12.5.3", currency: "CNY", wantErr: ErrInvalidAmount},
		{name: "negative", raw: "-1", currency: "CNY", wantErr: ErrInvalidAmount},
		{name: "letters", raw: "12a", currency: "CNY", wantErr: ErrInvalidAmount},
		{name: "leading dot", raw: ".5", currency: "CNY", wantErr: ErrInvalidAmount},
		{name: "long backend-derived amount", raw: "1033.33333", currency: "CNY"},
		{name: "below minimum", raw: "0.00001", currency: "CNY", wantErr: ErrBelowMinimum},
		{name: "unknown currency accepts tiny amounts", raw: "0.000001", currency: "XYZ"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CheckAmount(tt.raw, tt.currency)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			// Success returns the amount unchanged: no rounding here.
			require.Equal(t, tt.raw, got)
		})
	}
}

func TestCheckEnteredCapsInputLength(t *testing.T) {
	got, err := CheckEntered("12.5", "CNY")
	require.NoError(t, err)
	require.Equal(t, "12.5", got)

	// The input field cap applies only to typed amounts; CheckAmount accepts
	// the same value.
	_, err = CheckEntered("1033.33333", "CNY")
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = CheckAmount("1033.33333", "CNY")
	require.NoError(t, err)
}

func TestCheckAmountWithBalance(t *testing.T) {
	got, err := CheckAmountWithBalance("10", "CNY", "10")
	require.NoError(t, err)
	require.Equal(t, "10", got)

	_, err = CheckAmountWithBalance("10.01", "CNY", "10")
	require.ErrorIs(t, err, ErrExceedsAvailable)

	_, err = CheckAmountWithBalance("abc", "CNY", "10")
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestComparisons(t *testing.T) {
	assert.True(t, LargerEq("10", "10"))
	assert.True(t, LargerEq("10.5", "10"))
	assert.False(t, LargerEq("9.99", "10"))

	assert.True(t, Larger("10.00001", "10"))
	assert.False(t, Larger("10", "10"))

	// Unparseable operands compare as zero.
	assert.False(t, Larger("garbage", "1"))
	assert.True(t, Larger("1", "garbage"))
}

func TestDeriveRate(t *testing.T) {
	assert.Equal(t, "2", DeriveRate("10", "20"))
	assert.Equal(t, "0.5", DeriveRate("20", "10"))
	assert.Equal(t, "", DeriveRate("0", "10"))
	assert.Equal(t, "", DeriveRate("", "10"))
}
