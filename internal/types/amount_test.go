package types

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubUnderflow(t *testing.T) {
	_, err := Sub(uint256.NewInt(1), uint256.NewInt(2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnderflow))

	z, err := Sub(uint256.NewInt(5), uint256.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), z.Uint64())
}

func TestMulOverflow(t *testing.T) {
	max := new(uint256.Int).SetAllOne()
	_, err := Mul(max, uint256.NewInt(2))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Add(max, uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestMulDiv(t *testing.T) {
	// 2^200 * 2^100 does not fit in 256 bits, the quotient does
	a := new(uint256.Int).Lsh(uint256.NewInt(1), 200)
	b := new(uint256.Int).Lsh(uint256.NewInt(1), 100)
	d := new(uint256.Int).Lsh(uint256.NewInt(1), 90)

	z, err := MulDiv(a, b, d)
	require.NoError(t, err)
	assert.Equal(t, new(uint256.Int).Lsh(uint256.NewInt(1), 210), z)

	_, err = MulDiv(a, b, Zero())
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestPercentAndBps(t *testing.T) {
	amount := MustAmount("10000000000000000000000000")
	assert.Equal(t, "100000000000000000000000", Percent(amount, 1).Dec())
	assert.Equal(t, "500000000000000000000000", Percent(amount, 5).Dec())
	assert.Equal(t, "100000000000000000000000", Bps(amount, 100).Dec())
}

func TestParseAndFormatUnits(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "1", want: "1000000000000000000"},
		{in: "12.5", want: "12500000000000000000"},
		{in: "0.000000000000000001", want: "1"},
		{in: "0.0000000000000000001", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUnits(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Dec())
			assert.Equal(t, tt.in, FormatUnits(got))
		})
	}
}

func TestUnits(t *testing.T) {
	assert.Equal(t, "7000000000000000000", Units(7).Dec())
	assert.Equal(t, "0", FormatUnits(nil))
}

func TestMinAndSaturatingSub(t *testing.T) {
	a, b := uint256.NewInt(3), uint256.NewInt(9)
	assert.Equal(t, uint64(3), Min(a, b).Uint64())
	assert.Equal(t, uint64(3), Min(b, a).Uint64())
	assert.True(t, SaturatingSub(a, b).IsZero())
	assert.Equal(t, uint64(6), SaturatingSub(b, a).Uint64())
}
