package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	a, err := ParseAmount("123456789012345678901234567890")
	require.NoError(t, err)
	require.Equal(t, "123456789012345678901234567890", a.String())

	for _, bad := range []string{"", "-1", "+1", "1.5", "0x10", "abc", " 1"} {
		_, err := ParseAmount(bad)
		require.Error(t, err, "input %q", bad)
	}
}

func TestAmountZeroValue(t *testing.T) {
	var a Amount
	require.True(t, a.IsZero())
	require.Equal(t, "0", a.String())
	require.Equal(t, 0, a.Cmp(NewAmount(0)))
}

func TestAmountArithmetic(t *testing.T) {
	a := NewAmount(100)
	b := NewAmount(30)

	require.Equal(t, "130", a.Add(b).String())
	require.Equal(t, "70", a.Sub(b).String())
	require.Equal(t, 1, a.Cmp(b))
	require.Equal(t, -1, b.Cmp(a))

	// operands are never mutated in place
	require.Equal(t, "100", a.String())
	require.Equal(t, "30", b.String())
}

func TestAmountMulDivFloors(t *testing.T) {
	qty, err := ParseAmount("999999999")
	require.NoError(t, err)

	// floor(999999999*k/10) for the linear vesting schedule
	want := []string{"0", "99999999", "199999999", "299999999", "399999999",
		"499999999", "599999999", "699999999", "799999999", "899999999", "999999999"}
	for k := uint64(0); k <= 10; k++ {
		require.Equal(t, want[k], qty.MulDiv(k, 10).String(), "k=%d", k)
	}
}

func TestAmountMulDivLargeValues(t *testing.T) {
	// must not overflow or round through floats
	p, err := ParseAmount("340282366920938463463374607431768211455")
	require.NoError(t, err)
	got := p.MulDiv(1_000_000, 1_000_000)
	require.Equal(t, p.String(), got.String())
}

func TestAmountJSONRoundTrip(t *testing.T) {
	a, err := ParseAmount("18446744073709551616")
	require.NoError(t, err)

	data, err := json.Marshal(a)
	require.NoError(t, err)
	require.Equal(t, `"18446744073709551616"`, string(data))

	var back Amount
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, 0, a.Cmp(back))

	// bare integers are tolerated on input
	require.NoError(t, json.Unmarshal([]byte(`42`), &back))
	require.Equal(t, "42", back.String())

	require.Error(t, json.Unmarshal([]byte(`"-1"`), &back))
}
