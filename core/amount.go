package core

import (
	"fmt"
	"math/big"
)

// Amount is an arbitrary-precision, non-negative token quantity. It marshals
// to JSON as a decimal string so balances never lose precision on the wire.
// The zero value is usable and equals 0.
type Amount struct {
	v *big.Int
}

// NewAmount returns an Amount holding v.
func NewAmount(v uint64) Amount {
	return Amount{v: new(big.Int).SetUint64(v)}
}

// ParseAmount parses a base-10 string into an Amount. Negative values,
// leading "+", and anything that is not a plain integer are rejected.
func ParseAmount(s string) (Amount, error) {
	if s == "" {
		return Amount{}, fmt.Errorf("empty amount")
	}
	if s[0] == '+' || s[0] == '-' {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid amount %q", s)
	}
	return Amount{v: v}, nil
}

func (a Amount) big() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

// Add returns a + b.
func (a Amount) Add(b Amount) Amount {
	return Amount{v: new(big.Int).Add(a.big(), b.big())}
}

// Sub returns a - b. Callers must check Cmp first; a negative result means a
// balance invariant was already broken, so Sub panics and the interaction is
// aborted by the engine's recovery path.
func (a Amount) Sub(b Amount) Amount {
	r := new(big.Int).Sub(a.big(), b.big())
	if r.Sign() < 0 {
		panic(fmt.Sprintf("amount underflow: %s - %s", a, b))
	}
	return Amount{v: r}
}

// Cmp compares a and b, returning -1, 0 or +1.
func (a Amount) Cmp(b Amount) int {
	return a.big().Cmp(b.big())
}

// IsZero reports whether a == 0.
func (a Amount) IsZero() bool {
	return a.big().Sign() == 0
}

// MulDiv returns floor(a * mul / div). Division is exact integer floor; no
// intermediate rounding occurs regardless of magnitude.
func (a Amount) MulDiv(mul, div uint64) Amount {
	if div == 0 {
		panic("amount division by zero")
	}
	r := new(big.Int).Mul(a.big(), new(big.Int).SetUint64(mul))
	r.Quo(r, new(big.Int).SetUint64(div))
	return Amount{v: r}
}

func (a Amount) String() string {
	return a.big().String()
}

// MarshalJSON encodes the amount as a JSON decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON accepts a decimal string or, for convenience, a bare JSON
// integer.
func (a *Amount) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
