package core

import (
	"database/sql/driver"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Fixed is a signed fixed-point number with 80 integer bits and 48
// fractional bits, stored as sign plus 128-bit magnitude. It mirrors the
// protocol's on-chain representation bit for bit: raw = value * 2^48,
// encoded as a 16-byte little-endian two's complement integer.
//
// All arithmetic is exact to 2^-48. Mul and Div truncate toward zero.
// No binary floating point is used anywhere in a computation path;
// InexactFloat64 is display only.
type Fixed struct {
	neg bool
	abs uint256.Int
}

const fixedFracBits = 48

var (
	// magnitude bounds: [-(2^127), 2^127 - 1] in raw units
	fixedMinMagnitude = new(uint256.Int).Lsh(uint256.NewInt(1), 127)
	fixedMaxMagnitude = new(uint256.Int).Sub(fixedMinMagnitude, uint256.NewInt(1))
	fixedTwo128       = new(uint256.Int).Lsh(uint256.NewInt(1), 128)

	// 5^48, for exact conversion raw/2^48 = raw*5^48/10^48
	pow5Frac = new(big.Int).Exp(big.NewInt(5), big.NewInt(fixedFracBits), nil)
	pow2Frac = new(big.Int).Lsh(big.NewInt(1), fixedFracBits)

	decimalScale = decimal.NewFromBigInt(pow2Frac, 0)
)

func newFixed(neg bool, abs *uint256.Int) (Fixed, error) {
	if abs.IsZero() {
		return Fixed{}, nil
	}
	limit := fixedMaxMagnitude
	if neg {
		limit = fixedMinMagnitude
	}
	if abs.Cmp(limit) > 0 {
		return Fixed{}, ErrOverflow
	}
	return Fixed{neg: neg, abs: *abs}, nil
}

// NewFixedFromInt returns the fixed-point representation of v.
func NewFixedFromInt(v int64) Fixed {
	neg := v < 0
	var mag uint64
	if neg {
		mag = uint64(-(v + 1)) + 1
	} else {
		mag = uint64(v)
	}
	abs := new(uint256.Int).Lsh(uint256.NewInt(mag), fixedFracBits)
	f, _ := newFixed(neg, abs) // 63+48 bits, cannot overflow
	return f
}

// NewFixedFromDecimal converts d, truncating toward zero any precision
// beyond 2^-48. Fails with ErrOverflow outside the representable range.
func NewFixedFromDecimal(d decimal.Decimal) (Fixed, error) {
	return newFixedFromBigRaw(d.Mul(decimalScale).BigInt())
}

func newFixedFromBigRaw(raw *big.Int) (Fixed, error) {
	neg := raw.Sign() < 0
	abs, overflow := uint256.FromBig(new(big.Int).Abs(raw))
	if overflow {
		return Fixed{}, ErrOverflow
	}
	return newFixed(neg, abs)
}

// FromRawBytes decodes a 16-byte little-endian two's complement raw value.
// Every 16-byte input is valid and round-trips exactly through RawBytes.
func FromRawBytes(b []byte) (Fixed, error) {
	if len(b) != 16 {
		return Fixed{}, ErrInvalidRawBytes
	}
	var be [16]byte
	for i := 0; i < 16; i++ {
		be[i] = b[15-i]
	}
	u := new(uint256.Int).SetBytes(be[:])
	if u.Cmp(fixedMinMagnitude) >= 0 {
		return newFixed(true, new(uint256.Int).Sub(fixedTwo128, u))
	}
	return newFixed(false, u)
}

// RawBytes encodes the value as 16 little-endian two's complement bytes.
func (f Fixed) RawBytes() []byte {
	u := new(uint256.Int).Set(&f.abs)
	if f.neg {
		u.Sub(fixedTwo128, u)
	}
	be := u.Bytes32()
	out := make([]byte, 16)
	for i := 0; i < 16; i++ {
		out[i] = be[31-i]
	}
	return out
}

func (f Fixed) bigRaw() *big.Int {
	raw := f.abs.ToBig()
	if f.neg {
		raw.Neg(raw)
	}
	return raw
}

// Add returns f + o, failing with ErrOverflow outside the representable range.
func (f Fixed) Add(o Fixed) (Fixed, error) {
	return addMagnitudes(f.neg, &f.abs, o.neg, &o.abs)
}

// Sub returns f - o, failing with ErrOverflow outside the representable range.
func (f Fixed) Sub(o Fixed) (Fixed, error) {
	return addMagnitudes(f.neg, &f.abs, !o.neg, &o.abs)
}

func addMagnitudes(negA bool, absA *uint256.Int, negB bool, absB *uint256.Int) (Fixed, error) {
	if negA == negB {
		// magnitudes are each at most 2^127, the sum fits in 256 bits
		return newFixed(negA, new(uint256.Int).Add(absA, absB))
	}
	switch absA.Cmp(absB) {
	case 0:
		return Fixed{}, nil
	case 1:
		return newFixed(negA, new(uint256.Int).Sub(absA, absB))
	default:
		return newFixed(negB, new(uint256.Int).Sub(absB, absA))
	}
}

// Mul returns f * o computed as (rawA * rawB) >> 48 over a 256-bit
// intermediate, truncating toward zero.
func (f Fixed) Mul(o Fixed) (Fixed, error) {
	prod := new(uint256.Int).Mul(&f.abs, &o.abs)
	prod.Rsh(prod, fixedFracBits)
	return newFixed(f.neg != o.neg, prod)
}

// Div returns f / o computed as (rawA << 48) / rawB, truncating toward
// zero. Fails with ErrDivisionByZero when o is zero.
func (f Fixed) Div(o Fixed) (Fixed, error) {
	if o.IsZero() {
		return Fixed{}, ErrDivisionByZero
	}
	num := new(uint256.Int).Lsh(&f.abs, fixedFracBits)
	num.Div(num, &o.abs)
	return newFixed(f.neg != o.neg, num)
}

// Neg returns -f. The only failing input is the minimum representable value.
func (f Fixed) Neg() (Fixed, error) {
	return newFixed(!f.neg, new(uint256.Int).Set(&f.abs))
}

// Abs returns |f|. The only failing input is the minimum representable value.
func (f Fixed) Abs() (Fixed, error) {
	return newFixed(false, new(uint256.Int).Set(&f.abs))
}

// Cmp returns -1, 0 or 1. The ordering is total; there is no NaN-like state.
func (f Fixed) Cmp(o Fixed) int {
	switch {
	case f.neg && !o.neg:
		return -1
	case !f.neg && o.neg:
		return 1
	case f.neg:
		return -f.abs.Cmp(&o.abs)
	default:
		return f.abs.Cmp(&o.abs)
	}
}

func (f Fixed) Equal(o Fixed) bool              { return f.Cmp(o) == 0 }
func (f Fixed) LessThan(o Fixed) bool           { return f.Cmp(o) < 0 }
func (f Fixed) LessThanOrEqual(o Fixed) bool    { return f.Cmp(o) <= 0 }
func (f Fixed) GreaterThan(o Fixed) bool        { return f.Cmp(o) > 0 }
func (f Fixed) GreaterThanOrEqual(o Fixed) bool { return f.Cmp(o) >= 0 }

func (f Fixed) IsZero() bool     { return f.abs.IsZero() }
func (f Fixed) IsPositive() bool { return !f.neg && !f.abs.IsZero() }
func (f Fixed) IsNegative() bool { return f.neg }

// Min returns the smaller of f and o.
func (f Fixed) Min(o Fixed) Fixed {
	if f.Cmp(o) <= 0 {
		return f
	}
	return o
}

// Max returns the larger of f and o.
func (f Fixed) Max(o Fixed) Fixed {
	if f.Cmp(o) >= 0 {
		return f
	}
	return o
}

// Decimal returns the exact decimal rendering of the value.
func (f Fixed) Decimal() decimal.Decimal {
	scaled := new(big.Int).Mul(f.bigRaw(), pow5Frac)
	return decimal.NewFromBigInt(scaled, -fixedFracBits)
}

// InexactFloat64 is a lossy display conversion. It must never feed back
// into a computation path.
func (f Fixed) InexactFloat64() float64 {
	return f.Decimal().InexactFloat64()
}

func (f Fixed) String() string {
	return f.Decimal().String()
}

// MarshalJSON renders the value as an exact decimal string.
func (f Fixed) MarshalJSON() ([]byte, error) {
	return f.Decimal().MarshalJSON()
}

func (f *Fixed) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	v, err := NewFixedFromDecimal(d)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// Value stores the exact decimal string.
func (f Fixed) Value() (driver.Value, error) {
	return f.String(), nil
}

func (f *Fixed) Scan(value any) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	case int64:
		*f = NewFixedFromInt(v)
		return nil
	case nil:
		*f = Fixed{}
		return nil
	default:
		return errors.Errorf("cannot scan %T into Fixed", value)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	v, err := NewFixedFromDecimal(d)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// MaxFixed returns the largest representable value, (2^127 - 1) / 2^48.
func MaxFixed() Fixed {
	return Fixed{neg: false, abs: *fixedMaxMagnitude}
}

// MinFixed returns the smallest representable value, -(2^127) / 2^48.
func MinFixed() Fixed {
	return Fixed{neg: true, abs: *fixedMinMagnitude}
}
