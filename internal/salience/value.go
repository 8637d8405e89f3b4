package salience

import (
	"cmp"
	"math"
	"strconv"
)

// Value is a salience result: an int64 or a float64. Higher values are
// considered first by the agenda.
type Value struct {
	isFloat bool
	i       int64
	f       float64
}

// IntValue returns an integer salience.
func IntValue(n int64) Value {
	return Value{i: n}
}

// FloatValue returns a floating point salience.
func FloatValue(f float64) Value {
	return Value{isFloat: true, f: f}
}

// IsInt reports whether v holds an integer.
func (v Value) IsInt() bool {
	return !v.isFloat
}

// Int64 returns v as an integer, truncating floats toward zero.
func (v Value) Int64() int64 {
	if v.isFloat {
		return int64(v.f)
	}
	return v.i
}

// Float64 returns v as a float.
func (v Value) Float64() float64 {
	if v.isFloat {
		return v.f
	}
	return float64(v.i)
}

// Compare orders two salience values numerically. Integers compare
// exactly; mixed comparisons go through float64.
func (v Value) Compare(o Value) int {
	if !v.isFloat && !o.isFloat {
		return cmp.Compare(v.i, o.i)
	}
	return cmp.Compare(v.Float64(), o.Float64())
}

func (v Value) String() string {
	if v.isFloat {
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	}
	return strconv.FormatInt(v.i, 10)
}

// MarshalJSON renders v as a JSON number. Infinities and NaN have no
// JSON number form and are rendered as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.isFloat && (math.IsInf(v.f, 0) || math.IsNaN(v.f)) {
		return []byte(strconv.Quote(v.String())), nil
	}
	return []byte(v.String()), nil
}
