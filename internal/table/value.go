package table

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a sealed interface over the cell types a table can hold.
// Only Null, String, Int, Float and Bool implement it.
type Value interface {
	value() // sealed
}

// Null represents a missing cell.
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String represents a text cell.
type String string

func (String) value() {}

// Int represents an integer cell. Always int64.
type Int int64

func (Int) value() {}

// Float represents a floating point cell. Always float64.
type Float float64

func (Float) value() {}

// Bool represents a boolean cell.
type Bool bool

func (Bool) value() {}

// FromAny coerces a native Go value into a Value. Supported inputs are nil,
// strings, booleans, the common integer and float widths, json.Number and
// Value itself.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return Int(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("table: number out of range: %s", val)
		}
		return Float(f), nil
	default:
		return nil, fmt.Errorf("table: unsupported value type %T", v)
	}
}

// MustValue is FromAny for statically known inputs, such as fixtures.
func MustValue(v any) Value {
	val, err := FromAny(v)
	if err != nil {
		panic(err)
	}
	return val
}

// IsNull reports whether v is the null cell.
func IsNull(v Value) bool {
	_, ok := v.(Null)
	return v == nil || ok
}

// Format renders a value for display and for canonical plan text. Strings
// are quoted; numbers use the shortest round-tripping decimal form.
func Format(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "null"
	case String:
		return strconv.Quote(string(val))
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case Bool:
		return strconv.FormatBool(bool(val))
	default:
		return fmt.Sprintf("%v", v)
	}
}

// int64Bound is 2^63, exact as a float64. Floats in [-2^63, 2^63) convert
// to int64 without overflow.
const int64Bound = float64(1 << 63)

// Key renders a value as a grouping key. Ints and floats of equal magnitude
// produce the same key, so numeric columns group consistently regardless of
// how a backend widened them. Ints render in int64 space, never through
// float64, so distinct values beyond 2^53 keep distinct keys.
func Key(v Value) string {
	switch val := v.(type) {
	case nil, Null:
		return "n:"
	case String:
		return "s:" + string(val)
	case Int:
		return "x:" + strconv.FormatInt(int64(val), 10)
	case Float:
		f := float64(val)
		if f == math.Trunc(f) && f >= -int64Bound && f < int64Bound {
			return "x:" + strconv.FormatInt(int64(f), 10)
		}
		return "x:" + strconv.FormatFloat(f, 'g', -1, 64)
	case Bool:
		return "b:" + strconv.FormatBool(bool(val))
	default:
		return "?:" + fmt.Sprintf("%v", v)
	}
}

// AsFloat extracts a numeric value. Null counts as absent, not as zero.
func AsFloat(v Value) (float64, bool) {
	switch val := v.(type) {
	case Int:
		return float64(val), true
	case Float:
		return float64(val), true
	default:
		return 0, false
	}
}

// kindRank orders value kinds for cross-kind comparison: nulls sort first,
// then booleans, numbers and strings.
func kindRank(v Value) int {
	switch v.(type) {
	case nil, Null:
		return 0
	case Bool:
		return 1
	case Int, Float:
		return 2
	case String:
		return 3
	default:
		return 4
	}
}

// Compare totally orders two values. Ints and floats compare numerically
// against each other; otherwise kinds order before contents.
func Compare(a, b Value) int {
	ra, rb := kindRank(a), kindRank(b)
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch va := a.(type) {
	case nil, Null:
		return 0
	case Bool:
		vb := b.(Bool)
		if va == vb {
			return 0
		}
		if !bool(va) {
			return -1
		}
		return 1
	case Int, Float:
		// Two ints compare exactly; the float64 bridge is only for
		// mixed-kind pairs, where the float side set the precision anyway.
		if ia, ok := a.(Int); ok {
			if ib, ok := b.(Int); ok {
				switch {
				case ia < ib:
					return -1
				case ia > ib:
					return 1
				}
				return 0
			}
		}
		fa, _ := AsFloat(a)
		fb, _ := AsFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case String:
		return strings.Compare(string(va), string(b.(String)))
	default:
		return 0
	}
}

// Equal reports whether two values compare as identical.
func Equal(a, b Value) bool {
	return Compare(a, b) == 0
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// MarshalValue marshals a value to JSON bytes.
func MarshalValue(v Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, Null:
		return []byte("null"), nil
	case String:
		return json.Marshal(string(val))
	case Int:
		return json.Marshal(int64(val))
	case Float:
		return json.Marshal(float64(val))
	case Bool:
		return json.Marshal(bool(val))
	default:
		return nil, fmt.Errorf("table: unknown value type %T", v)
	}
}

// UnmarshalValue decodes a JSON scalar into a Value. Arrays and objects are
// rejected; cells are always scalar.
func UnmarshalValue(data []byte) (Value, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("table: empty JSON value")
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		return String(s), nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, err
		}
		return Bool(b), nil
	case 'n':
		return Null{}, nil
	case '[', '{':
		return nil, fmt.Errorf("table: cells must be scalar, got %s", trimmed[:1])
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil, err
		}
		return FromAny(n)
	}
}
