package storage

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValueType tags the dynamic type of a column value
type ValueType uint8

const (
	TypeNull ValueType = iota
	TypeInt
	TypeFloat
	TypeString
	TypeBool
	TypeTimestamp
	TypeBlob
)

// String returns the SQL-ish name of the type
func (t ValueType) String() string {
	switch t {
	case TypeInt:
		return "INT"
	case TypeFloat:
		return "FLOAT"
	case TypeString:
		return "VARCHAR"
	case TypeBool:
		return "BOOLEAN"
	case TypeTimestamp:
		return "TIMESTAMP"
	case TypeBlob:
		return "BLOB"
	default:
		return "NULL"
	}
}

// ParseValueType maps a column type keyword to a ValueType. Unknown
// keywords default to VARCHAR, matching lenient column definitions.
func ParseValueType(s string) ValueType {
	switch strings.ToUpper(s) {
	case "INT", "INTEGER", "BIGINT", "SMALLINT":
		return TypeInt
	case "FLOAT", "DOUBLE", "REAL", "DECIMAL":
		return TypeFloat
	case "BOOL", "BOOLEAN":
		return TypeBool
	case "TIMESTAMP", "DATETIME", "DATE":
		return TypeTimestamp
	case "BLOB", "BINARY", "BYTES":
		return TypeBlob
	default:
		return TypeString
	}
}

// Value is a tagged union holding one column value
type Value struct {
	Type ValueType
	Data any
}

// NullValue returns the null value
func NullValue() Value { return Value{Type: TypeNull} }

// IntValue wraps an int64
func IntValue(v int64) Value { return Value{Type: TypeInt, Data: v} }

// FloatValue wraps a float64
func FloatValue(v float64) Value { return Value{Type: TypeFloat, Data: v} }

// StringValue wraps a string
func StringValue(v string) Value { return Value{Type: TypeString, Data: v} }

// BoolValue wraps a bool
func BoolValue(v bool) Value { return Value{Type: TypeBool, Data: v} }

// TimestampValue wraps a time.Time
func TimestampValue(v time.Time) Value { return Value{Type: TypeTimestamp, Data: v} }

// BlobValue wraps raw bytes
func BlobValue(v []byte) Value { return Value{Type: TypeBlob, Data: v} }

// IsNull reports whether the value is null
func (v Value) IsNull() bool { return v.Type == TypeNull }

// AsInt returns the int64 form
func (v Value) AsInt() (int64, bool) {
	switch v.Type {
	case TypeInt:
		i, ok := v.Data.(int64)
		return i, ok
	case TypeFloat:
		f, ok := v.Data.(float64)
		return int64(f), ok
	}
	return 0, false
}

// AsFloat returns the float64 form
func (v Value) AsFloat() (float64, bool) {
	switch v.Type {
	case TypeFloat:
		f, ok := v.Data.(float64)
		return f, ok
	case TypeInt:
		i, ok := v.Data.(int64)
		return float64(i), ok
	}
	return 0, false
}

// AsString returns the string form
func (v Value) AsString() (string, bool) {
	s, ok := v.Data.(string)
	return s, ok
}

// AsBool returns the bool form
func (v Value) AsBool() (bool, bool) {
	b, ok := v.Data.(bool)
	return b, ok
}

// AsTimestamp returns the time form
func (v Value) AsTimestamp() (time.Time, bool) {
	t, ok := v.Data.(time.Time)
	return t, ok
}

// AsBlob returns the raw bytes form
func (v Value) AsBlob() ([]byte, bool) {
	b, ok := v.Data.([]byte)
	return b, ok
}

// Native returns the value as a plain Go type suitable for JSON encoding
func (v Value) Native() any {
	switch v.Type {
	case TypeTimestamp:
		if t, ok := v.Data.(time.Time); ok {
			return t.Format(time.RFC3339Nano)
		}
	case TypeBlob:
		if b, ok := v.Data.([]byte); ok {
			return base64.StdEncoding.EncodeToString(b)
		}
	}
	return v.Data
}

// FromNative converts a JSON-decoded Go value into a tagged Value.
// JSON numbers arrive as float64; integral floats become ints.
func FromNative(v any) Value {
	switch val := v.(type) {
	case nil:
		return NullValue()
	case string:
		return StringValue(val)
	case bool:
		return BoolValue(val)
	case int:
		return IntValue(int64(val))
	case int64:
		return IntValue(val)
	case float64:
		if val == float64(int64(val)) {
			return IntValue(int64(val))
		}
		return FloatValue(val)
	case time.Time:
		return TimestampValue(val)
	case []byte:
		return BlobValue(val)
	default:
		return StringValue(fmt.Sprintf("%v", v))
	}
}

// Coerce converts the value to the column's declared type when a lossless
// conversion exists; otherwise the value is returned unchanged.
func (v Value) Coerce(target ValueType) Value {
	if v.Type == target || v.IsNull() {
		return v
	}
	switch target {
	case TypeInt:
		if i, ok := v.AsInt(); ok {
			return IntValue(i)
		}
		if s, ok := v.AsString(); ok {
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return IntValue(i)
			}
		}
	case TypeFloat:
		if f, ok := v.AsFloat(); ok {
			return FloatValue(f)
		}
		if s, ok := v.AsString(); ok {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return FloatValue(f)
			}
		}
	case TypeBool:
		if s, ok := v.AsString(); ok {
			if b, err := strconv.ParseBool(strings.ToLower(s)); err == nil {
				return BoolValue(b)
			}
		}
	case TypeTimestamp:
		if s, ok := v.AsString(); ok {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return TimestampValue(t)
			}
		}
	case TypeString:
		return StringValue(fmt.Sprintf("%v", v.Native()))
	}
	return v
}

// Compare orders two values. Numbers compare numerically across int and
// float; otherwise values compare as strings. Null sorts first.
func Compare(a, b Value) int {
	if a.IsNull() || b.IsNull() {
		switch {
		case a.IsNull() && b.IsNull():
			return 0
		case a.IsNull():
			return -1
		default:
			return 1
		}
	}

	af, aNum := a.AsFloat()
	bf, bNum := b.AsFloat()
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}

	as := fmt.Sprintf("%v", a.Native())
	bs := fmt.Sprintf("%v", b.Native())
	return strings.Compare(as, bs)
}

// Equal reports whether two values compare equal
func Equal(a, b Value) bool { return Compare(a, b) == 0 }

// MarshalJSON encodes the value as its native JSON form
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Native())
}

// UnmarshalJSON decodes any JSON scalar into a tagged value
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = FromNative(raw)
	return nil
}
