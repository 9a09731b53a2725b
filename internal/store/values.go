package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ValueKind identifies the shape of a fact value. The set is closed so that
// contradiction checks and synthesis have a stable contract.
type ValueKind string

const (
	ValueString ValueKind = "string"
	ValueNumber ValueKind = "number"
	ValueDate   ValueKind = "date"
	ValueList   ValueKind = "list"
)

// FactValue is a tagged union over the closed set of value shapes.
// Exactly one of the payload fields is meaningful, selected by Kind.
type FactValue struct {
	Kind ValueKind
	Str  string
	Num  float64
	Date time.Time
	List []string
}

// StringValue wraps a plain string value.
func StringValue(s string) FactValue {
	return FactValue{Kind: ValueString, Str: s}
}

// NumberValue wraps a numeric value.
func NumberValue(n float64) FactValue {
	return FactValue{Kind: ValueNumber, Num: n}
}

// DateValue wraps a timestamp value.
func DateValue(t time.Time) FactValue {
	return FactValue{Kind: ValueDate, Date: t.UTC()}
}

// ListValue wraps a list-of-strings value.
func ListValue(items []string) FactValue {
	return FactValue{Kind: ValueList, List: items}
}

// Render returns the natural-language form of the value, used when
// synthesizing answers and when pattern-matching contradictions.
func (v FactValue) Render() string {
	switch v.Kind {
	case ValueString:
		return v.Str
	case ValueNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case ValueDate:
		return v.Date.Format("2006-01-02")
	case ValueList:
		return strings.Join(v.List, ", ")
	default:
		return ""
	}
}

// encode serializes the payload for storage. The kind goes in its own column.
func (v FactValue) encode() (string, error) {
	switch v.Kind {
	case ValueString:
		b, err := json.Marshal(v.Str)
		return string(b), err
	case ValueNumber:
		b, err := json.Marshal(v.Num)
		return string(b), err
	case ValueDate:
		b, err := json.Marshal(v.Date.Format(time.RFC3339))
		return string(b), err
	case ValueList:
		if v.List == nil {
			v.List = []string{}
		}
		b, err := json.Marshal(v.List)
		return string(b), err
	default:
		return "", fmt.Errorf("unknown value kind %q", v.Kind)
	}
}

// decodeValue reconstructs a FactValue from its stored kind and payload.
func decodeValue(kind ValueKind, payload string) (FactValue, error) {
	v := FactValue{Kind: kind}
	switch kind {
	case ValueString:
		if err := json.Unmarshal([]byte(payload), &v.Str); err != nil {
			return v, fmt.Errorf("decode string value: %w", err)
		}
	case ValueNumber:
		if err := json.Unmarshal([]byte(payload), &v.Num); err != nil {
			return v, fmt.Errorf("decode number value: %w", err)
		}
	case ValueDate:
		var s string
		if err := json.Unmarshal([]byte(payload), &s); err != nil {
			return v, fmt.Errorf("decode date value: %w", err)
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return v, fmt.Errorf("parse date value: %w", err)
		}
		v.Date = t
	case ValueList:
		if err := json.Unmarshal([]byte(payload), &v.List); err != nil {
			return v, fmt.Errorf("decode list value: %w", err)
		}
	default:
		return v, fmt.Errorf("unknown value kind %q", kind)
	}
	return v, nil
}

// Equal reports whether two values are the same claim. Lists compare as sets
// would confuse synthesis, so order matters here.
func (v FactValue) Equal(other FactValue) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case ValueString:
		return v.Str == other.Str
	case ValueNumber:
		return v.Num == other.Num
	case ValueDate:
		return v.Date.Equal(other.Date)
	case ValueList:
		if len(v.List) != len(other.List) {
			return false
		}
		for i := range v.List {
			if v.List[i] != other.List[i] {
				return false
			}
		}
		return true
	}
	return false
}
