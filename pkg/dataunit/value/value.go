// Package value implements the tagged-union Value type shared by log
// records and store queries (spec.md §3), plus the Interval and ObjectID
// types built on top of it.
package value

import (
	"fmt"
	"time"
)

// Kind tags the active member of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindFirst          // sentinel: -infinity
	KindLast           // sentinel: +infinity
	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindString
	KindDateTime
	KindDate
	KindTime
	KindDateRange
	KindObjectID
	KindBytes
	KindVector     // vector of any of the above
	KindIntervalV  // interval over one of the above
	KindVectorIntervals
)

// Date is a calendar date with no time-of-day component.
type Date struct{ Year int; Month time.Month; Day int }

// Time is a time-of-day with no date component, microsecond precision.
type Time struct{ Hour, Minute, Second, Microsecond int }

// DateRange covers [Begin, End).
type DateRange struct{ Begin, End time.Time }

// Value is the tagged union described in spec.md §3. Only the field
// matching Kind is meaningful; SSO ("short string optimization") is not
// separately modeled — Go's string header already avoids a second
// allocation for short strings at the interpreter level this type targets.
type Value struct {
	Kind Kind

	Bool bool
	I64  int64
	U64  uint64
	F64  float64
	Str  string
	DT   time.Time
	Dt   Date
	Tm   Time
	DR   DateRange
	OID  ObjectID
	Blob []byte

	Vector    []Value
	Interval  *Interval
	VectorIvl []Interval
}

func Null() Value                     { return Value{Kind: KindNull} }
func First() Value                    { return Value{Kind: KindFirst} }
func Last() Value                     { return Value{Kind: KindLast} }
func Bool(b bool) Value               { return Value{Kind: KindBool, Bool: b} }
func Int64(v int64) Value             { return Value{Kind: KindInt64, I64: v} }
func Int32(v int32) Value             { return Value{Kind: KindInt32, I64: int64(v)} }
func Uint64(v uint64) Value           { return Value{Kind: KindUint64, U64: v} }
func Float64(v float64) Value         { return Value{Kind: KindFloat64, F64: v} }
func String(s string) Value           { return Value{Kind: KindString, Str: s} }
func DateTimeVal(t time.Time) Value   { return Value{Kind: KindDateTime, DT: t} }
func ObjectIDVal(id ObjectID) Value   { return Value{Kind: KindObjectID, OID: id} }
func Bytes(b []byte) Value            { return Value{Kind: KindBytes, Blob: b} }
func VectorOf(vs ...Value) Value      { return Value{Kind: KindVector, Vector: vs} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

func (v Value) String2() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindFirst:
		return "-inf"
	case KindLast:
		return "+inf"
	case KindBool:
		return fmt.Sprintf("%v", v.Bool)
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return fmt.Sprintf("%d", v.I64)
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return fmt.Sprintf("%d", v.U64)
	case KindFloat32, KindFloat64:
		return fmt.Sprintf("%g", v.F64)
	case KindString:
		return v.Str
	case KindDateTime:
		return v.DT.Format(time.RFC3339)
	case KindObjectID:
		return v.OID.String()
	case KindBytes:
		return fmt.Sprintf("%x", v.Blob)
	default:
		return fmt.Sprintf("%+v", v)
	}
}

// Compare provides a total order across two Values of the same Kind,
// required both by log formatting and by index key encoding (pkg/db).
// Cross-kind comparisons order by Kind, which is only meaningful for
// internal sorting (e.g. merging interval endpoints of mixed sentinels).
func Compare(a, b Value) int {
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	switch a.Kind {
	case KindNull, KindFirst, KindLast:
		return 0
	case KindBool:
		if a.Bool == b.Bool {
			return 0
		}
		if !a.Bool {
			return -1
		}
		return 1
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return cmpI64(a.I64, b.I64)
	case KindUint8, KindUint16, KindUint32, KindUint64:
		return cmpU64(a.U64, b.U64)
	case KindFloat32, KindFloat64:
		return cmpF64(a.F64, b.F64)
	case KindString:
		return cmpStr(a.Str, b.Str)
	case KindDateTime:
		return cmpTime(a.DT, b.DT)
	case KindObjectID:
		if a.OID == b.OID {
			return 0
		}
		if a.OID.Less(b.OID) {
			return -1
		}
		return 1
	case KindBytes:
		return cmpBytes(a.Blob, b.Blob)
	default:
		return 0
	}
}

func cmpI64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpU64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpF64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpStr(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	default:
		return 0
	}
}

func cmpBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
