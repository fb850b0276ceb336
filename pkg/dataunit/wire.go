package dataunit

import (
	"math"

	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/hatn-go/hatn/pkg/herr"
	"google.golang.org/protobuf/encoding/protowire"
)

// Serialize encodes u per its schema into the requested buffer mode
// (spec.md §4.2). A cached wire image is returned as-is when present.
func Serialize(u *Unit, mode BufferMode, viewRegion []byte) ([]byte, error) {
	if u.wireCache != nil {
		return u.wireCache, nil
	}
	w := NewWriter(mode, viewRegion)
	if err := writeUnit(w, u); err != nil {
		return nil, err
	}
	out := w.Bytes()
	u.wireCache = out
	return out, nil
}

func writeTag(w Writer, id uint32, wt WireType) {
	w.WriteBytes(protowire.AppendTag(nil, protowire.Number(id), wt))
}

func writeUnit(w Writer, u *Unit) error {
	for _, f := range u.schema.fields {
		if !u.set[f.ID] {
			if f.Required {
				return fieldErr(herr.ErrRequiredFieldMissing, f, "required field not set")
			}
			continue
		}
		if f.NoSerialize {
			continue
		}
		if err := writeField(w, u, f); err != nil {
			return err
		}
	}
	return nil
}

func writeField(w Writer, u *Unit, f *Field) error {
	if f.Kind == KUnit {
		if f.Repeated {
			for _, nested := range u.repNest[f.ID] {
				if err := writeNested(w, f, nested); err != nil {
					return err
				}
			}
			return nil
		}
		return writeNested(w, f, u.nested[f.ID])
	}

	if f.Repeated {
		vs := u.repeat[f.ID]
		if f.Packed {
			payload := make([]byte, 0, len(vs)*8)
			for _, v := range vs {
				b, err := encodeScalarPayload(v, f)
				if err != nil {
					return err
				}
				payload = append(payload, b...)
			}
			writeTag(w, f.ID, WireWithLen)
			w.WriteBytes(protowire.AppendVarint(nil, uint64(len(payload))))
			w.AppendRef(payload)
			return nil
		}
		for _, v := range vs {
			if err := writeScalarField(w, f, v); err != nil {
				return err
			}
		}
		return nil
	}

	return writeScalarField(w, f, u.scalars[f.ID])
}

func writeScalarField(w Writer, f *Field, v value.Value) error {
	wt := f.wireType()
	writeTag(w, f.ID, wt)
	switch wt {
	case WireVarInt:
		n, err := varintPayload(v, f)
		if err != nil {
			return err
		}
		w.WriteBytes(protowire.AppendVarint(nil, n))
	case WireFixed32:
		n, err := fixed32Payload(v, f)
		if err != nil {
			return err
		}
		w.WriteBytes(protowire.AppendFixed32(nil, n))
	case WireFixed64:
		n, err := fixed64Payload(v, f)
		if err != nil {
			return err
		}
		w.WriteBytes(protowire.AppendFixed64(nil, n))
	case WireWithLen:
		b, err := encodeScalarPayload(v, f)
		if err != nil {
			return err
		}
		w.WriteBytes(protowire.AppendVarint(nil, uint64(len(b))))
		w.AppendRef(b)
	}
	return nil
}

// writeNested writes a nested unit's tag, a reserved 5-byte saturated
// varint length prefix, the nested body, and then patches the prefix
// in place (spec.md §4.2).
func writeNested(w Writer, f *Field, nested *Unit) error {
	if nested == nil {
		if f.Required {
			return fieldErr(herr.ErrRequiredFieldMissing, f, "required nested unit not set")
		}
		return nil
	}
	writeTag(w, f.ID, WireWithLen)
	patch := w.Reserve(5)
	before := w.Len()
	if err := writeUnit(w, nested); err != nil {
		return err
	}
	bodyLen := w.Len() - before
	patch.Set(encodeSaturatedVarint(uint64(bodyLen)))
	return nil
}

// encodeSaturatedVarint encodes n into exactly 5 bytes: each of the first 4
// bytes carries the continuation bit, the 5th terminates. Any valid varint
// decoder (including protowire.ConsumeVarint) reads this back as the same
// integer, but the fixed width lets the value be patched after the fact
// without shifting already-written bytes (spec.md §4.2).
func encodeSaturatedVarint(n uint64) []byte {
	b := make([]byte, 5)
	b[0] = byte(n&0x7f) | 0x80
	b[1] = byte((n>>7)&0x7f) | 0x80
	b[2] = byte((n>>14)&0x7f) | 0x80
	b[3] = byte((n>>21)&0x7f) | 0x80
	b[4] = byte((n >> 28) & 0x7f)
	return b
}

func varintPayload(v value.Value, f *Field) (uint64, error) {
	switch f.Kind {
	case KBool:
		if v.Bool {
			return 1, nil
		}
		return 0, nil
	case KInt8, KInt16, KInt32, KInt64, KEnum:
		return uint64(v.I64), nil
	case KUint8, KUint16, KUint32, KUint64:
		return v.U64, nil
	default:
		return 0, fieldErr(herr.ErrInvalidType, f, "not a varint-compatible kind")
	}
}

func fixed32Payload(v value.Value, f *Field) (uint32, error) {
	switch f.Kind {
	case KFloat32:
		return math.Float32bits(float32(v.F64)), nil
	case KInt32:
		return uint32(v.I64), nil
	case KUint32:
		return uint32(v.U64), nil
	default:
		return 0, fieldErr(herr.ErrInvalidType, f, "not a fixed32-compatible kind")
	}
}

func fixed64Payload(v value.Value, f *Field) (uint64, error) {
	switch f.Kind {
	case KFloat64:
		return math.Float64bits(v.F64), nil
	case KInt64:
		return uint64(v.I64), nil
	case KUint64:
		return v.U64, nil
	default:
		return 0, fieldErr(herr.ErrInvalidType, f, "not a fixed64-compatible kind")
	}
}

func encodeScalarPayload(v value.Value, f *Field) ([]byte, error) {
	switch f.Kind {
	case KString, KFixedString:
		return []byte(v.Str), nil
	case KBytes:
		return v.Blob, nil
	case KObjectID:
		return v.OID.Bytes(), nil
	case KDateTime:
		return protowire.AppendFixed64(nil, uint64(v.DT.UnixNano())), nil
	case KDate:
		b := make([]byte, 4)
		b[0] = byte(v.Dt.Year >> 8)
		b[1] = byte(v.Dt.Year)
		b[2] = byte(v.Dt.Month)
		b[3] = byte(v.Dt.Day)
		return b, nil
	case KTime:
		b := make([]byte, 7)
		b[0] = byte(v.Tm.Hour)
		b[1] = byte(v.Tm.Minute)
		b[2] = byte(v.Tm.Second)
		us := uint32(v.Tm.Microsecond)
		b[3] = byte(us >> 24)
		b[4] = byte(us >> 16)
		b[5] = byte(us >> 8)
		b[6] = byte(us)
		return b, nil
	case KDateRange:
		out := protowire.AppendFixed64(nil, uint64(v.DR.Begin.UnixNano()))
		out = protowire.AppendFixed64(out, uint64(v.DR.End.UnixNano()))
		return out, nil
	default:
		if f.Repeated {
			// varint/fixed kinds within a packed run: delegate per-kind.
			switch f.wireType() {
			case WireVarInt:
				n, err := varintPayload(v, f)
				if err != nil {
					return nil, err
				}
				return protowire.AppendVarint(nil, n), nil
			case WireFixed32:
				n, err := fixed32Payload(v, f)
				if err != nil {
					return nil, err
				}
				return protowire.AppendFixed32(nil, n), nil
			case WireFixed64:
				n, err := fixed64Payload(v, f)
				if err != nil {
					return nil, err
				}
				return protowire.AppendFixed64(nil, n), nil
			}
		}
		return nil, fieldErr(herr.ErrInvalidType, f, "not a length-delimited kind")
	}
}
