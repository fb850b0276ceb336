package dataunit

import (
	"math"
	"time"

	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/hatn-go/hatn/pkg/herr"
	"google.golang.org/protobuf/encoding/protowire"
)

// Parse decodes a single contiguous buffer into a new Unit bound to schema.
// Chained buffers must be coalesced (Writer.Bytes()) before calling this,
// per spec.md §4.2.
func Parse(schema *Schema, buf []byte) (*Unit, error) {
	u := New(schema)
	seen := map[uint32]bool{}

	for len(buf) > 0 {
		num, typ, n := protowire.ConsumeTag(buf)
		if n < 0 {
			return nil, herr.New(herr.DataDef, herr.ErrEndOfStream, "truncated tag")
		}
		buf = buf[n:]

		f, ok := schema.FieldByID(uint32(num))
		if !ok {
			skipped, err := skipField(typ, buf)
			if err != nil {
				return nil, err
			}
			buf = buf[skipped:]
			continue
		}

		if f.Repeated && f.Packed && typ == WireWithLen && f.wireType() != WireWithLen {
			inner, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return nil, fieldErr(herr.ErrEndOfStream, f, "truncated packed payload")
			}
			buf = buf[n:]
			vs, err := decodePacked(inner, f)
			if err != nil {
				return nil, err
			}
			u.repeat[f.ID] = append(u.repeat[f.ID], vs...)
			u.set[f.ID] = true
			seen[f.ID] = true
			continue
		}

		if typ != f.wireType() {
			return nil, fieldErr(herr.ErrWireTypeMismatch, f, "unexpected wire type on the wire")
		}

		if f.Kind == KUnit {
			inner, n := protowire.ConsumeBytes(buf)
			if n < 0 {
				return nil, fieldErr(herr.ErrEndOfStream, f, "truncated nested unit")
			}
			buf = buf[n:]
			nestedUnit, err := Parse(f.Nested, inner)
			if err != nil {
				return nil, err
			}
			if f.Repeated {
				u.repNest[f.ID] = append(u.repNest[f.ID], nestedUnit)
			} else {
				u.nested[f.ID] = nestedUnit
			}
			u.set[f.ID] = true
			seen[f.ID] = true
			continue
		}

		v, consumed, err := decodeScalar(typ, buf, f)
		if err != nil {
			return nil, err
		}
		buf = buf[consumed:]
		if f.Repeated {
			u.repeat[f.ID] = append(u.repeat[f.ID], v)
		} else {
			u.scalars[f.ID] = v
		}
		u.set[f.ID] = true
		seen[f.ID] = true
	}

	for _, f := range schema.fields {
		if f.Required && !seen[f.ID] {
			return nil, fieldErr(herr.ErrRequiredFieldMissing, f, "required field absent from wire")
		}
	}

	return u, nil
}

func skipField(typ WireType, buf []byte) (int, error) {
	switch typ {
	case WireVarInt:
		_, n := protowire.ConsumeVarint(buf)
		if n < 0 {
			return 0, herr.New(herr.DataDef, herr.ErrEndOfStream, "truncated varint while skipping")
		}
		return n, nil
	case WireFixed32:
		_, n := protowire.ConsumeFixed32(buf)
		if n < 0 {
			return 0, herr.New(herr.DataDef, herr.ErrEndOfStream, "truncated fixed32 while skipping")
		}
		return n, nil
	case WireFixed64:
		_, n := protowire.ConsumeFixed64(buf)
		if n < 0 {
			return 0, herr.New(herr.DataDef, herr.ErrEndOfStream, "truncated fixed64 while skipping")
		}
		return n, nil
	case WireWithLen:
		_, n := protowire.ConsumeBytes(buf)
		if n < 0 {
			return 0, herr.New(herr.DataDef, herr.ErrEndOfStream, "truncated length-delimited field while skipping")
		}
		return n, nil
	default:
		return 0, herr.New(herr.DataDef, herr.ErrWireTypeMismatch, "unknown wire type while skipping")
	}
}

func decodePacked(inner []byte, f *Field) ([]value.Value, error) {
	var out []value.Value
	for len(inner) > 0 {
		v, n, err := decodeScalarBody(f.wireType(), inner, f)
		if err != nil {
			return nil, err
		}
		inner = inner[n:]
		out = append(out, v)
	}
	return out, nil
}

func decodeScalar(typ WireType, buf []byte, f *Field) (value.Value, int, error) {
	return decodeScalarBody(typ, buf, f)
}

func decodeScalarBody(typ WireType, buf []byte, f *Field) (value.Value, int, error) {
	switch typ {
	case WireVarInt:
		n, nb := protowire.ConsumeVarint(buf)
		if nb < 0 {
			return value.Value{}, 0, fieldErr(herr.ErrEndOfStream, f, "truncated varint")
		}
		return decodeVarintValue(n, f), nb, nil
	case WireFixed32:
		n, nb := protowire.ConsumeFixed32(buf)
		if nb < 0 {
			return value.Value{}, 0, fieldErr(herr.ErrEndOfStream, f, "truncated fixed32")
		}
		return decodeFixed32Value(n, f), nb, nil
	case WireFixed64:
		n, nb := protowire.ConsumeFixed64(buf)
		if nb < 0 {
			return value.Value{}, 0, fieldErr(herr.ErrEndOfStream, f, "truncated fixed64")
		}
		return decodeFixed64Value(n, f), nb, nil
	case WireWithLen:
		b, nb := protowire.ConsumeBytes(buf)
		if nb < 0 {
			return value.Value{}, 0, fieldErr(herr.ErrEndOfStream, f, "truncated length-delimited payload")
		}
		v, err := decodeWithLenValue(b, f)
		return v, nb, err
	default:
		return value.Value{}, 0, fieldErr(herr.ErrWireTypeMismatch, f, "unsupported wire type")
	}
}

func decodeVarintValue(n uint64, f *Field) value.Value {
	switch f.Kind {
	case KBool:
		return value.Bool(n != 0)
	case KInt8, KInt16, KInt32, KInt64, KEnum:
		return value.Int64(int64(n))
	default:
		return value.Uint64(n)
	}
}

func decodeFixed32Value(n uint32, f *Field) value.Value {
	switch f.Kind {
	case KFloat32:
		return value.Float64(float64(math.Float32frombits(n)))
	case KInt32:
		return value.Int64(int64(int32(n)))
	default:
		return value.Uint64(uint64(n))
	}
}

func decodeFixed64Value(n uint64, f *Field) value.Value {
	switch f.Kind {
	case KFloat64:
		return value.Float64(math.Float64frombits(n))
	case KInt64:
		return value.Int64(int64(n))
	default:
		return value.Uint64(n)
	}
}

func decodeWithLenValue(b []byte, f *Field) (value.Value, error) {
	switch f.Kind {
	case KString, KFixedString:
		return value.String(string(b)), nil
	case KBytes:
		cp := make([]byte, len(b))
		copy(cp, b)
		return value.Bytes(cp), nil
	case KObjectID:
		id, err := value.ObjectIDFromBytes(b)
		if err != nil {
			return value.Value{}, fieldErr(herr.ErrInvalidType, f, err.Error())
		}
		return value.ObjectIDVal(id), nil
	case KDateTime:
		n, nb := protowire.ConsumeFixed64(b)
		if nb < 0 {
			return value.Value{}, fieldErr(herr.ErrEndOfStream, f, "truncated datetime")
		}
		return value.DateTimeVal(time.Unix(0, int64(n)).UTC()), nil
	case KDate:
		if len(b) != 4 {
			return value.Value{}, fieldErr(herr.ErrSuspectOverflow, f, "malformed date payload")
		}
		return value.Value{Kind: value.KindDate, Dt: value.Date{
			Year:  int(uint16(b[0])<<8 | uint16(b[1])),
			Month: time.Month(b[2]),
			Day:   int(b[3]),
		}}, nil
	case KTime:
		if len(b) != 7 {
			return value.Value{}, fieldErr(herr.ErrSuspectOverflow, f, "malformed time payload")
		}
		us := uint32(b[3])<<24 | uint32(b[4])<<16 | uint32(b[5])<<8 | uint32(b[6])
		return value.Value{Kind: value.KindTime, Tm: value.Time{
			Hour: int(b[0]), Minute: int(b[1]), Second: int(b[2]), Microsecond: int(us),
		}}, nil
	case KDateRange:
		if len(b) != 16 {
			return value.Value{}, fieldErr(herr.ErrSuspectOverflow, f, "malformed date-range payload")
		}
		begin, _ := protowire.ConsumeFixed64(b[0:8])
		end, _ := protowire.ConsumeFixed64(b[8:16])
		return value.Value{Kind: value.KindDateRange, DR: value.DateRange{
			Begin: time.Unix(0, int64(begin)).UTC(),
			End:   time.Unix(0, int64(end)).UTC(),
		}}, nil
	case KUnit:
		return value.Value{}, fieldErr(herr.ErrInvalidType, f, "nested unit decoded separately")
	default:
		return value.Value{}, fieldErr(herr.ErrInvalidType, f, "unsupported length-delimited kind")
	}
}
