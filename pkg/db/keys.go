package db

import (
	"encoding/binary"
	"hash/crc32"
	"math"

	"github.com/hatn-go/hatn/pkg/dataunit/value"
)

// fieldSep is the \x1f unit separator spec.md §4.4 uses between key
// segments.
const fieldSep = 0x1f

// crc32Hex computes indexId = CRC32Hex(collection, indexName) (spec.md §4.4).
func crc32Hex(collection, indexName string) string {
	h := crc32.NewIEEE()
	h.Write([]byte(collection))
	h.Write([]byte{fieldSep})
	h.Write([]byte(indexName))
	sum := h.Sum32()
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		out[i] = hexDigits[sum&0xf]
		sum >>= 4
	}
	return string(out)
}

// dataKey builds "<topic>\x1f<modelId>\x1f<oid>" (spec.md §4.4).
func dataKey(topic, modelID string, oid value.ObjectID) []byte {
	k := make([]byte, 0, len(topic)+1+len(modelID)+1+12)
	k = append(k, topic...)
	k = append(k, fieldSep)
	k = append(k, modelID...)
	k = append(k, fieldSep)
	k = append(k, oid.Bytes()...)
	return k
}

// indexKey builds "<topic>\x1f<indexId>\x1f<encodedFieldValues>\x1f<oid>",
// omitting the trailing oid for unique indexes (spec.md §4.4).
func indexKey(topic, indexID string, fieldValues []value.Value, oid value.ObjectID, includeOID bool) []byte {
	k := make([]byte, 0, 64)
	k = append(k, topic...)
	k = append(k, fieldSep)
	k = append(k, indexID...)
	for _, v := range fieldValues {
		k = append(k, fieldSep)
		k = append(k, encodeFieldValue(v)...)
	}
	if includeOID {
		k = append(k, fieldSep)
		k = append(k, oid.Bytes()...)
	}
	return k
}

// encodeFieldValue produces an order-preserving byte encoding of v, per
// spec.md §4.4: fixed-width big-endian for integers (sign bit flipped for
// signed), length-prefixed UTF-8 for strings, ISO minute-precision for
// DateTime, 12 bytes for ObjectId.
func encodeFieldValue(v value.Value) []byte {
	switch v.Kind {
	case value.KindBool:
		if v.Bool {
			return []byte{1}
		}
		return []byte{0}
	case value.KindInt8, value.KindInt16, value.KindInt32, value.KindInt64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v.I64)^(1<<63))
		return b[:]
	case value.KindUint8, value.KindUint16, value.KindUint32, value.KindUint64:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v.U64)
		return b[:]
	case value.KindFloat32, value.KindFloat64:
		bits := math.Float64bits(v.F64)
		if v.F64 >= 0 {
			bits ^= 1 << 63
		} else {
			bits = ^bits
		}
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], bits)
		return b[:]
	case value.KindString:
		s := v.Str
		out := make([]byte, 4+len(s))
		binary.BigEndian.PutUint32(out[:4], uint32(len(s)))
		copy(out[4:], s)
		return out
	case value.KindDateTime:
		return []byte(v.DT.UTC().Format("200601021504"))
	case value.KindObjectID:
		return v.OID.Bytes()
	case value.KindBytes:
		return v.Blob
	default:
		return nil
	}
}

