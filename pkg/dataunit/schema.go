// Package dataunit implements the spec's schema-defined record type with
// its varint/fixed/length-prefixed wire format and JSON round-trip
// (spec.md §3, §4.2). The source's compile-time template schemas are
// replaced, per spec.md §9, by a data-driven Schema description interpreted
// by a small set of field-descriptor-driven encode/decode routines — no
// build-time codegen step is introduced, since nothing in the retrieval
// pack ships a DataUnit-style generator.
package dataunit

import (
	"fmt"

	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/hatn-go/hatn/pkg/herr"
	"google.golang.org/protobuf/encoding/protowire"
)

// Kind tags a field's declared type (spec.md §3).
type Kind uint8

const (
	KBool Kind = iota
	KInt8
	KInt16
	KInt32
	KInt64
	KUint8
	KUint16
	KUint32
	KUint64
	KFloat32
	KFloat64
	KString
	KFixedString // FixedString<N>
	KDateTime
	KDate
	KTime
	KDateRange
	KObjectID
	KBytes
	KUnit // nested DataUnit
	KEnum
)

// WireType is one of the four on-the-wire representations (spec.md §4.2).
type WireType = protowire.Type

const (
	WireVarInt    = protowire.VarintType
	WireFixed32   = protowire.Fixed32Type
	WireFixed64   = protowire.Fixed64Type
	WireWithLen   = protowire.BytesType
)

// Field describes one field of a Schema.
type Field struct {
	ID          uint32
	Name        string
	Kind        Kind
	Repeated    bool
	Required    bool
	NoSerialize bool
	Default     *value.Value

	// FixedWidth is the N in FixedString<N>.
	FixedWidth int

	// UseFixedWire requests the Fixed32/Fixed64 wire alternate for
	// otherwise-VarInt numeric kinds (spec.md §4.2).
	UseFixedWire bool

	// Packed controls repeated-scalar encoding: packed (one WithLength run)
	// vs. tag-per-element. Only scalar, protobuf-compatible kinds may be
	// packed; defaults to true for bool/int/float/enum kinds, false otherwise,
	// matching original_source/dataunit/src/fieldserialization.cpp.
	Packed bool

	// Nested is the sub-schema for KUnit fields.
	Nested *Schema

	// EnumValues maps symbolic enum names to wire integers for KEnum fields.
	EnumValues map[string]int32
}

func defaultPacked(k Kind) bool {
	switch k {
	case KBool, KInt8, KInt16, KInt32, KInt64, KUint8, KUint16, KUint32, KUint64, KFloat32, KFloat64, KEnum:
		return true
	default:
		return false
	}
}

func (f Field) wireType() WireType {
	switch f.Kind {
	case KString, KFixedString, KBytes, KUnit:
		return WireWithLen
	case KFloat32:
		return WireFixed32
	case KFloat64:
		return WireFixed64
	case KDateTime, KDate, KTime, KDateRange, KObjectID:
		return WireWithLen
	default:
		if f.UseFixedWire {
			switch f.Kind {
			case KInt32, KUint32:
				return WireFixed32
			case KInt64, KUint64:
				return WireFixed64
			}
		}
		return WireVarInt
	}
}

// Schema is the data-driven description of a DataUnit record.
type Schema struct {
	Name   string
	fields []*Field
	byID   map[uint32]*Field
	byName map[string]*Field
}

// NewSchema starts a Schema builder for name.
func NewSchema(name string) *Schema {
	return &Schema{
		Name:   name,
		byID:   map[uint32]*Field{},
		byName: map[string]*Field{},
	}
}

// AddField appends a field descriptor to the schema, applying the default
// packed setting when the caller leaves Packed unset and the field is
// Repeated. Returns the schema for chaining.
func (s *Schema) AddField(f Field) *Schema {
	if f.Repeated && !f.Packed {
		f.Packed = defaultPacked(f.Kind)
	}
	ff := f
	s.fields = append(s.fields, &ff)
	s.byID[f.ID] = &ff
	s.byName[f.Name] = &ff
	return s
}

func (s *Schema) Fields() []*Field { return s.fields }

func (s *Schema) FieldByID(id uint32) (*Field, bool) {
	f, ok := s.byID[id]
	return f, ok
}

func (s *Schema) FieldByName(name string) (*Field, bool) {
	f, ok := s.byName[name]
	return f, ok
}

func (s *Schema) mustFieldByName(name string) *Field {
	f, ok := s.byName[name]
	if !ok {
		panic(fmt.Sprintf("dataunit: schema %q has no field %q", s.Name, name))
	}
	return f
}

// fieldErr is a convenience constructor used by wire.go, parse.go and json.go.
func fieldErr(code herr.Code, field *Field, msg string) *herr.Error {
	name := "?"
	id := uint32(0)
	if field != nil {
		name = field.Name
		id = field.ID
	}
	return herr.New(herr.DataDef, code, fmt.Sprintf("field %s(#%d): %s", name, id, msg))
}
