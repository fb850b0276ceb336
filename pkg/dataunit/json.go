package dataunit

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/hatn-go/hatn/pkg/herr"
)

// ToJSON emits every set field as "name": <json>, recursing into nested
// units, with bytes base64-encoded, dates ISO-8601, and ObjectIDs as
// 24-char hex (spec.md §4.2).
func ToJSON(u *Unit) ([]byte, error) {
	m, err := toJSONMap(u)
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

func toJSONMap(u *Unit) (map[string]any, error) {
	out := map[string]any{}
	for _, f := range u.schema.fields {
		if f.NoSerialize || !u.set[f.ID] {
			continue
		}
		if f.Kind == KUnit {
			if f.Repeated {
				var arr []any
				for _, nested := range u.repNest[f.ID] {
					nm, err := toJSONMap(nested)
					if err != nil {
						return nil, err
					}
					arr = append(arr, nm)
				}
				out[f.Name] = arr
			} else {
				nm, err := toJSONMap(u.nested[f.ID])
				if err != nil {
					return nil, err
				}
				out[f.Name] = nm
			}
			continue
		}
		if f.Repeated {
			var arr []any
			for _, v := range u.repeat[f.ID] {
				jv, err := scalarToJSON(v, f)
				if err != nil {
					return nil, err
				}
				arr = append(arr, jv)
			}
			out[f.Name] = arr
			continue
		}
		jv, err := scalarToJSON(u.scalars[f.ID], f)
		if err != nil {
			return nil, err
		}
		out[f.Name] = jv
	}
	return out, nil
}

func scalarToJSON(v value.Value, f *Field) (any, error) {
	switch f.Kind {
	case KBool:
		return v.Bool, nil
	case KInt8, KInt16, KInt32, KInt64, KEnum:
		return v.I64, nil
	case KUint8, KUint16, KUint32, KUint64:
		return v.U64, nil
	case KFloat32, KFloat64:
		return v.F64, nil
	case KString, KFixedString:
		return v.Str, nil
	case KBytes:
		return base64.StdEncoding.EncodeToString(v.Blob), nil
	case KObjectID:
		return v.OID.String(), nil
	case KDateTime:
		return v.DT.UTC().Format(time.RFC3339Nano), nil
	default:
		return nil, fieldErr(herr.ErrJsonFieldSerializeErr, f, "unsupported kind for json")
	}
}

// FromJSON parses a JSON object into a new Unit bound to schema, using a
// SAX-style handler stack: entering `{`/`[` pushes a handler for the new
// container, `}`/`]` pops it (spec.md §4.2).
func FromJSON(schema *Schema, data []byte) (*Unit, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return nil, herr.Wrap(herr.DataDef, herr.ErrJsonParseError, "reading opening token", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, herr.New(herr.DataDef, herr.ErrJsonParseError, "expected object at top level")
	}
	u := New(schema)
	h := &objectHandler{unit: u, schema: schema}
	if err := h.run(dec); err != nil {
		return nil, err
	}
	return u, nil
}

// objectHandler owns decoding of one JSON object into a Unit.
type objectHandler struct {
	unit   *Unit
	schema *Schema
}

func (h *objectHandler) run(dec *json.Decoder) error {
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return herr.Wrap(herr.DataDef, herr.ErrJsonParseError, "reading key", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return herr.New(herr.DataDef, herr.ErrJsonParseError, "expected string key")
		}
		f, ok := h.schema.FieldByName(key)
		if !ok {
			if err := skipJSONValue(dec); err != nil {
				return err
			}
			continue
		}
		if err := h.readField(dec, f); err != nil {
			return err
		}
	}
	// consume closing '}'
	if _, err := dec.Token(); err != nil {
		return herr.Wrap(herr.DataDef, herr.ErrJsonParseError, "reading closing brace", err)
	}
	return nil
}

func (h *objectHandler) readField(dec *json.Decoder, f *Field) error {
	if f.Kind == KUnit {
		if f.Repeated {
			arr, err := readArrayDelim(dec)
			if err != nil {
				return err
			}
			defer arr.close()
			var units []*Unit
			for dec.More() {
				nested := New(f.Nested)
				nh := &objectHandler{unit: nested, schema: f.Nested}
				if err := expectDelim(dec, '{'); err != nil {
					return err
				}
				if err := nh.run(dec); err != nil {
					return err
				}
				units = append(units, nested)
			}
			h.unit.SetRepeatedUnit(f.Name, units)
			return nil
		}
		if err := expectDelim(dec, '{'); err != nil {
			return err
		}
		nested := New(f.Nested)
		nh := &objectHandler{unit: nested, schema: f.Nested}
		if err := nh.run(dec); err != nil {
			return err
		}
		h.unit.SetUnit(f.Name, nested)
		return nil
	}

	if f.Repeated {
		arr, err := readArrayDelim(dec)
		if err != nil {
			return err
		}
		defer arr.close()
		var vs []value.Value
		for dec.More() {
			v, err := readScalarToken(dec, f)
			if err != nil {
				return err
			}
			vs = append(vs, v)
		}
		h.unit.SetRepeated(f.Name, vs)
		return nil
	}

	v, err := readScalarToken(dec, f)
	if err != nil {
		return err
	}
	h.unit.Set(f.Name, v)
	return nil
}

type arrGuard struct{ dec *json.Decoder }

func (a arrGuard) close() { a.dec.Token() /* consume ']' */ }

func readArrayDelim(dec *json.Decoder) (arrGuard, error) {
	if err := expectDelim(dec, '['); err != nil {
		return arrGuard{}, err
	}
	return arrGuard{dec: dec}, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return herr.Wrap(herr.DataDef, herr.ErrJsonParseError, "reading delimiter", err)
	}
	d, ok := tok.(json.Delim)
	if !ok || d != want {
		return herr.New(herr.DataDef, herr.ErrJsonParseError, fmt.Sprintf("expected %q", want))
	}
	return nil
}

func skipJSONValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return herr.Wrap(herr.DataDef, herr.ErrJsonParseError, "skipping value", err)
	}
	if d, ok := tok.(json.Delim); ok && (d == '{' || d == '[') {
		depth := 1
		for depth > 0 {
			t, err := dec.Token()
			if err != nil {
				return herr.Wrap(herr.DataDef, herr.ErrJsonParseError, "skipping nested value", err)
			}
			if dd, ok := t.(json.Delim); ok {
				switch dd {
				case '{', '[':
					depth++
				case '}', ']':
					depth--
				}
			}
		}
	}
	return nil
}

func readScalarToken(dec *json.Decoder, f *Field) (value.Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return value.Value{}, herr.Wrap(herr.DataDef, herr.ErrJsonParseError, "reading scalar", err)
	}
	switch f.Kind {
	case KBool:
		b, ok := tok.(bool)
		if !ok {
			return value.Value{}, fieldErr(herr.ErrInvalidType, f, "expected bool")
		}
		return value.Bool(b), nil
	case KInt8, KInt16, KInt32, KInt64, KEnum:
		n, ok := tok.(json.Number)
		if !ok {
			return value.Value{}, fieldErr(herr.ErrInvalidType, f, "expected number")
		}
		i, err := n.Int64()
		if err != nil {
			i2, ferr := n.Float64()
			if ferr != nil {
				return value.Value{}, fieldErr(herr.ErrSuspectOverflow, f, "integer overflow")
			}
			i = int64(i2)
		}
		return value.Int64(i), nil
	case KUint8, KUint16, KUint32, KUint64:
		n, ok := tok.(json.Number)
		if !ok {
			return value.Value{}, fieldErr(herr.ErrInvalidType, f, "expected number")
		}
		i, err := n.Int64()
		if err != nil || i < 0 {
			return value.Value{}, fieldErr(herr.ErrSuspectOverflow, f, "unsigned overflow")
		}
		return value.Uint64(uint64(i)), nil
	case KFloat32, KFloat64:
		n, ok := tok.(json.Number)
		if !ok {
			return value.Value{}, fieldErr(herr.ErrInvalidType, f, "expected number")
		}
		fv, err := n.Float64()
		if err != nil {
			return value.Value{}, fieldErr(herr.ErrSuspectOverflow, f, "float overflow")
		}
		return value.Float64(fv), nil
	case KString, KFixedString:
		s, ok := tok.(string)
		if !ok {
			return value.Value{}, fieldErr(herr.ErrInvalidType, f, "expected string")
		}
		return value.String(s), nil
	case KBytes:
		s, ok := tok.(string)
		if !ok {
			return value.Value{}, fieldErr(herr.ErrInvalidType, f, "expected base64 string")
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return value.Value{}, fieldErr(herr.ErrInvalidType, f, "invalid base64")
		}
		return value.Bytes(b), nil
	case KObjectID:
		s, ok := tok.(string)
		if !ok {
			return value.Value{}, fieldErr(herr.ErrInvalidType, f, "expected hex string")
		}
		id, err := value.ParseObjectID(s)
		if err != nil {
			return value.Value{}, fieldErr(herr.ErrInvalidType, f, err.Error())
		}
		return value.ObjectIDVal(id), nil
	case KDateTime:
		s, ok := tok.(string)
		if !ok {
			return value.Value{}, fieldErr(herr.ErrInvalidType, f, "expected ISO-8601 string")
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return value.Value{}, fieldErr(herr.ErrInvalidType, f, "invalid datetime")
		}
		return value.DateTimeVal(t), nil
	default:
		return value.Value{}, fieldErr(herr.ErrInvalidType, f, "unsupported kind for json")
	}
}
