package configtree

import (
	"fmt"

	"github.com/hatn-go/hatn/pkg/dataunit"
	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/hatn-go/hatn/pkg/herr"
	"github.com/hatn-go/hatn/pkg/logctx"
)

// ConfigObject binds a subtree at a named path into a dataunit.Unit
// instance of the given schema, validating required fields and applying
// schema defaults (spec.md §4.9). It stands in for the spec's
// ConfigObject<T> template: T is represented by a dataunit.Schema rather
// than a Go generic parameter, matching this module's data-driven DataUnit
// design (spec.md §9).
type ConfigObject struct {
	Schema *dataunit.Schema
}

// NewConfigObject returns a ConfigObject bound to schema.
func NewConfigObject(schema *dataunit.Schema) *ConfigObject {
	return &ConfigObject{Schema: schema}
}

// Load resolves path in tree into a freshly populated Unit, returning the
// structured log records describing what was loaded (spec.md §4.9).
func (c *ConfigObject) Load(tree *Tree, path string) (*dataunit.Unit, []logctx.Record, error) {
	sub, err := tree.GetTree(path)
	if err != nil {
		return nil, nil, err
	}
	return c.loadTree(sub, path)
}

func (c *ConfigObject) loadTree(sub *Tree, path string) (*dataunit.Unit, []logctx.Record, error) {
	u := dataunit.New(c.Schema)
	var records []logctx.Record

	for _, f := range c.Schema.Fields() {
		child, ok := sub.Child(f.Name)
		if !ok {
			if f.Required {
				return nil, nil, herr.New(herr.Base, herr.ErrRequiredConfigField,
					fmt.Sprintf("required config field %q missing at path %q", f.Name, path))
			}
			if f.Default != nil {
				if f.Repeated {
					u.SetRepeated(f.Name, []value.Value{*f.Default})
				} else {
					u.Set(f.Name, *f.Default)
				}
				records = append(records, logctx.R(f.Name, *f.Default))
			}
			continue
		}

		if f.Kind == dataunit.KUnit {
			if f.Repeated {
				var nested []*dataunit.Unit
				for i, item := range child.Items() {
					nu, _, err := (&ConfigObject{Schema: f.Nested}).loadTree(item, fmt.Sprintf("%s.%s[%d]", path, f.Name, i))
					if err != nil {
						return nil, nil, err
					}
					nested = append(nested, nu)
				}
				u.SetRepeatedUnit(f.Name, nested)
			} else {
				nu, _, err := (&ConfigObject{Schema: f.Nested}).loadTree(child, path+"."+f.Name)
				if err != nil {
					return nil, nil, err
				}
				u.SetUnit(f.Name, nu)
			}
			records = append(records, logctx.R(f.Name, value.String("<nested>")))
			continue
		}

		if f.Repeated {
			var vs []value.Value
			for _, item := range child.Items() {
				if item.Kind != KindScalar {
					return nil, nil, herr.New(herr.Base, herr.ErrInvalidType,
						fmt.Sprintf("field %q expects a scalar array at path %q", f.Name, path))
				}
				vs = append(vs, coerce(item.Scalar, f.Kind))
			}
			u.SetRepeated(f.Name, vs)
			records = append(records, logctx.R(f.Name, value.Int64(int64(len(vs)))))
			continue
		}

		if child.Kind != KindScalar {
			return nil, nil, herr.New(herr.Base, herr.ErrInvalidType,
				fmt.Sprintf("field %q expects a scalar at path %q", f.Name, path))
		}
		cv := coerce(child.Scalar, f.Kind)
		u.Set(f.Name, cv)
		records = append(records, logctx.R(f.Name, cv))
	}

	return u, records, nil
}

// coerce adapts a JSON-decoded scalar (always Int64, Float64, String, Bool
// or Null from the JSONC parser) into the Value representation the target
// field Kind expects, e.g. a json integer landing in a KUint32 field.
func coerce(v value.Value, kind dataunit.Kind) value.Value {
	switch kind {
	case dataunit.KUint8, dataunit.KUint16, dataunit.KUint32, dataunit.KUint64:
		switch v.Kind {
		case value.KindInt64:
			return value.Uint64(uint64(v.I64))
		case value.KindUint64:
			return v
		case value.KindFloat64:
			return value.Uint64(uint64(v.F64))
		}
	case dataunit.KInt8, dataunit.KInt16, dataunit.KInt32, dataunit.KInt64, dataunit.KEnum:
		switch v.Kind {
		case value.KindFloat64:
			return value.Int64(int64(v.F64))
		case value.KindUint64:
			return value.Int64(int64(v.U64))
		}
	case dataunit.KFloat32, dataunit.KFloat64:
		switch v.Kind {
		case value.KindInt64:
			return value.Float64(float64(v.I64))
		case value.KindUint64:
			return value.Float64(float64(v.U64))
		}
	}
	return v
}
