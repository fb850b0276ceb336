package dataunit

import (
	"github.com/hatn-go/hatn/pkg/dataunit/value"
)

// Unit is a schema-generated record (spec.md §3). It starts clean (no field
// set, no cached wire image) and becomes dirty on the first field write;
// any write after a wire image has been cached invalidates that cache.
type Unit struct {
	schema *Schema

	scalars map[uint32]value.Value
	repeat  map[uint32][]value.Value
	nested  map[uint32]*Unit
	repNest map[uint32][]*Unit
	set     map[uint32]bool

	wireCache []byte
}

// New creates an empty Unit bound to schema.
func New(schema *Schema) *Unit {
	return &Unit{
		schema:  schema,
		scalars: map[uint32]value.Value{},
		repeat:  map[uint32][]value.Value{},
		nested:  map[uint32]*Unit{},
		repNest: map[uint32][]*Unit{},
		set:     map[uint32]bool{},
	}
}

func (u *Unit) Schema() *Schema { return u.schema }

// Clean reports whether no field has been set.
func (u *Unit) Clean() bool { return len(u.set) == 0 }

func (u *Unit) invalidate() { u.wireCache = nil }

// IsSet reports whether field name carries an explicit value.
func (u *Unit) IsSet(name string) bool {
	f := u.schema.mustFieldByName(name)
	return u.set[f.ID]
}

// Unset clears a field, returning it to its default/unset state.
func (u *Unit) Unset(name string) {
	f := u.schema.mustFieldByName(name)
	delete(u.scalars, f.ID)
	delete(u.repeat, f.ID)
	delete(u.nested, f.ID)
	delete(u.repNest, f.ID)
	delete(u.set, f.ID)
	u.invalidate()
}

// Set assigns a scalar field value by name.
func (u *Unit) Set(name string, v value.Value) {
	f := u.schema.mustFieldByName(name)
	u.scalars[f.ID] = v
	u.set[f.ID] = true
	u.invalidate()
}

// SetRepeated assigns a repeated-scalar field.
func (u *Unit) SetRepeated(name string, vs []value.Value) {
	f := u.schema.mustFieldByName(name)
	u.repeat[f.ID] = vs
	u.set[f.ID] = true
	u.invalidate()
}

// SetUnit assigns a nested-DataUnit field.
func (u *Unit) SetUnit(name string, nested *Unit) {
	f := u.schema.mustFieldByName(name)
	u.nested[f.ID] = nested
	u.set[f.ID] = true
	u.invalidate()
}

// SetRepeatedUnit assigns a repeated nested-DataUnit field.
func (u *Unit) SetRepeatedUnit(name string, nested []*Unit) {
	f := u.schema.mustFieldByName(name)
	u.repNest[f.ID] = nested
	u.set[f.ID] = true
	u.invalidate()
}

// Get reads a scalar field by name.
func (u *Unit) Get(name string) (value.Value, bool) {
	f := u.schema.mustFieldByName(name)
	if !u.set[f.ID] {
		if f.Default != nil {
			return *f.Default, true
		}
		return value.Null(), false
	}
	v, ok := u.scalars[f.ID]
	return v, ok
}

// GetRepeated reads a repeated-scalar field by name.
func (u *Unit) GetRepeated(name string) ([]value.Value, bool) {
	f := u.schema.mustFieldByName(name)
	v, ok := u.repeat[f.ID]
	return v, ok
}

// GetUnit reads a nested-unit field by name.
func (u *Unit) GetUnit(name string) (*Unit, bool) {
	f := u.schema.mustFieldByName(name)
	v, ok := u.nested[f.ID]
	return v, ok
}

// GetRepeatedUnit reads a repeated nested-unit field by name.
func (u *Unit) GetRepeatedUnit(name string) ([]*Unit, bool) {
	f := u.schema.mustFieldByName(name)
	v, ok := u.repNest[f.ID]
	return v, ok
}

// Equal compares two units field-by-field, skipping no-serialize fields,
// used by the round-trip property test (spec.md §8).
func Equal(a, b *Unit) bool {
	if a.schema.Name != b.schema.Name {
		return false
	}
	for _, f := range a.schema.Fields() {
		if f.NoSerialize {
			continue
		}
		if a.set[f.ID] != b.set[f.ID] {
			return false
		}
		if !a.set[f.ID] {
			continue
		}
		switch f.Kind {
		case KUnit:
			if f.Repeated {
				au, bu := a.repNest[f.ID], b.repNest[f.ID]
				if len(au) != len(bu) {
					return false
				}
				for i := range au {
					if !Equal(au[i], bu[i]) {
						return false
					}
				}
			} else {
				if !Equal(a.nested[f.ID], b.nested[f.ID]) {
					return false
				}
			}
		default:
			if f.Repeated {
				av, bv := a.repeat[f.ID], b.repeat[f.ID]
				if len(av) != len(bv) {
					return false
				}
				for i := range av {
					if value.Compare(av[i], bv[i]) != 0 {
						return false
					}
				}
			} else {
				if value.Compare(a.scalars[f.ID], b.scalars[f.ID]) != 0 {
					return false
				}
			}
		}
	}
	return true
}
