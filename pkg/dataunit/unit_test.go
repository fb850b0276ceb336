package dataunit

import (
	"testing"
	"time"

	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addressSchema() *Schema {
	return NewSchema("address").
		AddField(Field{ID: 1, Name: "city", Kind: KString, Required: true}).
		AddField(Field{ID: 2, Name: "zip", Kind: KUint32})
}

func personSchema() *Schema {
	addr := addressSchema()
	return NewSchema("person").
		AddField(Field{ID: 1, Name: "name", Kind: KString, Required: true}).
		AddField(Field{ID: 2, Name: "age", Kind: KInt32}).
		AddField(Field{ID: 3, Name: "height", Kind: KFloat64}).
		AddField(Field{ID: 4, Name: "active", Kind: KBool}).
		AddField(Field{ID: 5, Name: "tags", Kind: KString, Repeated: true}).
		AddField(Field{ID: 6, Name: "id", Kind: KObjectID}).
		AddField(Field{ID: 7, Name: "born", Kind: KDateTime}).
		AddField(Field{ID: 8, Name: "home", Kind: KUnit, Nested: addr}).
		AddField(Field{ID: 9, Name: "offices", Kind: KUnit, Nested: addr, Repeated: true}).
		AddField(Field{ID: 10, Name: "scores", Kind: KInt32, Repeated: true})
}

func buildPerson(t *testing.T) *Unit {
	t.Helper()
	schema := personSchema()
	p := New(schema)
	p.Set("name", value.String("Ada"))
	p.Set("age", value.Int64(36))
	p.Set("height", value.Float64(1.68))
	p.Set("active", value.Bool(true))
	p.SetRepeated("tags", []value.Value{value.String("math"), value.String("engineer")})
	id := value.NewObjectID()
	p.Set("id", value.ObjectIDVal(id))
	born := time.Date(1815, time.December, 10, 0, 0, 0, 0, time.UTC)
	p.Set("born", value.DateTimeVal(born))

	home := New(schema.mustFieldByName("home").Nested)
	home.Set("city", value.String("London"))
	home.Set("zip", value.Uint64(10))
	p.SetUnit("home", home)

	office1 := New(schema.mustFieldByName("offices").Nested)
	office1.Set("city", value.String("Paris"))
	office2 := New(schema.mustFieldByName("offices").Nested)
	office2.Set("city", value.String("Turin"))
	p.SetRepeatedUnit("offices", []*Unit{office1, office2})

	p.SetRepeated("scores", []value.Value{value.Int64(1), value.Int64(2), value.Int64(3)})
	return p
}

func TestWireRoundTripAllBufferModes(t *testing.T) {
	schema := personSchema()
	p := buildPerson(t)

	for _, mode := range []BufferMode{ModeSolid, ModeChain, ModeView} {
		var region []byte
		if mode == ModeView {
			region = make([]byte, 0, 1024)
		}
		buf, err := Serialize(p, mode, region)
		require.NoError(t, err)

		got, err := Parse(schema, buf)
		require.NoError(t, err)
		assert.True(t, Equal(p, got), "round trip mismatch for buffer mode %v", mode)
	}
}

func TestWireMissingRequiredFieldFails(t *testing.T) {
	schema := personSchema()
	p := New(schema)
	p.Set("age", value.Int64(10))
	_, err := Serialize(p, ModeSolid, nil)
	require.Error(t, err)
}

func TestWireUnknownFieldSkipped(t *testing.T) {
	schema := personSchema()
	p := buildPerson(t)
	buf, err := Serialize(p, ModeSolid, nil)
	require.NoError(t, err)

	trimmed := NewSchema("person").
		AddField(Field{ID: 1, Name: "name", Kind: KString, Required: true})
	got, err := Parse(trimmed, buf)
	require.NoError(t, err)
	name, ok := got.Get("name")
	require.True(t, ok)
	assert.Equal(t, "Ada", name.Str)
}

func TestJSONRoundTrip(t *testing.T) {
	schema := personSchema()
	p := buildPerson(t)

	js, err := ToJSON(p)
	require.NoError(t, err)

	got, err := FromJSON(schema, js)
	require.NoError(t, err)
	assert.True(t, Equal(p, got), "json round trip mismatch")
}

func TestJSONUnknownFieldIgnored(t *testing.T) {
	schema := addressSchema()
	js := []byte(`{"city":"Rome","zip":10,"country":"IT"}`)
	u, err := FromJSON(schema, js)
	require.NoError(t, err)
	city, ok := u.Get("city")
	require.True(t, ok)
	assert.Equal(t, "Rome", city.Str)
}

func TestIntervalSortAndMerge(t *testing.T) {
	ivs := []value.Interval{
		value.NewInterval(value.ClosedAt(value.Int64(1)), value.ClosedAt(value.Int64(5))),
		value.NewInterval(value.ClosedAt(value.Int64(4)), value.ClosedAt(value.Int64(8))),
		value.NewInterval(value.ClosedAt(value.Int64(10)), value.ClosedAt(value.Int64(12))),
	}
	merged := value.SortAndMerge(ivs)
	require.Len(t, merged, 2)
	assert.Equal(t, int64(1), merged[0].Low.Value.I64)
	assert.Equal(t, int64(8), merged[0].High.Value.I64)
	assert.Equal(t, int64(10), merged[1].Low.Value.I64)
}

func TestObjectIDOrderingIsTimeMonotonic(t *testing.T) {
	a := value.NewObjectID()
	b := value.NewObjectID()
	assert.True(t, a.Less(b) || a == b)
}
