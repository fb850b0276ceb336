// Package configtree implements the JSONC-sourced configuration tree and
// the ConfigObject binding described in spec.md §4.9, grounded in the
// teacher's Config struct (cuemby-warren wires Scheduler/Manager etc.
// straight off Go structs) generalized into a dynamic, path-addressed tree
// since the spec requires runtime-typed nodes rather than compile-time
// struct fields.
package configtree

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/hatn-go/hatn/pkg/herr"
	"github.com/hatn-go/hatn/pkg/metrics"
)

// Kind tags the shape of a Tree node.
type Kind int

const (
	KindScalar Kind = iota
	KindMap
	KindArray
)

// Tree is one node of a parsed config document: a scalar Value, an ordered
// map of named subtrees, or an array (of scalars or of subtrees,
// never mixed).
type Tree struct {
	Kind Kind

	Scalar value.Value

	keys     []string
	children map[string]*Tree

	items []*Tree
}

// Parse tokenizes src as JSONC and builds a Tree from the result.
func Parse(src []byte) (*Tree, error) {
	clean := stripJSONC(src)
	dec := json.NewDecoder(bytes.NewReader(clean))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		metrics.ConfigReloadsTotal.WithLabelValues("error").Inc()
		return nil, herr.Wrap(herr.Base, herr.ErrConfigParse, "parsing jsonc document", err)
	}
	tree, err := fromAny(raw)
	if err != nil {
		metrics.ConfigReloadsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.ConfigReloadsTotal.WithLabelValues("ok").Inc()
	return tree, nil
}

func fromAny(raw any) (*Tree, error) {
	switch v := raw.(type) {
	case map[string]any:
		return fromMap(v)
	case []any:
		return fromArray(v)
	case nil:
		return &Tree{Kind: KindScalar, Scalar: value.Null()}, nil
	case bool:
		return &Tree{Kind: KindScalar, Scalar: value.Bool(v)}, nil
	case string:
		return &Tree{Kind: KindScalar, Scalar: value.String(v)}, nil
	case json.Number:
		return &Tree{Kind: KindScalar, Scalar: numberValue(v)}, nil
	default:
		return nil, herr.New(herr.Base, herr.ErrConfigParse, "unsupported json value type")
	}
}

func numberValue(n json.Number) value.Value {
	if i, err := n.Int64(); err == nil {
		return value.Int64(i)
	}
	f, _ := n.Float64()
	return value.Float64(f)
}

func fromMap(m map[string]any) (*Tree, error) {
	t := &Tree{Kind: KindMap, children: map[string]*Tree{}}
	// encoding/json decodes objects into a map, which has no stable
	// iteration order; JSONC config order isn't semantically meaningful for
	// a map node (unlike an array), so keys are emitted sorted for
	// deterministic Keys() output.
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sortStrings(names)
	for _, k := range names {
		child, err := fromAny(m[k])
		if err != nil {
			return nil, err
		}
		t.keys = append(t.keys, k)
		t.children[k] = child
	}
	return t, nil
}

func fromArray(arr []any) (*Tree, error) {
	t := &Tree{Kind: KindArray}
	sawObject, sawScalar := false, false
	for _, raw := range arr {
		child, err := fromAny(raw)
		if err != nil {
			return nil, err
		}
		switch child.Kind {
		case KindMap, KindArray:
			sawObject = true
		default:
			sawScalar = true
		}
		if sawObject && sawScalar {
			return nil, herr.New(herr.Base, herr.ErrMismatchedArrayTypes, "array mixes scalar and object/array elements")
		}
		t.items = append(t.items, child)
	}
	if sawScalar && len(t.items) > 1 {
		kind := t.items[0].Scalar.Kind
		for _, item := range t.items[1:] {
			if item.Scalar.Kind != kind {
				return nil, herr.New(herr.Base, herr.ErrMismatchedArrayTypes, "scalar array has mixed element kinds")
			}
		}
	}
	return t, nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Keys returns the child keys of a map node in the order the node stores
// them (keys added by Merge are appended after the existing ones), or nil
// for any other kind.
func (t *Tree) Keys() []string {
	if t == nil || t.Kind != KindMap {
		return nil
	}
	return append([]string(nil), t.keys...)
}

// Items returns the element subtrees of an array node.
func (t *Tree) Items() []*Tree {
	if t == nil || t.Kind != KindArray {
		return nil
	}
	return t.items
}

// Child returns the named child of a map node.
func (t *Tree) Child(name string) (*Tree, bool) {
	if t == nil || t.Kind != KindMap {
		return nil, false
	}
	c, ok := t.children[name]
	return c, ok
}

// Get resolves a dot-separated path ("app.thread_count", "db.rocksdb.main")
// to a scalar Value, returning PathNotFound when any segment is absent or
// the terminal node isn't a scalar.
func (t *Tree) Get(path string) (value.Value, error) {
	node, err := t.getTree(path)
	if err != nil {
		return value.Value{}, err
	}
	if node.Kind != KindScalar {
		return value.Value{}, herr.New(herr.Base, herr.ErrPathNotFound, "path "+path+" does not resolve to a scalar")
	}
	return node.Scalar, nil
}

// GetTree resolves path to a subtree (map, array, or scalar node).
func (t *Tree) GetTree(path string) (*Tree, error) {
	return t.getTree(path)
}

func (t *Tree) getTree(path string) (*Tree, error) {
	cur := t
	if path == "" {
		return cur, nil
	}
	for _, seg := range strings.Split(path, ".") {
		if cur == nil {
			return nil, herr.New(herr.Base, herr.ErrPathNotFound, "path "+path+" not found")
		}
		if idx, err := strconv.Atoi(seg); err == nil && cur.Kind == KindArray {
			if idx < 0 || idx >= len(cur.items) {
				return nil, herr.New(herr.Base, herr.ErrPathNotFound, "path "+path+" index out of range")
			}
			cur = cur.items[idx]
			continue
		}
		child, ok := cur.Child(seg)
		if !ok {
			return nil, herr.New(herr.Base, herr.ErrPathNotFound, "path "+path+" not found")
		}
		cur = child
	}
	return cur, nil
}

// GetDefault is Get with a fallback value when the path is absent.
func (t *Tree) GetDefault(path string, def value.Value) value.Value {
	v, err := t.Get(path)
	if err != nil {
		return def
	}
	return v
}
