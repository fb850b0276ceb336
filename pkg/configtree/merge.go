package configtree

import "github.com/hatn-go/hatn/pkg/herr"

// ArrayMode controls how array nodes combine during Merge.
type ArrayMode int

const (
	// ArrayMerge merges array elements position-by-position (object arrays
	// only); scalar arrays fall back to replacement.
	ArrayMerge ArrayMode = iota
	ArrayAppend
	ArrayPrepend
)

// Merge merges other into the subtree rooted at path, per arrayMode for any
// array nodes encountered. Keys present on both sides are merged
// recursively; per spec.md §9's open question, a key of other that is
// absent from an already-populated map target is left undefined by the
// source and is rejected here with NotImplemented rather than guessed at
// (see DESIGN.md).
func (t *Tree) Merge(other *Tree, path string, arrayMode ArrayMode) error {
	target, err := t.getTree(path)
	if err != nil {
		// absent target: graft other wholesale.
		return t.graft(path, other)
	}
	merged, err := mergeNodes(target, other, arrayMode)
	if err != nil {
		return err
	}
	*target = *merged
	return nil
}

func (t *Tree) graft(path string, other *Tree) error {
	if path == "" {
		*t = *other
		return nil
	}
	segs := splitPath(path)
	cur := t
	for _, seg := range segs[:len(segs)-1] {
		child, ok := cur.Child(seg)
		if !ok {
			child = &Tree{Kind: KindMap, children: map[string]*Tree{}}
			if cur.Kind != KindMap {
				cur.Kind = KindMap
				cur.children = map[string]*Tree{}
			}
			cur.keys = append(cur.keys, seg)
			cur.children[seg] = child
		}
		cur = child
	}
	last := segs[len(segs)-1]
	if cur.Kind != KindMap {
		cur.Kind = KindMap
		cur.children = map[string]*Tree{}
	}
	if _, exists := cur.children[last]; !exists {
		cur.keys = append(cur.keys, last)
	}
	cur.children[last] = other
	return nil
}

func splitPath(path string) []string {
	var out []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '.' {
			out = append(out, path[start:i])
			start = i + 1
		}
	}
	out = append(out, path[start:])
	return out
}

func mergeNodes(a, b *Tree, mode ArrayMode) (*Tree, error) {
	if a.Kind != b.Kind {
		// replacing a node with a different-kind node is well defined: b wins.
		return b, nil
	}
	switch a.Kind {
	case KindScalar:
		return b, nil
	case KindArray:
		return mergeArrays(a, b, mode)
	case KindMap:
		return mergeMaps(a, b, mode)
	default:
		return b, nil
	}
}

func mergeMaps(a, b *Tree, mode ArrayMode) (*Tree, error) {
	if len(a.children) == 0 {
		return b, nil
	}
	out := &Tree{Kind: KindMap, children: map[string]*Tree{}}
	out.keys = append(out.keys, a.keys...)
	for k, v := range a.children {
		out.children[k] = v
	}
	for _, k := range b.keys {
		if existing, ok := out.children[k]; ok {
			merged, err := mergeNodes(existing, b.children[k], mode)
			if err != nil {
				return nil, err
			}
			out.children[k] = merged
			continue
		}
		// spec.md §9: merging a new key into an already-populated map target
		// has undefined semantics in the source (doParse's NotImplemented
		// path); rather than guess, surface it explicitly.
		return nil, herr.New(herr.Common, herr.ErrNotImplemented, "merge into non-empty config map target at key "+k)
	}
	return out, nil
}

func mergeArrays(a, b *Tree, mode ArrayMode) (*Tree, error) {
	switch mode {
	case ArrayAppend:
		out := &Tree{Kind: KindArray}
		out.items = append(out.items, a.items...)
		out.items = append(out.items, b.items...)
		return out, nil
	case ArrayPrepend:
		out := &Tree{Kind: KindArray}
		out.items = append(out.items, b.items...)
		out.items = append(out.items, a.items...)
		return out, nil
	default: // ArrayMerge
		if len(a.items) == 0 || a.items[0].Kind == KindScalar {
			return b, nil
		}
		out := &Tree{Kind: KindArray}
		n := len(a.items)
		if len(b.items) > n {
			n = len(b.items)
		}
		for i := 0; i < n; i++ {
			switch {
			case i >= len(a.items):
				out.items = append(out.items, b.items[i])
			case i >= len(b.items):
				out.items = append(out.items, a.items[i])
			default:
				merged, err := mergeNodes(a.items[i], b.items[i], mode)
				if err != nil {
					return nil, err
				}
				out.items = append(out.items, merged)
			}
		}
		return out, nil
	}
}
