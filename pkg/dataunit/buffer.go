package dataunit

import "fmt"

// Writer abstracts over the three buffer modes spec.md §4.2 requires: a
// single growing buffer, a chain of buffers that can hold payloads by
// reference (zero-copy for bytes/nested units that already carry a wire
// image), and an in-place view over caller-owned memory. All three satisfy
// this interface; wire.go is written once against it.
type Writer interface {
	WriteByte(b byte)
	WriteBytes(b []byte)
	// AppendRef appends b without copying when the underlying mode supports
	// it (ChainWriter); other modes fall back to copying.
	AppendRef(b []byte)
	// Reserve carves out n bytes for a length prefix to be patched once the
	// body has been written (used for the 5-byte saturated nested-unit
	// length prefix, spec.md §4.2).
	Reserve(n int) Patch
	Len() int
	// Bytes coalesces the writer into one contiguous slice.
	Bytes() []byte
}

// Patch identifies a previously reserved span that can be overwritten once
// the pending value (e.g. a nested unit's length) is known.
type Patch interface {
	Set(data []byte)
}

// SolidWriter is buffer mode (a): one growing byte slice.
type SolidWriter struct {
	buf []byte
}

func NewSolidWriter() *SolidWriter { return &SolidWriter{} }

func (w *SolidWriter) WriteByte(b byte)      { w.buf = append(w.buf, b) }
func (w *SolidWriter) WriteBytes(b []byte)   { w.buf = append(w.buf, b...) }
func (w *SolidWriter) AppendRef(b []byte)    { w.buf = append(w.buf, b...) }
func (w *SolidWriter) Len() int              { return len(w.buf) }
func (w *SolidWriter) Bytes() []byte         { return w.buf }

type solidPatch struct {
	w   *SolidWriter
	off int
	n   int
}

func (p *solidPatch) Set(data []byte) {
	if len(data) != p.n {
		panic(fmt.Sprintf("dataunit: patch size mismatch: reserved %d, got %d", p.n, len(data)))
	}
	copy(p.w.buf[p.off:p.off+p.n], data)
}

func (w *SolidWriter) Reserve(n int) Patch {
	off := len(w.buf)
	w.buf = append(w.buf, make([]byte, n)...)
	return &solidPatch{w: w, off: off, n: n}
}

// ChainWriter is buffer mode (b): a chain of refcounted segments. Segments
// appended via AppendRef share the caller's backing array (Go's slice
// headers already behave like a refcounted view: the backing array is kept
// alive by the GC for as long as any segment references it, so no manual
// refcount is needed to get zero-copy semantics).
type ChainWriter struct {
	segments [][]byte
}

func NewChainWriter() *ChainWriter { return &ChainWriter{} }

func (w *ChainWriter) WriteByte(b byte) { w.segments = append(w.segments, []byte{b}) }
func (w *ChainWriter) WriteBytes(b []byte) {
	cp := make([]byte, len(b))
	copy(cp, b)
	w.segments = append(w.segments, cp)
}
func (w *ChainWriter) AppendRef(b []byte) { w.segments = append(w.segments, b) }

func (w *ChainWriter) Len() int {
	n := 0
	for _, s := range w.segments {
		n += len(s)
	}
	return n
}

func (w *ChainWriter) Bytes() []byte {
	out := make([]byte, 0, w.Len())
	for _, s := range w.segments {
		out = append(out, s...)
	}
	return out
}

type chainPatch struct {
	seg []byte
}

func (p *chainPatch) Set(data []byte) {
	if len(data) != len(p.seg) {
		panic(fmt.Sprintf("dataunit: patch size mismatch: reserved %d, got %d", len(p.seg), len(data)))
	}
	copy(p.seg, data)
}

// Reserve inserts a dedicated segment into the chain (the "separate buffer
// in the chain" the spec calls for) and returns a patch over it.
func (w *ChainWriter) Reserve(n int) Patch {
	seg := make([]byte, n)
	w.segments = append(w.segments, seg)
	return &chainPatch{seg: seg}
}

// ViewWriter is buffer mode (c): an in-place view over caller-owned memory.
// Writes are bounds-checked against the supplied region; it never grows.
type ViewWriter struct {
	buf []byte
	pos int
}

// NewViewWriter wraps a caller-owned, pre-sized region.
func NewViewWriter(region []byte) *ViewWriter { return &ViewWriter{buf: region} }

func (w *ViewWriter) grow(n int) []byte {
	if w.pos+n > len(w.buf) {
		panic("dataunit: view buffer overflow")
	}
	start := w.pos
	w.pos += n
	return w.buf[start:w.pos]
}

func (w *ViewWriter) WriteByte(b byte)    { w.grow(1)[0] = b }
func (w *ViewWriter) WriteBytes(b []byte) { copy(w.grow(len(b)), b) }
func (w *ViewWriter) AppendRef(b []byte)  { w.WriteBytes(b) }
func (w *ViewWriter) Len() int            { return w.pos }
func (w *ViewWriter) Bytes() []byte       { return w.buf[:w.pos] }

type viewPatch struct {
	region []byte
}

func (p *viewPatch) Set(data []byte) { copy(p.region, data) }

func (w *ViewWriter) Reserve(n int) Patch {
	region := w.grow(n)
	return &viewPatch{region: region}
}

// BufferMode selects which Writer implementation Serialize uses.
type BufferMode int

const (
	ModeSolid BufferMode = iota
	ModeChain
	ModeView
)

// NewWriter constructs the Writer for mode, using region only for ModeView.
func NewWriter(mode BufferMode, region []byte) Writer {
	switch mode {
	case ModeChain:
		return NewChainWriter()
	case ModeView:
		return NewViewWriter(region)
	default:
		return NewSolidWriter()
	}
}
