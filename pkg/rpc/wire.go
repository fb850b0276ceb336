// Package rpc implements the RPC Framework (spec.md §4.6): fixed header
// framing over a raw TCP connection, a multiplexed request/response
// client, and a server-side dispatcher keyed by service and method name.
// Grounded on pkg/client/client.go's dial-and-call shape and
// pkg/api/server.go's service registration, with the gRPC/HTTP2 transport
// they use replaced by the spec's own framing (see DESIGN.md).
package rpc

import (
	"encoding/binary"
	"io"

	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/hatn-go/hatn/pkg/herr"
)

const protocolVersion = 1

// headerSize is version(1) + request id(12) + parent id(12) (spec.md §4.6
// frame layout, using this module's 12-byte ObjectId per spec.md §3 rather
// than the 16-byte placeholder width named in §4.6's prose).
const headerSize = 1 + 12 + 12

// Header is the fixed-size prefix of every frame.
type Header struct {
	Version   byte
	RequestID value.ObjectID
	ParentID  value.ObjectID
}

func (h Header) encode() []byte {
	buf := make([]byte, headerSize)
	buf[0] = h.Version
	copy(buf[1:13], h.RequestID.Bytes())
	copy(buf[13:25], h.ParentID.Bytes())
	return buf
}

func decodeHeader(buf []byte) (Header, error) {
	if len(buf) != headerSize {
		return Header{}, herr.New(herr.Api, herr.ErrIOFailed, "rpc header truncated")
	}
	reqID, err := value.ObjectIDFromBytes(buf[1:13])
	if err != nil {
		return Header{}, herr.Wrap(herr.Api, herr.ErrIOFailed, "decoding rpc request id", err)
	}
	parentID, err := value.ObjectIDFromBytes(buf[13:25])
	if err != nil {
		return Header{}, herr.Wrap(herr.Api, herr.ErrIOFailed, "decoding rpc parent id", err)
	}
	return Header{Version: buf[0], RequestID: reqID, ParentID: parentID}, nil
}

// writeFrame writes header followed by a uint32-length-prefixed body to
// conn. One mutex-guarded write per frame keeps concurrent callers sharing
// a connection from interleaving their bytes.
func writeFrame(w io.Writer, h Header, body []byte) error {
	buf := make([]byte, 0, headerSize+4+len(body))
	buf = append(buf, h.encode()...)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, body...)
	if _, err := w.Write(buf); err != nil {
		return herr.Wrap(herr.Api, herr.ErrIOFailed, "writing rpc frame", err)
	}
	return nil
}

// readFrame blocks until one full frame has arrived on r.
func readFrame(r io.Reader) (Header, []byte, error) {
	hbuf := make([]byte, headerSize)
	if _, err := io.ReadFull(r, hbuf); err != nil {
		return Header{}, nil, err
	}
	h, err := decodeHeader(hbuf)
	if err != nil {
		return Header{}, nil, err
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Header{}, nil, herr.Wrap(herr.Api, herr.ErrIOFailed, "reading rpc frame length", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Header{}, nil, herr.Wrap(herr.Api, herr.ErrIOFailed, "reading rpc frame body", err)
	}
	return h, body, nil
}
