package rpc

import (
	"encoding/binary"

	"github.com/hatn-go/hatn/pkg/herr"
)

// Request is the frame body spec.md §4.6 describes as a DataUnit
// {service_name, method_name, message_type_name, topic, auth?,
// message_bytes}. The envelope itself is encoded with plain
// length-prefixed fields rather than through pkg/dataunit, since its
// shape is fixed and known at compile time; message_bytes remains the
// WithLength payload holding the caller's own DataUnit-encoded request.
type Request struct {
	ServiceName     string
	MethodName      string
	MessageTypeName string
	Topic           string
	Auth            []byte // nil when absent
	MessageBytes    []byte
}

// Response mirrors Request's layout plus a status and optional error.
type Response struct {
	OK            bool
	ErrorCode     string
	ErrorCategory string
	ErrorMessage  string
	MessageBytes  []byte
}

func putString(buf []byte, s string) []byte {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(s)))
	buf = append(buf, l[:]...)
	return append(buf, s...)
}

func putBytes(buf []byte, b []byte) []byte {
	var l [4]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(b)))
	buf = append(buf, l[:]...)
	return append(buf, b...)
}

type cursor struct {
	buf []byte
	pos int
}

func (c *cursor) string() (string, error) {
	b, err := c.bytes()
	return string(b), err
}

func (c *cursor) bytes() ([]byte, error) {
	if c.pos+4 > len(c.buf) {
		return nil, herr.New(herr.Api, herr.ErrIOFailed, "rpc envelope truncated")
	}
	n := int(binary.BigEndian.Uint32(c.buf[c.pos : c.pos+4]))
	c.pos += 4
	if c.pos+n > len(c.buf) {
		return nil, herr.New(herr.Api, herr.ErrIOFailed, "rpc envelope truncated")
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func encodeRequest(r *Request) []byte {
	buf := make([]byte, 0, 64+len(r.MessageBytes))
	buf = putString(buf, r.ServiceName)
	buf = putString(buf, r.MethodName)
	buf = putString(buf, r.MessageTypeName)
	buf = putString(buf, r.Topic)
	buf = putBytes(buf, r.Auth)
	buf = putBytes(buf, r.MessageBytes)
	return buf
}

func decodeRequest(raw []byte) (*Request, error) {
	c := &cursor{buf: raw}
	r := &Request{}
	var err error
	if r.ServiceName, err = c.string(); err != nil {
		return nil, err
	}
	if r.MethodName, err = c.string(); err != nil {
		return nil, err
	}
	if r.MessageTypeName, err = c.string(); err != nil {
		return nil, err
	}
	if r.Topic, err = c.string(); err != nil {
		return nil, err
	}
	if r.Auth, err = c.bytes(); err != nil {
		return nil, err
	}
	if len(r.Auth) == 0 {
		r.Auth = nil
	}
	if r.MessageBytes, err = c.bytes(); err != nil {
		return nil, err
	}
	return r, nil
}

func encodeResponse(r *Response) []byte {
	buf := make([]byte, 0, 64+len(r.MessageBytes))
	if r.OK {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = putString(buf, r.ErrorCode)
	buf = putString(buf, r.ErrorCategory)
	buf = putString(buf, r.ErrorMessage)
	buf = putBytes(buf, r.MessageBytes)
	return buf
}

func decodeResponse(raw []byte) (*Response, error) {
	if len(raw) < 1 {
		return nil, herr.New(herr.Api, herr.ErrIOFailed, "rpc response truncated")
	}
	c := &cursor{buf: raw[1:]}
	r := &Response{OK: raw[0] == 1}
	var err error
	if r.ErrorCode, err = c.string(); err != nil {
		return nil, err
	}
	if r.ErrorCategory, err = c.string(); err != nil {
		return nil, err
	}
	if r.ErrorMessage, err = c.string(); err != nil {
		return nil, err
	}
	if r.MessageBytes, err = c.bytes(); err != nil {
		return nil, err
	}
	return r, nil
}

// errorToResponse converts a herr.Error (or any error) into a Response
// carrying its category/code/message.
func errorToResponse(err error) *Response {
	if he, ok := err.(*herr.Error); ok {
		return &Response{ErrorCode: string(he.Code), ErrorCategory: string(he.Category), ErrorMessage: he.Message}
	}
	return &Response{ErrorCode: string(herr.ErrAborted), ErrorCategory: string(herr.Common), ErrorMessage: err.Error()}
}
