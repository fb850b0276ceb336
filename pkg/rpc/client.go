package rpc

import (
	"context"
	"crypto/tls"
	"net"
	"sync"

	"github.com/hatn-go/hatn/pkg/crypt"
	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/hatn-go/hatn/pkg/herr"
)

// connection owns one TCP socket to a remote endpoint and demultiplexes
// frames arriving on it back to the caller waiting on the matching
// request id, the way pkg/client/client.go's grpc.ClientConn demultiplexes
// concurrent RPCs over one HTTP/2 connection.
type connection struct {
	addr string
	conn net.Conn

	mu      sync.Mutex
	writeMu sync.Mutex
	pending map[value.ObjectID]chan *Response
	closed  bool
	closeErr error
}

func dial(ctx context.Context, addr string, tlsCfg *tls.Config) (*connection, error) {
	var d net.Dialer
	var nc net.Conn
	var err error
	if tlsCfg != nil {
		nc, err = (&tls.Dialer{Config: tlsCfg}).DialContext(ctx, "tcp", addr)
	} else {
		nc, err = d.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, herr.Wrap(herr.Api, herr.ErrIOFailed, "dialing rpc endpoint "+addr, err)
	}
	c := &connection{addr: addr, conn: nc, pending: map[value.ObjectID]chan *Response{}}
	go c.readLoop()
	return c, nil
}

func (c *connection) readLoop() {
	for {
		h, body, err := readFrame(c.conn)
		if err != nil {
			c.fail(err)
			return
		}
		resp, err := decodeResponse(body)
		if err != nil {
			c.fail(err)
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[h.RequestID]
		if ok {
			delete(c.pending, h.RequestID)
		}
		c.mu.Unlock()
		if ok {
			ch <- resp
			close(ch)
		}
	}
}

func (c *connection) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.closeErr = err
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	for _, ch := range pending {
		close(ch)
	}
	c.conn.Close()
}

func (c *connection) call(ctx context.Context, req *Request, parentID value.ObjectID) (*Response, error) {
	reqID := value.NewObjectID()
	ch := make(chan *Response, 1)

	c.mu.Lock()
	if c.closed {
		err := c.closeErr
		c.mu.Unlock()
		if err == nil {
			err = herr.New(herr.Api, herr.ErrIOFailed, "rpc connection closed")
		}
		return nil, err
	}
	c.pending[reqID] = ch
	c.mu.Unlock()

	h := Header{Version: protocolVersion, RequestID: reqID, ParentID: parentID}
	body := encodeRequest(req)

	c.writeMu.Lock()
	err := writeFrame(c.conn, h, body)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			if c.closeErr != nil {
				return nil, c.closeErr
			}
			return nil, herr.New(herr.Api, herr.ErrIOFailed, "rpc connection closed while awaiting response")
		}
		return resp, nil
	case <-ctx.Done():
		return nil, herr.Wrap(herr.Common, herr.ErrTimeout, "rpc call canceled", ctx.Err())
	}
}

// Client is a pool of connections keyed by dial address, matching the
// single-Client-per-process shape pkg/client/client.go exposes to CLI
// callers, generalized to hold more than one remote endpoint at once.
type Client struct {
	tlsConfig *tls.Config

	mu    sync.Mutex
	conns map[string]*connection
}

// NewClient builds a Client. tlsConfig may be nil for plaintext transport
// (tests, loopback); production callers build one with NewMTLSClientConfig.
func NewClient(tlsConfig *tls.Config) *Client {
	return &Client{tlsConfig: tlsConfig, conns: map[string]*connection{}}
}

// NewMTLSClientConfig builds a client-side tls.Config from an issued
// identity certificate and the store used to verify the server's.
func NewMTLSClientConfig(identity *crypt.X509Certificate, store *crypt.CertStore) *tls.Config {
	return newMTLSConfig(identity, store, false)
}

func (cl *Client) connFor(ctx context.Context, addr string) (*connection, error) {
	cl.mu.Lock()
	c, ok := cl.conns[addr]
	if ok {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if !closed {
			cl.mu.Unlock()
			return c, nil
		}
		delete(cl.conns, addr)
	}
	cl.mu.Unlock()

	c, err := dial(ctx, addr, cl.tlsConfig)
	if err != nil {
		return nil, err
	}
	cl.mu.Lock()
	cl.conns[addr] = c
	cl.mu.Unlock()
	return c, nil
}

// Close closes every pooled connection.
func (cl *Client) Close() error {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	for addr, c := range cl.conns {
		c.conn.Close()
		delete(cl.conns, addr)
	}
	return nil
}

// Session binds an auth token to calls made through it, the way
// pkg/client/client.go's NewClientWithToken attaches a join token to the
// certificate-request flow; here it is attached to every request's Auth
// field instead.
type Session struct {
	client *Client
	router *Router
	auth   []byte
}

// NewSession builds a Session that dials through router and attaches auth
// to every outgoing request.
func NewSession(client *Client, router *Router, auth []byte) *Session {
	return &Session{client: client, router: router, auth: auth}
}

// ServiceClient binds a Session to one named remote service, matching the
// one-stub-per-service shape of a generated gRPC client.
type ServiceClient struct {
	session *Session
	service string
}

// Service returns a ServiceClient bound to name.
func (s *Session) Service(name string) *ServiceClient {
	return &ServiceClient{session: s, service: name}
}

// Call invokes method on the service, trying each endpoint the Session's
// Router resolves in order until one succeeds or all fail.
func (sc *ServiceClient) Call(ctx context.Context, method, messageType, topic string, messageBytes []byte) (*Response, error) {
	endpoints, err := sc.session.router.Resolve()
	if err != nil {
		return nil, err
	}

	req := &Request{
		ServiceName:     sc.service,
		MethodName:      method,
		MessageTypeName: messageType,
		Topic:           topic,
		Auth:            sc.session.auth,
		MessageBytes:    messageBytes,
	}

	var lastErr error
	for _, addr := range endpoints {
		conn, err := sc.session.client.connFor(ctx, addr)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := conn.call(ctx, req, value.ObjectID{})
		if err != nil {
			lastErr = err
			continue
		}
		return resp, nil
	}
	if lastErr == nil {
		lastErr = herr.New(herr.Api, herr.ErrIOFailed, "no rpc endpoint reachable")
	}
	return nil, lastErr
}
