package rpc

import (
	"context"
	"crypto/tls"
	"net"
	"sync"

	"github.com/hatn-go/hatn/pkg/configtree"
	"github.com/hatn-go/hatn/pkg/crypt"
	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/hatn-go/hatn/pkg/herr"
	"github.com/hatn-go/hatn/pkg/logctx"
	"github.com/hatn-go/hatn/pkg/metrics"
)

// AuthCheck validates the Auth bytes carried on a Request before a Method
// handler runs, matching the "auth dispatcher" namespace spec.md §4.6
// keeps separate from service dispatch.
type AuthCheck func(ctx context.Context, auth []byte) error

// Handler executes one method call and returns the DataUnit-encoded
// response bytes, or an error that errorToResponse converts into a
// Response's error fields.
type Handler func(ctx context.Context, rc *RequestContext) ([]byte, error)

// RequestContext is what a Handler sees for one inbound call. It collapses
// spec.md §4.6's explicit route_cb callback into a direct return value,
// since this layer has no streaming responses to push incrementally.
type RequestContext struct {
	Header  Header
	Topic   string
	Auth    []byte
	Message []byte
}

// Method is one named, invokable operation on a ServerService.
type Method struct {
	Name      string
	AuthCheck AuthCheck
	Handler   Handler
}

// ServerService groups Methods under one service name, the unit
// ServiceRouter dispatches by.
type ServerService struct {
	Name    string
	methods map[string]*Method
}

// NewServerService builds an empty ServerService.
func NewServerService(name string) *ServerService {
	return &ServerService{Name: name, methods: map[string]*Method{}}
}

// AddMethod registers m under its Name.
func (s *ServerService) AddMethod(m *Method) *ServerService {
	s.methods[m.Name] = m
	return s
}

// ServiceRouter dispatches inbound requests to the service named on the
// envelope, analogous to proto.WarrenAPIServer's generated method switch
// but built at runtime from registered ServerServices.
type ServiceRouter struct {
	mu       sync.RWMutex
	services map[string]*ServerService
}

// NewServiceRouter builds an empty ServiceRouter.
func NewServiceRouter() *ServiceRouter {
	return &ServiceRouter{services: map[string]*ServerService{}}
}

// Register adds svc, replacing any previous service registered under the
// same name.
func (r *ServiceRouter) Register(svc *ServerService) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services[svc.Name] = svc
}

func (r *ServiceRouter) dispatch(ctx context.Context, req *Request, h Header) *Response {
	timer := metrics.NewTimer()
	r.mu.RLock()
	svc, ok := r.services[req.ServiceName]
	r.mu.RUnlock()
	if !ok {
		metrics.RPCRequestsTotal.WithLabelValues(req.ServiceName, req.MethodName, "error").Inc()
		return errorToResponse(herr.New(herr.Api, herr.ErrUnknownService, "unknown rpc service: "+req.ServiceName))
	}
	m, ok := svc.methods[req.MethodName]
	if !ok {
		metrics.RPCRequestsTotal.WithLabelValues(req.ServiceName, req.MethodName, "error").Inc()
		return errorToResponse(herr.New(herr.Api, herr.ErrUnknownMethod, "unknown rpc method: "+req.ServiceName+"."+req.MethodName))
	}
	if m.AuthCheck != nil {
		if err := m.AuthCheck(ctx, req.Auth); err != nil {
			metrics.RPCRequestsTotal.WithLabelValues(req.ServiceName, req.MethodName, "error").Inc()
			return errorToResponse(err)
		}
	}
	rc := &RequestContext{Header: h, Topic: req.Topic, Auth: req.Auth, Message: req.MessageBytes}
	out, err := m.Handler(ctx, rc)
	timer.ObserveDurationVec(metrics.RPCRequestDuration, req.ServiceName, req.MethodName)
	if err != nil {
		metrics.RPCRequestsTotal.WithLabelValues(req.ServiceName, req.MethodName, "error").Inc()
		return errorToResponse(err)
	}
	metrics.RPCRequestsTotal.WithLabelValues(req.ServiceName, req.MethodName, "ok").Inc()
	return &Response{OK: true, MessageBytes: out}
}

// ServiceDispatcher pairs a name with the ServiceRouter it should forward
// to, the unit DispatchersStore looks callers up by.
type ServiceDispatcher struct {
	Name   string
	Router *ServiceRouter
}

// DispatchersStore holds the named ServiceDispatchers and auth dispatchers
// a MicroService can be built from, mirroring spec.md §4.6's two separate
// lookup namespaces (exercising ErrUnknownDispatcher and
// ErrUnknownAuthDispatcher distinctly).
type DispatchersStore struct {
	mu       sync.RWMutex
	services map[string]*ServiceDispatcher
	auth     map[string]AuthCheck
}

// NewDispatchersStore builds an empty DispatchersStore.
func NewDispatchersStore() *DispatchersStore {
	return &DispatchersStore{services: map[string]*ServiceDispatcher{}, auth: map[string]AuthCheck{}}
}

// RegisterDispatcher adds d under d.Name.
func (ds *DispatchersStore) RegisterDispatcher(d *ServiceDispatcher) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.services[d.Name] = d
}

// RegisterAuthDispatcher adds an AuthCheck under name.
func (ds *DispatchersStore) RegisterAuthDispatcher(name string, check AuthCheck) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.auth[name] = check
}

// Dispatcher looks up a previously registered ServiceDispatcher by name.
func (ds *DispatchersStore) Dispatcher(name string) (*ServiceDispatcher, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	d, ok := ds.services[name]
	if !ok {
		return nil, herr.New(herr.Api, herr.ErrUnknownDispatcher, "unknown dispatcher: "+name)
	}
	return d, nil
}

// AuthDispatcher looks up a previously registered AuthCheck by name.
func (ds *DispatchersStore) AuthDispatcher(name string) (AuthCheck, error) {
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	a, ok := ds.auth[name]
	if !ok {
		return nil, herr.New(herr.Api, herr.ErrUnknownAuthDispatcher, "unknown auth dispatcher: "+name)
	}
	return a, nil
}

// MicroService is one bound (address, dispatcher) pair accepting
// connections, the runtime counterpart of Server in pkg/api/server.go.
type MicroService struct {
	Name       string
	Addr       string
	Dispatcher *ServiceDispatcher

	tlsConfig *tls.Config
	logger    *logctx.Context

	mu       sync.Mutex
	listener net.Listener
	stopped  bool
}

// NewMicroService builds a MicroService bound to addr, serving router
// behind optional tlsConfig (nil for plaintext).
func NewMicroService(name, addr string, dispatcher *ServiceDispatcher, tlsConfig *tls.Config, logger *logctx.Context) *MicroService {
	return &MicroService{Name: name, Addr: addr, Dispatcher: dispatcher, tlsConfig: tlsConfig, logger: logger}
}

// NewMTLSServerConfig builds a server-side tls.Config requiring a client
// certificate verifiable against store.
func NewMTLSServerConfig(identity *crypt.X509Certificate, store *crypt.CertStore) *tls.Config {
	return newMTLSConfig(identity, store, true)
}

// Serve listens on Addr and blocks accepting connections until Stop is
// called, matching Server.Start's listen-then-serve shape.
func (m *MicroService) Serve() error {
	var lis net.Listener
	var err error
	if m.tlsConfig != nil {
		lis, err = tls.Listen("tcp", m.Addr, m.tlsConfig)
	} else {
		lis, err = net.Listen("tcp", m.Addr)
	}
	if err != nil {
		return herr.Wrap(herr.Api, herr.ErrMicroserviceRunFailed, "listening on "+m.Addr, err)
	}

	m.mu.Lock()
	m.listener = lis
	m.mu.Unlock()

	if m.logger != nil {
		logctx.Log(logctx.Info, m.logger, "microservice listening", []logctx.Record{
			logctx.R("name", value.String(m.Name)),
			logctx.R("addr", value.String(m.Addr)),
		}, "rpc")
	}

	metrics.MicroservicesRunning.Inc()
	defer metrics.MicroservicesRunning.Dec()

	for {
		conn, err := lis.Accept()
		if err != nil {
			m.mu.Lock()
			stopped := m.stopped
			m.mu.Unlock()
			if stopped {
				return nil
			}
			return herr.Wrap(herr.Api, herr.ErrMicroserviceRunFailed, "accepting connection", err)
		}
		go m.serveConn(conn)
	}
}

func (m *MicroService) serveConn(conn net.Conn) {
	defer conn.Close()
	for {
		h, body, err := readFrame(conn)
		if err != nil {
			return
		}
		req, err := decodeRequest(body)
		if err != nil {
			resp := errorToResponse(err)
			writeFrame(conn, h, encodeResponse(resp))
			continue
		}
		resp := m.Dispatcher.Router.dispatch(context.Background(), req, h)
		if err := writeFrame(conn, h, encodeResponse(resp)); err != nil {
			return
		}
	}
}

// ListenAddr returns the address Serve actually bound to, or "" if Serve
// hasn't bound a listener yet; useful for tests that bind to port 0 and
// need the ephemeral port that was assigned.
func (m *MicroService) ListenAddr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// Stop closes the listener, causing Serve to return.
func (m *MicroService) Stop() {
	m.mu.Lock()
	m.stopped = true
	lis := m.listener
	m.mu.Unlock()
	if lis != nil {
		lis.Close()
	}
}

// Builder creates a MicroService from one "microservices" array entry of a
// configtree.Tree, matching the teacher's per-node-role server wiring
// generalized to a config-driven factory.
type Builder func(name string, node *configtree.Tree, ds *DispatchersStore) (*MicroService, error)

// MicroServiceFactory builds and tracks the set of MicroServices described
// by a config tree, matching spec.md §4.6's microservice factory: each
// config entry's "type" field selects a registered Builder.
type MicroServiceFactory struct {
	mu        sync.Mutex
	builders  map[string]Builder
	instances map[string]*MicroService
}

// NewMicroServiceFactory builds an empty MicroServiceFactory.
func NewMicroServiceFactory() *MicroServiceFactory {
	return &MicroServiceFactory{builders: map[string]Builder{}, instances: map[string]*MicroService{}}
}

// RegisterBuilder binds typeName to b for later CreateAll calls.
func (f *MicroServiceFactory) RegisterBuilder(typeName string, b Builder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[typeName] = b
}

// CreateAll walks tree.GetTree("microservices").Items(), builds one
// MicroService per entry via its registered Builder, and returns the full
// set. An entry whose name is already taken (by an earlier entry or an
// earlier CreateAll call) is rejected with ErrDuplicateMicroservice; entries
// built before it stay registered with the factory.
func (f *MicroServiceFactory) CreateAll(tree *configtree.Tree, ds *DispatchersStore) ([]*MicroService, error) {
	node, err := tree.GetTree("microservices")
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*MicroService
	for _, item := range node.Items() {
		nameNode, ok := item.Child("name")
		if !ok {
			return nil, herr.New(herr.Base, herr.ErrRequiredConfigField, "microservice entry missing name")
		}
		name := nameNode.Scalar.Str

		typeNode, ok := item.Child("type")
		if !ok {
			return nil, herr.New(herr.Base, herr.ErrRequiredConfigField, "microservice entry missing type")
		}
		typeName := typeNode.Scalar.Str

		if _, exists := f.instances[name]; exists {
			return nil, herr.New(herr.Api, herr.ErrDuplicateMicroservice, "duplicate microservice name: "+name)
		}

		builder, ok := f.builders[typeName]
		if !ok {
			return nil, herr.New(herr.Api, herr.ErrMicroserviceCreateFail, "no builder registered for microservice type: "+typeName)
		}

		ms, err := builder(name, item, ds)
		if err != nil {
			return nil, herr.Wrap(herr.Api, herr.ErrMicroserviceCreateFail, "building microservice "+name, err)
		}
		f.instances[name] = ms
		out = append(out, ms)
	}
	return out, nil
}

// Get returns a previously created MicroService by name.
func (f *MicroServiceFactory) Get(name string) (*MicroService, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ms, ok := f.instances[name]
	return ms, ok
}
