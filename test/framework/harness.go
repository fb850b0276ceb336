package framework

import (
	"context"
	"os"
	"time"

	"github.com/hatn-go/hatn/pkg/db"
	"github.com/hatn-go/hatn/pkg/rpc"
)

// Harness is the black-box fixture: a temp-directory-backed store plus a
// set of MicroServices built through the same DispatchersStore/
// MicroServiceFactory mechanism cmd/hatnd uses, dialed with pkg/rpc.Client.
// Where the teacher's Cluster owned VMs running a whole orchestrator
// binary, a Harness owns MicroServices directly: no process boundary is
// needed to exercise the RPC framework end to end.
type Harness struct {
	t TestingT

	Store   *db.Store
	DS      *rpc.DispatchersStore
	Factory *rpc.MicroServiceFactory

	services []*rpc.MicroService
	dataDir  string
}

// New opens a Harness backed by a fresh temp directory store, removed on
// Stop.
func New(t TestingT) *Harness {
	t.Helper()
	dir, err := os.MkdirTemp("", "hatn-harness-")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	store, err := db.Open(dir)
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	return &Harness{
		t:       t,
		Store:   store,
		DS:      rpc.NewDispatchersStore(),
		Factory: rpc.NewMicroServiceFactory(),
		dataDir: dir,
	}
}

// RegisterBuilder exposes the factory's builder registration, matching
// cmd/hatnd's own "echo"/"jobsched"/"mq" builder wiring, so a test's
// config-tree-driven scenario can reuse it without duplicating the
// factory API.
func (h *Harness) RegisterBuilder(typeName string, b rpc.Builder) {
	h.Factory.RegisterBuilder(typeName, b)
}

// AddDispatcher registers one ServiceDispatcher and tracks a MicroService
// bound to addr (use "127.0.0.1:0" to let the OS pick a free port),
// mirroring rpc_test.go's startTestMicroService but kept available for
// external packages to use against the black-box harness.
func (h *Harness) AddDispatcher(name, addr string, dispatcher *rpc.ServiceDispatcher) *rpc.MicroService {
	h.DS.RegisterDispatcher(dispatcher)
	ms := rpc.NewMicroService(name, addr, dispatcher, nil, nil)
	h.services = append(h.services, ms)
	return ms
}

// Start serves every MicroService added so far and blocks until each one
// has bound its listener, so callers can dial it immediately afterward.
func (h *Harness) Start() {
	h.t.Helper()
	errCh := make(chan error, len(h.services))
	for _, ms := range h.services {
		ms := ms
		go func() {
			if err := ms.Serve(); err != nil {
				errCh <- err
			}
		}()
	}

	deadline := time.Now().Add(5 * time.Second)
	for _, ms := range h.services {
		for ms.ListenAddr() == "" {
			select {
			case err := <-errCh:
				h.t.Fatalf("microservice %s failed to start: %v", ms.Name, err)
			default:
			}
			if time.Now().After(deadline) {
				h.t.Fatalf("microservice %s never started listening", ms.Name)
			}
			time.Sleep(time.Millisecond)
		}
	}
}

// Addr returns the bound address of the named MicroService, once Start
// has returned.
func (h *Harness) Addr(name string) string {
	for _, ms := range h.services {
		if ms.Name == name {
			return ms.ListenAddr()
		}
	}
	return ""
}

// Dial builds a session against one or more MicroService addresses, ready
// to call Service(name) the way a production client would.
func (h *Harness) Dial(addrs ...string) (*rpc.Client, *rpc.Session) {
	client := rpc.NewClient(nil)
	router := rpc.NewRouter(rpc.RouterNone, addrs, nil)
	return client, rpc.NewSession(client, router, nil)
}

// Call is a one-shot convenience wrapper: dial addr, call service.method
// with body as the message and topic as the envelope topic, then close
// the connection.
func (h *Harness) Call(ctx context.Context, addr, service, method, topic string, body []byte) (*rpc.Response, error) {
	client := rpc.NewClient(nil)
	defer client.Close()
	router := rpc.NewRouter(rpc.RouterNone, []string{addr}, nil)
	session := rpc.NewSession(client, router, nil)
	return session.Service(service).Call(ctx, method, "", topic, body)
}

// Stop closes every MicroService and the store, then removes the temp
// data directory.
func (h *Harness) Stop() {
	for _, ms := range h.services {
		ms.Stop()
	}
	h.Store.Close()
	os.RemoveAll(h.dataDir)
}
