package rpc

import (
	"context"
	"testing"
	"time"

	"github.com/hatn-go/hatn/pkg/configtree"
	"github.com/hatn-go/hatn/pkg/herr"
)

func echoService() *ServerService {
	svc := NewServerService("echo")
	svc.AddMethod(&Method{
		Name: "Upper",
		Handler: func(ctx context.Context, rc *RequestContext) ([]byte, error) {
			out := make([]byte, len(rc.Message))
			for i, b := range rc.Message {
				if b >= 'a' && b <= 'z' {
					b -= 'a' - 'A'
				}
				out[i] = b
			}
			return out, nil
		},
	})
	svc.AddMethod(&Method{
		Name: "Boom",
		Handler: func(ctx context.Context, rc *RequestContext) ([]byte, error) {
			return nil, herr.New(herr.Api, herr.ErrInvalidArg, "boom requested")
		},
	})
	return svc
}

func startTestMicroService(t *testing.T) (*MicroService, string) {
	t.Helper()
	router := NewServiceRouter()
	router.Register(echoService())
	dispatcher := &ServiceDispatcher{Name: "main", Router: router}

	ms := NewMicroService("test", "127.0.0.1:0", dispatcher, nil, nil)

	lnErrCh := make(chan error, 1)
	go func() {
		lnErrCh <- ms.Serve()
	}()

	// Serve binds the listener synchronously before accepting; poll briefly
	// for ms.listener to appear rather than sleeping a fixed duration.
	deadline := time.Now().Add(2 * time.Second)
	for {
		ms.mu.Lock()
		lis := ms.listener
		ms.mu.Unlock()
		if lis != nil {
			t.Cleanup(ms.Stop)
			return ms, lis.Addr().String()
		}
		if time.Now().After(deadline) {
			t.Fatalf("microservice never started listening")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestExecRequestOK(t *testing.T) {
	_, addr := startTestMicroService(t)

	client := NewClient(nil)
	defer client.Close()
	router := NewRouter(RouterNone, []string{addr}, nil)
	session := NewSession(client, router, nil)
	sc := session.Service("echo")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := sc.Call(ctx, "Upper", "", "", []byte("hello"))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if !resp.OK {
		t.Fatalf("response not OK: %+v", resp)
	}
	if string(resp.MessageBytes) != "HELLO" {
		t.Fatalf("got %q", resp.MessageBytes)
	}
}

func TestExecRequestUnknownMethod(t *testing.T) {
	_, addr := startTestMicroService(t)

	client := NewClient(nil)
	defer client.Close()
	router := NewRouter(RouterNone, []string{addr}, nil)
	session := NewSession(client, router, nil)
	sc := session.Service("echo")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := sc.Call(ctx, "DoesNotExist", "", "", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.OK {
		t.Fatalf("expected error response")
	}
	if resp.ErrorCode != string(herr.ErrUnknownMethod) {
		t.Fatalf("got error code %q, want %q", resp.ErrorCode, herr.ErrUnknownMethod)
	}
}

func TestExecRequestUnknownService(t *testing.T) {
	_, addr := startTestMicroService(t)

	client := NewClient(nil)
	defer client.Close()
	router := NewRouter(RouterNone, []string{addr}, nil)
	session := NewSession(client, router, nil)
	sc := session.Service("nosuch")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := sc.Call(ctx, "Upper", "", "", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.OK || resp.ErrorCode != string(herr.ErrUnknownService) {
		t.Fatalf("got %+v", resp)
	}
}

func TestExecRequestHandlerError(t *testing.T) {
	_, addr := startTestMicroService(t)

	client := NewClient(nil)
	defer client.Close()
	router := NewRouter(RouterNone, []string{addr}, nil)
	session := NewSession(client, router, nil)
	sc := session.Service("echo")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := sc.Call(ctx, "Boom", "", "", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if resp.OK || resp.ErrorCode != string(herr.ErrInvalidArg) {
		t.Fatalf("got %+v", resp)
	}
}

func TestRouterFallbackPorts(t *testing.T) {
	r := NewRouter(RouterAppendFallbackPorts, []string{"a.example.com", "b.example.com"}, []int{80, 443})
	out, err := r.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{"a.example.com:80", "a.example.com:443", "b.example.com:80", "b.example.com:443"}
	if len(out) != len(want) {
		t.Fatalf("got %v want %v", out, want)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("got %v want %v", out, want)
		}
	}
}

func TestCreateAllDuplicateMicroserviceName(t *testing.T) {
	tree, err := configtree.Parse([]byte(`{
		"microservices": [
			{"name": "api", "type": "echo"},
			{"name": "api", "type": "echo"}
		]
	}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	factory := NewMicroServiceFactory()
	factory.RegisterBuilder("echo", func(name string, node *configtree.Tree, ds *DispatchersStore) (*MicroService, error) {
		return NewMicroService(name, "127.0.0.1:0", nil, nil, nil), nil
	})

	_, err = factory.CreateAll(tree, NewDispatchersStore())
	herrErr, ok := err.(*herr.Error)
	if !ok {
		t.Fatalf("expected *herr.Error, got %T (%v)", err, err)
	}
	if herrErr.Code != herr.ErrDuplicateMicroservice {
		t.Fatalf("got error code %q, want %q", herrErr.Code, herr.ErrDuplicateMicroservice)
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	req := &Request{ServiceName: "svc", MethodName: "m", MessageTypeName: "t", Topic: "topic", Auth: []byte("tok"), MessageBytes: []byte("payload")}
	raw := encodeRequest(req)
	got, err := decodeRequest(raw)
	if err != nil {
		t.Fatalf("decodeRequest: %v", err)
	}
	if got.ServiceName != req.ServiceName || got.MethodName != req.MethodName || string(got.Auth) != string(req.Auth) || string(got.MessageBytes) != string(req.MessageBytes) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
