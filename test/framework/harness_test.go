package framework

import (
	"context"
	"testing"
	"time"

	"github.com/hatn-go/hatn/pkg/herr"
	"github.com/hatn-go/hatn/pkg/rpc"
)

func echoService() *rpc.ServerService {
	svc := rpc.NewServerService("echo")
	svc.AddMethod(&rpc.Method{
		Name: "Upper",
		Handler: func(_ context.Context, rc *rpc.RequestContext) ([]byte, error) {
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
	return svc
}

func TestHarnessCallRoundTrip(t *testing.T) {
	h := New(t)
	defer h.Stop()

	router := rpc.NewServiceRouter()
	router.Register(echoService())
	h.AddDispatcher("echo", "127.0.0.1:0", &rpc.ServiceDispatcher{Name: "main", Router: router})
	h.Start()

	assert := NewAssertions(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := h.Call(ctx, h.Addr("echo"), "echo", "Upper", "", []byte("hello"))
	assert.NoError(err, "Call")
	assert.ResponseOK(resp)
	assert.Equal("HELLO", string(resp.MessageBytes), "echoed body")
}

func TestHarnessCallUnknownMethod(t *testing.T) {
	h := New(t)
	defer h.Stop()

	router := rpc.NewServiceRouter()
	router.Register(echoService())
	h.AddDispatcher("echo", "127.0.0.1:0", &rpc.ServiceDispatcher{Name: "main", Router: router})
	h.Start()

	assert := NewAssertions(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resp, err := h.Call(ctx, h.Addr("echo"), "echo", "DoesNotExist", "", nil)
	assert.NoError(err, "Call")
	assert.ResponseError(resp, string(herr.ErrUnknownMethod))
}
