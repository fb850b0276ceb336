package framework

import (
	"context"
	"strings"
	"time"

	"github.com/hatn-go/hatn/pkg/rpc"
)

// Assertions provides test assertion helpers, retargeted from the
// teacher's service/task/cluster checks (ServiceExists, TaskRunning,
// HasLeader, QuorumSize, NodeCount...) onto RPC response and error-code
// checks, since this runtime has no services/tasks/nodes of its own.
type Assertions struct {
	t TestingT
}

// NewAssertions creates a new Assertions instance.
func NewAssertions(t TestingT) *Assertions {
	return &Assertions{t: t}
}

// ResponseOK asserts that an RPC response succeeded.
func (a *Assertions) ResponseOK(resp *rpc.Response) {
	a.t.Helper()
	if resp == nil {
		a.t.Fatalf("response is nil")
		return
	}
	if !resp.OK {
		a.t.Fatalf("response not OK: code=%s", resp.ErrorCode)
	}
}

// ResponseError asserts that an RPC response failed with the given error code.
func (a *Assertions) ResponseError(resp *rpc.Response, wantCode string) {
	a.t.Helper()
	if resp == nil {
		a.t.Fatalf("response is nil")
		return
	}
	if resp.OK {
		a.t.Fatalf("expected error response with code %s, got OK", wantCode)
	}
	if resp.ErrorCode != wantCode {
		a.t.Fatalf("got error code %q, want %q", resp.ErrorCode, wantCode)
	}
}

// Eventually repeatedly runs a condition until it returns true or timeout occurs.
func (a *Assertions) Eventually(condition func() bool, timeout, interval time.Duration, msg string) {
	a.t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.t.Fatalf("Timeout waiting for condition: %s (timeout: %v)", msg, timeout)
		case <-ticker.C:
			if condition() {
				return
			}
		}
	}
}

// NoError asserts that the error is nil.
func (a *Assertions) NoError(err error, msg string) {
	a.t.Helper()
	if err != nil {
		a.t.Fatalf("%s: %v", msg, err)
	}
}

// Error asserts that the error is not nil.
func (a *Assertions) Error(err error, msg string) {
	a.t.Helper()
	if err == nil {
		a.t.Fatalf("%s: expected error but got nil", msg)
	}
}

// Equal asserts that two values are equal.
func (a *Assertions) Equal(expected, actual interface{}, msg string) {
	a.t.Helper()
	if expected != actual {
		a.t.Fatalf("%s: expected %v, got %v", msg, expected, actual)
	}
}

// True asserts that a condition is true.
func (a *Assertions) True(condition bool, msg string) {
	a.t.Helper()
	if !condition {
		a.t.Fatalf("%s: expected true, got false", msg)
	}
}

// False asserts that a condition is false.
func (a *Assertions) False(condition bool, msg string) {
	a.t.Helper()
	if condition {
		a.t.Fatalf("%s: expected false, got true", msg)
	}
}

// Contains asserts that a string contains a substring.
func (a *Assertions) Contains(haystack, needle, msg string) {
	a.t.Helper()
	if !strings.Contains(haystack, needle) {
		a.t.Fatalf("%s: expected %q to contain %q", msg, haystack, needle)
	}
}

// Len asserts that a slice has a specific length.
func (a *Assertions) Len(n, expected int, msg string) {
	a.t.Helper()
	if n != expected {
		a.t.Fatalf("%s: expected length %d, got %d", msg, expected, n)
	}
}

// Step logs a test step (for visibility in test output).
func (a *Assertions) Step(step string) {
	a.t.Helper()
	a.t.Logf("\n==> %s", step)
}
