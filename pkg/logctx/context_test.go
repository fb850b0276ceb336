package logctx

import (
	"bytes"
	"testing"

	"github.com/hatn-go/hatn/pkg/dataunit/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnterCurrentRelease(t *testing.T) {
	ctx := New("worker", nil)
	before := Current()
	guard := Enter(ctx)
	assert.Same(t, ctx, Current())
	guard.Release()
	assert.Same(t, before, Current())
}

func TestNestedEnterRestoresPrevious(t *testing.T) {
	outer := New("outer", nil)
	inner := New("inner", outer)

	g1 := Enter(outer)
	g2 := Enter(inner)
	assert.Same(t, inner, Current())
	g2.Release()
	assert.Same(t, outer, Current())
	g1.Release()
}

func TestScopeStackVarsClearOnPop(t *testing.T) {
	ctx := New("scoped", nil)
	scope := ctx.EnterScope("step1")
	ctx.PushStackVar("key", value.String("v1"))

	s := ctx.snapshot()
	require.Len(t, s.stackVars, 1)
	assert.Equal(t, "step1", s.scopeName)

	scope.Leave()
	s2 := ctx.snapshot()
	assert.Empty(t, s2.stackVars)
	assert.Empty(t, s2.scopeName)
}

func TestDescribeScopeErrorClearsAfterEmit(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: Debug, JSONOutput: true, Output: &buf})

	ctx := New("errscope", nil)
	scope := ctx.EnterScope("step")
	ctx.DescribeScopeError("boom")

	Log(Error, ctx, "first", nil, "test")
	assert.Contains(t, buf.String(), "boom")

	buf.Reset()
	Log(Error, ctx, "second", nil, "test")
	assert.NotContains(t, buf.String(), "boom")
	scope.Leave()
}

func TestEffectiveLevelGating(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: Warn, JSONOutput: true, Output: &buf})

	ctx := New("gated", nil)
	Log(Info, ctx, "should be dropped", nil, "test")
	assert.Empty(t, buf.String())

	Log(Error, ctx, "should pass", nil, "test")
	assert.Contains(t, buf.String(), "should pass")
}

func TestModuleLevelOverride(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: Error, JSONOutput: true, Output: &buf})
	SetModuleLevel("verbose-module", Info)
	defer SetModuleLevel("verbose-module", Default)

	ctx := New("modlvl", nil)
	Log(Info, ctx, "module allows info", nil, "verbose-module")
	assert.Contains(t, buf.String(), "module allows info")
}

func TestLogCloseEmitsDuration(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: Info, JSONOutput: true, Output: &buf})

	ctx := New("closing", nil)
	LogClose(Info, nil, ctx, "done", nil, "test")
	assert.Contains(t, buf.String(), "duration_us")
}

func TestTagLevelAdmitsDebug(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: Info, JSONOutput: true, Output: &buf})
	SetTagLevel("trace-me", Debug)
	defer SetTagLevel("trace-me", Default)

	ctx := New("tagged", nil)
	ctx.Tag("trace-me")
	LogDebug(0, ctx, "debug via tag", nil, "test")
	assert.Contains(t, buf.String(), "debug via tag")
}

func TestScopeLevelOverride(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: Error, JSONOutput: true, Output: &buf})
	SetScopeLevel("hot-path", Info)
	defer UnsetScope("hot-path")

	ctx := New("scoped", nil)
	Log(Info, ctx, "dropped before scope", nil, "test")
	assert.Empty(t, buf.String())

	scope := ctx.EnterScope("hot-path")
	Log(Info, ctx, "allowed inside scope", nil, "test")
	assert.Contains(t, buf.String(), "allowed inside scope")
	scope.Leave()

	buf.Reset()
	Log(Info, ctx, "dropped after scope leaves", nil, "test")
	assert.Empty(t, buf.String())
}
