// Package logctx implements the Task Context + Logger substrate (spec.md
// §4.1): a composite context carrying scope stack, stack/global variables
// and tags, bound implicitly to the calling goroutine, layered over the
// zerolog logger the way pkg/log wires the package-wide logger and
// pkg/scheduler consumes it as a per-component child logger.
package logctx

import (
	"sync"
	"time"

	"github.com/hatn-go/hatn/pkg/dataunit/value"
)

// Record is one (name, Value) pair attached to a log call.
type Record struct {
	Name  string
	Value value.Value
}

// R is a short constructor for Record, used at call sites.
func R(name string, v value.Value) Record { return Record{Name: name, Value: v} }

type scopeFrame struct {
	name      string
	vars      map[string]value.Value
	errorText string
}

// Context is a Task Context (spec.md §4.1): a named sub-context with its
// own level/debug-verbosity override, tag set, scope stack and global
// variables. Contexts nest only through explicit parent pointers; the
// "current" context per goroutine is tracked by enter/Guard, not by this
// struct itself.
type Context struct {
	ID     value.ObjectID
	Name   string
	Parent *Context

	mu          sync.Mutex
	level       Level
	verbosity   int
	tags        map[string]struct{}
	scopes      []*scopeFrame
	globalVars  map[string]value.Value
	startedAt   time.Time
}

// New creates a Task Context named name, optionally nested under parent.
func New(name string, parent *Context) *Context {
	return &Context{
		ID:         value.NewObjectID(),
		Name:       name,
		Parent:     parent,
		level:      Default,
		verbosity:  0,
		tags:       map[string]struct{}{},
		globalVars: map[string]value.Value{},
		startedAt:  time.Now(),
	}
}

// SetLevel overrides this context's own level component.
func (c *Context) SetLevel(l Level) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.level = l
}

// SetDebugVerbosity overrides this context's debug verbosity component.
func (c *Context) SetDebugVerbosity(v int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verbosity = v
}

// Tag adds a tag to this context; tags are set once and then only read by
// the effective-level computation, so re-adding an existing tag is a no-op.
func (c *Context) Tag(tag string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags[tag] = struct{}{}
}

// SetGlobalVar sets a variable emitted with every record until Unset.
func (c *Context) SetGlobalVar(name string, v value.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.globalVars[name] = v
}

// UnsetGlobalVar removes a previously set global variable.
func (c *Context) UnsetGlobalVar(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.globalVars, name)
}

// Duration reports how long this context has been alive, for logClose's
// duration_us record.
func (c *Context) Duration() time.Duration {
	return time.Since(c.startedAt)
}

// ScopeGuard is returned by EnterScope; Leave pops the scope.
type ScopeGuard struct {
	ctx *Context
}

// EnterScope pushes a named scope frame, returning a guard whose Leave pops
// it (spec.md §4.1 enterScope/leaveScope).
func (c *Context) EnterScope(name string) ScopeGuard {
	c.mu.Lock()
	c.scopes = append(c.scopes, &scopeFrame{name: name, vars: map[string]value.Value{}})
	c.mu.Unlock()
	return ScopeGuard{ctx: c}
}

// Leave pops the scope this guard opened. Safe to call multiple times.
func (g ScopeGuard) Leave() {
	c := g.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.scopes) == 0 {
		return
	}
	c.scopes = c.scopes[:len(c.scopes)-1]
}

// DescribeScopeError attaches text to the top-of-stack scope without
// popping it; the text rides along with the next error/close record emitted
// through this context and is cleared when that scope is popped.
func (c *Context) DescribeScopeError(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.scopes) == 0 {
		return
	}
	c.scopes[len(c.scopes)-1].errorText = text
}

// PushStackVar sets a variable scoped to the current top-of-stack scope; it
// is dropped automatically when that scope is popped. If no scope is open,
// it falls back to a global variable.
func (c *Context) PushStackVar(name string, v value.Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.scopes) == 0 {
		c.globalVars[name] = v
		return
	}
	c.scopes[len(c.scopes)-1].vars[name] = v
}

// snapshot captures everything the logger needs to render one record,
// taken under the context's lock so concurrent mutation can't race the
// caller building the zerolog event.
type snapshot struct {
	tags       []string
	scopeName  string
	scopeErr   string
	stackVars  []Record
	globalVars []Record
	level      Level
	verbosity  int
}

func (c *Context) snapshot() snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := snapshot{level: c.level, verbosity: c.verbosity}
	for t := range c.tags {
		s.tags = append(s.tags, t)
	}
	for _, fr := range c.scopes {
		for n, v := range fr.vars {
			s.stackVars = append(s.stackVars, Record{Name: n, Value: v})
		}
	}
	if len(c.scopes) > 0 {
		top := c.scopes[len(c.scopes)-1]
		s.scopeName = top.name
		s.scopeErr = top.errorText
	}
	for n, v := range c.globalVars {
		s.globalVars = append(s.globalVars, Record{Name: n, Value: v})
	}
	return s
}

// clearScopeError clears the top scope's attached error text once it has
// been emitted in a record, per spec.md §4.1.
func (c *Context) clearScopeError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.scopes) == 0 {
		return
	}
	c.scopes[len(c.scopes)-1].errorText = ""
}

var mainContext = New("main", nil)

// Main is the process-wide fallback context used when no context is bound
// to the calling goroutine.
func Main() *Context { return mainContext }

var (
	bindingsMu sync.Mutex
	bindings   = map[uint64][]*Context{}
)

// Guard is returned by Enter; Release restores the previously bound context.
type Guard struct {
	gid uint64
}

// Enter binds ctx as the "current" Task Context for the calling goroutine,
// returning a guard that restores whatever was bound before (spec.md §4.1).
// Safe for concurrent use across goroutines; each goroutine has its own
// binding stack.
func Enter(ctx *Context) Guard {
	gid := goroutineID()
	bindingsMu.Lock()
	bindings[gid] = append(bindings[gid], ctx)
	bindingsMu.Unlock()
	return Guard{gid: gid}
}

// Release pops the binding this guard pushed.
func (g Guard) Release() {
	bindingsMu.Lock()
	defer bindingsMu.Unlock()
	stack := bindings[g.gid]
	if len(stack) == 0 {
		return
	}
	stack = stack[:len(stack)-1]
	if len(stack) == 0 {
		delete(bindings, g.gid)
	} else {
		bindings[g.gid] = stack
	}
}

// Current returns the Task Context bound to the calling goroutine, falling
// back to Main() if none is bound.
func Current() *Context {
	gid := goroutineID()
	bindingsMu.Lock()
	defer bindingsMu.Unlock()
	stack := bindings[gid]
	if len(stack) == 0 {
		return mainContext
	}
	return stack[len(stack)-1]
}

var (
	registryMu   sync.Mutex
	moduleLevels = map[string]Level{}
	tagLevels    = map[string]Level{}
	scopeLevels  = map[string]Level{}
)

// SetModuleLevel configures the per-module level component of the
// effective-level computation.
func SetModuleLevel(module string, l Level) {
	registryMu.Lock()
	defer registryMu.Unlock()
	moduleLevels[module] = l
}

// SetTagLevel configures the per-tag level component.
func SetTagLevel(tag string, l Level) {
	registryMu.Lock()
	defer registryMu.Unlock()
	tagLevels[tag] = l
}

// SetScopeLevel configures the level override for a named scope (the name
// passed to EnterScope), the fourth component of the effective-level
// computation: whichever scope is on top of a context's stack at log time
// contributes its registered level the same way a tag or module does.
func SetScopeLevel(scope string, l Level) {
	registryMu.Lock()
	defer registryMu.Unlock()
	scopeLevels[scope] = l
}

// UnsetScope removes a previously registered scope-level override.
func UnsetScope(scope string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(scopeLevels, scope)
}

// defaultLevel is the process default effective level is clamped to when
// every other component resolves to Default (zerolog's own level drives
// actual filtering beneath this).
var defaultLevel = Info

// SetDefaultLevel changes the process-wide default.
func SetDefaultLevel(l Level) {
	registryMu.Lock()
	defer registryMu.Unlock()
	defaultLevel = l
}

func effectiveLevel(module string, s snapshot) (Level, int) {
	lookup := func(m map[string]Level, key string) Level {
		if l, ok := m[key]; ok {
			return l
		}
		return Default
	}
	registryMu.Lock()
	def := defaultLevel
	modLvl := lookup(moduleLevels, module)
	lvl := maxLevel(s.level, modLvl)
	for _, t := range s.tags {
		lvl = maxLevel(lvl, lookup(tagLevels, t))
	}
	if s.scopeName != "" {
		lvl = maxLevel(lvl, lookup(scopeLevels, s.scopeName))
	}
	registryMu.Unlock()

	if lvl == Default {
		lvl = def
	}
	verbosity := s.verbosity
	return lvl, verbosity
}

func shouldLog(requested Level, module string, s snapshot, requestedVerbosity int) bool {
	eff, effVerbosity := effectiveLevel(module, s)
	if requested > eff {
		return false
	}
	if requested == Debug && requestedVerbosity > effVerbosity {
		return false
	}
	return true
}
