// Package logctx is the Task Context + Logger substrate described in
// spec.md §4.1.
//
//	ctx := logctx.New("worker", nil)
//	guard := logctx.Enter(ctx)
//	defer guard.Release()
//
//	scope := ctx.EnterScope("handle-request")
//	defer scope.Leave()
//
//	logctx.Log(logctx.Info, ctx, "request accepted", nil, "rpc")
package logctx
