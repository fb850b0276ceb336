package logctx

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global zerolog sink every Task Context logs through,
// mirroring pkg/log's package-level Logger variable.
var Logger zerolog.Logger

// Config configures the global logger, same shape as pkg/log.Config.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger and the process default level.
func Init(cfg Config) {
	SetDefaultLevel(cfg.Level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	zerolog.SetGlobalLevel(zerolog.TraceLevel) // gating happens in shouldLog, not zerolog

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

func init() {
	Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func zlevel(l Level) zerolog.Level {
	switch l {
	case Critical, Error:
		return zerolog.ErrorLevel
	case Warn:
		return zerolog.WarnLevel
	case Info:
		return zerolog.InfoLevel
	case Debug:
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

func applyRecord(e *zerolog.Event, r Record) *zerolog.Event {
	return e.Str(r.Name, r.Value.String2())
}

// log emits one record through ctx at level, iff the effective level admits
// it. Never panics: a degraded backend becomes a silent no-op (spec.md
// §4.1 failure model).
func Log(level Level, ctx *Context, msg string, records []Record, module string) {
	logWithVerbosity(level, 0, ctx, msg, records, module)
}

// logDebug is the Debug-level entry point carrying an explicit verbosity.
func LogDebug(verbosity int, ctx *Context, msg string, records []Record, module string) {
	logWithVerbosity(Debug, verbosity, ctx, msg, records, module)
}

func logWithVerbosity(level Level, verbosity int, ctx *Context, msg string, records []Record, module string) {
	defer func() { recover() }()
	if ctx == nil {
		ctx = Current()
	}
	s := ctx.snapshot()
	if !shouldLog(level, module, s, verbosity) {
		return
	}
	emit(ctx, s, level, nil, msg, records, module, false, false, "")
}

// logError is log plus a carried cause, emitted as an "error" field.
func LogError(level Level, err error, ctx *Context, msg string, records []Record, module string) {
	defer func() { recover() }()
	if ctx == nil {
		ctx = Current()
	}
	s := ctx.snapshot()
	if !shouldLog(level, module, s, 0) {
		return
	}
	emit(ctx, s, level, err, msg, records, module, false, false, "")
}

// logClose emits a final record for ctx carrying its elapsed duration in
// microseconds (spec.md §4.1).
func LogClose(level Level, err error, ctx *Context, msg string, records []Record, module string) {
	defer func() { recover() }()
	if ctx == nil {
		ctx = Current()
	}
	s := ctx.snapshot()
	if !shouldLog(level, module, s, 0) {
		return
	}
	emit(ctx, s, level, err, msg, records, module, true, false, "")
}

// logCloseApi is logClose plus an API-visible status string.
func LogCloseApi(level Level, err error, ctx *Context, msg string, records []Record, module, apiStatus string) {
	defer func() { recover() }()
	if ctx == nil {
		ctx = Current()
	}
	s := ctx.snapshot()
	if !shouldLog(level, module, s, 0) {
		return
	}
	emit(ctx, s, level, err, msg, records, module, true, true, apiStatus)
}

func emit(ctx *Context, s snapshot, level Level, err error, msg string, records []Record, module string, closing, api bool, apiStatus string) {
	ev := Logger.WithLevel(zlevel(level))
	ev = ev.Str("task_id", ctx.ID.String()).Str("task_name", ctx.Name)
	if module != "" {
		ev = ev.Str("module", module)
	}
	if s.scopeName != "" {
		ev = ev.Str("scope", s.scopeName)
	}
	for _, t := range s.tags {
		ev = ev.Str("tag", t)
	}
	for _, r := range s.stackVars {
		ev = applyRecord(ev, r)
	}
	for _, r := range s.globalVars {
		ev = applyRecord(ev, r)
	}
	for _, r := range records {
		ev = applyRecord(ev, r)
	}
	if s.scopeErr != "" {
		ev = ev.Str("scope_error", s.scopeErr)
		ctx.clearScopeError()
	}
	if err != nil {
		ev = ev.Err(err)
	}
	if closing {
		ev = ev.Int64("duration_us", ctx.Duration().Microseconds())
	}
	if api {
		ev = ev.Str("api_status", apiStatus)
	}
	ev.Msg(msg)
}
