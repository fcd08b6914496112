package logsvc

import (
	"fmt"
	"sort"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"
	"go.uber.org/zap"

	"github.com/trezcool/carematrix/core"
)

// RollbarLogger writes structured logs through zap and reports them to Rollbar.
type RollbarLogger struct {
	zl      *zap.SugaredLogger
	rollbar bool
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(zl *zap.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{zl: zl.Sugar(), rollbar: conf.RollbarToken != ""}
}

// NewZapLogger builds the process-wide zap logger: human-readable in debug, JSON otherwise.
func NewZapLogger(conf *core.Config) (*zap.Logger, error) {
	if conf.Debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// NewNop discards everything; for tests.
func NewNop() *RollbarLogger {
	return &RollbarLogger{zl: zap.NewNop().Sugar()}
}

func (l *RollbarLogger) Enable(enabled bool) {
	l.rollbar = enabled
	rollbar.SetEnabled(enabled)
}

// Sync flushes buffered log entries.
func (l *RollbarLogger) Sync() error {
	return l.zl.Sync()
}

// expected fmt: msg | error, map[string]interface{}, any printable value
func fields(args []interface{}) []interface{} {
	var kv []interface{}
	for i, arg := range args {
		switch a := arg.(type) {
		case error:
			kv = append(kv, "error", a.Error())
		case map[string]interface{}:
			keys := make([]string, 0, len(a))
			for k := range a {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				kv = append(kv, k, a[k])
			}
		default:
			kv = append(kv, fmt.Sprintf("arg%d", i), fmt.Sprintf("%+v", a))
		}
	}
	return kv
}

func (l *RollbarLogger) report(level string, msg string, args []interface{}) {
	if !l.rollbar {
		return
	}
	rollbar.Log(level, append([]interface{}{msg}, args...)...)
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	l.report(rollbar.DEBUG, msg, args)
	l.zl.Debugw(msg, fields(args)...)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	l.report(rollbar.INFO, msg, args)
	l.zl.Infow(msg, fields(args)...)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	l.report(rollbar.WARN, msg, args)
	l.zl.Warnw(msg, fields(args)...)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	l.report(rollbar.ERR, msg, args)
	l.zl.Errorw(msg, fields(args)...)
}

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.report(rollbar.CRIT, msg, args)
	rollbar.Wait()
	l.zl.Fatalw(msg, fields(args)...)
}
