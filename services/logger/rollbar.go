package logsvc

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/aula/core"
	"github.com/trezcool/aula/core/user"
)

// Role names the component a logger reports for. It prefixes every line and tags every item.
type Role string

const (
	RoleAPI   Role = "API"
	RoleDB    Role = "DB"
	RoleAdmin Role = "ADMIN"
)

// stack frames between report/print and the caller of a level method
const (
	reportSkip = 3
	printDepth = 4
)

type RollbarLogger struct {
	role      Role
	std       *log.Logger
	client    *rollbar.Client
	canReport bool
}

var _ core.Logger = (*RollbarLogger)(nil)

// NewRollbarLogger writes lines to out and reports items through its own rollbar client,
// so loggers never share notifier state.
func NewRollbarLogger(role Role, out io.Writer, conf *core.Config) *RollbarLogger {
	client := rollbar.NewAsync(conf.RollbarToken, conf.Env, conf.Build, conf.Server.Host, "")
	client.SetStackTracer(errors.StackTracer)
	client.SetEnabled(conf.RollbarToken != "")
	return &RollbarLogger{
		role:      role,
		std:       log.New(out, string(role)+" : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		client:    client,
		canReport: conf.RollbarToken != "",
	}
}

// Enable turns reporting on or off. Nothing is reported without a token.
func (l *RollbarLogger) Enable(enabled bool) {
	l.client.SetEnabled(enabled && l.canReport)
}

// entry holds the arguments of one log call, sorted by kind.
type entry struct {
	ctx    context.Context
	req    *http.Request
	err    error
	extras map[string]interface{}
	others []interface{}
}

// expected args: error, map[string]interface{}, user.User, *http.Request, context.Context.
// The first error is reported; maps are merged into the item's custom data.
func (l *RollbarLogger) parse(args []interface{}) entry {
	e := entry{
		ctx:    context.Background(),
		extras: map[string]interface{}{"logger": string(l.role)},
	}
	var person *rollbar.Person
	for _, arg := range args {
		switch v := arg.(type) {
		case user.User:
			if person == nil && v.ID != 0 { // only one User
				person = &rollbar.Person{Id: strconv.Itoa(v.ID), Username: v.Name, Email: v.Email}
			}
		case *http.Request:
			e.req = v
		case context.Context:
			e.ctx = v
		case error:
			if e.err == nil {
				e.err = v
			} else {
				e.others = append(e.others, v.Error())
			}
		case map[string]interface{}:
			for k, val := range v {
				e.extras[k] = val
			}
		default:
			e.others = append(e.others, v)
		}
	}
	if person != nil {
		e.ctx = rollbar.NewPersonContext(e.ctx, person)
	}
	if len(e.others) > 0 {
		e.extras["args"] = e.others
	}
	return e
}

func (l *RollbarLogger) report(level, msg string, e entry) {
	if e.err == nil {
		if e.req != nil {
			l.client.RequestMessageWithExtrasAndContext(e.ctx, level, e.req, msg, e.extras)
		} else {
			l.client.MessageWithExtrasAndContext(e.ctx, level, msg, e.extras)
		}
		return
	}

	e.extras["message"] = msg
	if e.req != nil {
		l.client.RequestErrorWithStackSkipWithExtrasAndContext(e.ctx, level, e.req, e.err, reportSkip, e.extras)
	} else {
		l.client.ErrorWithStackSkipWithExtrasAndContext(e.ctx, level, e.err, reportSkip, e.extras)
	}
}

func (l *RollbarLogger) print(msg string, e entry) {
	_ = l.std.Output(printDepth, msg)
	if e.err != nil {
		_ = l.std.Output(printDepth, fmt.Sprintf("%+v", e.err))
	}
	for k, v := range e.extras {
		if k != "logger" {
			_ = l.std.Output(printDepth, fmt.Sprintf("%s: %+v", k, v))
		}
	}
}

func (l *RollbarLogger) log(level, msg string, args []interface{}) {
	e := l.parse(args)
	l.print(msg, e)
	l.report(level, msg, e)
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	l.log(rollbar.DEBUG, msg, args)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	l.log(rollbar.INFO, msg, args)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	l.log(rollbar.WARN, msg, args)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	l.log(rollbar.ERR, msg, args)
}

// Fatal reports, waits for pending items and exits.
func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.log(rollbar.CRIT, msg, args)
	l.client.Wait()
	l.std.Fatal(msg)
}
