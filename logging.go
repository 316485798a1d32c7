package reactor

import (
	"io"
	"log/slog"

	"github.com/joeycumines/logiface"
	logifaceslog "github.com/joeycumines/logiface-slog"
)

// Logger is the narrow structured-logging surface used throughout the
// reactor package: Poller registration failures, Acceptor EMFILE and
// rate-limit events, Conn error/close events, and Server lifecycle
// transitions. It is satisfied by [NewLogifaceLogger] wrapping any
// *logiface.Logger[E], so embedders can plug in whichever logiface backend
// (slog, zerolog, logrus) they already use elsewhere in their program.
//
// The default, used when no WithLogger option is supplied, is a no-op.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// NewLogifaceLogger adapts a *logiface.Logger[E] (for any logiface event
// type E) to the reactor.Logger interface.
func NewLogifaceLogger[E logiface.Event](l *logiface.Logger[E]) Logger {
	return logifaceAdapter[E]{l: l}
}

type logifaceAdapter[E logiface.Event] struct {
	l *logiface.Logger[E]
}

func (a logifaceAdapter[E]) Debugf(format string, args ...any) {
	a.l.Debug().Logf(format, args...)
}

func (a logifaceAdapter[E]) Infof(format string, args ...any) {
	a.l.Info().Logf(format, args...)
}

func (a logifaceAdapter[E]) Warnf(format string, args ...any) {
	a.l.Warning().Logf(format, args...)
}

func (a logifaceAdapter[E]) Errorf(format string, args ...any) {
	a.l.Err().Logf(format, args...)
}

// NewDefaultLogger builds a Logger backed by log/slog's text handler
// writing to w, via logiface-slog. This is the logger a Server reaches
// for when it wants readable output without pulling in a third-party
// slog backend.
func NewDefaultLogger(w io.Writer) Logger {
	handler := slog.NewTextHandler(w, nil)
	l := logiface.New[*logifaceslog.Event](logifaceslog.NewLogger(handler, logifaceslog.WithLevel(logiface.LevelTrace)))
	return NewLogifaceLogger(l)
}

// noopLogger discards everything; it is the default when no Logger is
// configured, matching the teacher's NewNoOpLogger convention.
type noopLogger struct{}

// NewNoOpLogger returns a Logger that discards all output.
func NewNoOpLogger() Logger { return noopLogger{} }

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Infof(string, ...any)  {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}
