package household

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logger is the structured logger used across the package. Messages are
// followed by key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// LoggerProvider hands out named loggers, one per component.
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// LoggerProviderFunc adapts a function to the LoggerProvider interface.
type LoggerProviderFunc func(name string) Logger

// GetLogger implements LoggerProvider.
func (f LoggerProviderFunc) GetLogger(name string) Logger {
	if f == nil {
		return nil
	}
	return f(name)
}

// ResolveLogger picks the logger for a named component. A logger returned by
// the provider wins, otherwise the fallback is used, otherwise the console
// logger. The returned provider always yields a non nil logger.
func ResolveLogger(name string, provider LoggerProvider, fallback Logger) (LoggerProvider, Logger) {
	if provider != nil {
		if lgr := provider.GetLogger(name); lgr != nil {
			return provider, lgr
		}
	}

	if fallback == nil {
		fallback = defLogger{name: name}
	}

	resolved := fallback
	return LoggerProviderFunc(func(string) Logger { return resolved }), resolved
}

// Config holds the session controller options that operators tune.
type Config interface {
	GetLoadingTimeout() time.Duration
	GetGuestHouseholdID() string
}

// Notification is a user facing message produced when a session operation
// succeeds or fails.
type Notification struct {
	Title       string
	Description string
	Destructive bool
}

// Notifier surfaces notifications to the viewer (toasts, flash messages).
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) {
	if f == nil {
		return
	}
	f(ctx, n)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Notification) {}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

// SessionMetrics receives session lifecycle measurements.
type SessionMetrics interface {
	RecordTransition(from, to SessionState)
	RecordHydration(outcome ResolveOutcome)
}

// PolicyMetrics receives access decisions.
type PolicyMetrics interface {
	RecordDecision(surface string, allowed bool)
}

type noopMetrics struct{}

func (noopMetrics) RecordTransition(SessionState, SessionState) {}
func (noopMetrics) RecordHydration(ResolveOutcome)              {}
func (noopMetrics) RecordDecision(string, bool)                 {}

type defLogger struct {
	name string
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print(d.line("ERR", msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print(d.line("WRN", msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print(d.line("INF", msg, args...))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print(d.line("DBG", msg, args...))
}

func (d defLogger) line(level, msg string, args ...any) string {
	var b strings.Builder
	b.WriteString("[" + level + "] HOUSEHOLD ")
	if d.name != "" {
		b.WriteString(d.name + ": ")
	}
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	b.WriteString("\n")
	return b.String()
}
