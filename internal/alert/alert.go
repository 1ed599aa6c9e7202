// Package alert delivers best-effort operator notifications. Failures are
// logged and swallowed; an unreachable alert channel must never take the
// scheduler down with it.
package alert

import "context"

// Notifier pushes a human-readable message to the operators.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// Nop discards all notifications.
type Nop struct{}

func (Nop) Notify(context.Context, string) {}
