// Package notify delivers best-effort operator notifications. Failures are
// logged, never propagated into the heartbeat path.
package notify

import "log"

// Notifier sends a one-line notification to the configured channel.
// Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(text string)
}

// Noop discards all notifications.
type Noop struct{}

var _ Notifier = (*Noop)(nil)

// Notify discards the message.
func (Noop) Notify(string) {}

// LogNotifier writes notifications to the given logger. Used when no chat
// channel is configured.
type LogNotifier struct {
	Logger *log.Logger
}

var _ Notifier = (*LogNotifier)(nil)

// Notify logs the message.
func (n *LogNotifier) Notify(text string) {
	if n.Logger != nil {
		n.Logger.Printf("NOTIFY: %s", text)
	}
}
