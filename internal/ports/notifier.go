package ports

import "context"

// Notifier delivers operator alerts. Delivery is fire-and-forget: callers
// log a failed Send and move on, they never escalate it.
type Notifier interface {
	Send(ctx context.Context, text string) error
}
