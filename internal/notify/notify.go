// Package notify delivers new-event messages to the configured chat channels.
package notify

import "context"

// Channel is one outbound notification sink.
type Channel interface {
	Name() string
	Send(ctx context.Context, text string) error
}
