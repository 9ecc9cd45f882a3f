// Package notifier pushes human-facing alerts for the events an operator
// wants to hear about immediately: entries, exits, halts.
package notifier

import "context"

type Notifier interface {
	Notify(ctx context.Context, title, body string) error
}

// Multi fans a notification out to several sinks, keeping the first error.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, title, body string) error {
	var first error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, title, body); err != nil && first == nil {
			first = err
		}
	}
	return first
}
