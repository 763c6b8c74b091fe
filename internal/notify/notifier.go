package notify

import (
	"context"
	"log"

	"closure-core/internal/events"
)

// Sender delivers a user-facing notification. Content and transport live
// outside this service; the default sender just logs.
type Sender interface {
	Send(ctx context.Context, accountID, kind string) error
}

// LogSender writes notifications to the service log.
type LogSender struct{}

func (LogSender) Send(_ context.Context, accountID, kind string) error {
	log.Printf("notify: %s for account %s", kind, accountID)
	return nil
}

// Notifier bridges closure events to the Sender. Only initiation and
// completion notify the user; intermediate failures stay in logs and the
// can_retry flag so a multi-day closure does not email on every tick.
type Notifier struct {
	sender Sender
	unsubs []func()
}

// New creates a Notifier; a nil sender falls back to LogSender.
func New(sender Sender) *Notifier {
	if sender == nil {
		sender = LogSender{}
	}
	return &Notifier{sender: sender}
}

// Start subscribes to the bus until Stop is called.
func (n *Notifier) Start(ctx context.Context, bus *events.Bus) {
	n.unsubs = append(n.unsubs,
		bus.SubscribeFunc(events.EventClosureInitiated, 8, func(payload any) {
			n.send(ctx, payload, "closure initiated")
		}),
		bus.SubscribeFunc(events.EventClosureCompleted, 8, func(payload any) {
			n.send(ctx, payload, "closure completed")
		}),
	)
}

// Stop unsubscribes from the bus.
func (n *Notifier) Stop() {
	for _, unsub := range n.unsubs {
		unsub()
	}
	n.unsubs = nil
}

func (n *Notifier) send(ctx context.Context, payload any, kind string) {
	accountID, ok := payload.(string)
	if !ok {
		return
	}
	if err := n.sender.Send(ctx, accountID, kind); err != nil {
		log.Printf("notify: send %s for %s: %v", kind, accountID, err)
	}
}
