package pubsub

import "sync"

// Subscription is the handle returned when registering a subscriber or
// validator. Dropping it via Close removes the registration; Close is
// idempotent and safe from any goroutine.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// NewSubscription wraps a cancel function in a handle.
func NewSubscription(cancel func()) *Subscription {
	return &Subscription{cancel: cancel}
}

// Close removes the subscription.
func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Group collects subscriptions for collective release.
type Group struct {
	mu   sync.Mutex
	subs []*Subscription
}

// Add tracks a subscription in the group.
func (g *Group) Add(s *Subscription) {
	g.mu.Lock()
	g.subs = append(g.subs, s)
	g.mu.Unlock()
}

// Close releases every tracked subscription.
func (g *Group) Close() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
}
