package db

import (
	"sync"

	"github.com/stratahq/strata/mask"
	"github.com/stratahq/strata/object"
	"github.com/stratahq/strata/pubsub"
	"go.uber.org/zap"
)

// subscriberEntry is one registered subscriber.
type subscriberEntry struct {
	id     uint64
	cb     pubsub.Subscriber
	filter mask.Filter
	queue  *pubsub.Queue
}

// validatorEntry is one registered validator; validators run in
// registration order.
type validatorEntry struct {
	id uint64
	fn pubsub.Validator
}

// notifier holds the subscriber and validator tables shared by resources
// and collections, and implements the publish fan-out. Its tables are guarded
// by its own mutex. Validation runs under the owning entry's lock; publish
// runs after that lock has been released, and queued dispatch runs on the
// goroutine that processes the queue.
type notifier struct {
	name string
	log  *zap.Logger

	mu          sync.Mutex // guards tables only; entries hold their own root lock
	nextID      uint64
	validators  []validatorEntry
	subscribers map[uint64]*subscriberEntry
}

func newNotifier(name string, log *zap.Logger) *notifier {
	return &notifier{name: name, log: log, subscribers: make(map[uint64]*subscriberEntry)}
}

func (n *notifier) addValidator(fn pubsub.Validator) *pubsub.Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	id := n.nextID
	n.validators = append(n.validators, validatorEntry{id: id, fn: fn})
	return pubsub.NewSubscription(func() { n.removeValidator(id) })
}

func (n *notifier) removeValidator(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, v := range n.validators {
		if v.id == id {
			n.validators = append(n.validators[:i], n.validators[i+1:]...)
			return
		}
	}
}

func (n *notifier) addSubscriber(cb pubsub.Subscriber, filter mask.Filter, q *pubsub.Queue) *pubsub.Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	id := n.nextID
	n.subscribers[id] = &subscriberEntry{id: id, cb: cb, filter: filter, queue: q}
	return pubsub.NewSubscription(func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.subscribers, id)
	})
}

func (n *notifier) subscriberCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subscribers)
}

func (n *notifier) clear() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscribers = make(map[uint64]*subscriberEntry)
	n.validators = nil
}

// validate runs the validators in registration order; the first failure
// wins.
func (n *notifier) validate(proposed *pubsub.Notification, old func() *object.Object) error {
	n.mu.Lock()
	validators := append([]validatorEntry(nil), n.validators...)
	n.mu.Unlock()

	for _, v := range validators {
		if err := v.fn(proposed, old); err != nil {
			return err
		}
	}
	return nil
}

// publish fans a notification out: immediate-queue subscribers run inline,
// every other queue gets one coalescing closure that re-scans that queue's
// subscribers on delivery.
func (n *notifier) publish(notification *pubsub.Notification) {
	n.mu.Lock()
	subs := make([]*subscriberEntry, 0, len(n.subscribers))
	for _, s := range n.subscribers {
		subs = append(subs, s)
	}
	n.mu.Unlock()

	emitPublish(n.name, notification)

	queued := make(map[*pubsub.Queue]bool)
	for _, s := range subs {
		if !s.filter.Overlaps(notification.Changes) {
			continue
		}
		if s.queue.IsImmediate() {
			s.cb(notification)
			continue
		}
		if queued[s.queue] {
			continue
		}
		queued[s.queue] = true
		origin := s.queue
		err := origin.Send(func() { n.dispatch(notification, origin) })
		if err != nil {
			emitQueueOverflow(n.name, origin.Name())
			n.log.Warn("notification dropped",
				zap.String("entry", n.name),
				zap.String("queue", origin.Name()),
				zap.Error(err))
		}
	}
}

// dispatch runs on a worker goroutine: it re-scans the subscriber table so
// callbacks added or removed since enqueue are honored, coalescing all
// matches for the origin queue into this one delivery.
func (n *notifier) dispatch(notification *pubsub.Notification, origin *pubsub.Queue) {
	n.mu.Lock()
	subs := make([]*subscriberEntry, 0, len(n.subscribers))
	for _, s := range n.subscribers {
		if s.queue == origin && s.filter.Overlaps(notification.Changes) {
			subs = append(subs, s)
		}
	}
	n.mu.Unlock()

	for _, s := range subs {
		s.cb(notification)
	}
}
