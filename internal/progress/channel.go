package progress

import (
	"context"
	"sync"
	"sync/atomic"
)

// Publisher receives progress events for a job. Implementations must not
// block the caller on slow consumers.
type Publisher interface {
	Publish(ctx context.Context, jobID string, ev Event)
}

type PublisherFunc func(ctx context.Context, jobID string, ev Event)

func (f PublisherFunc) Publish(ctx context.Context, jobID string, ev Event) { f(ctx, jobID, ev) }

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(context.Context, string, Event) {})

// Tee fans each event out to every publisher in order.
func Tee(pubs ...Publisher) Publisher {
	return PublisherFunc(func(ctx context.Context, jobID string, ev Event) {
		for _, p := range pubs {
			p.Publish(ctx, jobID, ev)
		}
	})
}

const DefaultBuffer = 64

// Channel is an in-memory per-job registry of subscriptions. Delivery is
// at-most-once: an event is dropped for a subscriber whose buffer is full,
// and nothing is retained for subscribers that arrive later.
type Channel struct {
	mu   sync.Mutex
	jobs map[string]map[*Subscription]struct{}
}

func NewChannel() *Channel {
	return &Channel{jobs: make(map[string]map[*Subscription]struct{})}
}

type Subscription struct {
	jobID   string
	ch      chan Event
	parent  *Channel
	once    sync.Once
	dropped atomic.Int64
}

// Subscribe registers a subscriber for jobID. buffer <= 0 uses DefaultBuffer.
func (c *Channel) Subscribe(jobID string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &Subscription{
		jobID:  jobID,
		ch:     make(chan Event, buffer),
		parent: c,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	subs, ok := c.jobs[jobID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		c.jobs[jobID] = subs
	}
	subs[sub] = struct{}{}
	return sub
}

// Publish delivers ev to every current subscriber of jobID without blocking.
func (c *Channel) Publish(_ context.Context, jobID string, ev Event) {
	if ev.JobID == "" {
		ev.JobID = jobID
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for sub := range c.jobs[jobID] {
		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of live subscriptions for jobID.
func (c *Channel) Subscribers(jobID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs[jobID])
}

// Jobs returns the number of jobs with at least one subscriber.
func (c *Channel) Jobs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}

func (s *Subscription) Events() <-chan Event { return s.ch }

func (s *Subscription) JobID() string { return s.jobID }

// Dropped counts events discarded because the buffer was full.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Close unregisters the subscription and closes its event channel. The job's
// registry entry goes away with its last subscription. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		c := s.parent
		c.mu.Lock()
		defer c.mu.Unlock()
		if subs, ok := c.jobs[s.jobID]; ok {
			delete(subs, s)
			if len(subs) == 0 {
				delete(c.jobs, s.jobID)
			}
		}
		close(s.ch)
	})
}
