package progress

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Kat4X/video-transcriber/internal/jobs"
)

// DefaultBuffer is the per-subscriber queue depth used when none is configured.
const DefaultBuffer = 32

// Event is one progress update for a job.
type Event struct {
	Seq       int64         `json:"seq"`
	JobID     string        `json:"job_id"`
	State     jobs.State    `json:"status"`
	Progress  int           `json:"progress"`
	Message   string        `json:"message,omitempty"`
	Error     *jobs.Failure `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Terminal reports whether the event ends the job's stream.
func (e Event) Terminal() bool {
	return e.State.Terminal()
}

// EventFromJob builds an event describing the job's current record.
func EventFromJob(job *jobs.Job) Event {
	event := Event{
		JobID:     job.ID,
		State:     job.State,
		Progress:  job.Progress,
		Message:   job.Message,
		Timestamp: job.UpdatedAt,
	}
	if job.Error != nil {
		failure := *job.Error
		event.Error = &failure
	}
	return event
}

// Bus fans events out to per-job subscribers.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]*topic
	buffer int
}

type topic struct {
	mu   sync.Mutex
	seq  int64
	subs map[*Subscription]struct{}
}

// NewBus constructs a bus with the given per-subscriber buffer.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{topics: make(map[string]*topic), buffer: buffer}
}

// Subscribe attaches a new subscriber to the job's events. Only events
// published after the call are delivered.
func (b *Bus) Subscribe(jobID string) *Subscription {
	sub := &Subscription{jobID: jobID, bus: b, ch: make(chan Event, b.buffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	t, ok := b.topics[jobID]
	if !ok {
		t = &topic{subs: make(map[*Subscription]struct{})}
		b.topics[jobID] = t
	}
	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()
	sub.topic = t
	return sub
}

// Publish delivers the event to every subscriber of its job without blocking.
// A terminal event closes the subscribers' streams and retires the topic.
func (b *Bus) Publish(event Event) {
	if b == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if !event.Terminal() {
		b.mu.RLock()
		t, ok := b.topics[event.JobID]
		b.mu.RUnlock()
		if !ok {
			return
		}
		t.mu.Lock()
		t.seq++
		event.Seq = t.seq
		for sub := range t.subs {
			sub.offer(event)
		}
		t.mu.Unlock()
		return
	}

	b.mu.Lock()
	t, ok := b.topics[event.JobID]
	if ok {
		delete(b.topics, event.JobID)
	}
	b.mu.Unlock()
	if !ok {
		return
	}
	t.mu.Lock()
	t.seq++
	event.Seq = t.seq
	for sub := range t.subs {
		sub.offer(event)
		sub.closeLocked()
	}
	t.subs = nil
	t.mu.Unlock()
}

// Subscribers returns the number of live subscribers for a job.
func (b *Bus) Subscribers(jobID string) int {
	b.mu.RLock()
	t, ok := b.topics[jobID]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// Shutdown closes every open subscription so waiting observers fall back to
// the store.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	topics := b.topics
	b.topics = make(map[string]*topic)
	b.mu.Unlock()

	for _, t := range topics {
		t.mu.Lock()
		for sub := range t.subs {
			sub.closeLocked()
		}
		t.subs = nil
		t.mu.Unlock()
	}
}

func (b *Bus) detach(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := sub.topic
	t.mu.Lock()
	defer t.mu.Unlock()
	if sub.closed {
		return
	}
	delete(t.subs, sub)
	sub.closeLocked()
	if len(t.subs) == 0 && b.topics[sub.jobID] == t {
		delete(b.topics, sub.jobID)
	}
}

// Subscription is one subscriber's view of a job's events.
type Subscription struct {
	jobID   string
	bus     *Bus
	topic   *topic
	ch      chan Event
	closed  bool // guarded by topic.mu
	dropped atomic.Int64
}

// JobID returns the job the subscription follows.
func (s *Subscription) JobID() string {
	return s.jobID
}

// Events returns the event stream. The channel closes after the terminal
// event, on Close, or when the bus shuts down.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped reports how many events were discarded because the subscriber fell behind.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Close detaches the subscriber. It is idempotent and safe to call
// concurrently with Publish.
func (s *Subscription) Close() {
	if s == nil || s.bus == nil {
		return
	}
	s.bus.detach(s)
}

// offer enqueues without blocking, evicting the oldest pending event when the
// buffer is full. Callers hold topic.mu, so offer is the only sender.
func (s *Subscription) offer(event Event) {
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- event:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
	}
}

func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
