package scheduler

import (
	"cmp"
	"context"
	"errors"
	"math"
	"slices"
	"sync"
)

var (
	// ErrCancelRequested is the cancellation cause recorded on a ticket's context
	// when its job is cancelled through Cancel.
	ErrCancelRequested = errors.New("cancelled by request")
	// ErrShutdown is the cause used when the daemon stops with jobs in flight.
	ErrShutdown = errors.New("daemon shutting down")

	errTicketDone = errors.New("ticket already finished")
)

// CancelOutcome describes what Cancel found for a job.
type CancelOutcome int

const (
	// Unknown means the controller is not tracking the job.
	Unknown CancelOutcome = iota
	// Dequeued means the job was waiting and has been removed without running.
	Dequeued
	// Signalled means the job was admitted and its ticket context is cancelled.
	Signalled
)

func (o CancelOutcome) String() string {
	switch o {
	case Dequeued:
		return "dequeued"
	case Signalled:
		return "signalled"
	default:
		return "unknown"
	}
}

// Controller bounds concurrent heavy-stage execution. Jobs take slots in
// submission order. A deferred job is admitted without a slot so it can do
// light work, such as downloading, while other jobs hold slots; it claims one
// later through Ticket.AcquireSlot and keeps its place in line.
type Controller struct {
	mu      sync.Mutex
	limit   int
	active  int
	seq     uint64
	queue   []entry
	queued  map[string]struct{}
	waiting []*Ticket // admitted tickets blocked in AcquireSlot, by seq
	running map[string]*Ticket
	changed chan struct{}
}

type entry struct {
	jobID    string
	seq      uint64
	deferred bool
}

// New constructs a controller allowing limit concurrent slots (minimum 1).
func New(limit int) *Controller {
	if limit < 1 {
		limit = 1
	}
	return &Controller{
		limit:   limit,
		queued:  make(map[string]struct{}),
		running: make(map[string]*Ticket),
		changed: make(chan struct{}),
	}
}

// Enqueue appends a job that needs a slot before it starts. Enqueueing a job
// that is already queued or running is a no-op.
func (c *Controller) Enqueue(jobID string) {
	c.enqueue(jobID, false)
}

// EnqueueDeferred appends a job that starts without a slot and must call
// Ticket.AcquireSlot before its heavy stages.
func (c *Controller) EnqueueDeferred(jobID string) {
	c.enqueue(jobID, true)
}

func (c *Controller) enqueue(jobID string, deferred bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.queued[jobID]; ok {
		return
	}
	if _, ok := c.running[jobID]; ok {
		return
	}
	c.seq++
	c.queue = append(c.queue, entry{jobID: jobID, seq: c.seq, deferred: deferred})
	c.queued[jobID] = struct{}{}
	c.notifyLocked()
}

// Next blocks until a queued job can be admitted and returns its ticket.
// Deferred jobs are admitted at once; others wait for a free slot and for
// every earlier job to have taken one. ctx bounds only the wait: the ticket
// context ends through Cancel, CancelAll or Ticket.Done.
func (c *Controller) Next(ctx context.Context) (*Ticket, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c.mu.Lock()
		if ticket := c.admitLocked(); ticket != nil {
			c.mu.Unlock()
			return ticket, nil
		}
		wait := c.changed
		c.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
		}
	}
}

func (c *Controller) admitLocked() *Ticket {
	for i, e := range c.queue {
		if e.deferred {
			c.dequeueLocked(i)
			return c.startLocked(e, false)
		}
	}
	if len(c.queue) == 0 {
		return nil
	}
	head := c.queue[0]
	if c.active >= c.limit || c.firstClaimLocked() != head.seq {
		return nil
	}
	c.dequeueLocked(0)
	c.active++
	return c.startLocked(head, true)
}

func (c *Controller) startLocked(e entry, slot bool) *Ticket {
	tctx, cancel := context.WithCancelCause(context.Background())
	ticket := &Ticket{JobID: e.jobID, ctx: tctx, cancel: cancel, ctrl: c, seq: e.seq, slotHeld: slot}
	c.running[e.jobID] = ticket
	c.notifyLocked()
	return ticket
}

func (c *Controller) dequeueLocked(i int) {
	delete(c.queued, c.queue[i].jobID)
	c.queue = append(c.queue[:i], c.queue[i+1:]...)
}

// firstClaimLocked returns the seq of the earliest job still waiting for a
// slot, queued or admitted.
func (c *Controller) firstClaimLocked() uint64 {
	first := uint64(math.MaxUint64)
	if len(c.waiting) > 0 {
		first = c.waiting[0].seq
	}
	for _, e := range c.queue {
		if !e.deferred {
			first = min(first, e.seq)
			break
		}
	}
	return first
}

// Cancel removes a queued job or signals an admitted one.
func (c *Controller) Cancel(jobID string) CancelOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.queued[jobID]; ok {
		for i, e := range c.queue {
			if e.jobID == jobID {
				c.dequeueLocked(i)
				break
			}
		}
		c.notifyLocked()
		return Dequeued
	}
	if ticket, ok := c.running[jobID]; ok {
		ticket.cancel(ErrCancelRequested)
		return Signalled
	}
	return Unknown
}

// Snapshot reports the IDs of jobs waiting for a slot in submission order,
// the number of held slots, and the limit.
func (c *Controller) Snapshot() (queued []string, active int, limit int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := make([]entry, 0, len(c.queue)+len(c.waiting))
	pending = append(pending, c.queue...)
	for _, t := range c.waiting {
		pending = append(pending, entry{jobID: t.JobID, seq: t.seq})
	}
	slices.SortFunc(pending, func(a, b entry) int { return cmp.Compare(a.seq, b.seq) })
	queued = make([]string, 0, len(pending))
	for _, e := range pending {
		queued = append(queued, e.jobID)
	}
	return queued, c.active, c.limit
}

// Running returns the IDs of admitted jobs that have not finished.
func (c *Controller) Running() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.running))
	for id := range c.running {
		ids = append(ids, id)
	}
	return ids
}

// CancelAll signals every running ticket with the given cause.
func (c *Controller) CancelAll(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ticket := range c.running {
		ticket.cancel(cause)
	}
}

func (c *Controller) notifyLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// Ticket is an admitted job. It holds a slot from admission, or from
// AcquireSlot for deferred jobs, until ReleaseSlot or Done.
type Ticket struct {
	JobID string

	ctx      context.Context
	cancel   context.CancelCauseFunc
	ctrl     *Controller
	seq      uint64
	slotHeld bool // guarded by ctrl.mu
	done     bool // guarded by ctrl.mu
}

// Context is independent of the dispatcher's context and ends only through
// the controller or Done. context.Cause reports ErrCancelRequested for
// explicit cancellation.
func (t *Ticket) Context() context.Context {
	return t.ctx
}

// HoldsSlot reports whether the ticket currently holds a slot.
func (t *Ticket) HoldsSlot() bool {
	t.ctrl.mu.Lock()
	defer t.ctrl.mu.Unlock()
	return t.slotHeld
}

// AcquireSlot blocks until the ticket holds a slot. Slots go to waiting jobs
// in submission order, so a deferred job returning from its light work goes
// ahead of jobs submitted after it. It returns ctx.Err() if ctx ends first.
func (t *Ticket) AcquireSlot(ctx context.Context) error {
	c := t.ctrl
	c.mu.Lock()
	if t.slotHeld {
		c.mu.Unlock()
		return nil
	}
	if t.done {
		c.mu.Unlock()
		return errTicketDone
	}
	i, _ := slices.BinarySearchFunc(c.waiting, t.seq, func(w *Ticket, seq uint64) int { return cmp.Compare(w.seq, seq) })
	c.waiting = slices.Insert(c.waiting, i, t)
	for {
		if c.active < c.limit && c.firstClaimLocked() == t.seq {
			c.removeWaiterLocked(t)
			c.active++
			t.slotHeld = true
			c.notifyLocked()
			c.mu.Unlock()
			return nil
		}
		wait := c.changed
		c.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			c.mu.Lock()
			c.removeWaiterLocked(t)
			c.notifyLocked()
			c.mu.Unlock()
			return ctx.Err()
		}
		c.mu.Lock()
	}
}

func (c *Controller) removeWaiterLocked(t *Ticket) {
	if i := slices.Index(c.waiting, t); i >= 0 {
		c.waiting = slices.Delete(c.waiting, i, i+1)
	}
}

// ReleaseSlot gives the slot back once the job has left its heavy stages.
// It is idempotent.
func (t *Ticket) ReleaseSlot() {
	c := t.ctrl
	c.mu.Lock()
	defer c.mu.Unlock()
	t.releaseLocked()
}

// Done releases the slot if still held and stops tracking the job. It is idempotent.
func (t *Ticket) Done() {
	c := t.ctrl
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.done {
		return
	}
	t.done = true
	c.removeWaiterLocked(t)
	t.releaseLocked()
	if c.running[t.JobID] == t {
		delete(c.running, t.JobID)
	}
	t.cancel(context.Canceled)
}

func (t *Ticket) releaseLocked() {
	if !t.slotHeld {
		return
	}
	t.slotHeld = false
	t.ctrl.active--
	t.ctrl.notifyLocked()
}
