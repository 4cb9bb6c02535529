package scheduler_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/Kat4X/video-transcriber/internal/scheduler"
)

func nextWithin(t *testing.T, c *scheduler.Controller, d time.Duration) (*scheduler.Ticket, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return c.Next(ctx)
}

func TestAdmissionIsFIFO(t *testing.T) {
	c := scheduler.New(1)
	for _, id := range []string{"a", "b", "c"} {
		c.Enqueue(id)
	}
	for _, want := range []string{"a", "b", "c"} {
		ticket, err := nextWithin(t, c, time.Second)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if ticket.JobID != want {
			t.Fatalf("admitted %s, want %s", ticket.JobID, want)
		}
		ticket.Done()
	}
}

func TestLimitHoldsSecondJobUntilSlotReleased(t *testing.T) {
	c := scheduler.New(1)
	c.Enqueue("first")
	c.Enqueue("second")

	first, err := nextWithin(t, c, time.Second)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if _, err := nextWithin(t, c, 50*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected second admission to wait, got %v", err)
	}
	if queued, active, limit := c.Snapshot(); len(queued) != 1 || queued[0] != "second" || active != 1 || limit != 1 {
		t.Fatalf("unexpected snapshot queued=%v active=%d limit=%d", queued, active, limit)
	}

	admitted := make(chan *scheduler.Ticket, 1)
	go func() {
		ticket, err := c.Next(context.Background())
		if err == nil {
			admitted <- ticket
		}
	}()

	first.ReleaseSlot()
	select {
	case ticket := <-admitted:
		if ticket.JobID != "second" {
			t.Fatalf("unexpected admission %s", ticket.JobID)
		}
		ticket.Done()
	case <-time.After(time.Second):
		t.Fatal("second job was not admitted after slot release")
	}

	first.ReleaseSlot()
	first.Done()
	first.Done()
	if _, active, _ := c.Snapshot(); active != 0 {
		t.Fatalf("expected all slots free, got %d", active)
	}
}

func TestCancelQueuedJobDequeues(t *testing.T) {
	c := scheduler.New(1)
	c.Enqueue("a")
	c.Enqueue("b")
	c.Enqueue("c")

	if got := c.Cancel("b"); got != scheduler.Dequeued {
		t.Fatalf("Cancel(b) = %s, want dequeued", got)
	}
	var admitted []string
	for i := 0; i < 2; i++ {
		ticket, err := nextWithin(t, c, time.Second)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		admitted = append(admitted, ticket.JobID)
		ticket.Done()
	}
	if admitted[0] != "a" || admitted[1] != "c" {
		t.Fatalf("unexpected admission order %v", admitted)
	}
	if got := c.Cancel("b"); got != scheduler.Unknown {
		t.Fatalf("expected unknown after dequeue, got %s", got)
	}
}

func TestCancelRunningJobSignalsTicket(t *testing.T) {
	c := scheduler.New(2)
	c.Enqueue("job")
	ticket, err := nextWithin(t, c, time.Second)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if got := c.Cancel("job"); got != scheduler.Signalled {
		t.Fatalf("Cancel = %s, want signalled", got)
	}
	select {
	case <-ticket.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("ticket context not cancelled")
	}
	if cause := context.Cause(ticket.Context()); !errors.Is(cause, scheduler.ErrCancelRequested) {
		t.Fatalf("unexpected cause %v", cause)
	}
	ticket.Done()
	if got := c.Cancel("job"); got != scheduler.Unknown {
		t.Fatalf("expected unknown after Done, got %s", got)
	}
}

func TestNextHonoursContext(t *testing.T) {
	c := scheduler.New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}

func TestLimitFloorsAtOne(t *testing.T) {
	c := scheduler.New(0)
	if _, _, limit := c.Snapshot(); limit != 1 {
		t.Fatalf("expected limit 1, got %d", limit)
	}
}

func TestCancelAllSignalsRunning(t *testing.T) {
	c := scheduler.New(2)
	c.Enqueue("a")
	c.Enqueue("b")
	a, _ := nextWithin(t, c, time.Second)
	b, _ := nextWithin(t, c, time.Second)
	shutdown := errors.New("shutdown")
	c.CancelAll(shutdown)
	for _, ticket := range []*scheduler.Ticket{a, b} {
		if !errors.Is(context.Cause(ticket.Context()), shutdown) {
			t.Fatalf("expected shutdown cause for %s", ticket.JobID)
		}
		ticket.Done()
	}
	if len(c.Running()) != 0 {
		t.Fatal("expected no running tickets")
	}
}

func TestTicketOutlivesAdmissionContext(t *testing.T) {
	c := scheduler.New(1)
	c.Enqueue("job")
	ticket, err := nextWithin(t, c, time.Second)
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	defer ticket.Done()
	if err := ticket.Context().Err(); err != nil {
		t.Fatalf("ticket context ended with the admission wait: %v", err)
	}
}

func TestDeferredJobAdmittedWithoutSlot(t *testing.T) {
	c := scheduler.New(1)
	c.Enqueue("local")
	c.EnqueueDeferred("remote")

	local, err := nextWithin(t, c, time.Second)
	if err != nil || local.JobID != "local" {
		t.Fatalf("expected local admitted first, got %v %v", local, err)
	}
	remote, err := nextWithin(t, c, time.Second)
	if err != nil {
		t.Fatalf("deferred job must not wait for a slot: %v", err)
	}
	if remote.JobID != "remote" || remote.HoldsSlot() {
		t.Fatalf("expected slotless remote ticket, got %s holding=%v", remote.JobID, remote.HoldsSlot())
	}
	if !local.HoldsSlot() {
		t.Fatal("local ticket must hold its slot")
	}
	remote.Done()
	local.Done()
}

func TestAcquireSlotKeepsSubmissionOrder(t *testing.T) {
	c := scheduler.New(1)
	c.Enqueue("a")
	c.EnqueueDeferred("remote")
	c.Enqueue("b")

	a, _ := nextWithin(t, c, time.Second)
	remote, _ := nextWithin(t, c, time.Second)
	if a == nil || remote == nil || a.JobID != "a" || remote.JobID != "remote" {
		t.Fatalf("unexpected admissions %v %v", a, remote)
	}

	acquired := make(chan error, 1)
	go func() { acquired <- remote.AcquireSlot(context.Background()) }()
	waitForQueued(t, c, []string{"remote", "b"})

	a.Done()
	select {
	case err := <-acquired:
		if err != nil {
			t.Fatalf("AcquireSlot: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("earlier deferred job did not get the freed slot")
	}
	if _, err := nextWithin(t, c, 50*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("later job must wait behind the deferred one, got %v", err)
	}

	remote.ReleaseSlot()
	b, err := nextWithin(t, c, time.Second)
	if err != nil || b.JobID != "b" {
		t.Fatalf("expected b after release, got %v %v", b, err)
	}
	b.Done()
	remote.Done()
}

func TestAcquireSlotEndsWithCancel(t *testing.T) {
	c := scheduler.New(1)
	c.Enqueue("busy")
	c.EnqueueDeferred("remote")
	busy, _ := nextWithin(t, c, time.Second)
	remote, _ := nextWithin(t, c, time.Second)
	defer busy.Done()

	acquired := make(chan error, 1)
	go func() { acquired <- remote.AcquireSlot(remote.Context()) }()
	waitForQueued(t, c, []string{"remote"})

	if got := c.Cancel("remote"); got != scheduler.Signalled {
		t.Fatalf("Cancel = %s, want signalled", got)
	}
	select {
	case err := <-acquired:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancellation, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("AcquireSlot ignored cancellation")
	}
	if remote.HoldsSlot() {
		t.Fatal("cancelled waiter must not hold a slot")
	}
	remote.Done()
	if queued, active, _ := c.Snapshot(); len(queued) != 0 || active != 1 {
		t.Fatalf("unexpected snapshot queued=%v active=%d", queued, active)
	}
}

func waitForQueued(t *testing.T, c *scheduler.Controller, want []string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		queued, _, _ := c.Snapshot()
		if slices.Equal(queued, want) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("queued = %v, want %v", queued, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
