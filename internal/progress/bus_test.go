package progress_test

import (
	"sync"
	"testing"
	"time"

	"github.com/Kat4X/video-transcriber/internal/jobs"
	"github.com/Kat4X/video-transcriber/internal/progress"
)

func collect(t *testing.T, sub *progress.Subscription) []progress.Event {
	t.Helper()
	var out []progress.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for stream to close")
		}
	}
}

func TestPublishWithoutSubscribersIsDropped(t *testing.T) {
	bus := progress.NewBus(4)
	bus.Publish(progress.Event{JobID: "a", State: jobs.StateExtracting, Progress: 20})
	bus.Publish(progress.Event{JobID: "a", State: jobs.StateCompleted, Progress: 100})
	if n := bus.Subscribers("a"); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}

func TestEverySubscriberGetsItsOwnCopy(t *testing.T) {
	bus := progress.NewBus(8)
	first := bus.Subscribe("job")
	second := bus.Subscribe("job")
	other := bus.Subscribe("other")
	defer other.Close()

	bus.Publish(progress.Event{JobID: "job", State: jobs.StateExtracting, Progress: 20})
	bus.Publish(progress.Event{JobID: "job", State: jobs.StateTranscribing, Progress: 25})
	bus.Publish(progress.Event{JobID: "job", State: jobs.StateCompleted, Progress: 100})

	for _, sub := range []*progress.Subscription{first, second} {
		events := collect(t, sub)
		if len(events) != 3 {
			t.Fatalf("expected 3 events, got %d", len(events))
		}
		if !events[2].Terminal() || events[2].Progress != 100 {
			t.Fatalf("expected terminal event last, got %#v", events[2])
		}
		if events[0].Seq >= events[1].Seq || events[1].Seq >= events[2].Seq {
			t.Fatalf("expected increasing sequence numbers: %#v", events)
		}
	}
	select {
	case ev := <-other.Events():
		t.Fatalf("unrelated subscriber received %#v", ev)
	default:
	}
	if bus.Subscribers("job") != 0 {
		t.Fatal("expected topic to retire after terminal event")
	}
}

func TestSlowSubscriberDropsOldestButKeepsTerminal(t *testing.T) {
	bus := progress.NewBus(3)
	sub := bus.Subscribe("job")

	for pct := 25; pct < 90; pct++ {
		bus.Publish(progress.Event{JobID: "job", State: jobs.StateTranscribing, Progress: pct})
	}
	bus.Publish(progress.Event{JobID: "job", State: jobs.StateFailed, Error: &jobs.Failure{Kind: jobs.KindCancelled}})

	events := collect(t, sub)
	if len(events) != 3 {
		t.Fatalf("expected buffer-sized tail, got %d events", len(events))
	}
	last := events[len(events)-1]
	if last.State != jobs.StateFailed || last.Error == nil || last.Error.Kind != jobs.KindCancelled {
		t.Fatalf("expected terminal failure delivered, got %#v", last)
	}
	if events[0].Progress != 88 || events[1].Progress != 89 {
		t.Fatalf("expected newest progress retained, got %#v", events)
	}
	if sub.Dropped() == 0 {
		t.Fatal("expected dropped counter to record evictions")
	}
}

func TestCloseIsIdempotentAndConcurrentSafe(t *testing.T) {
	bus := progress.NewBus(2)
	sub := bus.Subscribe("job")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			bus.Publish(progress.Event{JobID: "job", State: jobs.StateTranscribing, Progress: i % 100})
		}
	}()
	go func() {
		defer wg.Done()
		sub.Close()
		sub.Close()
	}()
	wg.Wait()

	collect(t, sub)
	if bus.Subscribers("job") != 0 {
		t.Fatal("expected subscriber to be detached")
	}
	sub.Close()
}

func TestSubscribeAfterTerminalSeesNothing(t *testing.T) {
	bus := progress.NewBus(2)
	early := bus.Subscribe("job")
	bus.Publish(progress.Event{JobID: "job", State: jobs.StateCompleted, Progress: 100})
	collect(t, early)

	late := bus.Subscribe("job")
	defer late.Close()
	select {
	case ev, ok := <-late.Events():
		t.Fatalf("late subscriber should not receive replayed events, got %#v ok=%v", ev, ok)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestShutdownClosesStreams(t *testing.T) {
	bus := progress.NewBus(2)
	sub := bus.Subscribe("job")
	bus.Shutdown()
	if events := collect(t, sub); len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
	sub.Close()
}

func TestEventFromJob(t *testing.T) {
	job := jobs.New("id", jobs.Source{Kind: jobs.SourceLocalFile, Path: "/a.mp4"}, jobs.Options{})
	job.Fail(jobs.KindTimeout, "deadline exceeded")
	ev := progress.EventFromJob(job)
	if !ev.Terminal() || ev.Error == nil || ev.Error.Kind != jobs.KindTimeout || ev.JobID != "id" {
		t.Fatalf("unexpected event %#v", ev)
	}
}
