package events

import (
	"sync"
	"testing"
	"time"
)

func TestQueueDeliversInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []Event

	done := make(chan struct{})
	q := NewQueue(FuncSink(func(e Event) error {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		if len(got) == 3 {
			close(done)
		}
		return nil
	}))

	q.Write(Event{Type: TypePackageFetched, Name: "a"})
	q.Write(Event{Type: TypePackageFetched, Name: "b"})
	q.Write(Event{Type: TypePackageFetched, Name: "c"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for events to drain")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 || got[0].Name != "a" || got[1].Name != "b" || got[2].Name != "c" {
		t.Fatalf("got = %+v", got)
	}
}

func TestQueueWriteNeverBlocksOnSlowConsumer(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue(FuncSink(func(e Event) error {
		<-release
		return nil
	}))
	defer close(release)

	writeDone := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			q.Write(Event{Type: TypeStageCompleted, Name: "prepare"})
		}
		close(writeDone)
	}()

	select {
	case <-writeDone:
	case <-time.After(2 * time.Second):
		t.Fatal("writes blocked on slow consumer")
	}
}

func TestAsGoEventsSinkBoxesTypedEvents(t *testing.T) {
	got := make(chan Event, 1)
	q := NewQueue(FuncSink(func(e Event) error {
		got <- e
		return nil
	}))
	sink := AsGoEventsSink(q)

	if err := sink.Write(Event{Type: TypePackageFetched, Name: "a"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	select {
	case e := <-got:
		if e.Name != "a" {
			t.Fatalf("delivered %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	if err := sink.Write("not an Event"); err == nil {
		t.Fatal("expected error for a foreign event type")
	}
}

func TestQueueWriteAfterCloseFails(t *testing.T) {
	q := NewQueue(FuncSink(func(Event) error { return nil }))
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := q.Write(Event{}); err == nil {
		t.Fatal("expected error writing to closed queue")
	}
}
