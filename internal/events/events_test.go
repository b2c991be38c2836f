package events

import "testing"

func TestEmitterOrderPreserved(t *testing.T) {
	rec := NewRecordingPusher()
	e := NewEmitter("neg-1", rec)
	e.ResonanceActivated(nil)
	e.OfferReceived("a", "Agent A", "hi")
	e.BarrierComplete(1, 1, 0)
	e.PlanReady("done", 1, []string{"a"})

	got := rec.Events()
	want := []Type{TypeResonanceActivated, TypeOfferReceived, TypeBarrierComplete, TypePlanReady}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, e := range got {
		if e.EventType != want[i] {
			t.Fatalf("event[%d] = %s, want %s", i, e.EventType, want[i])
		}
		if e.NegotiationID != "neg-1" {
			t.Fatalf("event[%d].NegotiationID = %s, want neg-1", i, e.NegotiationID)
		}
	}
}

func TestChanPusherNonBlocking(t *testing.T) {
	p := NewChanPusher(1)
	p.Push(Event{EventType: TypePlanReady})
	p.Push(Event{EventType: TypePlanReady}) // should drop, not block
	if len(p.C) != 1 {
		t.Fatalf("len(C) = %d, want 1", len(p.C))
	}
}

func TestMultiPusherFansOut(t *testing.T) {
	a, b := NewRecordingPusher(), NewRecordingPusher()
	m := NewMultiPusher(a, b)
	m.Push(Event{EventType: TypePlanReady})
	if len(a.Events()) != 1 || len(b.Events()) != 1 {
		t.Fatalf("expected both sinks to receive the event")
	}
}
