package trigger

import (
	"errors"
	"testing"
	"time"
)

var now = time.Date(2025, 9, 1, 9, 0, 0, 0, time.UTC)

func TestScheduleAndFire(t *testing.T) {
	var tr Trigger
	if _, err := tr.Schedule(now, now); !errors.Is(err, ErrInvalidTrigger) {
		t.Fatalf("expected past run time to be rejected, got %v", err)
	}
	tr, err := tr.Schedule(now.Add(time.Hour), now)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if tr.State != Scheduled || tr.Due(now) {
		t.Fatalf("unexpected trigger %+v", tr)
	}
	if !tr.Due(now.Add(time.Hour)) {
		t.Fatalf("trigger should be due at its run time")
	}
	done := tr.Complete(now.Add(time.Hour))
	if done.State != Done || done.Due(now.Add(2*time.Hour)) {
		t.Fatalf("completed trigger %+v", done)
	}
}

func TestCancel(t *testing.T) {
	var tr Trigger
	if _, err := tr.Cancel(now); !errors.Is(err, ErrInvalidTrigger) {
		t.Fatalf("cancel of idle trigger should fail, got %v", err)
	}
	tr, _ = tr.Schedule(now.Add(time.Minute), now)
	tr, err := tr.Cancel(now)
	if err != nil || tr.State != NotScheduled || tr.RunAt != nil {
		t.Fatalf("cancel: %+v %v", tr, err)
	}
}

func TestFailAndReset(t *testing.T) {
	tr, _ := Trigger{}.Schedule(now.Add(time.Minute), now)
	failed := tr.Fail(now.Add(time.Minute), errors.New("no rooms"))
	if failed.State != NotScheduled || failed.LastError != "no rooms" {
		t.Fatalf("unexpected failed trigger %+v", failed)
	}
	if r := failed.Reset(now); r.LastError != "" || r.RunAt != nil {
		t.Fatalf("reset should clear everything, got %+v", r)
	}
}

func TestParseState(t *testing.T) {
	for in, want := range map[string]State{"DIJADWALKAN": Scheduled, "done": Done, "": NotScheduled, "BELUM_DIJADWALKAN": NotScheduled} {
		got, err := ParseState(in)
		if err != nil || got != want {
			t.Fatalf("%q: got %s %v", in, got, err)
		}
	}
	if _, err := ParseState("running"); err == nil {
		t.Fatalf("expected error")
	}
}
