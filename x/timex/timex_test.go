package timex

import (
	"testing"
	"time"
)

func TestFakeSleepAdvances(t *testing.T) {
	start := time.Unix(1000, 0)
	f := NewFake(start)
	f.Sleep(200 * time.Millisecond)
	f.Sleep(-time.Second)
	if got := f.Now().Sub(start); got != 200*time.Millisecond {
		t.Fatalf("advanced %v", got)
	}
	if f.Slept() != 200*time.Millisecond {
		t.Fatalf("slept %v", f.Slept())
	}
}

func TestDeadline(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	start := f.Now()
	if Deadline(f, start, time.Second) {
		t.Fatal("deadline reached too early")
	}
	f.Advance(time.Second)
	if !Deadline(f, start, time.Second) {
		t.Fatal("deadline not reached")
	}
}
