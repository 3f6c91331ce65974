package schedule

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestNextDelay_Ladder(t *testing.T) {
	want := []time.Duration{
		0,
		10 * time.Minute,
		2 * time.Hour,
		8 * time.Hour,
		24 * time.Hour,
		72 * time.Hour,
		120 * time.Hour,
	}
	for attempt, delay := range want {
		if got := NextDelay(attempt); got != delay {
			t.Errorf("NextDelay(%d): got %v, want %v", attempt, got, delay)
		}
	}
}

func TestNextDelay_ClampsToLastRung(t *testing.T) {
	last := Ladder[len(Ladder)-1]

	if got := NextDelay(100); got != last {
		t.Errorf("NextDelay(100): got %v, want last rung %v", got, last)
	}
	if got := NextDelay(len(Ladder)); got != last {
		t.Errorf("NextDelay(%d): got %v, want last rung %v", len(Ladder), got, last)
	}
	if got := NextDelay(-1); got != 0 {
		t.Errorf("NextDelay(-1): got %v, want 0", got)
	}
}

func TestExhausted(t *testing.T) {
	for attempt := 0; attempt < len(Ladder); attempt++ {
		if Exhausted(attempt) {
			t.Errorf("Exhausted(%d): got true, want false", attempt)
		}
	}
	if !Exhausted(len(Ladder)) {
		t.Errorf("Exhausted(%d): got false, want true", len(Ladder))
	}
	if !Exhausted(100) {
		t.Error("Exhausted(100): got false, want true")
	}
}

func TestClassify_PermanentDiscards(t *testing.T) {
	err := Permanent(ReasonPolicy, fmt.Errorf("spam rejected"))

	d := Classify(err, 3)
	if d.Retry {
		t.Fatal("permanent error classified as retryable")
	}
	if d.Reason != ReasonPolicy {
		t.Errorf("reason: got %q, want %q", d.Reason, ReasonPolicy)
	}
}

func TestClassify_WrappedPermanent(t *testing.T) {
	err := fmt.Errorf("pipeline stage failed: %w", Permanent(ReasonVirus, errors.New("Eicar-Test-Signature")))

	d := Classify(err, 0)
	if d.Retry {
		t.Fatal("wrapped permanent error classified as retryable")
	}
	if d.Reason != ReasonVirus {
		t.Errorf("reason: got %q, want %q", d.Reason, ReasonVirus)
	}
}

func TestClassify_TransientRetriesAtLadderDelay(t *testing.T) {
	err := errors.New("dial tcp: connection refused")

	d := Classify(err, 0)
	if !d.Retry {
		t.Fatal("transient error classified as unrecoverable")
	}
	if d.Delay != 0 {
		t.Errorf("first retry delay: got %v, want 0", d.Delay)
	}

	d = Classify(err, 2)
	if d.Delay != 2*time.Hour {
		t.Errorf("third retry delay: got %v, want 2h", d.Delay)
	}
}
