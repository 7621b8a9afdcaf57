// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package activity

import (
	"math/rand"
	"sync"
	"testing"
	"time"
)

func TestParseSignal(t *testing.T) {
	for _, s := range Signals {
		got, err := ParseSignal(" " + string(s) + " ")
		if err != nil {
			t.Fatalf("ParseSignal(%q) error = %v", s, err)
		}
		if got != s {
			t.Errorf("ParseSignal(%q) = %q", s, got)
		}
	}
	if _, err := ParseSignal("blink"); err == nil {
		t.Error("ParseSignal(blink) should fail")
	}
}

func TestTracker_RecordIsMonotonic(t *testing.T) {
	base := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	tr := NewTracker(func() time.Time { return base })

	rng := rand.New(rand.NewSource(7))
	newest := base
	for i := 0; i < 500; i++ {
		at := base.Add(time.Duration(rng.Intn(3600)) * time.Second)
		tr.RecordAt(Signals[i%len(Signals)], at)
		if at.After(newest) {
			newest = at
		}
		if got := tr.Last(); !got.Equal(newest) {
			t.Fatalf("step %d: Last() = %v, want most recent %v", i, got, newest)
		}
	}
}

func TestTracker_IdleAndReset(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	tr := NewTracker(func() time.Time { return now })

	now = now.Add(90 * time.Minute)
	if got := tr.Idle(); got != 90*time.Minute {
		t.Errorf("Idle() = %v, want 90m", got)
	}

	tr.Record(SignalKeyPress)
	if got := tr.Idle(); got != 0 {
		t.Errorf("Idle() after Record = %v, want 0", got)
	}
	if tr.LastSignal() != SignalKeyPress {
		t.Errorf("LastSignal() = %q", tr.LastSignal())
	}

	// A late signal from before the reset must not rewind it.
	stale := now.Add(-time.Minute)
	now = now.Add(time.Minute)
	tr.Reset()
	tr.RecordAt(SignalScroll, stale)
	if !tr.Last().Equal(now) {
		t.Errorf("Last() = %v, want %v", tr.Last(), now)
	}
	if tr.LastSignal() != "" {
		t.Errorf("LastSignal() after Reset = %q, want empty", tr.LastSignal())
	}
}

func TestTracker_Concurrent(t *testing.T) {
	tr := NewTracker(nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				tr.Record(SignalMouseMove)
				_ = tr.Idle()
			}
		}()
	}
	wg.Wait()
	if tr.Last().IsZero() {
		t.Error("Last() should be set")
	}
}
