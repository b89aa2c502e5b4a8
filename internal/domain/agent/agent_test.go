package agent

import (
	"testing"
	"time"
)

var testNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestNewDefaults(t *testing.T) {
	a := New("a1", Info{Name: "Ana", ExpertiseTags: []string{"mobile"}}, 0, testNow)

	if a.Status != StatusAvailable {
		t.Fatalf("expected available, got %s", a.Status)
	}
	if a.ActiveChats != 0 {
		t.Fatalf("expected 0 active chats, got %d", a.ActiveChats)
	}
	if a.MaxChats != DefaultMaxChats {
		t.Fatalf("expected max chats %d, got %d", DefaultMaxChats, a.MaxChats)
	}
	if !a.LastSeen.Equal(testNow) {
		t.Fatalf("expected last seen %v, got %v", testNow, a.LastSeen)
	}
}

func TestCloneDoesNotAliasTags(t *testing.T) {
	a := New("a1", Info{ExpertiseTags: []string{"mobile"}}, 5, testNow)
	c := a.Clone()
	c.ExpertiseTags[0] = "laptop"

	if a.ExpertiseTags[0] != "mobile" {
		t.Fatalf("clone mutated original tags: %v", a.ExpertiseTags)
	}
}

// checkInvariant asserts the capacity invariant after a load mutation.
func checkInvariant(t *testing.T, a *Agent, step int) {
	t.Helper()
	if a.ActiveChats < 0 || a.ActiveChats > a.MaxChats {
		t.Fatalf("step %d: active chats %d out of [0,%d]", step, a.ActiveChats, a.MaxChats)
	}
	busy := a.Status == StatusBusy
	if busy != (a.ActiveChats >= a.MaxChats) {
		t.Fatalf("step %d: status %s with %d/%d chats", step, a.Status, a.ActiveChats, a.MaxChats)
	}
}

func TestCapacityInvariantOverSequences(t *testing.T) {
	// +1 for increment, -1 for decrement.
	sequences := map[string][]int{
		"fill and drain":   {1, 1, 1, 1, 1, -1, -1, -1, -1, -1},
		"overfill":         {1, 1, 1, 1, 1, 1, 1, 1},
		"underflow":        {-1, -1, 1, -1, -1},
		"oscillate at cap": {1, 1, 1, 1, 1, -1, 1, -1, 1, 1, 1},
		"mixed":            {1, -1, 1, 1, -1, -1, -1, 1, 1, 1, 1, 1, 1, -1},
	}

	for name, ops := range sequences {
		t.Run(name, func(t *testing.T) {
			a := New("a1", Info{}, 5, testNow)
			for i, op := range ops {
				if op > 0 {
					a.Increment(testNow)
				} else {
					a.Decrement(testNow)
				}
				checkInvariant(t, &a, i)
			}
		})
	}
}

func TestIncrementRefusedAtCapacity(t *testing.T) {
	a := New("a1", Info{}, 2, testNow)
	if !a.Increment(testNow) || !a.Increment(testNow) {
		t.Fatal("expected first two increments to succeed")
	}
	if a.Increment(testNow) {
		t.Fatal("expected increment at capacity to be refused")
	}
	if a.ActiveChats != 2 {
		t.Fatalf("expected 2 active chats, got %d", a.ActiveChats)
	}
	if a.Status != StatusBusy {
		t.Fatalf("expected busy, got %s", a.Status)
	}
}

func TestDecrementRestoresAvailable(t *testing.T) {
	a := New("a1", Info{}, 1, testNow)
	a.Increment(testNow)
	a.Decrement(testNow)

	if a.Status != StatusAvailable {
		t.Fatalf("expected available after release, got %s", a.Status)
	}
}

func TestDecrementKeepsAway(t *testing.T) {
	a := New("a1", Info{}, 3, testNow)
	a.Increment(testNow)
	a.SetStatus(StatusAway, testNow)
	a.Decrement(testNow)

	if a.Status != StatusAway {
		t.Fatalf("expected away to be kept, got %s", a.Status)
	}
}

func TestSetStatusAvailableAtCapacity(t *testing.T) {
	a := New("a1", Info{}, 1, testNow)
	a.Increment(testNow)
	a.SetStatus(StatusAvailable, testNow.Add(time.Minute))

	if a.Status != StatusBusy {
		t.Fatalf("expected busy at capacity, got %s", a.Status)
	}
	if !a.LastSeen.Equal(testNow.Add(time.Minute)) {
		t.Fatal("expected last seen refreshed")
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		input   string
		want    Status
		wantErr bool
	}{
		{"available", StatusAvailable, false},
		{"busy", StatusBusy, false},
		{"away", StatusAway, false},
		{"offline", StatusOffline, false},
		{"sleeping", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseStatus(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseStatus(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseStatus(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
