package id

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
	if id2.Compare(id1) <= 0 {
		t.Error("Monotonic IDs should be strictly increasing")
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"shell", "shell"},
		{"Shell (1)", "shell-1"},
		{"  build / logs  ", "build-logs"},
		{"日本語", SessionPrefix},
		{"", SessionPrefix},
		{"a-very-long-display-name-that-keeps-going", "a-very-long-display-name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slug(tt.name); got != tt.want {
				t.Errorf("Slug(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestNewSessionID(t *testing.T) {
	a := NewSessionID("shell")
	b := NewSessionID("shell")

	if a == b {
		t.Fatal("Sessions with the same name must get distinct IDs")
	}
	if !strings.HasPrefix(a.String(), "shell_") {
		t.Errorf("SessionID should start with 'shell_', got: %s", a)
	}
	if !IsValid(a.ULID()) {
		t.Errorf("ULID part should be valid: %s", a.ULID())
	}
}

func TestSessionIDTimestamp(t *testing.T) {
	before := time.Now()
	sid := NewSessionID("ts")
	after := time.Now()

	ts, err := Timestamp(sid)
	if err != nil {
		t.Fatalf("Failed to extract timestamp: %v", err)
	}

	// ULID timestamps have millisecond precision
	if ts.UnixMilli() < before.UnixMilli() || ts.UnixMilli() > after.UnixMilli() {
		t.Errorf("Timestamp %v outside [%v, %v]", ts, before, after)
	}

	if _, err := Timestamp(SessionID("garbage")); err == nil {
		t.Error("Malformed session id should not parse")
	}
}

func TestIsValid(t *testing.T) {
	invalidIDs := []string{
		"",
		"invalid",
		"1234567890",
		"zzzzzzzzzzzzzzzzzzzzzzzzzzz",
	}

	for _, id := range invalidIDs {
		if IsValid(id) {
			t.Errorf("ID should be invalid: %s", id)
		}
	}
}

func TestConnectionIDUnique(t *testing.T) {
	seen := make(map[ConnectionID]bool)
	for i := 0; i < 100; i++ {
		c := NewConnectionID()
		if seen[c] {
			t.Fatalf("Duplicate connection ID: %s", c)
		}
		seen[c] = true
	}
}

func TestConcurrentGeneration(t *testing.T) {
	const goroutines = 10
	const perGoroutine = 100

	var mu sync.Mutex
	var wg sync.WaitGroup
	seen := make(map[SessionID]bool)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				sid := NewSessionID("shell")
				mu.Lock()
				if seen[sid] {
					t.Errorf("Duplicate ID generated: %s", sid)
				}
				seen[sid] = true
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	if len(seen) != goroutines*perGoroutine {
		t.Errorf("Expected %d unique IDs, got %d", goroutines*perGoroutine, len(seen))
	}
}
