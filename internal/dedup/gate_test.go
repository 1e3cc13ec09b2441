package dedup

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestGate_AdmitOnce(t *testing.T) {
	gate := NewGate(time.Minute)
	defer gate.Stop()

	if !gate.Admit("5511999999999_1700000000") {
		t.Fatal("first Admit should succeed")
	}
	if gate.Admit("5511999999999_1700000000") {
		t.Error("second Admit for same key should be rejected")
	}
	if gate.Len() != 1 {
		t.Errorf("Len() = %d, want 1", gate.Len())
	}
}

func TestGate_DistinctKeys(t *testing.T) {
	gate := NewGate(time.Minute)
	defer gate.Stop()

	if !gate.Admit("a_1") {
		t.Error("a_1 should be admitted")
	}
	if !gate.Admit("a_2") {
		t.Error("a_2 should be admitted (different timestamp)")
	}
	if !gate.Admit("b_1") {
		t.Error("b_1 should be admitted (different sender)")
	}
}

func TestGate_TTLEviction(t *testing.T) {
	gate := NewGate(30 * time.Millisecond)
	defer gate.Stop()

	if !gate.Admit("key") {
		t.Fatal("first Admit should succeed")
	}
	if gate.Admit("key") {
		t.Fatal("duplicate within TTL should be rejected")
	}

	// Eviction happens regardless of processing completion.
	time.Sleep(60 * time.Millisecond)

	if !gate.Admit("key") {
		t.Error("Admit should succeed after TTL eviction")
	}
}

func TestGate_EmptyKey(t *testing.T) {
	gate := NewGate(time.Minute)
	defer gate.Stop()

	// Empty keys are never tracked.
	if !gate.Admit("") {
		t.Error("empty key should pass through")
	}
	if !gate.Admit("") {
		t.Error("empty key should pass through every time")
	}
	if gate.Len() != 0 {
		t.Errorf("Len() = %d, want 0", gate.Len())
	}
}

func TestGate_Stop(t *testing.T) {
	gate := NewGate(time.Minute)
	gate.Admit("key")
	gate.Stop()

	if gate.Len() != 0 {
		t.Errorf("Len() after Stop = %d, want 0", gate.Len())
	}
	if gate.Admit("other") {
		t.Error("Admit after Stop should be rejected")
	}
}

func TestGate_ConcurrentAdmit(t *testing.T) {
	gate := NewGate(time.Minute)
	defer gate.Stop()

	const workers = 16
	var admitted int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if gate.Admit("contested") {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 1 {
		t.Errorf("admitted = %d, want exactly 1", admitted)
	}
}

func TestGate_ManyKeys(t *testing.T) {
	gate := NewGate(time.Minute)
	defer gate.Stop()

	for i := 0; i < 100; i++ {
		if !gate.Admit(fmt.Sprintf("sender_%d", i)) {
			t.Fatalf("key %d should be admitted", i)
		}
	}
	if gate.Len() != 100 {
		t.Errorf("Len() = %d, want 100", gate.Len())
	}
}
