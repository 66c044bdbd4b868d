package rt

import (
	"testing"
)

func TestRingPushPop(t *testing.T) {
	r := NewRing[int](4)

	if _, ok := r.Pop(); ok {
		t.Error("Pop on empty ring reported a value")
	}

	for i := 1; i <= 3; i++ {
		if !r.Push(i) {
			t.Fatalf("Push(%d) failed on non-full ring", i)
		}
	}
	if got := r.Len(); got != 3 {
		t.Errorf("Len() = %d, want 3", got)
	}

	for i := 1; i <= 3; i++ {
		v, ok := r.Pop()
		if !ok || v != i {
			t.Errorf("Pop() = %d, %v, want %d, true", v, ok, i)
		}
	}
}

func TestRingDropsWhenFull(t *testing.T) {
	r := NewRing[int](4)
	for i := 0; i < 4; i++ {
		if !r.Push(i) {
			t.Fatalf("Push(%d) failed before capacity", i)
		}
	}
	if r.Push(99) {
		t.Error("Push succeeded on full ring")
	}
	if got := r.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}

	// Drain; the dropped entry must not appear.
	for i := 0; i < 4; i++ {
		v, ok := r.Pop()
		if !ok || v != i {
			t.Errorf("Pop() = %d, %v, want %d, true", v, ok, i)
		}
	}
	if _, ok := r.Pop(); ok {
		t.Error("drained ring still holds entries")
	}
}

func TestRingCapacityRoundsUp(t *testing.T) {
	r := NewRing[int](5)
	for i := 0; i < 8; i++ {
		if !r.Push(i) {
			t.Fatalf("Push(%d) failed, capacity did not round up to 8", i)
		}
	}
	if r.Push(8) {
		t.Error("Push succeeded beyond rounded capacity")
	}
}

func TestRingSingleProducerSingleConsumer(t *testing.T) {
	const n = 100000
	r := NewRing[int](1024)
	done := make(chan uint64)

	go func() {
		var got, last uint64
		for got < n {
			v, ok := r.Pop()
			if !ok {
				continue
			}
			if uint64(v) != last {
				t.Errorf("out of order: got %d, want %d", v, last)
				break
			}
			last++
			got++
		}
		done <- got
	}()

	for i := 0; i < n; {
		if r.Push(i) {
			i++
		}
	}

	if got := <-done; got != n {
		t.Errorf("consumer received %d entries, want %d", got, n)
	}
}
