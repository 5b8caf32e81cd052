package session

import (
	"context"
	"net/netip"
	"sync"
	"testing"
	"time"
)

func TestRegistry_FindOrCreate(t *testing.T) {
	created := 0
	reg := NewRegistry(context.Background(), newFakeSender(), Options{
		OnCreate: func(*Session) { created++ },
	})

	a1, ok := reg.FindOrCreate(peerA)
	if !ok {
		t.Fatal("first lookup should create")
	}
	a2, ok := reg.FindOrCreate(peerA)
	if ok || a2 != a1 {
		t.Fatal("second lookup should return the existing session")
	}
	b, ok := reg.FindOrCreate(peerB)
	if !ok || b == a1 {
		t.Fatal("a different address needs its own session")
	}
	if reg.Len() != 2 || created != 2 {
		t.Errorf("len = %d, created = %d, want 2/2", reg.Len(), created)
	}
	if a1.ID() == b.ID() {
		t.Error("session IDs should be unique")
	}
}

// TestRegistry_ConcurrentFindOrCreate hammers one address from many
// goroutines: exactly one of them may see created=true.
func TestRegistry_ConcurrentFindOrCreate(t *testing.T) {
	reg := NewRegistry(context.Background(), newFakeSender(), Options{})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		seen    = map[*Session]bool{}
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, ok := reg.FindOrCreate(peerA)
			mu.Lock()
			defer mu.Unlock()
			seen[s] = true
			if ok {
				created++
			}
		}()
	}
	wg.Wait()

	if created != 1 || len(seen) != 1 {
		t.Errorf("created = %d, distinct sessions = %d, want 1/1", created, len(seen))
	}
}

func TestRegistry_Deliver(t *testing.T) {
	reg := NewRegistry(context.Background(), newFakeSender(), Options{})

	s, created, accepted := reg.Deliver(peerA, []byte{1})
	if !created || !accepted {
		t.Fatalf("first delivery: created=%v accepted=%v", created, accepted)
	}
	s2, created, accepted := reg.Deliver(peerA, []byte{2})
	if created || !accepted || s2 != s {
		t.Fatalf("second delivery should reuse the session")
	}
	if s.Pending() != 2 {
		t.Errorf("pending = %d, want 2", s.Pending())
	}
}

// TestRegistry_CrossPeerIsolation interleaves two peers and checks
// neither sees the other's datagrams.
func TestRegistry_CrossPeerIsolation(t *testing.T) {
	reg := NewRegistry(context.Background(), newFakeSender(), Options{})

	for i := 0; i < 10; i++ {
		reg.Deliver(peerA, []byte{'a', byte(i)})
		reg.Deliver(peerB, []byte{'b', byte(i)})
	}

	for _, tc := range []struct {
		addr netip.AddrPort
		tag  byte
	}{{peerA, 'a'}, {peerB, 'b'}} {
		s, ok := reg.Get(tc.addr)
		if !ok {
			t.Fatalf("no session for %v", tc.addr)
		}
		for i := 0; i < 10; i++ {
			b, err := readWithin(t, s, time.Second)
			if err != nil {
				t.Fatal(err)
			}
			if b[0] != tc.tag || b[1] != byte(i) {
				t.Errorf("%v read %d = %q", tc.addr, i, b)
			}
		}
		if s.Pending() != 0 {
			t.Errorf("%v has %d extra datagrams", tc.addr, s.Pending())
		}
	}
}

func TestRegistry_CloseThenNewSession(t *testing.T) {
	reg := NewRegistry(context.Background(), newFakeSender(), Options{})

	old, _, _ := reg.Deliver(peerA, []byte("first"))
	old.Close() //nolint:errcheck

	fresh, created, _ := reg.Deliver(peerA, []byte("second"))
	if !created || fresh == old {
		t.Fatal("a datagram after Close should create a new session")
	}
	if old.Pending() != 1 {
		t.Error("the closed session must not receive new datagrams")
	}

	// A stale Close must not evict the replacement.
	old.Close() //nolint:errcheck
	if cur, ok := reg.Get(peerA); !ok || cur != fresh {
		t.Error("stale close evicted the live session")
	}
}

func TestRegistry_Remove(t *testing.T) {
	reg := NewRegistry(context.Background(), newFakeSender(), Options{})
	s, _ := reg.FindOrCreate(peerA)

	reg.Remove(peerA)
	reg.Remove(peerA) // no-op
	reg.Remove(peerB) // never existed

	if reg.Len() != 0 {
		t.Errorf("len = %d, want 0", reg.Len())
	}
	select {
	case <-s.Done():
	default:
		t.Error("removed session should be cancelled")
	}
}

func TestRegistry_Range(t *testing.T) {
	reg := NewRegistry(context.Background(), newFakeSender(), Options{})
	reg.FindOrCreate(peerA)
	reg.FindOrCreate(peerB)

	// Closing from inside Range must not deadlock.
	reg.Range(func(s *Session) bool {
		s.Close() //nolint:errcheck
		return true
	})
	if reg.Len() != 0 {
		t.Errorf("len = %d after closing all", reg.Len())
	}
}

func TestRegistry_Clear(t *testing.T) {
	removed := 0
	reg := NewRegistry(context.Background(), newFakeSender(), Options{
		OnRemove: func(*Session) { removed++ },
	})
	a, _ := reg.FindOrCreate(peerA)
	reg.FindOrCreate(peerB)

	reg.Clear()
	reg.Clear()

	if reg.Len() != 0 || removed != 2 {
		t.Errorf("len = %d, removed = %d", reg.Len(), removed)
	}
	if a.Err() == nil {
		t.Error("cleared session should report an error")
	}
	if s, _, _ := reg.Deliver(peerA, []byte("x")); s != nil {
		t.Error("Deliver after Clear should not create sessions")
	}
	// Closing a cleared session is harmless.
	a.Close() //nolint:errcheck
	if removed != 2 {
		t.Error("OnRemove ran again for a cleared session")
	}
}

func TestRegistry_RateLimit(t *testing.T) {
	reg := NewRegistry(context.Background(), newFakeSender(), Options{
		RateLimit: 0.001, // effectively no refill during the test
		RateBurst: 2,
	})

	var accepted int
	for i := 0; i < 5; i++ {
		if _, _, ok := reg.Deliver(peerA, []byte{byte(i)}); ok {
			accepted++
		}
	}
	if accepted != 2 {
		t.Errorf("accepted = %d, want 2 (the burst)", accepted)
	}

	// Peers are limited independently.
	if _, created, ok := reg.Deliver(peerB, []byte{9}); !created || !ok {
		t.Error("a new peer's first datagram must always be accepted")
	}
}
