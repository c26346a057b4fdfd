package session

import (
	"sync"
	"testing"
	"time"
)

func TestNewStore(t *testing.T) {
	s := newStore()
	if got := len(s.GetAll()); got != 0 {
		t.Errorf("new store has %d sessions, want 0", got)
	}
	if got := s.ActiveCount(); got != 0 {
		t.Errorf("new store ActiveCount() = %d, want 0", got)
	}
}

func TestGetMissing(t *testing.T) {
	s := newStore()
	sess, ok := s.Get("nonexistent")
	if ok || sess != nil {
		t.Error("Get for missing key should return (nil, false)")
	}
}

func TestUpdateAndNotify(t *testing.T) {
	s := newStore()
	called := false
	s.UpdateAndNotify(&Session{SessionID: "a", Status: StatusActive}, func() {
		called = true
	})
	if !called {
		t.Error("UpdateAndNotify did not call notify callback")
	}
	got, ok := s.Get("a")
	if !ok || got.Status != StatusActive {
		t.Errorf("UpdateAndNotify did not store session: ok=%v, state=%+v", ok, got)
	}
}

func TestUpdateAndNotifyNilCallback(t *testing.T) {
	s := newStore()
	s.UpdateAndNotify(&Session{SessionID: "a"}, nil)
	if _, ok := s.Get("a"); !ok {
		t.Error("UpdateAndNotify with nil callback did not store session")
	}
}

func TestBatchUpdateAndNotify(t *testing.T) {
	s := newStore()
	called := false
	s.BatchUpdateAndNotify([]*Session{{SessionID: "a"}, {SessionID: "b"}}, func() {
		called = true
	})
	if !called {
		t.Error("BatchUpdateAndNotify did not call notify callback")
	}
	if all := s.GetAll(); len(all) != 2 {
		t.Fatalf("BatchUpdateAndNotify stored %d sessions, want 2", len(all))
	}
}

func TestBatchRemoveAndNotify(t *testing.T) {
	s := newStore()
	s.BatchUpdateAndNotify([]*Session{{SessionID: "a"}, {SessionID: "b"}, {SessionID: "c"}}, nil)

	called := false
	s.BatchRemoveAndNotify([]string{"a", "b"}, func() {
		called = true
	})
	if !called {
		t.Error("BatchRemoveAndNotify did not call notify callback")
	}
	if _, ok := s.Get("a"); ok {
		t.Error("BatchRemoveAndNotify did not remove session a")
	}
	if _, ok := s.Get("b"); ok {
		t.Error("BatchRemoveAndNotify did not remove session b")
	}
	if _, ok := s.Get("c"); !ok {
		t.Error("BatchRemoveAndNotify incorrectly removed session c")
	}
}

func TestRemoveAndNotify(t *testing.T) {
	s := newStore()
	s.UpdateAndNotify(&Session{SessionID: "a"}, nil)

	removed := s.RemoveAndNotify("a", nil)
	if removed == nil || removed.SessionID != "a" {
		t.Fatalf("RemoveAndNotify returned %+v, want session a", removed)
	}
	if _, ok := s.Get("a"); ok {
		t.Error("session a should be gone after RemoveAndNotify")
	}
}

// TestUpdateAndNotify_CallbackMustNotReenter verifies the store's contract:
// a callback passed to UpdateAndNotify holds mu.Lock() and MUST NOT call any
// other store method (that would deadlock since the mutex isn't reentrant),
// but after UpdateAndNotify returns the lock must be released, so
// Get/GetAll/ActiveCount complete without blocking.
func TestUpdateAndNotify_CallbackMustNotReenter(t *testing.T) {
	s := newStore()

	var wg sync.WaitGroup
	wg.Add(1)
	s.UpdateAndNotify(&Session{SessionID: "a", Status: StatusWorking}, func() {
		wg.Done()
	})
	wg.Wait()

	mustCompleteWithin(t, "Get after UpdateAndNotify", func() {
		s.Get("a")
	})
	mustCompleteWithin(t, "GetAll after UpdateAndNotify", func() {
		s.GetAll()
	})
	mustCompleteWithin(t, "ActiveCount after UpdateAndNotify", func() {
		s.ActiveCount()
	})
}

func mustCompleteWithin(t *testing.T, label string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("%s did not complete (likely deadlock)", label)
	}
}
