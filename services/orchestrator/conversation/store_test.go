// Copyright (C) 2025 BiegeAI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(cfg Config) (*Store, *fakeClock) {
	clock := newFakeClock()
	s := NewStore(cfg)
	s.now = clock.Now
	return s, clock
}

func TestGetOrCreateSession_ReusesLiveSession(t *testing.T) {
	s, _ := newTestStore(Config{})

	id := s.GetOrCreateSession("")
	if id == "" {
		t.Fatal("Expected a non-empty session id")
	}
	again := s.GetOrCreateSession(id)
	if again != id {
		t.Errorf("Expected live session to be reused, got %q want %q", again, id)
	}
	if s.Len() != 1 {
		t.Errorf("Expected 1 session, got %d", s.Len())
	}
}

func TestGetOrCreateSession_DeadIDAllocatesDerived(t *testing.T) {
	s, _ := newTestStore(Config{})

	id := s.GetOrCreateSession("alice")
	if id == "alice" {
		t.Errorf("Expected a derived id, got the raw identifier back")
	}
	if s.Len() != 1 {
		t.Errorf("Expected 1 session, got %d", s.Len())
	}
}

// TestEvictionBound verifies the store never holds more than MaxSessions
// sessions after any sequence of resolutions.
func TestEvictionBound(t *testing.T) {
	s, clock := newTestStore(Config{MaxSessions: 10})

	for i := 0; i < 35; i++ {
		// Advance so every session has a distinct LastActivity.
		clock.Advance(time.Millisecond)
		s.GetOrCreateSession(fmt.Sprintf("user%d", i))
		if s.Len() > 10 {
			t.Fatalf("Store exceeded MaxSessions: %d sessions after create %d", s.Len(), i)
		}
	}
}

// TestEvictionKeepsMostRecentlyActive verifies capacity eviction removes the
// least recently active sessions first.
func TestEvictionKeepsMostRecentlyActive(t *testing.T) {
	s, clock := newTestStore(Config{MaxSessions: 3})

	var ids []string
	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		ids = append(ids, s.GetOrCreateSession(""))
	}

	// Touch the first session so the second becomes least recently active.
	clock.Advance(time.Second)
	s.GetOrCreateSession(ids[0])

	clock.Advance(time.Second)
	newest := s.GetOrCreateSession("")

	if s.Len() != 3 {
		t.Fatalf("Expected 3 sessions, got %d", s.Len())
	}
	for _, id := range []string{ids[0], ids[2], newest} {
		if _, ok := s.Stats(id); !ok {
			t.Errorf("Expected session %q to survive eviction", id)
		}
	}
	if _, ok := s.Stats(ids[1]); ok {
		t.Errorf("Expected least-recently-active session %q to be evicted", ids[1])
	}
}

func TestExpiry(t *testing.T) {
	s, clock := newTestStore(Config{SessionTimeout: 30 * time.Minute})

	stale := s.GetOrCreateSession("")
	clock.Advance(31 * time.Minute)

	// Any store operation runs cleanup first.
	s.GetOrCreateSession("")

	if _, ok := s.Stats(stale); ok {
		t.Errorf("Expected session %q to be expired", stale)
	}
}

func TestExpiryReportsEvictions(t *testing.T) {
	s, clock := newTestStore(Config{SessionTimeout: time.Minute})

	var gotExpired, gotEvicted int
	s.SetEvictionFunc(func(expired, evicted int) {
		gotExpired += expired
		gotEvicted += evicted
	})

	s.GetOrCreateSession("")
	clock.Advance(2 * time.Minute)
	s.GetOrCreateSession("")

	if gotExpired != 1 {
		t.Errorf("Expected 1 expired session reported, got %d", gotExpired)
	}
	if gotEvicted != 0 {
		t.Errorf("Expected 0 capacity evictions, got %d", gotEvicted)
	}
}

// TestTrimBound reproduces the canonical trim scenario: with a two-message
// bound, appending a third message drops the oldest.
func TestTrimBound(t *testing.T) {
	s, _ := newTestStore(Config{MaxMessagesPerSession: 2})

	id := s.GetOrCreateSession("s1")
	s.AddMessage(id, SenderUser, "a")
	s.AddMessage(id, SenderAgent, "b")
	s.AddMessage(id, SenderUser, "c")

	sess := s.sessions[id]
	if len(sess.Messages) != 2 {
		t.Fatalf("Expected 2 messages after trim, got %d", len(sess.Messages))
	}
	if sess.Messages[0].Sender != SenderAgent || sess.Messages[0].Text != "b" {
		t.Errorf("Expected oldest kept message (agent, b), got (%s, %s)",
			sess.Messages[0].Sender, sess.Messages[0].Text)
	}
	if sess.Messages[1].Sender != SenderUser || sess.Messages[1].Text != "c" {
		t.Errorf("Expected newest message (user, c), got (%s, %s)",
			sess.Messages[1].Sender, sess.Messages[1].Text)
	}
}

func TestTrimBound_ManyAppends(t *testing.T) {
	s, _ := newTestStore(Config{MaxMessagesPerSession: 50})

	id := s.GetOrCreateSession("")
	for i := 0; i < 80; i++ {
		s.AddMessage(id, SenderUser, fmt.Sprintf("m%d", i))
	}

	sess := s.sessions[id]
	if len(sess.Messages) != 50 {
		t.Fatalf("Expected 50 messages, got %d", len(sess.Messages))
	}
	// Kept messages are the most recent ones, in original order.
	if sess.Messages[0].Text != "m30" || sess.Messages[49].Text != "m79" {
		t.Errorf("Expected window m30..m79, got %s..%s",
			sess.Messages[0].Text, sess.Messages[49].Text)
	}
}

func TestAddMessage_RecreatesMissingSession(t *testing.T) {
	s, _ := newTestStore(Config{})

	effective := s.AddMessage("ghost", SenderUser, "hello")
	if effective == "" {
		t.Fatal("Expected an effective session id")
	}
	st, ok := s.Stats(effective)
	if !ok {
		t.Fatalf("Expected recreated session %q to be live", effective)
	}
	if st.TotalMessages != 1 {
		t.Errorf("Expected 1 message, got %d", st.TotalMessages)
	}
}

func TestAddMessage_TimeGapStartsNewSession(t *testing.T) {
	s, clock := newTestStore(Config{ConsecutiveTimeout: 5 * time.Minute})

	id := s.GetOrCreateSession("")
	first := s.AddMessage(id, SenderUser, "hi")
	if first != id {
		t.Fatalf("Expected first append to stay in session %q, got %q", id, first)
	}

	clock.Advance(6 * time.Minute)
	second := s.AddMessage(id, SenderUser, "still there?")
	if second == id {
		t.Error("Expected a new session after the consecutive timeout gap")
	}
	st, ok := s.Stats(second)
	if !ok || st.TotalMessages != 1 {
		t.Errorf("Expected new session with 1 message, got ok=%v stats=%+v", ok, st)
	}
}

func TestAddMessage_WithinGapStaysInSession(t *testing.T) {
	s, clock := newTestStore(Config{ConsecutiveTimeout: 5 * time.Minute})

	id := s.GetOrCreateSession("")
	s.AddMessage(id, SenderUser, "hi")
	clock.Advance(4 * time.Minute)
	effective := s.AddMessage(id, SenderAgent, "hello")
	if effective != id {
		t.Errorf("Expected append within gap to reuse %q, got %q", id, effective)
	}
}

func TestDeleteSession(t *testing.T) {
	s, _ := newTestStore(Config{})

	id := s.GetOrCreateSession("")
	if !s.DeleteSession(id) {
		t.Error("Expected delete of live session to report true")
	}
	if s.DeleteSession(id) {
		t.Error("Expected delete of missing session to report false")
	}
}

func TestConcurrentAccess(t *testing.T) {
	s, _ := newTestStore(Config{MaxSessions: 20})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := s.GetOrCreateSession(fmt.Sprintf("worker%d", n))
				id = s.AddMessage(id, SenderUser, "q")
				s.AddMessage(id, SenderAgent, "a")
				s.GetConversationContext(id, "next")
			}
		}(i)
	}
	wg.Wait()

	if s.Len() > 20 {
		t.Errorf("Store exceeded MaxSessions under concurrency: %d", s.Len())
	}
}
