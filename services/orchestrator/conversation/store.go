// Copyright (C) 2025 BiegeAI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package conversation provides in-memory, bounded conversation history
// for the orchestrator.
//
// The Store owns every Session in the process: session creation,
// activity refresh, expiry, least-recently-active eviction, message trimming,
// and context windowing all happen behind a single mutex. State is process
// local and lost on restart; the store is a cost/memory bound, not a system
// of record.
//
// # Thread Safety
//
// All exported methods are safe for concurrent use. Every store-wide
// mutation (eviction scans included) runs as one critical section, so a
// lookup never observes a half-evicted map.
package conversation

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Data Model
// =============================================================================

// Sender identifies the author of a conversation message.
type Sender string

const (
	// SenderUser marks a message written by the human asking questions.
	SenderUser Sender = "user"

	// SenderAgent marks a message written by the answering system.
	SenderAgent Sender = "agent"
)

// Message is a single conversation turn. Messages are immutable once
// appended; ordering is insertion order within a session.
type Message struct {
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
}

// Session is one bounded, time-limited conversation thread. It is owned
// exclusively by the Store and must only be mutated through store methods.
type Session struct {
	SessionID    string
	Messages     []Message
	CreatedAt    time.Time
	LastActivity time.Time
}

// =============================================================================
// Configuration
// =============================================================================

// Default limits. These mirror the cost-optimization bounds the service
// has always shipped with; raise them only with a memory budget in hand.
const (
	DefaultMaxSessions           = 100
	DefaultSessionTimeout        = 30 * time.Minute
	DefaultMaxMessagesPerSession = 50
	DefaultMaxContextLength      = 4000
	DefaultConsecutiveTimeout    = 5 * time.Minute
)

// Config holds the store's resource bounds.
//
// # Fields
//
//   - MaxSessions: Maximum live sessions. Exceeding it evicts the least
//     recently active sessions.
//   - SessionTimeout: Inactivity window after which a session expires.
//   - MaxMessagesPerSession: FIFO trim bound per session. Dropped messages
//     are unrecoverable.
//   - MaxContextLength: Character budget for assembled context text.
//   - ConsecutiveTimeout: Gap between messages beyond which an append
//     starts a fresh session ("the conversation has moved on").
type Config struct {
	MaxSessions           int
	SessionTimeout        time.Duration
	MaxMessagesPerSession int
	MaxContextLength      int
	ConsecutiveTimeout    time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxSessions:           DefaultMaxSessions,
		SessionTimeout:        DefaultSessionTimeout,
		MaxMessagesPerSession: DefaultMaxMessagesPerSession,
		MaxContextLength:      DefaultMaxContextLength,
		ConsecutiveTimeout:    DefaultConsecutiveTimeout,
	}
}

func applyConfigDefaults(cfg Config) Config {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	if cfg.MaxMessagesPerSession <= 0 {
		cfg.MaxMessagesPerSession = DefaultMaxMessagesPerSession
	}
	if cfg.MaxContextLength <= 0 {
		cfg.MaxContextLength = DefaultMaxContextLength
	}
	if cfg.ConsecutiveTimeout <= 0 {
		cfg.ConsecutiveTimeout = DefaultConsecutiveTimeout
	}
	return cfg
}

// =============================================================================
// Store
// =============================================================================

// EvictionFunc receives eviction counts after each cleanup pass.
// Used to feed metrics without coupling the store to the metrics registry.
type EvictionFunc func(expired, evicted int)

// Store is the in-memory conversation session store.
//
// # Description
//
// Store tracks sessions in a map guarded by a mutex. Eviction runs in two
// phases on every session resolution: expired sessions are removed first,
// then the least-recently-active sessions are evicted until the count is
// within budget. This bounds memory under both idle-session pressure and
// burst-session pressure.
//
// Store operations never fail from the caller's point of view: a missing or
// expired session means "create a new one", not an error.
//
// # Thread Safety
//
// Safe for concurrent use. Callers must not hold references into a
// Session's message slice across calls.
type Store struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session

	// now is injected for tests; defaults to time.Now.
	now func() time.Time

	// onEvict, when set, is called after each cleanup pass that removed
	// at least one session.
	onEvict EvictionFunc
}

// NewStore creates a Store with the given bounds. Zero-valued fields fall
// back to the defaults.
func NewStore(cfg Config) *Store {
	cfg = applyConfigDefaults(cfg)
	slog.Info("Conversation store initialized",
		"max_sessions", cfg.MaxSessions,
		"session_timeout", cfg.SessionTimeout.String(),
		"max_messages", cfg.MaxMessagesPerSession,
		"max_context_chars", cfg.MaxContextLength,
	)
	return &Store{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// SetEvictionFunc installs a callback invoked with eviction counts.
// Call before the store is shared between goroutines.
func (s *Store) SetEvictionFunc(fn EvictionFunc) {
	s.onEvict = fn
}

// GetOrCreateSession resolves a session id to a live session.
//
// # Description
//
// If sessionID names a live session, its activity timestamp is refreshed
// and the same id is returned. Otherwise a new session is registered under
// an id derived from the supplied identifier (or a generated one) plus a
// timestamp, guaranteeing uniqueness across the store. Eviction runs before
// any allocation.
//
// # Inputs
//
//   - sessionID: Existing session id, or "" to always allocate.
//
// # Outputs
//
//   - string: The id of the live session to use for subsequent calls.
func (s *Store) GetOrCreateSession(sessionID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(false)

	if sessionID != "" {
		if sess, ok := s.sessions[sessionID]; ok {
			sess.LastActivity = s.now()
			return sessionID
		}
	}
	return s.createLocked(sessionID).SessionID
}

// AddMessage appends a message to a session and returns the id of the
// session the message actually landed in.
//
// # Description
//
// A missing session is recreated (logged as a recovery, never fatal). If
// the gap since the session's last message exceeds the consecutive
// timeout, the append starts a brand-new session instead — the returned id
// differs from the input in that case and callers must adopt it. After the
// append, the oldest excess messages are dropped FIFO to keep the session
// within MaxMessagesPerSession.
//
// # Outputs
//
//   - string: Effective session id. Never empty; the call cannot fail.
func (s *Store) AddMessage(sessionID string, sender Sender, text string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		slog.Warn("Session not found on append, recreating", "session_id", sessionID)
		sess = s.createLocked(sessionID)
	}

	if n := len(sess.Messages); n > 0 {
		gap := s.now().Sub(sess.Messages[n-1].Timestamp)
		if gap > s.cfg.ConsecutiveTimeout {
			slog.Info("Time gap detected, starting new session",
				"previous_session_id", sess.SessionID,
				"gap", gap.String(),
			)
			sess = s.createLocked("")
		}
	}

	now := s.now()
	sess.Messages = append(sess.Messages, Message{
		Sender:    sender,
		Text:      text,
		Timestamp: now,
		SessionID: sess.SessionID,
	})
	sess.LastActivity = now

	if excess := len(sess.Messages) - s.cfg.MaxMessagesPerSession; excess > 0 {
		sess.Messages = append([]Message(nil), sess.Messages[excess:]...)
		slog.Debug("Trimmed old messages",
			"session_id", sess.SessionID,
			"removed", excess,
		)
	}
	return sess.SessionID
}

// DeleteSession removes a session outright. Returns false when the id was
// not live (which is not an error; nothing remains either way).
func (s *Store) DeleteSession(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return false
	}
	delete(s.sessions, sessionID)
	slog.Info("Deleted conversation session", "session_id", sessionID)
	return true
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// =============================================================================
// Internals
// =============================================================================

// createLocked registers a new empty session. Caller holds s.mu.
//
// The id is base + "_" + unix-millis; collisions within the same
// millisecond get a numeric suffix so ids stay unique store-wide.
func (s *Store) createLocked(base string) *Session {
	s.evictLocked(true)

	if base == "" {
		base = uuid.NewString()[:8]
	}
	now := s.now()
	id := fmt.Sprintf("%s_%d", base, now.UnixMilli())
	for i := 1; ; i++ {
		if _, exists := s.sessions[id]; !exists {
			break
		}
		id = fmt.Sprintf("%s_%d_%d", base, now.UnixMilli(), i)
	}

	sess := &Session{
		SessionID:    id,
		CreatedAt:    now,
		LastActivity: now,
	}
	s.sessions[id] = sess
	slog.Info("Created new conversation session", "session_id", id)
	return sess
}

// evictLocked runs the two-phase cleanup. Caller holds s.mu.
//
// Phase 1 deletes sessions idle beyond SessionTimeout. Phase 2 deletes the
// least-recently-active sessions until the count is within budget. When
// needRoom is set the budget is lowered by one so an imminent allocation
// cannot push the store past MaxSessions.
func (s *Store) evictLocked(needRoom bool) {
	now := s.now()

	expired := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.LastActivity) > s.cfg.SessionTimeout {
			delete(s.sessions, id)
			expired++
			slog.Debug("Removed expired session", "session_id", id)
		}
	}

	limit := s.cfg.MaxSessions
	if needRoom {
		limit--
	}

	evicted := 0
	if len(s.sessions) > limit {
		ids := make([]string, 0, len(s.sessions))
		for id := range s.sessions {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return s.sessions[ids[i]].LastActivity.Before(s.sessions[ids[j]].LastActivity)
		})
		for _, id := range ids {
			if len(s.sessions) <= limit {
				break
			}
			delete(s.sessions, id)
			evicted++
			slog.Debug("Removed session over capacity", "session_id", id)
		}
	}

	if (expired > 0 || evicted > 0) && s.onEvict != nil {
		s.onEvict(expired, evicted)
	}
}
