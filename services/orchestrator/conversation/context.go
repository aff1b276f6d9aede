// Copyright (C) 2025 BiegeAI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package conversation

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ContextStats describes how a context window was assembled.
//
// # Fields
//
//   - SessionID: The session the context was built for.
//   - ContextLength: Characters in the assembled text, separators included.
//   - MessageCount: Lines included (the current question line counts).
//   - TotalSessionMessages: Messages the session held at assembly time.
//   - Truncated: True when older messages were left out of the window.
type ContextStats struct {
	SessionID            string `json:"session_id"`
	ContextLength        int    `json:"context_length"`
	MessageCount         int    `json:"message_count"`
	TotalSessionMessages int    `json:"total_session_messages"`
	Truncated            bool   `json:"context_truncated"`
}

// GetConversationContext builds a turn-labelled transcript for the session,
// newest turns preferred, within the configured character budget.
//
// # Description
//
// The session's messages are scanned from most recent backward. Each turn
// is rendered as "sender: text"; accumulation stops before the line that
// would exceed MaxContextLength, and the kept subset is restored to
// chronological order. The current question is appended as a final
// "user: ..." line only if it still fits the same budget. A missing or
// empty session yields an empty context, not an error.
//
// # Inputs
//
//   - sessionID: Session to window. Unknown ids return empty context.
//   - currentQuestion: The question being asked this turn.
//
// # Outputs
//
//   - string: The assembled transcript, possibly empty.
//   - ContextStats: How the window was built.
func (s *Store) GetConversationContext(sessionID, currentQuestion string) (string, ContextStats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := ContextStats{SessionID: sessionID}
	sess, ok := s.sessions[sessionID]
	if !ok || len(sess.Messages) == 0 {
		return "", stats
	}
	stats.TotalSessionMessages = len(sess.Messages)

	// Walk backward so the budget is spent on the most recent turns,
	// then restore chronological order.
	var lines []string
	total := 0
	kept := 0
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		line := fmt.Sprintf("%s: %s", sess.Messages[i].Sender, sess.Messages[i].Text)
		cost := len(line) + 1 // +1 for the joining newline
		if total+cost > s.cfg.MaxContextLength {
			break
		}
		lines = append([]string{line}, lines...)
		total += cost
		kept++
	}

	questionLine := fmt.Sprintf("%s: %s", SenderUser, currentQuestion)
	if total+len(questionLine)+1 <= s.cfg.MaxContextLength {
		lines = append(lines, questionLine)
		total += len(questionLine) + 1
	}

	context := strings.Join(lines, "\n")
	stats.ContextLength = len(context)
	stats.MessageCount = len(lines)
	stats.Truncated = kept < len(sess.Messages)

	slog.Debug("Assembled conversation context",
		"session_id", sessionID,
		"messages_kept", kept,
		"messages_total", len(sess.Messages),
		"chars", len(context),
	)
	return context, stats
}

// =============================================================================
// Session Statistics
// =============================================================================

// SessionStats summarizes one session for the admin surface.
type SessionStats struct {
	SessionID         string    `json:"session_id"`
	TotalMessages     int       `json:"total_messages"`
	UserMessages      int       `json:"user_messages"`
	AgentMessages     int       `json:"agent_messages"`
	CreatedAt         time.Time `json:"created_at"`
	LastActivity      time.Time `json:"last_activity"`
	SessionAgeMinutes float64   `json:"session_age_minutes"`
}

// Stats returns statistics for one session. The second return is false
// when the session is not live.
func (s *Store) Stats(sessionID string) (SessionStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return SessionStats{}, false
	}
	return s.statsLocked(sess), true
}

// AllStats returns statistics for every live session.
func (s *Store) AllStats() []SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SessionStats, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, s.statsLocked(sess))
	}
	return out
}

func (s *Store) statsLocked(sess *Session) SessionStats {
	st := SessionStats{
		SessionID:         sess.SessionID,
		TotalMessages:     len(sess.Messages),
		CreatedAt:         sess.CreatedAt,
		LastActivity:      sess.LastActivity,
		SessionAgeMinutes: s.now().Sub(sess.CreatedAt).Minutes(),
	}
	for _, m := range sess.Messages {
		switch m.Sender {
		case SenderUser:
			st.UserMessages++
		case SenderAgent:
			st.AgentMessages++
		}
	}
	return st
}
