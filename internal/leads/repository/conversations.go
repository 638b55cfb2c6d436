package repository

import (
	"context"
	"time"
)

// missingSampleLimit caps the conversation ids listed in the coverage report.
const missingSampleLimit = 100

// GetThread returns the thread for a conversation id.
func (r *Repository) GetThread(ctx context.Context, conversationID string) (Thread, error) {
	var (
		t           Thread
		displayName *string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, conversation_id, sender, sender_platform, display_name, created_at, last_message_at
		FROM threads WHERE conversation_id = $1
	`, conversationID).Scan(&t.ID, &t.ConversationID, &t.Sender, &t.Platform, &displayName, &t.CreatedAt, &t.LastMessageAt)
	if err != nil {
		return Thread{}, notFoundOr(opGetThread, err)
	}
	if displayName != nil {
		t.DisplayName = *displayName
	}
	return t, nil
}

// ListMessages returns a conversation's messages in chronological order.
func (r *Repository) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.direction, m.body, m.created_at
		FROM messages m
		JOIN threads t ON t.id = m.thread_id
		WHERE t.conversation_id = $1
		ORDER BY m.created_at ASC, m.id ASC
	`, conversationID)
	if err != nil {
		return nil, internal(opListMessages, err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Direction, &m.Body, &m.CreatedAt); err != nil {
			return nil, internal(opListMessages, err)
		}
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, internal(opListMessages, err)
	}
	return items, nil
}

// ListAuditCandidates returns threads that have inbound messages but no lead.
// A nil since scans the full history.
func (r *Repository) ListAuditCandidates(ctx context.Context, since *time.Time) ([]Thread, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.id, t.conversation_id, t.sender, t.sender_platform, COALESCE(t.display_name, ''), t.created_at, t.last_message_at
		FROM threads t
		WHERE ($1::timestamptz IS NULL OR COALESCE(t.last_message_at, t.created_at) >= $1)
		  AND EXISTS (SELECT 1 FROM messages m WHERE m.thread_id = t.id AND m.direction = 'inbound')
		  AND NOT EXISTS (SELECT 1 FROM leads l WHERE l.conversation_id = t.conversation_id)
		ORDER BY t.created_at ASC
	`, since)
	if err != nil {
		return nil, internal(opListAuditCandidates, err)
	}
	defer rows.Close()

	items := make([]Thread, 0)
	for rows.Next() {
		var t Thread
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.Sender, &t.Platform, &t.DisplayName, &t.CreatedAt, &t.LastMessageAt); err != nil {
			return nil, internal(opListAuditCandidates, err)
		}
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, internal(opListAuditCandidates, err)
	}
	return items, nil
}

// CoverageStats counts threads with and without leads.
func (r *Repository) CoverageStats(ctx context.Context) (CoverageStats, error) {
	var s CoverageStats
	err := r.pool.QueryRow(ctx, `
		WITH per_thread AS (
			SELECT t.conversation_id,
				EXISTS (SELECT 1 FROM messages m WHERE m.thread_id = t.id AND m.direction = 'inbound') AS has_messages,
				EXISTS (SELECT 1 FROM leads l WHERE l.conversation_id = t.conversation_id) AS has_lead
			FROM threads t
		)
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE has_lead),
			COUNT(*) FILTER (WHERE has_messages),
			COUNT(*) FILTER (WHERE has_messages AND NOT has_lead)
		FROM per_thread
	`).Scan(&s.TotalThreads, &s.ThreadsWithLeads, &s.ThreadsWithConversations, &s.ThreadsWithoutLeads)
	if err != nil {
		return CoverageStats{}, internal(opCoverageStats, err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT t.conversation_id
		FROM threads t
		WHERE EXISTS (SELECT 1 FROM messages m WHERE m.thread_id = t.id AND m.direction = 'inbound')
		  AND NOT EXISTS (SELECT 1 FROM leads l WHERE l.conversation_id = t.conversation_id)
		ORDER BY COALESCE(t.last_message_at, t.created_at) DESC
		LIMIT $1
	`, missingSampleLimit)
	if err != nil {
		return CoverageStats{}, internal(opCoverageStats, err)
	}
	defer rows.Close()

	s.MissingConversationIDs = make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return CoverageStats{}, internal(opCoverageStats, err)
		}
		s.MissingConversationIDs = append(s.MissingConversationIDs, id)
	}
	if err := rows.Err(); err != nil {
		return CoverageStats{}, internal(opCoverageStats, err)
	}
	return s, nil
}

// AppendMessage upserts the thread and stores one message in a single transaction.
func (r *Repository) AppendMessage(ctx context.Context, in NewMessage) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return internal(opAppendMessage, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var displayName *string
	if in.DisplayName != "" {
		displayName = &in.DisplayName
	}
	var threadID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO threads (conversation_id, sender, display_name, created_at, last_message_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (conversation_id) DO UPDATE
		SET last_message_at = GREATEST(threads.last_message_at, EXCLUDED.last_message_at),
		    display_name = COALESCE(EXCLUDED.display_name, threads.display_name)
		RETURNING id
	`, in.ConversationID, in.Sender, displayName, in.At).Scan(&threadID)
	if err != nil {
		return internal(opAppendMessage, err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO messages (thread_id, direction, body, created_at) VALUES ($1, $2, $3, $4)
	`, threadID, in.Direction, in.Body, in.At); err != nil {
		return internal(opAppendMessage, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return internal(opAppendMessage, err)
	}
	return nil
}
