package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"finance-tutor/internal/models"
)

// Conversation is a persisted chat session
type Conversation struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateConversation creates a new conversation
func (d *DB) CreateConversation(title string) (*Conversation, error) {
	return WithLockResult(d, func() (*Conversation, error) {
		result, err := d.db.Exec(
			`INSERT INTO conversations (title) VALUES (?)`,
			title,
		)
		if err != nil {
			return nil, err
		}

		id, err := result.LastInsertId()
		if err != nil {
			return nil, err
		}

		return &Conversation{
			ID:        id,
			Title:     title,
			CreatedAt: time.Now(),
		}, nil
	})
}

// GetConversation retrieves a conversation by ID
func (d *DB) GetConversation(id int64) (*Conversation, error) {
	return WithLockResult(d, func() (*Conversation, error) {
		row := d.db.QueryRow(
			`SELECT id, title, created_at FROM conversations WHERE id = ?`,
			id,
		)

		var conv Conversation
		if err := row.Scan(&conv.ID, &conv.Title, &conv.CreatedAt); err != nil {
			return nil, err
		}
		return &conv, nil
	})
}

// ListConversations returns all conversations, newest first
func (d *DB) ListConversations() ([]Conversation, error) {
	return WithLockResult(d, func() ([]Conversation, error) {
		rows, err := d.db.Query(
			`SELECT id, title, created_at FROM conversations ORDER BY created_at DESC, id DESC`,
		)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var conversations []Conversation
		for rows.Next() {
			var conv Conversation
			if err := rows.Scan(&conv.ID, &conv.Title, &conv.CreatedAt); err != nil {
				return nil, err
			}
			conversations = append(conversations, conv)
		}
		return conversations, rows.Err()
	})
}

// DeleteConversation deletes a conversation and its messages
func (d *DB) DeleteConversation(id int64) error {
	return d.WithLock(func() error {
		result, err := d.db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
		if err != nil {
			return err
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// SaveMessage persists one message into a conversation. Saving the same
// message twice is a no-op thanks to the unique message UID.
func (d *DB) SaveMessage(conversationID int64, msg models.Message) error {
	return d.WithLock(func() error {
		var sourcesJSON, videosJSON sql.NullString
		if len(msg.Sources) > 0 {
			data, err := json.Marshal(msg.Sources)
			if err != nil {
				return fmt.Errorf("failed to marshal sources: %w", err)
			}
			sourcesJSON = sql.NullString{String: string(data), Valid: true}
		}
		if len(msg.Videos) > 0 {
			data, err := json.Marshal(msg.Videos)
			if err != nil {
				return fmt.Errorf("failed to marshal videos: %w", err)
			}
			videosJSON = sql.NullString{String: string(data), Valid: true}
		}

		_, err := d.db.Exec(
			`INSERT OR IGNORE INTO messages (conversation_id, message_uid, role, content, sources_json, videos_json, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			conversationID, msg.ID, string(msg.Role), msg.Content, sourcesJSON, videosJSON, msg.CreatedAt,
		)
		return err
	})
}

// GetMessages returns all messages of a conversation in chronological order
func (d *DB) GetMessages(conversationID int64) ([]models.Message, error) {
	return WithLockResult(d, func() ([]models.Message, error) {
		rows, err := d.db.Query(
			`SELECT message_uid, role, content, sources_json, videos_json, created_at
			 FROM messages WHERE conversation_id = ? ORDER BY id ASC`,
			conversationID,
		)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var messages []models.Message
		for rows.Next() {
			var msg models.Message
			var role string
			var sourcesJSON, videosJSON sql.NullString

			if err := rows.Scan(&msg.ID, &role, &msg.Content, &sourcesJSON, &videosJSON, &msg.CreatedAt); err != nil {
				return nil, err
			}
			msg.Role = models.Role(role)

			if sourcesJSON.Valid {
				if err := json.Unmarshal([]byte(sourcesJSON.String), &msg.Sources); err != nil {
					return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
				}
			}
			if videosJSON.Valid {
				if err := json.Unmarshal([]byte(videosJSON.String), &msg.Videos); err != nil {
					return nil, fmt.Errorf("failed to unmarshal videos: %w", err)
				}
			}

			messages = append(messages, msg)
		}
		return messages, rows.Err()
	})
}
