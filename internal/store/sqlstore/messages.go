package sqlstore

import (
	"time"

	"github.com/pbeck/parley/internal/models"
)

// AppendMessage inserts the row and bumps the chat's last activity in the
// same transaction. The bump is guarded so a concurrent later post cannot be
// rewound.
func (s *SQLStore) AppendMessage(msg *models.Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := s.rebind("INSERT INTO messages (id, chat_id, author_id, content, file_ref, disappearing, created_at_ms) VALUES (?, ?, ?, ?, ?, ?, ?)")
	_, err = tx.Exec(query, msg.ID, msg.ChatID, msg.AuthorID, msg.Content, msg.FileRef, msg.Disappearing, msg.CreatedAt.UnixMilli())
	if err != nil {
		return err
	}

	touch := s.rebind("UPDATE chats SET last_activity_ms = ? WHERE id = ? AND last_activity_ms < ?")
	if _, err := tx.Exec(touch, msg.CreatedAt.UnixMilli(), msg.ChatID, msg.CreatedAt.UnixMilli()); err != nil {
		return err
	}

	return tx.Commit()
}

// MessagesForChat returns the chat's messages oldest first, each joined with
// its author's identity and the author membership's lifecycle state. The
// join is on (chat_id, author_id), so removed authors still resolve.
func (s *SQLStore) MessagesForChat(chatID string) ([]models.MessageView, error) {
	query := s.rebind(`
		SELECT m.id, m.chat_id, m.author_id, u.username, u.avatar_ref, mb.removed,
		       m.content, m.file_ref, m.disappearing, m.created_at_ms
		FROM messages m
		JOIN users u ON u.id = m.author_id
		JOIN members mb ON mb.chat_id = m.chat_id AND mb.user_id = m.author_id
		WHERE m.chat_id = ?
		ORDER BY m.created_at_ms ASC
	`)
	rows, err := s.db.Query(query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.MessageView
	for rows.Next() {
		var v models.MessageView
		var createdAt int64
		if err := rows.Scan(&v.ID, &v.ChatID, &v.SenderID, &v.SenderName, &v.SenderPicture, &v.SenderRemoved,
			&v.Content, &v.FileLink, &v.Disappearing, &createdAt); err != nil {
			return nil, err
		}
		v.CreatedAt = time.UnixMilli(createdAt).UTC()
		messages = append(messages, v)
	}
	return messages, rows.Err()
}

// PurgeExpired deletes disappearing messages created at or before cutoff.
func (s *SQLStore) PurgeExpired(chatID string, cutoff time.Time) error {
	query := s.rebind("DELETE FROM messages WHERE chat_id = ? AND disappearing = TRUE AND created_at_ms <= ?")
	_, err := s.db.Exec(query, chatID, cutoff.UnixMilli())
	return err
}

func (s *SQLStore) CountMessages(chatID string) (int, error) {
	query := s.rebind("SELECT COUNT(*) FROM messages WHERE chat_id = ?")
	var n int
	err := s.db.QueryRow(query, chatID).Scan(&n)
	return n, err
}

// FileRefInUse checks every column that can hold a stored file ref.
func (s *SQLStore) FileRefInUse(ref string) (bool, error) {
	query := s.rebind(`
		SELECT EXISTS (SELECT 1 FROM messages WHERE file_ref = ?)
		    OR EXISTS (SELECT 1 FROM chats WHERE group_picture_ref = ?)
		    OR EXISTS (SELECT 1 FROM users WHERE avatar_ref = ?)
	`)
	var used bool
	err := s.db.QueryRow(query, ref, ref, ref).Scan(&used)
	return used, err
}
