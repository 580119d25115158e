package sqlstore

import (
	"database/sql"
	"errors"
	"time"

	"github.com/pbeck/parley/internal/models"
)

const chatColumns = "id, direct, group_name, group_picture_ref, disappearing, last_activity_ms"

// CreateChat inserts the chat and its initial members in one transaction.
// Member inserts go through the same ON CONFLICT upsert as later adds.
func (s *SQLStore) CreateChat(chat *models.Chat, members []models.Member) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := s.rebind("INSERT INTO chats (id, direct, group_name, group_picture_ref, disappearing, last_activity_ms) VALUES (?, ?, ?, ?, ?, ?)")
	_, err = tx.Exec(query, chat.ID, chat.Direct, chat.GroupName, chat.GroupPictureRef, chat.Disappearing, chat.LastActivityAt.UnixMilli())
	if err != nil {
		return err
	}

	memberQuery := s.rebind(upsertMemberQuery)
	for _, m := range members {
		if _, err := tx.Exec(memberQuery, m.ChatID, m.UserID, m.Admin); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *SQLStore) ChatByID(id string) (*models.Chat, error) {
	query := s.rebind("SELECT " + chatColumns + " FROM chats WHERE id = ?")
	return s.scanChat(s.db.QueryRow(query, id))
}

// FindDirectChat returns the DM in which both users are active members, or
// nil when no such chat exists.
func (s *SQLStore) FindDirectChat(userA, userB string) (*models.Chat, error) {
	query := s.rebind(`
		SELECT c.id, c.direct, c.group_name, c.group_picture_ref, c.disappearing, c.last_activity_ms
		FROM chats c
		JOIN members a ON a.chat_id = c.id AND a.user_id = ? AND a.removed = FALSE
		JOIN members b ON b.chat_id = c.id AND b.user_id = ? AND b.removed = FALSE
		WHERE c.direct = TRUE
		LIMIT 1
	`)
	return s.scanChat(s.db.QueryRow(query, userA, userB))
}

func (s *SQLStore) scanChat(row *sql.Row) (*models.Chat, error) {
	var chat models.Chat
	var lastActivity int64
	err := row.Scan(&chat.ID, &chat.Direct, &chat.GroupName, &chat.GroupPictureRef, &chat.Disappearing, &lastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	chat.LastActivityAt = time.UnixMilli(lastActivity).UTC()
	return &chat, nil
}

// ChatsForUser lists the chats the user is an active member of, most
// recently active first.
func (s *SQLStore) ChatsForUser(userID string) ([]models.Chat, error) {
	query := s.rebind(`
		SELECT c.id, c.direct, c.group_name, c.group_picture_ref, c.disappearing, c.last_activity_ms
		FROM chats c
		JOIN members m ON m.chat_id = c.id
		WHERE m.user_id = ? AND m.removed = FALSE
		ORDER BY c.last_activity_ms DESC
	`)
	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chats []models.Chat
	for rows.Next() {
		var chat models.Chat
		var lastActivity int64
		if err := rows.Scan(&chat.ID, &chat.Direct, &chat.GroupName, &chat.GroupPictureRef, &chat.Disappearing, &lastActivity); err != nil {
			return nil, err
		}
		chat.LastActivityAt = time.UnixMilli(lastActivity).UTC()
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

func (s *SQLStore) SetDisappearing(chatID string, on bool) error {
	query := s.rebind("UPDATE chats SET disappearing = ? WHERE id = ?")
	_, err := s.db.Exec(query, on, chatID)
	return err
}

func (s *SQLStore) UpdateGroupMeta(chatID, name, pictureRef string) error {
	query := s.rebind("UPDATE chats SET group_name = ?, group_picture_ref = ? WHERE id = ? AND direct = FALSE")
	_, err := s.db.Exec(query, name, pictureRef, chatID)
	return err
}

func (s *SQLStore) DeleteChat(chatID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		"DELETE FROM messages WHERE chat_id = ?",
		"DELETE FROM members WHERE chat_id = ?",
		"DELETE FROM chats WHERE id = ?",
	} {
		if _, err := tx.Exec(s.rebind(q), chatID); err != nil {
			return err
		}
	}

	return tx.Commit()
}
