package sqlstore

import (
	"database/sql"
	"errors"

	"github.com/pbeck/parley/internal/models"
)

// Insertion always goes through this upsert: re-adding a removed member flips
// the row back to active and keeps the prior admin flag; adding an
// already-active member is a no-op. The (chat_id, user_id) primary key is the
// serialization point for concurrent add/remove on the same pair.
const upsertMemberQuery = `
	INSERT INTO members (chat_id, user_id, admin, removed)
	VALUES (?, ?, ?, FALSE)
	ON CONFLICT (chat_id, user_id) DO UPDATE SET removed = FALSE`

func (s *SQLStore) UpsertMember(chatID, userID string, admin bool) error {
	_, err := s.db.Exec(s.rebind(upsertMemberQuery), chatID, userID, admin)
	return err
}

func (s *SQLStore) MarkRemoved(chatID, userID string) error {
	query := s.rebind("UPDATE members SET removed = TRUE WHERE chat_id = ? AND user_id = ?")
	_, err := s.db.Exec(query, chatID, userID)
	return err
}

func (s *SQLStore) SetAdmin(chatID, userID string, admin bool) error {
	query := s.rebind("UPDATE members SET admin = ? WHERE chat_id = ? AND user_id = ?")
	_, err := s.db.Exec(query, admin, chatID, userID)
	return err
}

// Membership returns the member row regardless of lifecycle state, or nil
// when the pair never had one.
func (s *SQLStore) Membership(chatID, userID string) (*models.Member, error) {
	query := s.rebind("SELECT chat_id, user_id, admin, removed FROM members WHERE chat_id = ? AND user_id = ?")
	var m models.Member
	var removed bool
	err := s.db.QueryRow(query, chatID, userID).Scan(&m.ChatID, &m.UserID, &m.Admin, &removed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	m.State = models.MemberActive
	if removed {
		m.State = models.MemberRemoved
	}
	return &m, nil
}

func (s *SQLStore) ActiveMembers(chatID string) ([]models.MemberView, error) {
	query := s.rebind(`
		SELECT u.id, u.username, u.avatar_ref, m.admin
		FROM members m
		JOIN users u ON u.id = m.user_id
		WHERE m.chat_id = ? AND m.removed = FALSE
		ORDER BY u.username
	`)
	rows, err := s.db.Query(query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.MemberView
	for rows.Next() {
		var m models.MemberView
		if err := rows.Scan(&m.UserID, &m.Username, &m.Picture, &m.Admin); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ActiveChatIDs is the room set a connecting session subscribes to.
func (s *SQLStore) ActiveChatIDs(userID string) ([]string, error) {
	query := s.rebind("SELECT chat_id FROM members WHERE user_id = ? AND removed = FALSE")
	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
