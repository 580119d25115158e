package sqlstore

import (
	"database/sql"
	"errors"

	"github.com/pbeck/parley/internal/models"
)

func (s *SQLStore) CreateUser(user *models.User) error {
	query := s.rebind("INSERT INTO users (id, username, display_name, avatar_ref, password) VALUES (?, ?, ?, ?, ?)")
	_, err := s.db.Exec(query, user.ID, user.Username, user.DisplayName, user.AvatarRef, user.Password)
	return err
}

func (s *SQLStore) UserByUsername(username string) (*models.User, error) {
	query := s.rebind("SELECT id, username, display_name, avatar_ref, password FROM users WHERE username = ?")
	return s.scanUser(s.db.QueryRow(query, username))
}

func (s *SQLStore) UserByID(id string) (*models.User, error) {
	query := s.rebind("SELECT id, username, display_name, avatar_ref, password FROM users WHERE id = ?")
	return s.scanUser(s.db.QueryRow(query, id))
}

func (s *SQLStore) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Username, &user.DisplayName, &user.AvatarRef, &user.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *SQLStore) SearchUsers(queryStr string) ([]models.UserRef, error) {
	query := s.rebind("SELECT id, username, display_name, avatar_ref FROM users WHERE username LIKE ? ORDER BY username LIMIT 10")
	rows, err := s.db.Query(query, "%"+queryStr+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.UserRef
	for rows.Next() {
		var u models.UserRef
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.AvatarRef); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
