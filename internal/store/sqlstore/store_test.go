package sqlstore

import (
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pbeck/parley/internal/models"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := New("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func createUser(t *testing.T, s *SQLStore, username string) *models.User {
	t.Helper()
	user := &models.User{
		ID:          uuid.NewString(),
		Username:    username,
		DisplayName: username,
		Password:    "hash",
	}
	if err := s.CreateUser(user); err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	return user
}

func createGroup(t *testing.T, s *SQLStore, name string, at time.Time, userIDs ...string) *models.Chat {
	t.Helper()
	chat := &models.Chat{ID: uuid.NewString(), GroupName: name, LastActivityAt: at}
	var members []models.Member
	for i, id := range userIDs {
		members = append(members, models.Member{ChatID: chat.ID, UserID: id, Admin: i == 0})
	}
	if err := s.CreateChat(chat, members); err != nil {
		t.Fatalf("Failed to create chat %s: %v", name, err)
	}
	return chat
}
