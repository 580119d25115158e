package store

import (
	"time"

	"github.com/pbeck/parley/internal/models"
)

// Store is the persistence boundary. The SQL implementation lives in
// sqlstore; tests may substitute their own.
type Store interface {
	// User operations
	CreateUser(user *models.User) error
	UserByUsername(username string) (*models.User, error)
	UserByID(id string) (*models.User, error)
	SearchUsers(query string) ([]models.UserRef, error)

	// Chat operations. CreateChat inserts the chat and its initial members
	// in one transaction; a failure leaves nothing behind.
	CreateChat(chat *models.Chat, members []models.Member) error
	ChatByID(id string) (*models.Chat, error)
	FindDirectChat(userA, userB string) (*models.Chat, error)
	ChatsForUser(userID string) ([]models.Chat, error)
	SetDisappearing(chatID string, on bool) error
	UpdateGroupMeta(chatID, name, pictureRef string) error
	DeleteChat(chatID string) error

	// Member operations. UpsertMember inserts an active membership or, if a
	// removed row exists for the pair, flips it back to active; it is the
	// only insertion path and is idempotent for already-active members.
	UpsertMember(chatID, userID string, admin bool) error
	MarkRemoved(chatID, userID string) error
	SetAdmin(chatID, userID string, admin bool) error
	Membership(chatID, userID string) (*models.Member, error)
	ActiveMembers(chatID string) ([]models.MemberView, error)
	ActiveChatIDs(userID string) ([]string, error)

	// Message operations. AppendMessage also advances the chat's
	// last-activity timestamp, in the same transaction.
	AppendMessage(msg *models.Message) error
	MessagesForChat(chatID string) ([]models.MessageView, error)
	PurgeExpired(chatID string, cutoff time.Time) error
	CountMessages(chatID string) (int, error)

	// FileRefInUse reports whether any message, chat, or user still
	// references the stored file. Used by the orphan sweep.
	FileRefInUse(ref string) (bool, error)
}
