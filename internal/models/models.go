package models

import "time"

// MemberState is the lifecycle state of a membership row. Rows are never
// hard-deleted; leaving or being removed moves the row to Removed, and a
// re-add moves it back to Active.
type MemberState int

const (
	MemberActive MemberState = iota
	MemberRemoved
)

func (s MemberState) String() string {
	if s == MemberRemoved {
		return "removed"
	}
	return "active"
}

type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
	Password    string `json:"-"`
}

// UserRef is the identity-directory view of a user: just enough to render
// them in a chat.
type UserRef struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref,omitempty"`
}

type Chat struct {
	ID              string    `json:"id"`
	Direct          bool      `json:"dm"`
	GroupName       string    `json:"name,omitempty"`
	GroupPictureRef string    `json:"picture,omitempty"`
	Disappearing    bool      `json:"disappearing"`
	LastActivityAt  time.Time `json:"last_activity_at"`
}

type Member struct {
	ChatID string      `json:"chat_id"`
	UserID string      `json:"user_id"`
	Admin  bool        `json:"admin"`
	State  MemberState `json:"-"`
}

// Message rows are append-only; the only deletion path is disappearing-message
// expiry. AuthorID together with ChatID identifies the authoring membership
// row, so a message keeps resolving to its author even after that membership
// is marked removed.
type Message struct {
	ID           string    `json:"id"`
	ChatID       string    `json:"chat_id"`
	AuthorID     string    `json:"author_id"`
	Content      string    `json:"content,omitempty"`
	FileRef      string    `json:"file_ref,omitempty"`
	Disappearing bool      `json:"disappearing"`
	CreatedAt    time.Time `json:"created_at"`
}

// MemberView is an active membership with its identity resolved.
type MemberView struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Picture  string `json:"picture,omitempty"`
	Admin    bool   `json:"admin"`
}

// MessageView carries everything a realtime consumer needs, no follow-up
// fetch required.
type MessageView struct {
	ID            string    `json:"id"`
	ChatID        string    `json:"chat_id"`
	SenderID      string    `json:"sender_id"`
	SenderName    string    `json:"sender_name"`
	SenderPicture string    `json:"sender_picture,omitempty"`
	SenderRemoved bool      `json:"sender_removed"`
	Content       string    `json:"content,omitempty"`
	FileLink      string    `json:"file_link,omitempty"`
	FileName      string    `json:"file_name,omitempty"`
	Disappearing  bool      `json:"disappearing"`
	CreatedAt     time.Time `json:"created_at"`
}

// ChatView is a chat personalized for one viewer. For a DM, Name and Picture
// are the other active member's identity, substituted at read time.
type ChatView struct {
	ID             string        `json:"id"`
	Direct         bool          `json:"dm"`
	Name           string        `json:"name"`
	Picture        string        `json:"picture,omitempty"`
	Disappearing   bool          `json:"disappearing"`
	LastActivityAt time.Time     `json:"last_activity_at"`
	Members        []MemberView  `json:"members"`
	Messages       []MessageView `json:"messages"`
}
