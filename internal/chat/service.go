// Package chat is the core of the service: membership lifecycle, the message
// ledger, and the orchestration between them and the realtime room registry.
package chat

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pbeck/parley/internal/files"
	"github.com/pbeck/parley/internal/identity"
	"github.com/pbeck/parley/internal/models"
	"github.com/pbeck/parley/internal/store"
	"github.com/pbeck/parley/internal/ws"
)

// DisappearingWindow is how long a disappearing message lives. Expiry is
// evaluated lazily before every listing, so a client never sees an expired
// message regardless of any background reclamation.
const DisappearingWindow = 5 * time.Hour

// Rooms is what the service needs from the realtime layer. Satisfied by
// *ws.Hub; tests substitute a recorder.
type Rooms interface {
	Broadcast(chatID, eventType string, payload interface{})
	SendToUser(userID, eventType, chatID string, payload interface{})
	SubscribeUser(userID, chatID string)
	EvictUser(userID, chatID string)
}

// Invitee is one requested group member.
type Invitee struct {
	Username string `json:"username"`
	Admin    bool   `json:"admin"`
}

type Service struct {
	Store     store.Store
	Directory identity.Directory
	Files     files.Store
	Rooms     Rooms

	// Now is the clock; nil means time.Now.
	Now func() time.Time

	// ReapEmptyChats deletes a group once its last active member leaves and
	// no messages remain. Off by default: the chat goes dormant instead.
	ReapEmptyChats bool
}

func (s *Service) clock() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func depErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrDependency, op, err)
}

// CreateDirectChat starts (or returns) the DM between the requester and the
// named user. A DM has exactly two members, both admins; its display name is
// never stored, it is the other party, substituted per viewer at read time.
func (s *Service) CreateDirectChat(requesterID, otherUsername string) (*models.ChatView, error) {
	other, err := s.Directory.ResolveUsername(otherUsername)
	if err != nil {
		return nil, depErr("resolve username", err)
	}
	if other == nil {
		return nil, ErrUnknownUser
	}
	if other.ID == requesterID {
		return nil, ErrSelfDM
	}

	// An active DM between the pair already covers this request.
	if existing, err := s.Store.FindDirectChat(requesterID, other.ID); err != nil {
		return nil, depErr("find direct chat", err)
	} else if existing != nil {
		return s.chatView(existing, requesterID, true)
	}

	chat := &models.Chat{ID: uuid.NewString(), Direct: true, LastActivityAt: s.clock()}
	members := []models.Member{
		{ChatID: chat.ID, UserID: requesterID, Admin: true},
		{ChatID: chat.ID, UserID: other.ID, Admin: true},
	}
	if err := s.Store.CreateChat(chat, members); err != nil {
		return nil, depErr("create chat", err)
	}

	s.Rooms.SubscribeUser(requesterID, chat.ID)
	s.Rooms.SubscribeUser(other.ID, chat.ID)

	view, err := s.chatView(chat, requesterID, false)
	if err != nil {
		return nil, err
	}
	if counterpart, err := s.chatView(chat, other.ID, false); err == nil {
		s.Rooms.SendToUser(other.ID, ws.EventChatNew, chat.ID, counterpart)
	}
	return view, nil
}

// CreateGroupChat creates the group with the requester as admin, then adds
// each invitee. Invitees that cannot be resolved or inserted do not abort
// creation; their usernames come back in the second return value so the
// caller can surface them.
func (s *Service) CreateGroupChat(requesterID, groupName string, invitees []Invitee) (*models.ChatView, []string, error) {
	if strings.TrimSpace(groupName) == "" {
		return nil, nil, fmt.Errorf("%w: group name required", ErrValidation)
	}

	chat := &models.Chat{ID: uuid.NewString(), GroupName: groupName, LastActivityAt: s.clock()}
	creator := []models.Member{{ChatID: chat.ID, UserID: requesterID, Admin: true}}
	if err := s.Store.CreateChat(chat, creator); err != nil {
		return nil, nil, depErr("create chat", err)
	}
	s.Rooms.SubscribeUser(requesterID, chat.ID)

	var failed []string
	for _, inv := range invitees {
		ref, err := s.Directory.ResolveUsername(inv.Username)
		if err != nil || ref == nil {
			failed = append(failed, inv.Username)
			continue
		}
		if err := s.Store.UpsertMember(chat.ID, ref.ID, inv.Admin); err != nil {
			failed = append(failed, inv.Username)
			continue
		}
		s.Rooms.SubscribeUser(ref.ID, chat.ID)
		if ref.ID != requesterID {
			if view, err := s.chatView(chat, ref.ID, false); err == nil {
				s.Rooms.SendToUser(ref.ID, ws.EventChatNew, chat.ID, view)
			}
		}
	}

	view, err := s.chatView(chat, requesterID, false)
	if err != nil {
		return nil, nil, err
	}
	return view, failed, nil
}

// AddMember adds (or reinstates) a member. Admin-only; never valid on a DM.
// Adding an already-active member is a no-op and not an error.
func (s *Service) AddMember(actorID, chatID, username string, admin bool) ([]models.MemberView, error) {
	chat, err := s.mustChat(chatID)
	if err != nil {
		return nil, err
	}
	if err := s.requireAdmin(actorID, chatID); err != nil {
		return nil, err
	}
	if chat.Direct {
		return nil, ErrNotDirectable
	}

	ref, err := s.Directory.ResolveUsername(username)
	if err != nil {
		return nil, depErr("resolve username", err)
	}
	if ref == nil {
		return nil, ErrUnknownUser
	}

	if err := s.Store.UpsertMember(chatID, ref.ID, admin); err != nil {
		return nil, depErr("upsert member", err)
	}

	// A re-add keeps the row's prior admin flag, so announce what the row
	// says rather than what the request asked for.
	member, err := s.Store.Membership(chatID, ref.ID)
	if err != nil {
		return nil, depErr("load membership", err)
	}
	if member != nil {
		admin = member.Admin
	}

	s.Rooms.SubscribeUser(ref.ID, chatID)
	if view, err := s.chatView(chat, ref.ID, true); err == nil {
		s.Rooms.SendToUser(ref.ID, ws.EventChatNew, chatID, view)
	}
	s.Rooms.Broadcast(chatID, ws.EventMemberAdded, models.MemberView{
		UserID: ref.ID, Username: ref.Username, Picture: ref.AvatarRef, Admin: admin,
	})

	return s.activeMembers(chatID)
}

// RemoveMember marks the target's membership removed. Admin-only unless the
// actor removes themselves. The target's live sessions are evicted from the
// room before the removal is announced, so a removed user receives nothing
// after this returns.
func (s *Service) RemoveMember(actorID, chatID, targetUserID string) ([]models.MemberView, error) {
	if _, err := s.mustChat(chatID); err != nil {
		return nil, err
	}
	if actorID != targetUserID {
		if err := s.requireAdmin(actorID, chatID); err != nil {
			return nil, err
		}
	}
	if err := s.remove(chatID, targetUserID); err != nil {
		return nil, err
	}
	return s.activeMembers(chatID)
}

// Leave is the self-service removal; no admin check. Leaving as the last
// active member is valid: the chat goes dormant (or is reaped, per policy).
func (s *Service) Leave(userID, chatID string) error {
	if _, err := s.mustChat(chatID); err != nil {
		return err
	}
	return s.remove(chatID, userID)
}

func (s *Service) remove(chatID, userID string) error {
	m, err := s.Store.Membership(chatID, userID)
	if err != nil {
		return depErr("load membership", err)
	}
	if m == nil || m.State == models.MemberRemoved {
		return ErrMemberNotFound
	}

	if err := s.Store.MarkRemoved(chatID, userID); err != nil {
		return depErr("remove member", err)
	}

	// Eviction precedes the broadcast: a removed user must not see the
	// announcement of their own removal, or anything after it.
	s.Rooms.EvictUser(userID, chatID)
	s.Rooms.Broadcast(chatID, ws.EventMemberRemoved, map[string]string{"user_id": userID})

	s.maybeReap(chatID)
	return nil
}

// ToggleAdmin flips the target's admin flag. Admin-only.
func (s *Service) ToggleAdmin(actorID, chatID, targetUserID string) ([]models.MemberView, error) {
	if _, err := s.mustChat(chatID); err != nil {
		return nil, err
	}
	if err := s.requireAdmin(actorID, chatID); err != nil {
		return nil, err
	}

	m, err := s.Store.Membership(chatID, targetUserID)
	if err != nil {
		return nil, depErr("load membership", err)
	}
	if m == nil || m.State == models.MemberRemoved {
		return nil, ErrMemberNotFound
	}

	if err := s.Store.SetAdmin(chatID, targetUserID, !m.Admin); err != nil {
		return nil, depErr("set admin", err)
	}

	s.Rooms.Broadcast(chatID, ws.EventAdminToggled, map[string]interface{}{
		"user_id": targetUserID,
		"admin":   !m.Admin,
	})

	return s.activeMembers(chatID)
}

// SetDisappearing flips the chat's disappearing mode. The mode is copied
// onto each message at send time, so already-sent messages keep their fate.
func (s *Service) SetDisappearing(actorID, chatID string, on bool) error {
	if _, err := s.mustChat(chatID); err != nil {
		return err
	}
	if err := s.requireAdmin(actorID, chatID); err != nil {
		return err
	}
	if err := s.Store.SetDisappearing(chatID, on); err != nil {
		return depErr("set disappearing", err)
	}
	s.Rooms.Broadcast(chatID, ws.EventChatUpdated, map[string]interface{}{"disappearing": on})
	return nil
}

// UpdateGroup renames a group chat and/or replaces its picture. Admin-only;
// DMs have no stored metadata to update.
func (s *Service) UpdateGroup(actorID, chatID, name, pictureRef string) error {
	chat, err := s.mustChat(chatID)
	if err != nil {
		return err
	}
	if chat.Direct {
		return ErrNotDirectable
	}
	if err := s.requireAdmin(actorID, chatID); err != nil {
		return err
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: group name required", ErrValidation)
	}
	if err := s.Store.UpdateGroupMeta(chatID, name, pictureRef); err != nil {
		return depErr("update group", err)
	}
	s.Rooms.Broadcast(chatID, ws.EventChatUpdated, map[string]string{
		"name":    name,
		"picture": pictureRef,
	})
	return nil
}

// ListChats returns the viewer's chats, most recently active first, each
// with active members and messages (expired ones purged first).
func (s *Service) ListChats(viewerID string) ([]models.ChatView, error) {
	chats, err := s.Store.ChatsForUser(viewerID)
	if err != nil {
		return nil, depErr("list chats", err)
	}

	views := make([]models.ChatView, 0, len(chats))
	for i := range chats {
		view, err := s.chatView(&chats[i], viewerID, true)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

// ListMembers returns the chat's active members. The viewer must be one.
func (s *Service) ListMembers(viewerID, chatID string) ([]models.MemberView, error) {
	if _, err := s.mustChat(chatID); err != nil {
		return nil, err
	}
	if err := s.requireMember(viewerID, chatID); err != nil {
		return nil, err
	}
	return s.activeMembers(chatID)
}

// ListMessages returns the chat's messages oldest first, after purging
// expired disappearing messages. The viewer must be an active member.
func (s *Service) ListMessages(viewerID, chatID string) ([]models.MessageView, error) {
	if _, err := s.mustChat(chatID); err != nil {
		return nil, err
	}
	if err := s.requireMember(viewerID, chatID); err != nil {
		return nil, err
	}
	return s.messagesFor(chatID)
}

// PostMessage appends a message and fans the fully resolved view out to the
// chat's room. Disappearing is stamped from the chat's current mode.
func (s *Service) PostMessage(senderID, chatID, content, fileRef string) (*models.MessageView, error) {
	if content == "" && fileRef == "" {
		return nil, ErrEmptyMessage
	}
	chat, err := s.mustChat(chatID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(senderID, chatID); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:           uuid.NewString(),
		ChatID:       chatID,
		AuthorID:     senderID,
		Content:      content,
		FileRef:      fileRef,
		Disappearing: chat.Disappearing,
		CreatedAt:    s.clock(),
	}
	if err := s.Store.AppendMessage(msg); err != nil {
		return nil, depErr("append message", err)
	}

	sender, err := s.Directory.ResolveID(senderID)
	if err != nil {
		return nil, depErr("resolve sender", err)
	}
	if sender == nil {
		return nil, ErrUnknownUser
	}

	view := models.MessageView{
		ID:            msg.ID,
		ChatID:        chatID,
		SenderID:      senderID,
		SenderName:    sender.Username,
		SenderPicture: sender.AvatarRef,
		Content:       content,
		FileLink:      fileRef,
		Disappearing:  msg.Disappearing,
		CreatedAt:     msg.CreatedAt,
	}
	s.resolveFile(&view)

	s.Rooms.Broadcast(chatID, ws.EventMessageNew, view)
	return &view, nil
}

// --- helpers ---

func (s *Service) mustChat(chatID string) (*models.Chat, error) {
	chat, err := s.Store.ChatByID(chatID)
	if err != nil {
		return nil, depErr("load chat", err)
	}
	if chat == nil {
		return nil, ErrChatNotFound
	}
	return chat, nil
}

func (s *Service) requireMember(userID, chatID string) error {
	m, err := s.Store.Membership(chatID, userID)
	if err != nil {
		return depErr("load membership", err)
	}
	if m == nil || m.State == models.MemberRemoved {
		return ErrNotAMember
	}
	return nil
}

func (s *Service) requireAdmin(userID, chatID string) error {
	m, err := s.Store.Membership(chatID, userID)
	if err != nil {
		return depErr("load membership", err)
	}
	if m == nil || m.State == models.MemberRemoved {
		return ErrNotAMember
	}
	if !m.Admin {
		return ErrNotAdmin
	}
	return nil
}

func (s *Service) activeMembers(chatID string) ([]models.MemberView, error) {
	members, err := s.Store.ActiveMembers(chatID)
	if err != nil {
		return nil, depErr("list members", err)
	}
	return members, nil
}

// chatView personalizes a chat for one viewer. For a DM with exactly one
// other active member, the display name and picture are that member's.
func (s *Service) chatView(chat *models.Chat, viewerID string, includeMessages bool) (*models.ChatView, error) {
	members, err := s.activeMembers(chat.ID)
	if err != nil {
		return nil, err
	}

	view := &models.ChatView{
		ID:             chat.ID,
		Direct:         chat.Direct,
		Name:           chat.GroupName,
		Picture:        chat.GroupPictureRef,
		Disappearing:   chat.Disappearing,
		LastActivityAt: chat.LastActivityAt,
		Members:        members,
		Messages:       []models.MessageView{},
	}

	if chat.Direct {
		var others []models.MemberView
		for _, m := range members {
			if m.UserID != viewerID {
				others = append(others, m)
			}
		}
		if len(others) == 1 {
			view.Name = others[0].Username
			view.Picture = others[0].Picture
		}
	}

	if includeMessages {
		msgs, err := s.messagesFor(chat.ID)
		if err != nil {
			return nil, err
		}
		view.Messages = msgs
	}
	return view, nil
}

func (s *Service) messagesFor(chatID string) ([]models.MessageView, error) {
	if err := s.Store.PurgeExpired(chatID, s.clock().Add(-DisappearingWindow)); err != nil {
		return nil, depErr("purge expired", err)
	}
	msgs, err := s.Store.MessagesForChat(chatID)
	if err != nil {
		return nil, depErr("list messages", err)
	}
	for i := range msgs {
		s.resolveFile(&msgs[i])
	}
	return msgs, nil
}

// resolveFile turns a stored file ref into a fetchable link plus a display
// name. A ref that no longer resolves is left as-is rather than failing the
// whole listing.
func (s *Service) resolveFile(v *models.MessageView) {
	if v.FileLink == "" || s.Files == nil {
		return
	}
	v.FileName = path.Base(v.FileLink)
	if url, err := s.Files.Resolve(v.FileLink); err == nil {
		v.FileLink = url
	}
}

// maybeReap deletes a dormant group under the reap policy: no active
// members, nothing left in the ledger.
func (s *Service) maybeReap(chatID string) {
	if !s.ReapEmptyChats {
		return
	}
	chat, err := s.Store.ChatByID(chatID)
	if err != nil || chat == nil || chat.Direct {
		return
	}
	members, err := s.Store.ActiveMembers(chatID)
	if err != nil || len(members) > 0 {
		return
	}
	n, err := s.Store.CountMessages(chatID)
	if err != nil || n > 0 {
		return
	}
	s.Store.DeleteChat(chatID)
}
