package chat

import (
	"errors"
	"fmt"
)

// Base error classes. Handlers map these to HTTP statuses; everything the
// service returns wraps exactly one of them.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("not authorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrDependency   = errors.New("dependency unavailable")
)

// Operation errors.
var (
	// ErrSelfDM: the target username resolved to the requester.
	ErrSelfDM = fmt.Errorf("%w: cannot start a direct chat with yourself", ErrConflict)

	// ErrUnknownUser: a username or id did not resolve in the directory.
	ErrUnknownUser = fmt.Errorf("%w: unknown user", ErrNotFound)

	// ErrNotAMember: the caller holds no active membership in the chat.
	ErrNotAMember = fmt.Errorf("%w: not an active member of this chat", ErrUnauthorized)

	// ErrNotAdmin: the caller is an active member but not an admin.
	ErrNotAdmin = fmt.Errorf("%w: admin privileges required", ErrUnauthorized)

	// ErrMemberNotFound: the target has no active membership in the chat.
	ErrMemberNotFound = fmt.Errorf("%w: no such member", ErrNotFound)

	// ErrNotDirectable: membership mutation attempted on a direct chat.
	// A DM has exactly two members for its entire lifetime.
	ErrNotDirectable = fmt.Errorf("%w: direct chats have a fixed membership", ErrConflict)

	// ErrChatNotFound: the chat id does not exist.
	ErrChatNotFound = fmt.Errorf("%w: no such chat", ErrNotFound)

	// ErrEmptyMessage: a message needs content or an attachment.
	ErrEmptyMessage = fmt.Errorf("%w: message needs content or a file", ErrValidation)
)
