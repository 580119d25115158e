// Package identity resolves usernames and user ids to display identities.
// The chat core consumes the Directory interface only; the default
// implementation reads the local users table.
package identity

import (
	"github.com/pbeck/parley/internal/models"
	"github.com/pbeck/parley/internal/store"
)

type Directory interface {
	// ResolveUsername returns the user with that username, or nil when no
	// such user exists.
	ResolveUsername(username string) (*models.UserRef, error)
	// ResolveID returns the user with that id, or nil.
	ResolveID(id string) (*models.UserRef, error)
}

type storeDirectory struct {
	store store.Store
}

func NewDirectory(s store.Store) Directory {
	return &storeDirectory{store: s}
}

func (d *storeDirectory) ResolveUsername(username string) (*models.UserRef, error) {
	user, err := d.store.UserByUsername(username)
	return toRef(user), err
}

func (d *storeDirectory) ResolveID(id string) (*models.UserRef, error) {
	user, err := d.store.UserByID(id)
	return toRef(user), err
}

func toRef(user *models.User) *models.UserRef {
	if user == nil {
		return nil
	}
	return &models.UserRef{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		AvatarRef:   user.AvatarRef,
	}
}
