package auth

import (
	"context"
	"fmt"
)

// Admin is proof that a user held the admin role when it was checked. The
// zero value is not a valid capability; obtain one from Authorizer.
type Admin struct {
	userID string
}

// UserID of the admin, or "" for the zero value.
func (a Admin) UserID() string { return a.userID }

func (a Admin) Valid() bool { return a.userID != "" }

type Authorizer struct {
	roles *Roles
}

func NewAuthorizer(roles *Roles) *Authorizer { return &Authorizer{roles: roles} }

// RequireAdmin returns the Admin capability for id, or ErrForbidden.
func (a *Authorizer) RequireAdmin(ctx context.Context, id Identity) (Admin, error) {
	if id.UserID == "" {
		return Admin{}, ErrUnauthenticated
	}
	role, err := a.roles.Get(ctx, id.UserID)
	if err != nil {
		return Admin{}, err
	}
	if role != RoleAdmin {
		return Admin{}, fmt.Errorf("%w (user %s has role %q)", ErrForbidden, id.UserID, role)
	}
	return Admin{userID: id.UserID}, nil
}
