package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ahinestrog/campusbooks/internal/storage"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleProfessor Role = "professor"
	// RoleNone is reported for users without a user_roles row.
	RoleNone Role = ""
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleAdmin, RoleProfessor:
		return r, nil
	}
	return RoleNone, fmt.Errorf("unknown role %q", s)
}

// Roles is the user_roles table.
type Roles struct {
	q storage.Querier
}

func NewRoles(q storage.Querier) *Roles { return &Roles{q: q} }

func (r *Roles) Get(ctx context.Context, userID string) (Role, error) {
	var role string
	err := r.q.GetContext(ctx, &role, `SELECT role FROM user_roles WHERE user_id=?`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return RoleNone, nil
	}
	if err != nil {
		return RoleNone, fmt.Errorf("auth: get role for %s: %w", userID, err)
	}
	return Role(role), nil
}

// Grant sets the role of userID, replacing any previous one.
func (r *Roles) Grant(ctx context.Context, userID string, role Role, at time.Time) error {
	if _, err := ParseRole(string(role)); err != nil {
		return err
	}
	_, err := r.q.ExecContext(ctx, `
INSERT INTO user_roles(user_id, role, granted_at) VALUES(?,?,?)
ON CONFLICT(user_id) DO UPDATE SET role=excluded.role, granted_at=excluded.granted_at`,
		userID, string(role), at.UnixMilli())
	if err != nil {
		return fmt.Errorf("auth: grant %s to %s: %w", role, userID, err)
	}
	return nil
}
