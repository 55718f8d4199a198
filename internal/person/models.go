package person

import (
	"fmt"
	"slices"
	"time"

	"github.com/mehmetcc/warden/pkg/id"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)

// Roles is the closed set of roles a person may hold, highest first.
var Roles = []Role{RoleAdmin, RoleModerator, RoleUser}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleUser:
		return true
	}
	return false
}

// Rank orders roles by privilege. Unknown roles rank 0.
func (r Role) Rank() int {
	i := slices.Index(Roles, r)
	if i < 0 {
		return 0
	}
	return len(Roles) - i
}

func (r Role) Outranks(other Role) bool {
	return r.Rank() > other.Rank()
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

type Person struct {
	ID          int64       `json:"-" db:"id"`
	PublicID    id.PublicID `json:"id" db:"public_id"`
	Email       string      `json:"email" db:"email"`
	Username    string      `json:"username" db:"username"`
	Password    string      `json:"-" db:"password"`
	Role        Role        `json:"role" db:"role"`
	IsActive    bool        `json:"is_active" db:"is_active"`
	IsDeleted   bool        `json:"-" db:"is_deleted"`
	LastLoginAt *time.Time  `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// PersonDTO carries the fields needed to create a person. Password must
// already be a digest.
type PersonDTO struct {
	Email    string
	Username string
	Password string
	Role     Role
	IsActive bool
}

// Patch lists the fields an update replaces; nil fields are left alone.
type Patch struct {
	Email       *string
	Username    *string
	Password    *string
	Role        *Role
	IsActive    *bool
	LastLoginAt *time.Time
}
