package models

import (
	"time"

	"github.com/uptrace/bun"
)

const RoleSeller = "seller"

// User is a seller allowed to open reports. PasswordHash is a bcrypt hash
// and never leaves the service.
type User struct {
	bun.BaseModel `bun:"table:users"`

	Username     string    `bun:"username,pk" json:"username"`
	Name         string    `bun:"name,notnull" json:"name"`
	Role         string    `bun:"role,notnull" json:"role"`
	PasswordHash string    `bun:"password_hash,notnull" json:"-"`
	CreatedAt    time.Time `bun:"created_at,notnull" json:"created_at"`
}
