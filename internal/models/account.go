package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleManager Role = "manager"
	RoleCashier Role = "cashier"
)

func (r Role) Valid() bool {
	return r == RoleManager || r == RoleCashier
}

type Account struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email,omitempty" db:"email"`
	PhoneNumber  string    `json:"phone_number,omitempty" db:"phone_number"`
	PhotoKey     string    `json:"photo_key,omitempty" db:"photo_key"`
	Role         Role      `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
