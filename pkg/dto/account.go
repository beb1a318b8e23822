package dto

import "github.com/google/uuid"

// RegisterAccountRequest creates a staff account. The profile photo arrives
// as an optional multipart file named photo_profile.
type RegisterAccountRequest struct {
	Username    string `json:"username" form:"username" validate:"notblank,max=150"`
	Password1   string `json:"password1" form:"password1" validate:"required,min=8"`
	Password2   string `json:"password2" form:"password2" validate:"required,eqfield=Password1"`
	Name        string `json:"name" form:"name" validate:"max=100"`
	Email       string `json:"email" form:"email" validate:"omitempty,email,max=100"`
	PhoneNumber string `json:"phone_number" form:"phone_number" validate:"max=15"`
	Role        string `json:"role" form:"role" validate:"omitempty,oneof=manager cashier"`
}

type LoginRequest struct {
	Username string `json:"username" form:"username" validate:"required"`
	Password string `json:"password" form:"password" validate:"required"`
}

// UpdateAccountRequest is the manager's per-account edit form.
type UpdateAccountRequest struct {
	Username    string `json:"username" form:"username" validate:"notblank,max=150"`
	Name        string `json:"name" form:"name" validate:"max=100"`
	Email       string `json:"email" form:"email" validate:"omitempty,email,max=100"`
	PhoneNumber string `json:"phone_number" form:"phone_number" validate:"max=15"`
	Role        string `json:"role" form:"role" validate:"required,oneof=manager cashier"`
}

type AccountResponse struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	Email        string    `json:"email,omitempty"`
	PhoneNumber  string    `json:"phone_number,omitempty"`
	PhotoProfile string    `json:"photo_profile,omitempty"`
	Role         string    `json:"role"`
	CreatedAt    string    `json:"created_at"`
}

// DashboardResponse lists managers first, then cashiers.
type DashboardResponse struct {
	Users []AccountResponse `json:"users"`
}
