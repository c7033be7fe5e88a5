package model

// User roles
const (
	UserRoleAdmin = "admin"
	UserRoleUser  = "user"
)

// User is the directory entry the resolver looks senders and recipients up in.
type User struct {
	Base
	Name         string `json:"name" db:"name"`
	Email        string `json:"email" db:"email"`
	Department   string `json:"department" db:"department"`
	Role         string `json:"role" db:"role"`
	PasswordHash string `json:"-" db:"password_hash"`
}

func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

type UserFilters struct {
	Department string `form:"department"`
	Role       string `form:"role" binding:"omitempty,oneof=admin user"`
}

// UpdateUserRequest changes only the fields that are present.
type UpdateUserRequest struct {
	Name       *string `json:"name" binding:"omitempty,min=1"`
	Email      *string `json:"email" binding:"omitempty,email"`
	Department *string `json:"department" binding:"omitempty,min=1"`
	Role       *string `json:"role" binding:"omitempty,oneof=admin user"`
}

func (r *UpdateUserRequest) Empty() bool {
	return r.Name == nil && r.Email == nil && r.Department == nil && r.Role == nil
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type ResetPasswordRequest struct {
	Password string `json:"password" binding:"required,min=8"`
}
