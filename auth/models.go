package auth

import "time"

type Role string

const (
	RoleCompany    Role = "company"
	RoleFreelancer Role = "freelancer"
	RoleArbitrator Role = "arbitrator"
)

// User is the domain representation of a dashboard account. It mirrors the
// users table and carries no JSON annotations so it can be reused by
// different presentation layers. The wallet address and encryption key are
// optional until the user links a wallet.
type User struct {
	ID                  string
	Email               string
	FullName            string
	PasswordHash        string
	Role                Role
	WalletAddress       *string
	EncryptionPublicKey *string
	ProfileCID          *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
