package types

import "time"

// User is a registered account. PasswordHash is a bcrypt hash.
type User struct {
	Username     string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// AuthRequest is the body of POST /api/users/login and /register
type AuthRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse carries the bearer token.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type UserResponse struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}
