package auth

import "time"

// Role is the account role held in the user directory. It is distinct from the
// per-order roles (buyer, seller) which are derived from order identity.
type Role string

const (
	RoleUser      Role = "user"
	RoleLogistics Role = "logistics"
	RoleSupport   Role = "support"
	RoleAdmin     Role = "admin"
)

// IsStaff reports whether the role may moderate disputes and accounts.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleSupport
}

type KYCStatus string

const (
	KYCUnverified KYCStatus = "unverified"
	KYCPending    KYCStatus = "pending"
	KYCVerified   KYCStatus = "verified"
	KYCRejected   KYCStatus = "rejected"
)

// User is the domain representation of an account.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Role         Role
	KYCStatus    KYCStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// KYCVerified reports whether the user passed identity verification.
func (u User) KYCVerified() bool {
	return u.KYCStatus == KYCVerified
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// KYCSubmission carries opaque references to the uploaded identity images.
type KYCSubmission struct {
	UserID         string
	IDImageURL     string
	SelfieImageURL string
}
