package goOTP

import (
	"context"
	"time"
)

// Purpose distinguishes the flows that issue codes. Each purpose has its own
// record and cooldown per email.
type Purpose uint8

const (
	PurposeSignup        Purpose = 1
	PurposePasswordReset Purpose = 2
)

func (p Purpose) String() string {
	switch p {
	case PurposeSignup:
		return "signup"
	case PurposePasswordReset:
		return "password_reset"
	default:
		return "unknown"
	}
}

// Role partitions identities. Keys are unique within a role.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Identity is a long-lived account. USER identities are keyed by email,
// ADMIN identities by username.
type Identity struct {
	ID              string
	EmailOrUsername string
	PasswordHash    string
	Role            Role
	FirstName       string
	LastName        string
	CreatedAt       time.Time
}

// NewIdentity is the input to CredentialStore.CreateIdentity. The store
// assigns the ID.
type NewIdentity struct {
	EmailOrUsername string
	PasswordHash    string
	Role            Role
	FirstName       string
	LastName        string
	CreatedAt       time.Time
}

// CredentialStore persists identities. CreateIdentity must be atomic with
// respect to (Role, EmailOrUsername) uniqueness and return
// ErrDuplicateIdentity for the loser of a race.
type CredentialStore interface {
	CreateIdentity(ctx context.Context, in NewIdentity) (Identity, error)
	FindByEmailOrUsername(ctx context.Context, role Role, key string) (Identity, error)
	UpdatePasswordHash(ctx context.Context, id string, hash string) error
}

// Delivery is one outbound code. Code is plaintext and must not be logged.
type Delivery struct {
	Email   string
	Purpose Purpose
	Code    string
}

// Deliverer sends codes out of band (email, SMS).
type Deliverer interface {
	Send(ctx context.Context, d Delivery) error
}

type DelivererFunc func(ctx context.Context, d Delivery) error

func (f DelivererFunc) Send(ctx context.Context, d Delivery) error {
	return f(ctx, d)
}

type Clock interface {
	Now() time.Time
}

type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time {
	return f()
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SignupRequest is the staged profile submitted with a signup code request.
type SignupRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Password  string `json:"password"`
}

// IssueResult acknowledges a code issuance. It never carries the code.
type IssueResult struct {
	Email       string
	Purpose     Purpose
	ExpiresAt   time.Time
	ResendAfter time.Time

	// DeliveryFailed is a soft warning reported only on signup paths with
	// synchronous delivery.
	DeliveryFailed bool
}

// Session is a freshly issued bearer token.
type Session struct {
	Token     string
	TokenID   string
	Subject   string
	Role      Role
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Claims is the verified content of a session token.
type Claims struct {
	Subject   string
	Role      Role
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SignupResult is returned when a signup code is confirmed.
type SignupResult struct {
	Identity Identity
	Session  Session
}

// ResetAuthorization permits exactly one password change for the email it
// was issued to. It stops working once the password changes.
type ResetAuthorization struct {
	Token     string
	ExpiresAt time.Time
}
