// Package auth provides users, roles, and JWT session tokens.
//
// Roles are a closed set; there is no custom-role facility. The
// operator role is platform staff and is the only role without a
// school: every other user belongs to exactly one school, fixed at
// creation.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Errors
var (
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrEmailTaken         = errors.New("auth: email already registered")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
	ErrUserInactive       = errors.New("auth: user is inactive")
)

// Role is one of the closed set of principal roles.
type Role string

const (
	RoleOperator    Role = "operator"     // platform staff, cross-school
	RoleSchoolAdmin Role = "school_admin" // runs one school
	RoleTeacher     Role = "teacher"
	RoleGuardian    Role = "guardian"
)

// Valid reports whether r names a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOperator, RoleSchoolAdmin, RoleTeacher, RoleGuardian:
		return true
	}
	return false
}

// Action names a permission the Can table answers for.
type Action string

const (
	ActionManagePlatform Action = "manage_platform" // schools, plans, cross-school admin
	ActionManageSchool   Action = "manage_school"   // settings, users, billing
	ActionManageBilling  Action = "manage_billing"  // initialize payments, cancel subscription
	ActionTeach          Action = "teach"           // class and assessment records
	ActionViewWard       Action = "view_ward"       // guardian read access
)

// can is the full permission table. Additive: a row lists everything
// the role may do.
var can = map[Role]map[Action]bool{
	RoleOperator: {
		ActionManagePlatform: true,
		ActionManageSchool:   true,
		ActionManageBilling:  true,
		ActionTeach:          true,
		ActionViewWard:       true,
	},
	RoleSchoolAdmin: {
		ActionManageSchool:  true,
		ActionManageBilling: true,
		ActionTeach:         true,
		ActionViewWard:      true,
	},
	RoleTeacher: {
		ActionTeach:    true,
		ActionViewWard: true,
	},
	RoleGuardian: {
		ActionViewWard: true,
	},
}

// Can reports whether a role may perform an action.
func Can(r Role, a Action) bool {
	return can[r][a]
}

// User is one authenticatable principal.
type User struct {
	ID           string    `json:"id"`
	SchoolID     string    `json:"schoolId,omitempty"` // empty only for operators
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// HashPassword hashes a plaintext password for storage.
func HashPassword(plaintext string) (string, error) {
	if len(plaintext) < 8 {
		return "", fmt.Errorf("auth: password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a plaintext password against a stored hash.
func (u *User) CheckPassword(plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plaintext)) == nil
}

// NormalizeEmail canonicalizes an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Claims are the JWT payload for a session token.
type Claims struct {
	SchoolID string `json:"school_id,omitempty"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and parses session tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer creates an issuer with the signing secret and token
// lifetime.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue mints a signed session token for a user.
func (t *TokenIssuer) Issue(u *User) (string, error) {
	now := t.now()
	claims := Claims{
		SchoolID: u.SchoolID,
		Role:     string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Parse validates a token and returns its claims.
func (t *TokenIssuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !Role(claims.Role).Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
