// Package userstore manages the gateway's user records: usernames, bcrypt
// password hashes, roles, and activation state. It backs the admin user
// operations; bearer tokens are issued elsewhere against these records.
package userstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vigilops/camgate/internal/auth"
)

// Common errors for user operations.
var (
	// ErrUserNotFound is returned when no record exists for the username.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned when creating an already-present username.
	ErrUserExists = errors.New("user already exists")

	// ErrUserInactive is returned when operating on a deactivated user.
	ErrUserInactive = errors.New("user is deactivated")

	// ErrWrongPassword is returned when password verification fails.
	ErrWrongPassword = errors.New("wrong password")

	// ErrWeakPassword is returned when a password fails the length policy.
	ErrWeakPassword = errors.New("password does not meet the length requirement")
)

// minPasswordLength is the minimum accepted password length.
const minPasswordLength = 8

// User is one user record. The password hash never leaves the store.
type User struct {
	Username  string
	Role      auth.Role
	Active    bool
	UpdatedAt time.Time
}

// Store manages user records.
type Store interface {
	// Create adds a user. The role must be viewer or admin; the system
	// role belongs exclusively to shared-secret callers.
	Create(ctx context.Context, username, password string, role auth.Role) error

	// Get returns the user record.
	Get(ctx context.Context, username string) (*User, error)

	// Verify checks the password of an active user and returns the record.
	Verify(ctx context.Context, username, password string) (*User, error)

	// SetPassword replaces the user's password.
	SetPassword(ctx context.Context, username, newPassword string) error

	// SetRole changes the user's role and returns the previous one.
	SetRole(ctx context.Context, username string, role auth.Role) (auth.Role, error)

	// Deactivate marks the user inactive. Deactivation is idempotent.
	Deactivate(ctx context.Context, username string) error

	// Reseed adds configured users that are not yet present. Existing
	// records, including changes made through the admin operations, are
	// left untouched.
	Reseed(ctx context.Context, config *Config) error
}

// Config configures the user store.
type Config struct {
	// BcryptCost is the bcrypt work factor. Defaults to the library
	// default when zero.
	BcryptCost int `yaml:"bcryptCost,omitempty" json:"bcryptCost,omitempty"`

	// Users seeds records at startup.
	Users []SeedUser `yaml:"users,omitempty" json:"users,omitempty"`
}

// SeedUser is one configured user record.
type SeedUser struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	Role     string `yaml:"role" json:"role"`
}

// Validate validates the user store configuration.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.BcryptCost != 0 && (c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost) {
		return fmt.Errorf("bcryptCost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	seen := make(map[string]struct{}, len(c.Users))
	for i, u := range c.Users {
		if u.Username == "" {
			return fmt.Errorf("users[%d]: username is required", i)
		}
		if _, dup := seen[u.Username]; dup {
			return fmt.Errorf("users[%d]: duplicate username %q", i, u.Username)
		}
		seen[u.Username] = struct{}{}
		if _, err := parseAssignableRole(u.Role); err != nil {
			return fmt.Errorf("users[%d]: %w", i, err)
		}
	}
	return nil
}

// GetEffectiveBcryptCost returns the effective bcrypt work factor.
func (c *Config) GetEffectiveBcryptCost() int {
	if c != nil && c.BcryptCost != 0 {
		return c.BcryptCost
	}
	return bcrypt.DefaultCost
}

// parseAssignableRole parses a role that may be stored on a user record.
func parseAssignableRole(s string) (auth.Role, error) {
	role, err := auth.ParseRole(s)
	if err != nil {
		return "", err
	}
	if role == auth.RoleSystem {
		return "", fmt.Errorf("role %q is not assignable to users", s)
	}
	return role, nil
}

// record is the stored form of a user.
type record struct {
	user User
	hash []byte
}

// memoryStore is a process-local Store.
type memoryStore struct {
	mu      sync.RWMutex
	records map[string]*record
	cost    int
	now     func() time.Time

	// dummyHash equalizes verification cost for unknown usernames.
	dummyHash []byte
}

// NewStore creates a user store and seeds it from configuration.
func NewStore(ctx context.Context, config *Config) (Store, error) {
	if config == nil {
		config = &Config{}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &memoryStore{
		records: make(map[string]*record),
		cost:    config.GetEffectiveBcryptCost(),
		now:     time.Now,
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("camgate-dummy-password"), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash dummy password: %w", err)
	}
	s.dummyHash = dummy

	for _, u := range config.Users {
		role, err := parseAssignableRole(u.Role)
		if err != nil {
			return nil, err
		}
		if err := s.Create(ctx, u.Username, u.Password, role); err != nil {
			return nil, fmt.Errorf("seed user %q: %w", u.Username, err)
		}
	}

	return s, nil
}

// Create adds a user record.
func (s *memoryStore) Create(_ context.Context, username, password string, role auth.Role) error {
	if username == "" {
		return errors.New("username is required")
	}
	if _, err := parseAssignableRole(string(role)); err != nil {
		return err
	}
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[username]; exists {
		return fmt.Errorf("%w: %s", ErrUserExists, username)
	}

	s.records[username] = &record{
		user: User{
			Username:  username,
			Role:      role,
			Active:    true,
			UpdatedAt: s.now(),
		},
		hash: hash,
	}
	return nil
}

// Get returns a copy of the user record.
func (s *memoryStore) Get(_ context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[username]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	user := rec.user
	return &user, nil
}

// Verify checks the password of an active user.
func (s *memoryStore) Verify(_ context.Context, username, password string) (*User, error) {
	s.mu.RLock()
	rec, ok := s.records[username]
	var hash []byte
	var user User
	if ok {
		hash = rec.hash
		user = rec.user
	}
	s.mu.RUnlock()

	if !ok {
		// Burn a comparison so absent and present usernames cost the same.
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return nil, ErrWrongPassword
	}
	if !user.Active {
		return nil, fmt.Errorf("%w: %s", ErrUserInactive, username)
	}
	return &user, nil
}

// SetPassword replaces the user's password hash.
func (s *memoryStore) SetPassword(_ context.Context, username, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[username]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	if !rec.user.Active {
		return fmt.Errorf("%w: %s", ErrUserInactive, username)
	}

	rec.hash = hash
	rec.user.UpdatedAt = s.now()
	return nil
}

// SetRole changes the user's role.
func (s *memoryStore) SetRole(_ context.Context, username string, role auth.Role) (auth.Role, error) {
	if _, err := parseAssignableRole(string(role)); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[username]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	if !rec.user.Active {
		return "", fmt.Errorf("%w: %s", ErrUserInactive, username)
	}

	old := rec.user.Role
	rec.user.Role = role
	rec.user.UpdatedAt = s.now()
	return old, nil
}

// Reseed adds configured users that are not yet present.
func (s *memoryStore) Reseed(ctx context.Context, config *Config) error {
	if config == nil {
		return nil
	}
	if err := config.Validate(); err != nil {
		return err
	}

	for _, u := range config.Users {
		role, err := parseAssignableRole(u.Role)
		if err != nil {
			return err
		}
		if err := s.Create(ctx, u.Username, u.Password, role); err != nil {
			if errors.Is(err, ErrUserExists) {
				continue
			}
			return fmt.Errorf("seed user %q: %w", u.Username, err)
		}
	}
	return nil
}

// Deactivate marks the user inactive.
func (s *memoryStore) Deactivate(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[username]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}

	rec.user.Active = false
	rec.user.UpdatedAt = s.now()
	return nil
}

// Ensure the implementation satisfies the interface.
var _ Store = (*memoryStore)(nil)
