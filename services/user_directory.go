package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/cppla/geopost/models"
	"github.com/cppla/geopost/repositories"
	"github.com/cppla/geopost/utils"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 64
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	Issue(userID uint, username string) (string, int64, error)
}

// AuthResult is returned by a successful registration or login.
type AuthResult struct {
	UserID    uint   `json:"userId"`
	Username  string `json:"username"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

// UserDirectory registers accounts and authenticates credentials.
type UserDirectory struct {
	users  repositories.UserRepository
	tokens TokenIssuer

	dummyOnce sync.Once
	dummyHash string
}

func NewUserDirectory(users repositories.UserRepository, tokens TokenIssuer) *UserDirectory {
	return &UserDirectory{users: users, tokens: tokens}
}

// Register creates the account and logs it in. A taken username yields USERNAME_CONFLICT.
func (d *UserDirectory) Register(ctx context.Context, username, password string) (AuthResult, error) {
	username, err := validateCredentials(username, password)
	if err != nil {
		return AuthResult{}, err
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{Username: username, PasswordHash: hash}
	if err := d.users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrUsernameTaken) {
			return AuthResult{}, utils.ConflictError("username is already taken")
		}
		return AuthResult{}, err
	}
	utils.Sugar.Infow("user registered", "userId", user.ID, "username", user.Username)

	return d.issue(user)
}

// Login verifies credentials. Unknown users and wrong passwords are indistinguishable.
func (d *UserDirectory) Login(ctx context.Context, username, password string) (AuthResult, error) {
	username, err := validateCredentials(username, password)
	if err != nil {
		return AuthResult{}, err
	}

	user, err := d.users.FindByUsername(ctx, username)
	if errors.Is(err, repositories.ErrNotFound) {
		// Burn the same hashing work as a real check.
		utils.CheckPassword(d.placeholderHash(), password)
		return AuthResult{}, utils.InvalidCredentials()
	}
	if err != nil {
		return AuthResult{}, err
	}
	if !utils.CheckPassword(user.PasswordHash, password) {
		return AuthResult{}, utils.InvalidCredentials()
	}

	return d.issue(user)
}

func (d *UserDirectory) issue(user *models.User) (AuthResult, error) {
	token, expiresAt, err := d.tokens.Issue(user.ID, user.Username)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		UserID:    user.ID,
		Username:  user.Username,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

func (d *UserDirectory) placeholderHash() string {
	d.dummyOnce.Do(func() {
		d.dummyHash, _ = utils.HashPassword("geopost-placeholder")
	})
	return d.dummyHash
}

// validateCredentials returns the trimmed username or a VALIDATION_ERROR.
func validateCredentials(username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if !usernamePattern.MatchString(username) {
		return "", utils.ValidationError("username must be 3-20 characters of letters, digits or underscore")
	}
	if n := utf8.RuneCountInString(password); n < minPasswordLength || n > maxPasswordLength {
		return "", utils.ValidationError("password must be 8-64 characters")
	}
	return username, nil
}
