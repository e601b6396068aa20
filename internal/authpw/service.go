// Package authpw provides email/password authentication with verification.
package authpw

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"

	"midnight/api/internal/store"
	"midnight/api/internal/util"

	"golang.org/x/crypto/bcrypt"
)

// Service provides email/password authentication
type Service struct {
	store UserStore
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
	SetVerificationToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	VerifyEmail(ctx context.Context, token string) (store.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) error
	CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error
	GetPasswordReset(ctx context.Context, token string) (string, error)
	MarkPasswordResetUsed(ctx context.Context, token string) error
}

// NewService creates a new auth service
func NewService(store UserStore) *Service {
	return &Service{store: store}
}

// SignUpRequest contains sign-up parameters. Nickname is optional;
// a random anonymous one is assigned when empty.
type SignUpRequest struct {
	Email    string
	Password string
	Nickname string
}

// SignUpResponse contains sign-up result
type SignUpResponse struct {
	UserID              string
	Nickname            string
	VerificationToken   string
	RequiresEmailVerify bool
}

// SignUp creates a new user account
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (*SignUpResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, errors.New("email and password are required")
	}
	if len(req.Password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}

	nickname := req.Nickname
	if nickname == "" {
		nickname = RandomNickname()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	verificationToken, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate verification token: %w", err)
	}

	expiresAt := time.Now().Add(24 * time.Hour)
	user := store.User{
		ID:                    util.NewID("usr"),
		Nickname:              nickname,
		Email:                 req.Email,
		PasswordHash:          string(hash),
		Role:                  "member",
		IsEmailVerified:       false,
		VerificationToken:     verificationToken,
		VerificationExpiresAt: &expiresAt,
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrEmailTaken) || errors.Is(err, store.ErrNicknameTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return &SignUpResponse{
		UserID:              user.ID,
		Nickname:            user.Nickname,
		VerificationToken:   verificationToken,
		RequiresEmailVerify: true,
	}, nil
}

// SignInRequest contains sign-in parameters
type SignInRequest struct {
	Email    string
	Password string
}

// SignInResponse contains sign-in result
type SignInResponse struct {
	User           store.User
	RequiresVerify bool
}

// SignIn authenticates a user
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (*SignInResponse, error) {
	if req.Email == "" || req.Password == "" {
		return nil, errors.New("email and password are required")
	}

	user, err := s.store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, errors.New("invalid email or password")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errors.New("invalid email or password")
	}

	if !user.IsEmailVerified {
		return &SignInResponse{
			User:           user,
			RequiresVerify: true,
		}, nil
	}

	return &SignInResponse{User: user}, nil
}

// VerifyEmail verifies an email address using a token
func (s *Service) VerifyEmail(ctx context.Context, token string) (store.User, error) {
	if token == "" {
		return store.User{}, errors.New("verification token required")
	}

	user, err := s.store.VerifyEmail(ctx, token)
	if err != nil {
		return store.User{}, errors.New("invalid or expired verification token")
	}
	return user, nil
}

// UserByEmail looks up an account by email address.
func (s *Service) UserByEmail(ctx context.Context, email string) (store.User, error) {
	return s.store.GetUserByEmail(ctx, email)
}

// RequestPasswordReset creates a password reset token. Returns an
// empty token for unknown emails so callers cannot probe accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return "", nil
	}

	token, err := generateToken()
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().Add(1 * time.Hour)
	if err := s.store.CreatePasswordReset(ctx, user.ID, token, expiresAt); err != nil {
		return "", err
	}

	return token, nil
}

// ResetPasswordRequest contains password reset parameters
type ResetPasswordRequest struct {
	Token       string
	NewPassword string
}

// ResetPassword resets a user's password using a reset token
func (s *Service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if req.Token == "" || req.NewPassword == "" {
		return errors.New("token and new password are required")
	}
	if len(req.NewPassword) < 8 {
		return errors.New("password must be at least 8 characters")
	}

	userID, err := s.store.GetPasswordReset(ctx, req.Token)
	if err != nil {
		return errors.New("invalid or expired reset token")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.store.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	// Best effort; the password is already reset.
	_ = s.store.MarkPasswordResetUsed(ctx, req.Token)

	return nil
}

var (
	nicknameAdjectives = []string{
		"quiet", "sleepy", "wandering", "gentle", "hazy",
		"drowsy", "restless", "lonely", "warm", "dim",
	}
	nicknameNouns = []string{
		"owl", "moth", "moon", "lamp", "fox",
		"cloud", "star", "cat", "river", "ember",
	}
)

// RandomNickname builds an anonymous adjective-noun-number handle.
func RandomNickname() string {
	adjective := nicknameAdjectives[randomInt(len(nicknameAdjectives))]
	noun := nicknameNouns[randomInt(len(nicknameNouns))]
	return fmt.Sprintf("%s-%s-%03d", adjective, noun, randomInt(1000))
}

func randomInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

// generateToken creates a secure random token
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
