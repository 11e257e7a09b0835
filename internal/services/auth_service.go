package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/thereayou/livechat/internal/apperr"
	"github.com/thereayou/livechat/internal/database"
	"github.com/thereayou/livechat/internal/models"
	"github.com/thereayou/livechat/pkg/auth"
)

type RegisterRequest struct {
	Username string
	Email    string
	Password string
}

type LoginRequest struct {
	Email    string
	Password string
}

type AuthResponse struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

// AuthService регистрация, вход и выход. Сессии это JWT, выход кладёт
// токен в черный список до истечения.
type AuthService struct {
	db         *database.Database
	jwtManager *auth.JWTManager
	blacklist  auth.TokenBlacklist
}

func NewAuthService(db *database.Database, jwtManager *auth.JWTManager, blacklist auth.TokenBlacklist) *AuthService {
	return &AuthService{db: db, jwtManager: jwtManager, blacklist: blacklist}
}

func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Internal("cannot hash password", err)
	}

	user := &models.User{
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: string(hash),
		LastSeenAt:   time.Now(),
	}
	if err := s.db.SaveUser(ctx, user); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.Conflict("username or email already taken")
		}
		return nil, apperr.Internal("failed to create user", err)
	}
	return s.issue(user)
}

// Login выдаёт JWT и обновляет last_seen
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	user, err := s.db.FindUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Auth("invalid credentials")
		}
		return nil, apperr.Internal("failed to load user", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apperr.Auth("invalid credentials")
	}
	if err := s.db.UpdateLastSeen(ctx, user.ID); err != nil {
		return nil, apperr.Internal("could not update last seen", err)
	}
	return s.issue(user)
}

func (s *AuthService) issue(user *models.User) (*AuthResponse, error) {
	token, exp, err := s.jwtManager.Generate(user.ID)
	if err != nil {
		return nil, apperr.Internal("could not generate token", err)
	}
	return &AuthResponse{User: user, Token: token, ExpiresAt: exp}, nil
}

// Logout ставит токен в черный список до его истечения
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	claims, err := s.jwtManager.Verify(rawToken)
	if err != nil {
		return apperr.Auth("invalid token")
	}
	if err := s.blacklist.Revoke(ctx, rawToken, time.Until(claims.ExpiresAt.Time)); err != nil {
		return apperr.Transport("failed to revoke token", err)
	}
	return nil
}
