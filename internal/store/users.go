package store

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/moneymapper/authcore/internal/models"
	apperrors "github.com/moneymapper/authcore/pkg/errors"
	"gorm.io/gorm"
)

// Users is the GORM-backed user store.
type Users struct {
	db *gorm.DB
}

func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

func (s *Users) first(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var user models.User
	err := Conn(ctx, s.db).Where(query, arg).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrUserNotFound
	}
	if err != nil {
		return nil, apperrors.Internal("user lookup failed", err)
	}
	return &user, nil
}

func (s *Users) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.first(ctx, "username = ?", username)
}

func (s *Users) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.first(ctx, "LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (s *Users) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.first(ctx, "id = ?", id)
}

// FindByIdentifier resolves a username first and falls back to email.
func (s *Users) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	user, err := s.FindByUsername(ctx, identifier)
	if err == nil || !errors.Is(err, apperrors.ErrUserNotFound) {
		return user, err
	}
	if !strings.Contains(identifier, "@") {
		return nil, err
	}
	return s.FindByEmail(ctx, identifier)
}

func (s *Users) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	if err := Conn(ctx, s.db).Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return false, apperrors.Internal("user lookup failed", err)
	}
	return count > 0, nil
}

func (s *Users) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := Conn(ctx, s.db).Model(&models.User{}).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		Count(&count).Error; err != nil {
		return false, apperrors.Internal("user lookup failed", err)
	}
	return count > 0, nil
}

func (s *Users) Create(ctx context.Context, user *models.User) error {
	if user.Email != nil {
		normalized := strings.ToLower(strings.TrimSpace(*user.Email))
		user.Email = &normalized
	}
	if err := Conn(ctx, s.db).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
			return apperrors.AlreadyExists("username or email already registered")
		}
		return apperrors.Internal("user create failed", err)
	}
	return nil
}

func (s *Users) Save(ctx context.Context, user *models.User) error {
	if err := Conn(ctx, s.db).Save(user).Error; err != nil {
		return apperrors.Internal("user save failed", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
