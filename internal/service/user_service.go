// Package service provides application business logic (users, contacts, chats).
package service

import (
	"context"

	"parley/internal/models"
	"parley/internal/repository"
	"parley/internal/validation"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserService provides account and profile business logic.
type UserService struct {
	userRepo repository.UserRepository
	db       *gorm.DB
}

// NewUserService returns a new UserService.
func NewUserService(userRepo repository.UserRepository, db *gorm.DB) *UserService {
	return &UserService{userRepo: userRepo, db: db}
}

// SignupInput is the input for creating a user account.
type SignupInput struct {
	Username string
	Password string
	Name     string
}

// EditProfileInput carries optional profile changes; nil fields are left untouched.
type EditProfileInput struct {
	Name           *string
	About          *string
	Avatar         *string
	Use24HourClock *bool
}

// Signup creates a new user account with a hashed credential.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	if err := validation.ValidateUsername(in.Username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	existing, err := s.userRepo.GetByUsername(ctx, in.Username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewBadUserInputError("Username already taken")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Username: in.Username,
		Password: string(hash),
		Name:     in.Name,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate verifies a credential pair and returns the matching user.
// Wrong username and wrong password collapse into the same error.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewBadUserInputError("Invalid username or password")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, models.NewBadUserInputError("Invalid username or password")
	}
	return user, nil
}

// GetByID returns a user by id.
func (s *UserService) GetByID(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewNotFoundError("User", id)
	}
	return user, nil
}

// EditProfile applies the supplied profile changes to the user.
func (s *UserService) EditProfile(ctx context.Context, userID uint, in EditProfileInput) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewNotFoundError("User", userID)
	}

	if in.Name != nil {
		user.Name = *in.Name
	}
	if in.About != nil {
		if err := validation.ValidateAbout(*in.About); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		user.About = *in.About
	}
	if in.Avatar != nil {
		user.Avatar = *in.Avatar
	}
	if in.Use24HourClock != nil {
		user.Use24HourClock = *in.Use24HourClock
	}

	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword verifies the current credential and replaces it.
func (s *UserService) ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return models.NewNotFoundError("User", userID)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(currentPassword)); err != nil {
		return models.NewBadUserInputError("Current password is incorrect")
	}
	if err := validation.ValidatePassword(newPassword); err != nil {
		return models.NewValidationError(err.Error())
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return models.NewInternalError(err)
	}
	user.Password = string(hash)
	return s.userRepo.Update(ctx, user)
}
