package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/boilerkit/boilerkit/internal/model"
	"github.com/boilerkit/boilerkit/internal/repository"
	"github.com/boilerkit/boilerkit/internal/storage"
	"github.com/boilerkit/boilerkit/internal/validation"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCurrentPassword = errors.New("current password is incorrect")
	ErrActiveSubscription     = errors.New("cannot delete account with active subscription")
)

type UserService struct {
	userRepository      repository.UserRepository
	storage             storage.Storage
	subscriptionService *SubscriptionService
}

func NewUserService(
	userRepository repository.UserRepository,
	storage storage.Storage,
	subscriptionService *SubscriptionService,
) *UserService {
	return &UserService{
		userRepository:      userRepository,
		storage:             storage,
		subscriptionService: subscriptionService,
	}
}

func (s *UserService) ByID(id string) (*model.User, error) {
	return s.userRepository.ByID(id)
}

// Me returns the account view handlers serialize. Sensitive columns stay
// behind the PublicUser boundary.
func (s *UserService) Me(userID string) (*model.PublicUser, error) {
	user, err := s.userRepository.ByID(userID)
	if err != nil {
		return nil, err
	}

	return user.Public(), nil
}

func (s *UserService) UpdatePassword(userID, currentPassword, newPassword string) error {
	user, err := s.userRepository.ByID(userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	if !user.HasPassword() {
		return ErrNoPassword
	}

	err = bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(currentPassword))
	if err != nil {
		return ErrInvalidCurrentPassword
	}

	// Validate new password
	err = validation.ValidatePassword(newPassword)
	if err != nil {
		return err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	hashStr := string(hashedPassword)
	user.PasswordHash = &hashStr

	err = s.userRepository.Update(user)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}

	return nil
}

// UpdateProfile changes name and phone. Either field may be left as-is by
// passing nil.
func (s *UserService) UpdateProfile(userID string, name *string, phone *string) (*model.User, error) {
	user, err := s.userRepository.ByID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if name != nil {
		trimmed := strings.TrimSpace(*name)
		err = validation.ValidateName(trimmed)
		if err != nil {
			return nil, err
		}
		user.Name = trimmed
	}

	if phone != nil {
		trimmed := strings.TrimSpace(*phone)
		user.Phone = &trimmed
	}

	err = s.userRepository.Update(user)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return user, nil
}

// ProfilePictureUploadURL mints the object key and a presigned PUT URL for
// it. The key is not attached to the account until SetProfilePicture is
// called, so abandoned uploads never show up on a profile.
func (s *UserService) ProfilePictureUploadURL(ctx context.Context, userID, fileName, contentType string) (string, string, error) {
	ext := strings.ToLower(path.Ext(fileName))

	key := fmt.Sprintf("profile-pictures/%s/%s%s", userID, uuid.New().String(), ext)
	err := validation.ValidateImageKey(key)
	if err != nil {
		return "", "", err
	}

	uploadURL, err := s.storage.PresignUpload(ctx, key, contentType)
	if err != nil {
		return "", "", fmt.Errorf("failed to presign upload: %w", err)
	}

	return uploadURL, key, nil
}

// SetProfilePicture attaches an uploaded object key to the account and
// removes the previous picture from storage.
func (s *UserService) SetProfilePicture(ctx context.Context, userID, key string) error {
	err := validation.ValidateImageKey(key)
	if err != nil {
		return err
	}

	if !strings.HasPrefix(key, fmt.Sprintf("profile-pictures/%s/", userID)) {
		return fmt.Errorf("key does not belong to user")
	}

	user, err := s.userRepository.ByID(userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	oldKey := user.ProfilePictureKey
	user.ProfilePictureKey = &key

	err = s.userRepository.Update(user)
	if err != nil {
		return fmt.Errorf("failed to update profile picture: %w", err)
	}

	if oldKey != nil && *oldKey != key {
		err = s.storage.Delete(ctx, *oldKey)
		if err != nil {
			// Orphaned object, not worth failing the request
			slog.Warn("failed to delete old profile picture", "user_id", userID, "key", *oldKey, "error", err)
		}
	}

	return nil
}

// ProfilePictureURL returns a presigned GET URL for the user's current
// picture, or "" when none is set.
func (s *UserService) ProfilePictureURL(ctx context.Context, userID string) (string, error) {
	user, err := s.userRepository.ByID(userID)
	if err != nil {
		return "", fmt.Errorf("failed to get user: %w", err)
	}

	if user.ProfilePictureKey == nil || *user.ProfilePictureKey == "" {
		return "", nil
	}

	url, err := s.storage.PresignGet(ctx, *user.ProfilePictureKey)
	if err != nil {
		return "", fmt.Errorf("failed to presign picture URL: %w", err)
	}

	return url, nil
}

func (s *UserService) DeleteAccount(ctx context.Context, userID string) error {
	// Block deletion while a paid plan is active or its period is still running
	subscription, err := s.subscriptionService.Subscription(userID)
	if err != nil && !errors.Is(err, repository.ErrSubscriptionNotFound) {
		return fmt.Errorf("failed to check subscription: %w", err)
	}

	if subscription != nil &&
		subscription.PlanID != model.SubscriptionPlanFree &&
		(subscription.Status == model.SubscriptionStatusActive ||
			(subscription.CurrentPeriodEnd != nil && subscription.CurrentPeriodEnd.After(time.Now()))) {
		return ErrActiveSubscription
	}

	user, err := s.userRepository.ByID(userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	if user.ProfilePictureKey != nil && *user.ProfilePictureKey != "" {
		err = s.storage.Delete(ctx, *user.ProfilePictureKey)
		if err != nil {
			// Orphaned object is better than a failed deletion
			slog.Warn("failed to delete profile picture from storage", "user_id", userID, "error", err)
		}
	}

	// Foreign key CASCADE removes the user's password-reset tokens and
	// subscription rows
	err = s.userRepository.Delete(userID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	slog.Info("account deleted", "user_id", userID)
	return nil
}
