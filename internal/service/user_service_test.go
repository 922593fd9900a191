package service

import (
	"context"
	"testing"

	"parley/internal/models"
	"parley/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func newUserService(t *testing.T) (*UserService, *gorm.DB) {
	t.Helper()
	db := testDB(t)
	return NewUserService(repository.NewUserRepository(db), db), db
}

func TestUserService_Signup(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	t.Run("Invalid username", func(t *testing.T) {
		_, err := svc.Signup(ctx, SignupInput{Username: "ab", Password: "SecurePass12!"})
		assertCode(t, err, models.CodeValidation)
	})

	t.Run("Weak password", func(t *testing.T) {
		_, err := svc.Signup(ctx, SignupInput{Username: "alice", Password: "short"})
		assertCode(t, err, models.CodeValidation)
	})

	t.Run("Creates user with hashed credential", func(t *testing.T) {
		user, err := svc.Signup(ctx, SignupInput{Username: "alice", Password: "SecurePass12!", Name: "Alice"})
		require.NoError(t, err)
		assert.NotZero(t, user.ID)
		assert.NotEqual(t, "SecurePass12!", user.Password)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("SecurePass12!")))
	})

	t.Run("Duplicate username", func(t *testing.T) {
		_, err := svc.Signup(ctx, SignupInput{Username: "alice", Password: "SecurePass12!"})
		assertCode(t, err, models.CodeBadUserInput)
	})
}

func TestUserService_Authenticate(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, SignupInput{Username: "alice", Password: "SecurePass12!"})
	require.NoError(t, err)

	t.Run("Valid credentials", func(t *testing.T) {
		user, err := svc.Authenticate(ctx, "alice", "SecurePass12!")
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Username)
	})

	t.Run("Wrong password", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "alice", "WrongPass12!")
		assertCode(t, err, models.CodeBadUserInput)
	})

	t.Run("Unknown username collapses into same error", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "nobody", "SecurePass12!")
		assertCode(t, err, models.CodeBadUserInput)
	})
}

func TestUserService_EditProfile(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	user, err := svc.Signup(ctx, SignupInput{Username: "alice", Password: "SecurePass12!", Name: "Alice"})
	require.NoError(t, err)

	t.Run("Partial update leaves other fields untouched", func(t *testing.T) {
		about := "hello there"
		updated, err := svc.EditProfile(ctx, user.ID, EditProfileInput{About: &about})
		require.NoError(t, err)
		assert.Equal(t, "hello there", updated.About)
		assert.Equal(t, "Alice", updated.Name)
		assert.False(t, updated.Use24HourClock)
	})

	t.Run("Clock preference", func(t *testing.T) {
		use24 := true
		updated, err := svc.EditProfile(ctx, user.ID, EditProfileInput{Use24HourClock: &use24})
		require.NoError(t, err)
		assert.True(t, updated.Use24HourClock)
		assert.Equal(t, "hello there", updated.About)
	})

	t.Run("Unknown user", func(t *testing.T) {
		name := "ghost"
		_, err := svc.EditProfile(ctx, 9999, EditProfileInput{Name: &name})
		assertCode(t, err, models.CodeNotFound)
	})
}

func TestUserService_ChangePassword(t *testing.T) {
	svc, _ := newUserService(t)
	ctx := context.Background()

	user, err := svc.Signup(ctx, SignupInput{Username: "alice", Password: "SecurePass12!"})
	require.NoError(t, err)

	t.Run("Wrong current password", func(t *testing.T) {
		err := svc.ChangePassword(ctx, user.ID, "WrongPass12!", "NewSecurePass34!")
		assertCode(t, err, models.CodeBadUserInput)
	})

	t.Run("Weak new password", func(t *testing.T) {
		err := svc.ChangePassword(ctx, user.ID, "SecurePass12!", "weak")
		assertCode(t, err, models.CodeValidation)
	})

	t.Run("Successful change", func(t *testing.T) {
		require.NoError(t, svc.ChangePassword(ctx, user.ID, "SecurePass12!", "NewSecurePass34!"))

		_, err := svc.Authenticate(ctx, "alice", "SecurePass12!")
		assertCode(t, err, models.CodeBadUserInput)
		_, err = svc.Authenticate(ctx, "alice", "NewSecurePass34!")
		assert.NoError(t, err)
	})
}

func TestStatsService_Counts(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	userRepo := repository.NewUserRepository(db)
	contactRepo := repository.NewContactRepository(db)
	chatRepo := repository.NewChatRepository(db)
	stats := NewStatsService(userRepo, contactRepo, chatRepo)

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")

	contactSvc := NewContactService(contactRepo, userRepo, db)
	_, err := contactSvc.AddContact(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	chatSvc := NewChatService(chatRepo, userRepo, db, &publisherStub{})
	_, err = chatSvc.CreateChat(ctx, alice.ID, CreateChatInput{
		MemberIDs:      []uint{bob.ID},
		InitialMessage: "hi",
	})
	require.NoError(t, err)

	counts, err := stats.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts.Users)
	assert.Equal(t, int64(1), counts.Contacts)
	assert.Equal(t, int64(1), counts.Chats)
	assert.Equal(t, int64(2), counts.ChatMembers)
	assert.Equal(t, int64(1), counts.Messages)
}
