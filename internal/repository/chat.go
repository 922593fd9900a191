package repository

import (
	"context"
	"errors"

	"parley/internal/models"

	"gorm.io/gorm"
)

// ChatRepository defines the interface for chat data operations
type ChatRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Chat, error)
	GetUserChats(ctx context.Context, userID uint) ([]*models.Chat, error)
	FindPrivateChatBetween(ctx context.Context, userID, otherUserID uint) (*models.Chat, error)
	AddMember(ctx context.Context, member *models.ChatMember) error
	RemoveMember(ctx context.Context, chatID, userID uint) error
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessages(ctx context.Context, chatID uint, limit, offset int) ([]*models.Message, error)
	IncrementUnread(ctx context.Context, chatID, exceptUserID uint) error
	ResetUnread(ctx context.Context, chatID, userID uint) error
	CountChats(ctx context.Context) (int64, error)
	CountMembers(ctx context.Context) (int64, error)
	CountMessages(ctx context.Context) (int64, error)
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) GetByID(ctx context.Context, id uint) (*models.Chat, error) {
	var chat models.Chat
	err := r.db.WithContext(ctx).
		Preload("Members").
		Preload("Members.User").
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at DESC").Limit(1)
		}).
		Preload("Messages.Sender").
		First(&chat, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &chat, nil
}

func (r *chatRepository) GetUserChats(ctx context.Context, userID uint) ([]*models.Chat, error) {
	var chats []*models.Chat
	err := r.db.WithContext(ctx).
		Joins("JOIN chat_members cm ON chats.id = cm.chat_id").
		Where("cm.user_id = ?", userID).
		Preload("Members").
		Preload("Members.User").
		// One preload query covers every chat in the list, so a plain LIMIT
		// would keep a single row overall instead of one per chat. Pick each
		// chat's latest message via a grouped subquery instead.
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Where("messages.id IN (?)",
				db.Session(&gorm.Session{NewDB: true}).
					Model(&models.Message{}).
					Select("MAX(id)").
					Group("chat_id"))
		}).
		Preload("Messages.Sender").
		Order("chats.updated_at DESC").
		Find(&chats).Error
	return chats, err
}

// FindPrivateChatBetween returns the private chat whose member set is exactly
// {userID, otherUserID}, or nil when no such chat exists.
func (r *chatRepository) FindPrivateChatBetween(ctx context.Context, userID, otherUserID uint) (*models.Chat, error) {
	var chat models.Chat
	err := r.db.WithContext(ctx).
		Joins("JOIN chat_members cm_self ON cm_self.chat_id = chats.id AND cm_self.user_id = ?", userID).
		Joins("JOIN chat_members cm_other ON cm_other.chat_id = chats.id AND cm_other.user_id = ?", otherUserID).
		Where("chats.type = ?", models.ChatTypePrivate).
		Where(
			"NOT EXISTS (SELECT 1 FROM chat_members cm_extra WHERE cm_extra.chat_id = chats.id AND cm_extra.user_id NOT IN (?, ?))",
			userID, otherUserID,
		).
		Order("chats.updated_at DESC").
		First(&chat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.GetByID(ctx, chat.ID)
}

func (r *chatRepository) AddMember(ctx context.Context, member *models.ChatMember) error {
	return r.db.WithContext(ctx).Create(member).Error
}

func (r *chatRepository) RemoveMember(ctx context.Context, chatID, userID uint) error {
	return r.db.WithContext(ctx).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Delete(&models.ChatMember{}).Error
}

func (r *chatRepository) CreateMessage(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *chatRepository) GetMessages(ctx context.Context, chatID uint, limit, offset int) ([]*models.Message, error) {
	var messages []*models.Message
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Preload("Sender").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// Fetched DESC to get the latest page, but clients expect chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// IncrementUnread adds one to the unread counter of every member except the
// sender. The in-database increment keeps concurrent sends from losing updates.
func (r *chatRepository) IncrementUnread(ctx context.Context, chatID, exceptUserID uint) error {
	return r.db.WithContext(ctx).Model(&models.ChatMember{}).
		Where("chat_id = ? AND user_id <> ?", chatID, exceptUserID).
		UpdateColumn("unread_count", gorm.Expr("unread_count + 1")).Error
}

func (r *chatRepository) ResetUnread(ctx context.Context, chatID, userID uint) error {
	return r.db.WithContext(ctx).Model(&models.ChatMember{}).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		UpdateColumn("unread_count", 0).Error
}

func (r *chatRepository) CountChats(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Chat{}).Count(&count).Error
	return count, err
}

func (r *chatRepository) CountMembers(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ChatMember{}).Count(&count).Error
	return count, err
}

func (r *chatRepository) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Message{}).Count(&count).Error
	return count, err
}
