package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"parley/internal/events"
	"parley/internal/middleware"
	"parley/internal/models"
	"parley/internal/observability"
	"parley/internal/repository"
	"parley/internal/validation"

	"gorm.io/gorm"
)

// messagePageSize bounds the history loaded when opening a chat.
const messagePageSize = 100

// ChatService provides chat, membership and message business logic. Every
// mutation commits before its events are published: either the change fully
// applies and subscribers hear about it, or it fails and nothing is visible.
type ChatService struct {
	chatRepo repository.ChatRepository
	userRepo repository.UserRepository
	db       *gorm.DB
	bus      events.Publisher
}

// NewChatService returns a new ChatService.
func NewChatService(
	chatRepo repository.ChatRepository,
	userRepo repository.UserRepository,
	db *gorm.DB,
	bus events.Publisher,
) *ChatService {
	return &ChatService{
		chatRepo: chatRepo,
		userRepo: userRepo,
		db:       db,
		bus:      bus,
	}
}

// CreateChatInput is the input for creating a chat.
type CreateChatInput struct {
	Name           string
	Description    string
	Avatar         string
	MemberIDs      []uint
	InitialMessage string
}

// EditChatInput is the input for editing a chat. MemberIDs is the desired
// full member list; admins are retained even when omitted.
type EditChatInput struct {
	ChatID      uint
	Name        string
	Description string
	Avatar      string
	MemberIDs   []uint
}

// SendMessageInput is the input for sending a message.
type SendMessageInput struct {
	ChatID  uint
	Content string
}

// CreateChat creates a chat with the acting user as admin, the remaining
// members at role member, and the required initial message. Two total members
// and no explicit name infer a private chat; anything else is a group chat.
// Private chats are intentionally not deduplicated here; callers check with
// FindPrivateChatWithContact first.
func (s *ChatService) CreateChat(ctx context.Context, creatorID uint, in CreateChatInput) (*models.Chat, error) {
	if err := validation.ValidateMessageContent(in.InitialMessage); err != nil {
		return nil, models.NewValidationError("Message content cannot be empty")
	}

	otherIDs := make([]uint, 0, len(in.MemberIDs))
	seen := map[uint]struct{}{creatorID: {}}
	for _, id := range in.MemberIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		otherIDs = append(otherIDs, id)
	}
	if len(otherIDs) == 0 {
		return nil, models.NewValidationError("At least one other member is required")
	}

	name := strings.TrimSpace(in.Name)
	chatType := models.ChatTypeGroup
	if len(otherIDs) == 1 && name == "" {
		chatType = models.ChatTypePrivate
	}
	if chatType == models.ChatTypeGroup {
		if err := validation.ValidateGroupChatName(name); err != nil {
			return nil, models.NewValidationError("Group chat name must be at least 3 characters long")
		}
	}

	chat := &models.Chat{
		Type:        chatType,
		Name:        name,
		Description: in.Description,
		Avatar:      in.Avatar,
		CreatorID:   creatorID,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(chat).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.ChatMember{
			ChatID: chat.ID,
			UserID: creatorID,
			Role:   models.RoleAdmin,
		}).Error; err != nil {
			return err
		}
		for _, memberID := range otherIDs {
			if err := tx.Create(&models.ChatMember{
				ChatID: chat.ID,
				UserID: memberID,
				Role:   models.RoleMember,
			}).Error; err != nil {
				return err
			}
		}
		if err := tx.Create(&models.Message{
			ChatID:   chat.ID,
			SenderID: creatorID,
			Content:  in.InitialMessage,
		}).Error; err != nil {
			return err
		}
		// The initial message counts as unread for everyone but the creator.
		return tx.Model(&models.ChatMember{}).
			Where("chat_id = ? AND user_id <> ?", chat.ID, creatorID).
			UpdateColumn("unread_count", gorm.Expr("unread_count + 1")).Error
	})
	if err != nil {
		return nil, err
	}

	created, err := s.chatRepo.GetByID(ctx, chat.ID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TopicChatCreated, otherIDs, created)
	if len(created.Messages) > 0 {
		s.publish(ctx, events.TopicMessageSent, created.MemberIDs(), created.Messages[0])
	}

	return created, nil
}

// GetChats returns the chats the user is a member of, newest activity first,
// optionally filtered by chat name or (for private chats) the other member's
// display name.
func (s *ChatService) GetChats(ctx context.Context, userID uint, search string) ([]*models.Chat, error) {
	chats, err := s.chatRepo.GetUserChats(ctx, userID)
	if err != nil {
		return nil, err
	}
	if search == "" {
		return chats, nil
	}

	needle := strings.ToLower(search)
	filtered := make([]*models.Chat, 0, len(chats))
	for _, chat := range chats {
		if strings.Contains(strings.ToLower(displayNameFor(chat, userID)), needle) {
			filtered = append(filtered, chat)
		}
	}
	return filtered, nil
}

// GetChatForUser returns the chat with recent message history when the user
// is a member. Non-members get the same not-found as a nonexistent id.
func (s *ChatService) GetChatForUser(ctx context.Context, chatID, userID uint) (*models.Chat, error) {
	chat, err := s.memberChat(ctx, chatID, userID)
	if err != nil {
		return nil, err
	}
	messages, err := s.chatRepo.GetMessages(ctx, chatID, messagePageSize, 0)
	if err != nil {
		return nil, err
	}
	chat.Messages = make([]models.Message, 0, len(messages))
	for _, m := range messages {
		chat.Messages = append(chat.Messages, *m)
	}
	return chat, nil
}

// FindPrivateChatWithContact returns the private chat between the user and
// the other user, or nil when none exists. Absence is not an error here.
func (s *ChatService) FindPrivateChatWithContact(ctx context.Context, userID, otherUserID uint) (*models.Chat, error) {
	return s.chatRepo.FindPrivateChatBetween(ctx, userID, otherUserID)
}

// EditChat updates a chat's metadata and, for group chats, reconciles the
// member list against the supplied ids: omitted members are removed, new ids
// are added at role member. Admins are never removed by the diff. A private
// chat's member pair is immutable; attempting to introduce a new id fails.
func (s *ChatService) EditChat(ctx context.Context, actorID uint, in EditChatInput) (*models.Chat, error) {
	chat, err := s.memberChat(ctx, in.ChatID, actorID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(in.Name)
	if chat.Type == models.ChatTypeGroup {
		if err := validation.ValidateGroupChatName(name); err != nil {
			return nil, models.NewValidationError("Group chat name must be at least 3 characters long")
		}
	}

	desired := make(map[uint]struct{}, len(in.MemberIDs))
	for _, id := range in.MemberIDs {
		desired[id] = struct{}{}
	}

	current := make(map[uint]models.MemberRole, len(chat.Members))
	for _, m := range chat.Members {
		current[m.UserID] = m.Role
	}

	if chat.Type == models.ChatTypePrivate {
		for id := range desired {
			if _, exists := current[id]; !exists {
				return nil, models.NewBadUserInputError("Cannot change the members of a private chat")
			}
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if chat.Type == models.ChatTypeGroup {
			chat.Name = name
		}
		chat.Description = in.Description
		if in.Avatar != "" {
			chat.Avatar = in.Avatar
		}
		if err := tx.Save(chat).Error; err != nil {
			return err
		}

		// Membership only ever changes on group chats; a private chat always
		// keeps exactly its two members.
		if chat.Type != models.ChatTypeGroup {
			return nil
		}

		for userID, role := range current {
			if _, keep := desired[userID]; keep || role == models.RoleAdmin {
				continue
			}
			if err := tx.Where("chat_id = ? AND user_id = ?", chat.ID, userID).
				Delete(&models.ChatMember{}).Error; err != nil {
				return err
			}
		}
		for userID := range desired {
			if _, exists := current[userID]; exists {
				continue
			}
			if err := tx.Create(&models.ChatMember{
				ChatID: chat.ID,
				UserID: userID,
				Role:   models.RoleMember,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.chatRepo.GetByID(ctx, chat.ID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TopicChatUpdated, updated.MemberIDs(), updated)

	return updated, nil
}

// DeleteChat removes a chat with its memberships and messages. Only the
// creator may delete; everyone else sees the same not-found as a missing id.
func (s *ChatService) DeleteChat(ctx context.Context, actorID, chatID uint) (*models.Chat, error) {
	chat, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil || chat.CreatorID != actorID {
		return nil, models.NewNotFoundError("Chat", chatID)
	}

	formerMembers := chat.MemberIDs()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chat.ID).
			Delete(&models.ChatMember{}).Error; err != nil {
			return err
		}
		if err := tx.Where("chat_id = ?", chat.ID).
			Delete(&models.Message{}).Error; err != nil {
			return err
		}
		return tx.Delete(chat).Error
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TopicChatDeleted, formerMembers, map[string]any{"id": chat.ID})

	return chat, nil
}

// LeaveChat removes the acting user's membership, records a notification
// message for the remaining members, and tells them who departed.
func (s *ChatService) LeaveChat(ctx context.Context, actorID, chatID uint) (*models.Chat, error) {
	chat, err := s.memberChat(ctx, chatID, actorID)
	if err != nil {
		return nil, err
	}

	actor, err := s.userRepo.GetByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	displayName := fmt.Sprintf("User %d", actorID)
	if actor != nil {
		displayName = actor.DisplayName()
	}

	remaining := make([]uint, 0, len(chat.Members))
	for _, m := range chat.Members {
		if m.UserID != actorID {
			remaining = append(remaining, m.UserID)
		}
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ? AND user_id = ?", chat.ID, actorID).
			Delete(&models.ChatMember{}).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.Message{
			ChatID:         chat.ID,
			SenderID:       actorID,
			Content:        fmt.Sprintf("%s left the chat", displayName),
			IsNotification: true,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.ChatMember{}).
			Where("chat_id = ?", chat.ID).
			UpdateColumn("unread_count", gorm.Expr("unread_count + 1")).Error
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.chatRepo.GetByID(ctx, chat.ID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TopicChatUpdated, remaining, updated)
	s.publish(ctx, events.TopicChatLeft, remaining, map[string]any{
		"chatId":   chat.ID,
		"memberId": actorID,
	})

	return updated, nil
}

// SendMessage persists a message in a chat the actor is a member of and
// increments every other member's unread counter.
func (s *ChatService) SendMessage(ctx context.Context, actorID uint, in SendMessageInput) (*models.Message, error) {
	if err := validation.ValidateMessageContent(in.Content); err != nil {
		return nil, models.NewValidationError("Message content cannot be empty")
	}

	chat, err := s.memberChat(ctx, in.ChatID, actorID)
	if err != nil {
		return nil, err
	}

	message := &models.Message{
		ChatID:   chat.ID,
		SenderID: actorID,
		Content:  in.Content,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(message).Error; err != nil {
			return err
		}
		// In-database increment: concurrent sends must not lose updates.
		if err := tx.Model(&models.ChatMember{}).
			Where("chat_id = ? AND user_id <> ?", chat.ID, actorID).
			UpdateColumn("unread_count", gorm.Expr("unread_count + 1")).Error; err != nil {
			return err
		}
		// Bump activity so list views sort the chat to the top.
		return tx.Model(&models.Chat{}).
			Where("id = ?", chat.ID).
			UpdateColumn("updated_at", time.Now()).Error
	})
	if err != nil {
		return nil, err
	}

	observability.MessagesSent.WithLabelValues(string(chat.Type)).Inc()

	if sender, err := s.userRepo.GetByID(ctx, actorID); err == nil {
		message.Sender = sender
	}

	updated, err := s.chatRepo.GetByID(ctx, chat.ID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TopicMessageSent, updated.MemberIDs(), message)
	s.publish(ctx, events.TopicChatUpdated, updated.MemberIDs(), updated)

	return message, nil
}

// MarkChatAsRead zeroes the acting user's unread counter. The resulting
// update event goes to the actor only, so a second device clears its badge
// without notifying anyone else.
func (s *ChatService) MarkChatAsRead(ctx context.Context, actorID, chatID uint) (*models.Chat, error) {
	chat, err := s.memberChat(ctx, chatID, actorID)
	if err != nil {
		return nil, err
	}

	if err := s.chatRepo.ResetUnread(ctx, chat.ID, actorID); err != nil {
		return nil, err
	}

	updated, err := s.chatRepo.GetByID(ctx, chat.ID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.TopicChatUpdated, []uint{actorID}, updated)

	return updated, nil
}

// memberChat loads a chat and collapses "absent" and "not a member" into the
// same not-found, so callers cannot probe for chats they do not belong to.
func (s *ChatService) memberChat(ctx context.Context, chatID, userID uint) (*models.Chat, error) {
	chat, err := s.chatRepo.GetByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil || !chat.HasMember(userID) {
		return nil, models.NewNotFoundError("Chat", chatID)
	}
	return chat, nil
}

// publish is best-effort: the mutation already committed, so a bus failure
// is logged rather than surfaced to the caller.
func (s *ChatService) publish(ctx context.Context, topic events.Topic, recipients []uint, payload any) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, topic, recipients, payload); err != nil {
		middleware.Logger.WarnContext(ctx, "Failed to publish event",
			"topic", string(topic),
			"error", err.Error(),
		)
	}
}

// displayNameFor resolves what a list view shows for a chat: the chat's own
// name for groups, the other member's display name for private chats.
func displayNameFor(chat *models.Chat, viewerID uint) string {
	if chat.Type != models.ChatTypePrivate {
		return chat.Name
	}
	for _, m := range chat.Members {
		if m.UserID != viewerID && m.User != nil {
			return m.User.DisplayName()
		}
	}
	return chat.Name
}
