// Package clientcache implements the client-side cache reconciliation rules:
// a normalized chat store patched by subscription events instead of re-fetching.
// It is pure state manipulation, shared here so the reducer semantics are
// tested against the same event payloads the server publishes.
package clientcache

import (
	"encoding/json"
	"fmt"

	"parley/internal/events"
	"parley/internal/models"
)

// Entry is one chat-list row: the cached chat plus the values a list view
// renders directly.
type Entry struct {
	Chat        models.Chat
	DisplayName string
	UnreadCount int
}

// Cache is a normalized chat store for one local user. Apply is the only
// mutation path; it performs no I/O.
type Cache struct {
	localUserID uint
	openChatID  uint
	chats       map[uint]*Entry
	order       []uint
}

// New returns an empty cache for the given local user.
func New(localUserID uint) *Cache {
	return &Cache{
		localUserID: localUserID,
		chats:       make(map[uint]*Entry),
	}
}

// SetOpenChat records which chat the user is currently viewing. Zero means
// no chat is open.
func (c *Cache) SetOpenChat(chatID uint) {
	c.openChatID = chatID
}

// Seed replaces the cache contents with an authoritative query result.
// Subscriptions carry no replay, so every connection pairs a Seed with its
// subscribe calls.
func (c *Cache) Seed(chats []models.Chat) {
	c.chats = make(map[uint]*Entry, len(chats))
	c.order = c.order[:0]
	for _, chat := range chats {
		c.chats[chat.ID] = c.entryFor(chat)
		c.order = append(c.order, chat.ID)
	}
}

// Get returns the cached entry for a chat id, or nil.
func (c *Cache) Get(chatID uint) *Entry {
	return c.chats[chatID]
}

// List returns the cached entries in insertion order.
func (c *Cache) List() []*Entry {
	entries := make([]*Entry, 0, len(c.order))
	for _, id := range c.order {
		if entry, ok := c.chats[id]; ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

// Apply patches the cache with one subscription event.
func (c *Cache) Apply(topic events.Topic, payload json.RawMessage) error {
	switch topic {
	case events.TopicMessageSent:
		var msg models.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("decode message: %w", err)
		}
		c.applyMessageSent(msg)
	case events.TopicChatCreated:
		var chat models.Chat
		if err := json.Unmarshal(payload, &chat); err != nil {
			return fmt.Errorf("decode chat: %w", err)
		}
		c.applyChatCreated(chat)
	case events.TopicChatUpdated:
		var chat models.Chat
		if err := json.Unmarshal(payload, &chat); err != nil {
			return fmt.Errorf("decode chat: %w", err)
		}
		c.applyChatUpdated(chat)
	case events.TopicChatDeleted:
		var ref struct {
			ID uint `json:"id"`
		}
		if err := json.Unmarshal(payload, &ref); err != nil {
			return fmt.Errorf("decode chat reference: %w", err)
		}
		c.applyChatDeleted(ref.ID)
	case events.TopicChatLeft:
		var departure struct {
			ChatID   uint `json:"chatId"`
			MemberID uint `json:"memberId"`
		}
		if err := json.Unmarshal(payload, &departure); err != nil {
			return fmt.Errorf("decode departure: %w", err)
		}
		c.applyChatLeft(departure.ChatID, departure.MemberID)
	default:
		return fmt.Errorf("unknown topic %q", topic)
	}
	return nil
}

// applyMessageSent appends the message only when its chat is the open one.
// List-view unread counts arrive via the chat-updated event, not here.
func (c *Cache) applyMessageSent(msg models.Message) {
	if msg.ChatID != c.openChatID {
		return
	}
	entry, ok := c.chats[msg.ChatID]
	if !ok {
		return
	}
	entry.Chat.Messages = append(entry.Chat.Messages, msg)
}

func (c *Cache) applyChatCreated(chat models.Chat) {
	if _, exists := c.chats[chat.ID]; exists {
		return
	}
	c.chats[chat.ID] = c.entryFor(chat)
	c.order = append(c.order, chat.ID)
}

// applyChatUpdated replaces the list entry wholesale. When the updated chat
// is the open one, its unread count is zeroed locally so the badge never
// flashes while the user is looking at the chat.
func (c *Cache) applyChatUpdated(chat models.Chat) {
	existing, known := c.chats[chat.ID]
	entry := c.entryFor(chat)
	if chat.ID == c.openChatID {
		entry.UnreadCount = 0
		if known && len(chat.Messages) == 0 {
			// Keep the open conversation's history when the update carries
			// only a latest-message summary.
			entry.Chat.Messages = existing.Chat.Messages
		}
	}
	c.chats[chat.ID] = entry
	if !known {
		c.order = append(c.order, chat.ID)
	}
}

func (c *Cache) applyChatDeleted(chatID uint) {
	if _, ok := c.chats[chatID]; !ok {
		return
	}
	delete(c.chats, chatID)
	for i, id := range c.order {
		if id == chatID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	if c.openChatID == chatID {
		c.openChatID = 0
	}
}

// applyChatLeft prunes the departed member locally. The local user's own
// departure arrives as a chat-deleted style eviction driven by the caller,
// not through this event.
func (c *Cache) applyChatLeft(chatID, memberID uint) {
	if memberID == c.localUserID {
		return
	}
	entry, ok := c.chats[chatID]
	if !ok {
		return
	}
	members := entry.Chat.Members[:0]
	for _, m := range entry.Chat.Members {
		if m.UserID != memberID {
			members = append(members, m)
		}
	}
	entry.Chat.Members = members
	entry.DisplayName = displayName(entry.Chat, c.localUserID)
}

// entryFor computes the render values for a chat from the local user's
// perspective.
func (c *Cache) entryFor(chat models.Chat) *Entry {
	unread := 0
	for _, m := range chat.Members {
		if m.UserID == c.localUserID {
			unread = m.UnreadCount
			break
		}
	}
	return &Entry{
		Chat:        chat,
		DisplayName: displayName(chat, c.localUserID),
		UnreadCount: unread,
	}
}

// displayName is the chat's own name for groups and always the other
// member's name for private chats.
func displayName(chat models.Chat, localUserID uint) string {
	if chat.Type != models.ChatTypePrivate {
		return chat.Name
	}
	for _, m := range chat.Members {
		if m.UserID != localUserID && m.User != nil {
			return m.User.DisplayName()
		}
	}
	return chat.Name
}
