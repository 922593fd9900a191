package service

import (
	"context"
	"sync"
	"testing"

	"parley/internal/events"
	"parley/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// testDB opens a fresh in-memory database with the full schema.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Contact{},
		&models.Chat{},
		&models.ChatMember{},
		&models.Message{},
	))
	return db
}

type publishedEvent struct {
	topic      events.Topic
	recipients []uint
	payload    any
}

// publisherStub records every published event for assertions.
type publisherStub struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *publisherStub) Publish(_ context.Context, topic events.Topic, recipients []uint, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{topic: topic, recipients: recipients, payload: payload})
	return nil
}

func (p *publisherStub) byTopic(topic events.Topic) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var matched []publishedEvent
	for _, e := range p.events {
		if e.topic == topic {
			matched = append(matched, e)
		}
	}
	return matched
}

func (p *publisherStub) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, models.ErrorCode(err))
}

func createTestUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := &models.User{Username: username, Password: "hash", Name: username}
	require.NoError(t, db.Create(user).Error)
	return user
}

func unreadCount(t *testing.T, db *gorm.DB, chatID, userID uint) int {
	t.Helper()
	var member models.ChatMember
	require.NoError(t, db.Where("chat_id = ? AND user_id = ?", chatID, userID).First(&member).Error)
	return member.UnreadCount
}
