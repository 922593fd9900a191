package seed

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"parley/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultSeedPassword is the credential every seeded account gets, so
// developers can log in as any generated user.
const DefaultSeedPassword = "SeedPassword12!"

// Factory builds domain entities and persists them to the database.
type Factory struct {
	db   *gorm.DB
	rand *rand.Rand
}

// NewFactory creates a new Factory bound to the provided Gorm DB.
func NewFactory(db *gorm.DB) *Factory {
	gofakeit.Seed(time.Now().UnixNano())
	return &Factory{
		db:   db,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// CreateUsers generates n accounts with a shared known password.
func (f *Factory) CreateUsers(n int) ([]*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultSeedPassword), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		name := gofakeit.Name()
		user := &models.User{
			Username: f.uniqueUsername(name, i),
			Password: string(hash),
			Name:     name,
			About:    gofakeit.Sentence(8),
			Avatar:   fmt.Sprintf("https://i.pravatar.cc/300?u=%s", gofakeit.UUID()),
		}
		if err := f.db.Create(user).Error; err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}

func (f *Factory) uniqueUsername(name string, i int) string {
	base := strings.ToLower(strings.ReplaceAll(name, " ", "_"))
	base = strings.ReplaceAll(base, ".", "")
	return fmt.Sprintf("%s_%d", base, i)
}

// CreateContactMesh links each user to a handful of mutual contacts.
func (f *Factory) CreateContactMesh(users []*models.User) error {
	if len(users) < 2 {
		return nil
	}
	for i, owner := range users {
		count := 2 + f.rand.Intn(4)
		for j := 1; j <= count; j++ {
			target := users[(i+j)%len(users)]
			if target.ID == owner.ID {
				continue
			}
			// Mutual edges, like two people exchanging numbers.
			for _, pair := range [][2]uint{{owner.ID, target.ID}, {target.ID, owner.ID}} {
				contact := &models.Contact{OwnerID: pair[0], ContactID: pair[1]}
				if err := f.db.Where("owner_id = ? AND contact_id = ?", pair[0], pair[1]).
					FirstOrCreate(contact).Error; err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// CreatePrivateChats pairs adjacent users into two-member private chats.
func (f *Factory) CreatePrivateChats(users []*models.User) ([]*models.Chat, error) {
	chats := make([]*models.Chat, 0, len(users)/2)
	for i := 0; i+1 < len(users); i += 2 {
		chat, err := f.createChat(models.ChatTypePrivate, "", []*models.User{users[i], users[i+1]})
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, nil
}

// CreateGroupChats builds n named group chats with 3-8 random members.
func (f *Factory) CreateGroupChats(users []*models.User, n int) ([]*models.Chat, error) {
	if len(users) < 3 {
		return nil, nil
	}
	chats := make([]*models.Chat, 0, n)
	for i := 0; i < n; i++ {
		size := 3 + f.rand.Intn(6)
		if size > len(users) {
			size = len(users)
		}
		members := f.pickUsers(users, size)
		name := groupNames[i%len(groupNames)]
		chat, err := f.createChat(models.ChatTypeGroup, name, members)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, nil
}

func (f *Factory) pickUsers(users []*models.User, n int) []*models.User {
	shuffled := make([]*models.User, len(users))
	copy(shuffled, users)
	f.rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:n]
}

func (f *Factory) createChat(chatType models.ChatType, name string, members []*models.User) (*models.Chat, error) {
	chat := &models.Chat{
		Type:      chatType,
		Name:      name,
		CreatorID: members[0].ID,
	}
	if chatType == models.ChatTypeGroup {
		chat.Description = gofakeit.Sentence(6)
	}
	if err := f.db.Create(chat).Error; err != nil {
		return nil, err
	}

	for i, user := range members {
		role := models.RoleMember
		if i == 0 {
			role = models.RoleAdmin
		}
		member := &models.ChatMember{
			ChatID: chat.ID,
			UserID: user.ID,
			Role:   role,
		}
		if err := f.db.Create(member).Error; err != nil {
			return nil, err
		}
		chat.Members = append(chat.Members, *member)
	}
	return chat, nil
}

// FillMessageHistory writes n messages into the chat with a realistic
// timestamp spread, leaving a small unread tail on non-senders.
func (f *Factory) FillMessageHistory(chat *models.Chat, n int) error {
	if len(chat.Members) == 0 {
		return nil
	}

	start := time.Now().Add(-time.Duration(f.rand.Intn(30*24)) * time.Hour)
	var lastSender uint
	for i := 0; i < n; i++ {
		sender := chat.Members[f.rand.Intn(len(chat.Members))]
		msg := &models.Message{
			ChatID:    chat.ID,
			SenderID:  sender.UserID,
			Content:   gofakeit.HipsterSentence(3 + f.rand.Intn(12)),
			CreatedAt: start.Add(time.Duration(i) * time.Duration(1+f.rand.Intn(45)) * time.Minute),
		}
		if err := f.db.Create(msg).Error; err != nil {
			return err
		}
		lastSender = sender.UserID
	}

	// The last few messages look unread to everyone but their sender.
	unread := f.rand.Intn(4)
	if unread == 0 {
		return nil
	}
	return f.db.Model(&models.ChatMember{}).
		Where("chat_id = ? AND user_id <> ?", chat.ID, lastSender).
		Update("unread_count", unread).Error
}
