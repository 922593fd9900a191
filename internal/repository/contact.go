package repository

import (
	"context"
	"errors"

	"parley/internal/models"

	"gorm.io/gorm"
)

// ContactRepository defines the interface for contact edge data operations.
// All lookups are owner-scoped: an edge is only visible to the user that owns it.
type ContactRepository interface {
	Create(ctx context.Context, contact *models.Contact) error
	GetByID(ctx context.Context, ownerID, id uint) (*models.Contact, error)
	GetByPair(ctx context.Context, ownerID, contactID uint) (*models.Contact, error)
	Update(ctx context.Context, contact *models.Contact) error
	Delete(ctx context.Context, contact *models.Contact) error
	ListByOwner(ctx context.Context, ownerID uint, search string) ([]*models.Contact, error)
	ListWithoutPrivateChat(ctx context.Context, ownerID uint, search string) ([]*models.Contact, error)
	Count(ctx context.Context) (int64, error)
}

type contactRepository struct {
	db *gorm.DB
}

// NewContactRepository creates a new contact repository
func NewContactRepository(db *gorm.DB) ContactRepository {
	return &contactRepository{db: db}
}

func (r *contactRepository) Create(ctx context.Context, contact *models.Contact) error {
	return r.db.WithContext(ctx).Create(contact).Error
}

func (r *contactRepository) GetByID(ctx context.Context, ownerID, id uint) (*models.Contact, error) {
	var contact models.Contact
	err := r.db.WithContext(ctx).
		Preload("Target").
		Where("owner_id = ?", ownerID).
		First(&contact, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &contact, nil
}

func (r *contactRepository) GetByPair(ctx context.Context, ownerID, contactID uint) (*models.Contact, error) {
	var contact models.Contact
	err := r.db.WithContext(ctx).
		Preload("Target").
		Where("owner_id = ? AND contact_id = ?", ownerID, contactID).
		First(&contact).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &contact, nil
}

func (r *contactRepository) Update(ctx context.Context, contact *models.Contact) error {
	return r.db.WithContext(ctx).Save(contact).Error
}

func (r *contactRepository) Delete(ctx context.Context, contact *models.Contact) error {
	return r.db.WithContext(ctx).Delete(contact).Error
}

// searchScope filters contacts by the target user's username or display name,
// case-insensitively. LOWER+LIKE keeps the filter portable across postgres and sqlite.
func searchScope(search string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if search == "" {
			return db
		}
		pattern := "%" + search + "%"
		return db.Joins("JOIN users ON users.id = contacts.contact_id").
			Where("LOWER(users.username) LIKE LOWER(?) OR LOWER(users.name) LIKE LOWER(?)", pattern, pattern)
	}
}

func (r *contactRepository) ListByOwner(ctx context.Context, ownerID uint, search string) ([]*models.Contact, error) {
	var contacts []*models.Contact
	err := r.db.WithContext(ctx).
		Scopes(searchScope(search)).
		Preload("Target").
		Where("contacts.owner_id = ?", ownerID).
		Order("contacts.id ASC").
		Find(&contacts).Error
	return contacts, err
}

func (r *contactRepository) ListWithoutPrivateChat(ctx context.Context, ownerID uint, search string) ([]*models.Contact, error) {
	var contacts []*models.Contact
	err := r.db.WithContext(ctx).
		Scopes(searchScope(search)).
		Preload("Target").
		Where("contacts.owner_id = ?", ownerID).
		Where(`NOT EXISTS (
			SELECT 1 FROM chats
			JOIN chat_members cm_self ON cm_self.chat_id = chats.id AND cm_self.user_id = contacts.owner_id
			JOIN chat_members cm_other ON cm_other.chat_id = chats.id AND cm_other.user_id = contacts.contact_id
			WHERE chats.type = ? AND chats.deleted_at IS NULL
		)`, models.ChatTypePrivate).
		Order("contacts.id ASC").
		Find(&contacts).Error
	return contacts, err
}

func (r *contactRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Contact{}).Count(&count).Error
	return count, err
}
