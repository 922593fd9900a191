package service

import (
	"context"
	"errors"

	"parley/internal/models"
	"parley/internal/repository"

	"gorm.io/gorm"
)

// ContactService provides contact-graph business logic. Every operation is
// scoped to the acting user: an edge is only visible to its owner.
type ContactService struct {
	contactRepo repository.ContactRepository
	userRepo    repository.UserRepository
	db          *gorm.DB
}

// NewContactService returns a new ContactService.
func NewContactService(contactRepo repository.ContactRepository, userRepo repository.UserRepository, db *gorm.DB) *ContactService {
	return &ContactService{contactRepo: contactRepo, userRepo: userRepo, db: db}
}

// AddContact creates a directed contact edge from ownerID to targetID.
func (s *ContactService) AddContact(ctx context.Context, ownerID, targetID uint) (*models.Contact, error) {
	if ownerID == targetID {
		return nil, models.NewBadUserInputError("Cannot add yourself as a contact")
	}

	target, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, models.NewNotFoundError("User", targetID)
	}

	existing, err := s.contactRepo.GetByPair(ctx, ownerID, targetID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewBadUserInputError("Contact already exists")
	}

	contact := &models.Contact{
		OwnerID:   ownerID,
		ContactID: targetID,
	}
	if err := s.contactRepo.Create(ctx, contact); err != nil {
		return nil, err
	}
	contact.Target = target
	return contact, nil
}

// AddContacts applies AddContact per id. Each id is evaluated independently:
// duplicates and self-references are skipped, not batch-aborting. Successfully
// created edges come back in input order.
func (s *ContactService) AddContacts(ctx context.Context, ownerID uint, targetIDs []uint) ([]*models.Contact, error) {
	created := make([]*models.Contact, 0, len(targetIDs))
	for _, targetID := range targetIDs {
		contact, err := s.AddContact(ctx, ownerID, targetID)
		if err != nil {
			var appErr *models.AppError
			if errors.As(err, &appErr) {
				continue
			}
			return nil, err
		}
		created = append(created, contact)
	}
	return created, nil
}

// GetContact returns the contact edge by id, owner-scoped.
func (s *ContactService) GetContact(ctx context.Context, ownerID, contactID uint) (*models.Contact, error) {
	contact, err := s.contactRepo.GetByID(ctx, ownerID, contactID)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, models.NewNotFoundError("Contact", contactID)
	}
	return contact, nil
}

// GetContactByUserID returns the edge from ownerID to the given user.
func (s *ContactService) GetContactByUserID(ctx context.Context, ownerID, userID uint) (*models.Contact, error) {
	contact, err := s.contactRepo.GetByPair(ctx, ownerID, userID)
	if err != nil {
		return nil, err
	}
	if contact == nil {
		return nil, models.NewNotFoundError("Contact", userID)
	}
	return contact, nil
}

// RemoveContact deletes the contact edge. Removal is not idempotent: deleting
// an already-removed edge yields not-found.
func (s *ContactService) RemoveContact(ctx context.Context, ownerID, contactID uint) (*models.Contact, error) {
	contact, err := s.GetContact(ctx, ownerID, contactID)
	if err != nil {
		return nil, err
	}
	if err := s.contactRepo.Delete(ctx, contact); err != nil {
		return nil, err
	}
	return contact, nil
}

// ToggleBlock flips the edge's isBlocked flag.
func (s *ContactService) ToggleBlock(ctx context.Context, ownerID, contactID uint) (*models.Contact, error) {
	contact, err := s.GetContact(ctx, ownerID, contactID)
	if err != nil {
		return nil, err
	}
	contact.IsBlocked = !contact.IsBlocked
	if err := s.contactRepo.Update(ctx, contact); err != nil {
		return nil, err
	}
	return contact, nil
}

// IsBlockedBy reports whether otherUserID's edge pointing at ownerID carries
// the block flag. The asker need not have added the other user; the lookup is
// against the reverse edge.
func (s *ContactService) IsBlockedBy(ctx context.Context, ownerID, otherUserID uint) (bool, error) {
	contact, err := s.contactRepo.GetByPair(ctx, otherUserID, ownerID)
	if err != nil {
		return false, err
	}
	if contact == nil {
		return false, models.NewNotFoundError("Contact", otherUserID)
	}
	return contact.IsBlocked, nil
}

// ListContacts returns the user's contact edges, optionally filtered by the
// target's username or display name.
func (s *ContactService) ListContacts(ctx context.Context, ownerID uint, search string) ([]*models.Contact, error) {
	return s.contactRepo.ListByOwner(ctx, ownerID, search)
}

// ListContactsWithoutPrivateChat returns contacts with whom no private chat
// exists yet, with the same optional search filter.
func (s *ContactService) ListContactsWithoutPrivateChat(ctx context.Context, ownerID uint, search string) ([]*models.Contact, error) {
	return s.contactRepo.ListWithoutPrivateChat(ctx, ownerID, search)
}
