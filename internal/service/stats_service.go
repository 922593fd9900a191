package service

import (
	"context"

	"parley/internal/repository"
)

// DocumentCounts holds per-entity row counts.
type DocumentCounts struct {
	Users       int64 `json:"users"`
	Contacts    int64 `json:"contacts"`
	Chats       int64 `json:"chats"`
	ChatMembers int64 `json:"chatMembers"`
	Messages    int64 `json:"messages"`
}

// StatsService reports entity counts for the admin/debug surface.
type StatsService struct {
	userRepo    repository.UserRepository
	contactRepo repository.ContactRepository
	chatRepo    repository.ChatRepository
}

// NewStatsService returns a new StatsService.
func NewStatsService(userRepo repository.UserRepository, contactRepo repository.ContactRepository, chatRepo repository.ChatRepository) *StatsService {
	return &StatsService{userRepo: userRepo, contactRepo: contactRepo, chatRepo: chatRepo}
}

// Counts returns the row count of every domain entity.
func (s *StatsService) Counts(ctx context.Context) (*DocumentCounts, error) {
	counts := &DocumentCounts{}
	var err error

	if counts.Users, err = s.userRepo.Count(ctx); err != nil {
		return nil, err
	}
	if counts.Contacts, err = s.contactRepo.Count(ctx); err != nil {
		return nil, err
	}
	if counts.Chats, err = s.chatRepo.CountChats(ctx); err != nil {
		return nil, err
	}
	if counts.ChatMembers, err = s.chatRepo.CountMembers(ctx); err != nil {
		return nil, err
	}
	if counts.Messages, err = s.chatRepo.CountMessages(ctx); err != nil {
		return nil, err
	}
	return counts, nil
}
