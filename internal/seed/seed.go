// Package seed provides database seeding utilities for development and testing.
package seed

import (
	"fmt"
	"log"
	"math/rand"

	"parley/internal/models"

	"gorm.io/gorm"
)

// Options configuration for the seeder
type Options struct {
	NumUsers    int
	NumGroups   int
	ShouldClean bool
}

var groupNames = []string{
	"General", "Weekend plans", "Movie night", "Book club", "Gaming",
	"Fitness crew", "Road trip", "Lunch squad", "Project sync", "Family",
	"Neighbors", "Study group", "Climbing", "Travel 2026", "Fantasy league",
}

// Seed populates the database with demo users, contact meshes, and chats
// with realistic message history.
func Seed(db *gorm.DB, opts Options) error {
	log.Printf("Seeding database with %d users and %d group chats...", opts.NumUsers, opts.NumGroups)

	if opts.ShouldClean {
		if err := clearData(db); err != nil {
			log.Println("Warning: could not clear all existing data, continuing anyway...")
		}
	}

	f := NewFactory(db)

	users, err := f.CreateUsers(opts.NumUsers)
	if err != nil {
		return fmt.Errorf("failed to create users: %w", err)
	}
	log.Printf("Created %d users", len(users))

	if err := f.CreateContactMesh(users); err != nil {
		return fmt.Errorf("failed to create contacts: %w", err)
	}
	log.Println("Created contact mesh")

	privateChats, err := f.CreatePrivateChats(users)
	if err != nil {
		return fmt.Errorf("failed to create private chats: %w", err)
	}
	log.Printf("Created %d private chats", len(privateChats))

	groupChats, err := f.CreateGroupChats(users, opts.NumGroups)
	if err != nil {
		return fmt.Errorf("failed to create group chats: %w", err)
	}
	log.Printf("Created %d group chats", len(groupChats))

	for _, chat := range append(privateChats, groupChats...) {
		if err := f.FillMessageHistory(chat, 5+rand.Intn(30)); err != nil {
			return fmt.Errorf("failed to fill chat %d history: %w", chat.ID, err)
		}
	}
	log.Println("Filled message history")

	log.Println("Seeding complete")
	return nil
}

// clearData removes seedable rows in FK-safe order.
func clearData(db *gorm.DB) error {
	tables := []any{
		&models.Message{},
		&models.ChatMember{},
		&models.Chat{},
		&models.Contact{},
		&models.User{},
	}
	for _, table := range tables {
		if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(table).Error; err != nil {
			return err
		}
	}
	return nil
}
