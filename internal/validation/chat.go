package validation

import (
	"fmt"
	"strings"
)

const (
	minGroupChatNameLength = 3
	maxGroupChatNameLength = 100
	maxMessageLength       = 4000
	maxAboutLength         = 500
)

// ValidateGroupChatName checks that a group chat name is present and sane.
// Private chats carry no name, so this only applies to group chats.
func ValidateGroupChatName(name string) error {
	trimmed := strings.TrimSpace(name)
	if len(trimmed) < minGroupChatNameLength {
		return fmt.Errorf("chat name must be at least %d characters long", minGroupChatNameLength)
	}
	if len(trimmed) > maxGroupChatNameLength {
		return fmt.Errorf("chat name must not exceed %d characters", maxGroupChatNameLength)
	}
	return nil
}

// ValidateMessageContent rejects empty and oversized message bodies.
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("message content cannot be empty")
	}
	if len(content) > maxMessageLength {
		return fmt.Errorf("message must not exceed %d characters", maxMessageLength)
	}
	return nil
}

// ValidateAbout bounds the profile about text.
func ValidateAbout(about string) error {
	if len(about) > maxAboutLength {
		return fmt.Errorf("about must not exceed %d characters", maxAboutLength)
	}
	return nil
}
