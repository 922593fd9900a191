package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateGroupChatName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		chatName string
		wantErr  bool
	}{
		{"Valid", "Weekend Plans", false},
		{"Minimum Length", "abc", false},
		{"Too Short", "ab", true},
		{"Whitespace Only", "   ", true},
		{"Padded Short Name", "  ab  ", true},
		{"Too Long", strings.Repeat("a", 101), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateGroupChatName(tt.chatName)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateMessageContent(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"Valid", "hello there", false},
		{"Empty", "", true},
		{"Whitespace Only", " \t\n", true},
		{"Max Length", strings.Repeat("x", 4000), false},
		{"Too Long", strings.Repeat("x", 4001), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageContent(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
