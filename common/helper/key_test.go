package helper

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		masked string
	}{
		{"long bearer key", "sk-1234567890abcdefghij", "sk-123...ghij"},
		{"threshold length", "123456789012", "123456...9012"},
		{"just under threshold", "12345678901", "***"},
		{"short key", "short", "***"},
		{"empty key", "", "***"},
		{"project-scoped key", "sk-proj-abc123def456ghi789jkl012mno345", "sk-pro...o345"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.masked, MaskAPIKey(tt.key))
		})
	}
}
