package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"10s", 10 * time.Second},
		{"1m30s", 90 * time.Second},
		{"2d", 48 * time.Hour},
		{" 5s ", 5 * time.Second},
	}
	for _, tt := range tests {
		got, err := ParseDuration(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "abc", "xd", "10"} {
		_, err := ParseDuration(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestMaskSensitive(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"password masked", "Password: hunter2", "Password: [REDACTED]"},
		{"case insensitive label", "password:hunter2", "password: [REDACTED]"},
		{"user untouched", "User: bob", "User: bob"},
		{"command untouched", "lcm: 12 18", "lcm: 12 18"},
		{"no separator", "quit", "quit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskSensitive(tt.line, "Password"))
		})
	}
}
