package textcmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		line string
		want Message
	}{
		{"User: bob", LoginUser{Name: "bob"}},
		{"User:bob", LoginUser{Name: "bob"}},
		{"  User :  bob  ", LoginUser{Name: "bob"}},
		{"User: bob\r", LoginUser{Name: "bob"}},
		{"User: ", Malformed{Line: "User: "}},
		{"Password: secret", LoginPassword{Password: "secret"}},
		{"Password: two words", LoginPassword{Password: "two words"}},
		{"Password:", LoginPassword{Password: ""}},
		{"quit", Quit{}},
		{" quit \r", Quit{}},
		{"quit: now", Quit{}},
		{"lcm: 12 18", Command{Name: "lcm", Params: " 12 18"}},
		{"caesar: a:b 3", Command{Name: "caesar", Params: " a:b 3"}},
		{"unknown: x", Command{Name: "unknown", Params: " x"}},
		{"user: bob", Command{Name: "user", Params: " bob"}},
		{"QUIT", Malformed{Line: "QUIT"}},
		{"hello", Malformed{Line: "hello"}},
		{"", Malformed{Line: ""}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Parse(tt.line), "line %q", tt.line)
	}
}
