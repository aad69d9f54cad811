package textcmd

import (
	"testing"

	"github.com/migadu/kiri/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession() *Session {
	store := credentials.FromMap(map[string]string{
		"bob":   "secret",
		"alice": "wonder land",
	})
	return NewSession("test", "127.0.0.1:5000", "kiri-test", store)
}

func login(t *testing.T, s *Session, user, password string) {
	t.Helper()
	require.Equal(t, Response{Reply: ReplyUserAccepted}, s.HandleLine("User: "+user))
	resp := s.HandleLine("Password: " + password)
	require.Equal(t, "Hi "+user+", good to see you", resp.Reply)
	require.Equal(t, Authenticated, s.State())
}

func TestSessionLogin(t *testing.T) {
	s := newTestSession()
	assert.Equal(t, AwaitingUsername, s.State())

	resp := s.HandleLine("User: bob")
	assert.Equal(t, Response{Reply: "OK"}, resp)
	assert.Equal(t, AwaitingPassword, s.State())
	assert.Equal(t, "bob", s.PendingUsername())

	resp = s.HandleLine("Password: secret")
	assert.Equal(t, Response{Reply: "Hi bob, good to see you"}, resp)
	assert.Equal(t, Authenticated, s.State())
	assert.Equal(t, "bob", s.Username)
	assert.Empty(t, s.PendingUsername())
}

func TestSessionPasswordWithSpaces(t *testing.T) {
	s := newTestSession()
	login(t, s, "alice", "wonder land")
}

func TestSessionFailedLoginRetries(t *testing.T) {
	s := newTestSession()

	for i := 0; i < 3; i++ {
		require.Equal(t, Response{Reply: "OK"}, s.HandleLine("User: bob"))
		resp := s.HandleLine("Password: nope")
		assert.Equal(t, Response{Reply: "Failed to login."}, resp)
		assert.Equal(t, AwaitingUsername, s.State())
		assert.Empty(t, s.PendingUsername())
	}

	s.HandleLine("User: carol")
	assert.Equal(t, Response{Reply: "Failed to login."}, s.HandleLine("Password: secret"), "unknown user")

	login(t, s, "bob", "secret")
}

func TestSessionInvalidLoginFormat(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		state State
	}{
		{"command before login", []string{"lcm: 1 2"}, AwaitingUsername},
		{"password first", []string{"Password: secret"}, AwaitingUsername},
		{"no separator", []string{"hello"}, AwaitingUsername},
		{"lowercase label", []string{"user: bob"}, AwaitingUsername},
		{"user twice", []string{"User: bob", "User: bob"}, AwaitingUsername},
		{"command instead of password", []string{"User: bob", "caesar: abc 1"}, AwaitingUsername},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession()
			var resp Response
			for _, line := range tt.lines {
				resp = s.HandleLine(line)
			}
			assert.Equal(t, Response{Reply: "Invalid login format"}, resp)
			assert.Equal(t, tt.state, s.State())
			assert.Empty(t, s.PendingUsername())
			assert.Empty(t, s.Username)
		})
	}
}

func TestSessionNoCommandsBeforeAuthentication(t *testing.T) {
	s := newTestSession()
	for _, line := range []string{"parentheses: ()", "lcm: 4 6", "caesar: abc 1"} {
		resp := s.HandleLine(line)
		assert.Equal(t, ReplyInvalidLogin, resp.Reply, line)
		assert.False(t, resp.Close)
	}
	assert.Equal(t, AwaitingUsername, s.State())
}

func TestSessionCommands(t *testing.T) {
	s := newTestSession()
	login(t, s, "bob", "secret")

	tests := []struct {
		line string
		want string
	}{
		{"parentheses: (())", "the parentheses are balanced: yes"},
		{"parentheses: ())", "the parentheses are balanced: no"},
		{"lcm: 12 18", "the lcm is: 36"},
		{"caesar: Hello World 1", "The ciphertext is: ifmmp xpsme"},
		{"parentheses: ab", "ERROR: The string isn't only parentheses"},
		{"lcm: 12", "ERROR: lcm requires exactly 2 parameters"},
		{"caesar: hello 3x", "ERROR: shift must be an integer"},
		{"caesar: hello1 3", "error: invalid input"},
	}
	for _, tt := range tests {
		resp := s.HandleLine(tt.line)
		assert.Equal(t, Response{Reply: tt.want}, resp, tt.line)
		assert.Equal(t, Authenticated, s.State(), "bad parameters keep the session open")
	}
}

func TestSessionProtocolViolationCloses(t *testing.T) {
	for _, line := range []string{"upper: abc", "no separator here", "User: bob", "Lcm: 1 2"} {
		s := newTestSession()
		login(t, s, "bob", "secret")

		resp := s.HandleLine(line)
		assert.Equal(t, Response{Close: true}, resp, line)
		assert.Equal(t, Closing, s.State())
		assert.Equal(t, CloseProtocolViolation, s.CloseReason())
	}
}

func TestSessionQuit(t *testing.T) {
	t.Run("awaiting username", func(t *testing.T) {
		s := newTestSession()
		assert.Equal(t, Response{Close: true}, s.HandleLine("quit"))
		assert.Equal(t, Closing, s.State())
		assert.Equal(t, CloseQuit, s.CloseReason())
	})

	t.Run("awaiting password", func(t *testing.T) {
		s := newTestSession()
		s.HandleLine("User: bob")
		assert.Equal(t, Response{Close: true}, s.HandleLine("quit\r"))
		assert.Equal(t, Closing, s.State())
	})

	t.Run("authenticated", func(t *testing.T) {
		s := newTestSession()
		login(t, s, "bob", "secret")
		assert.Equal(t, Response{Close: true}, s.HandleLine("quit"))
		assert.Equal(t, CloseQuit, s.CloseReason())
	})
}

func TestSessionClosingIsTerminal(t *testing.T) {
	s := newTestSession()
	s.Terminate(CloseShutdown)
	assert.Equal(t, Closing, s.State())

	resp := s.HandleLine("User: bob")
	assert.Equal(t, Response{Close: true}, resp)
	assert.Equal(t, Closing, s.State())

	s.Terminate(CloseReadError)
	assert.Equal(t, CloseShutdown, s.CloseReason(), "first reason wins")
}

func TestSessionFeed(t *testing.T) {
	s := newTestSession()

	var lines []string
	for line := range s.Feed([]byte("User: bob\nPass")) {
		lines = append(lines, line)
	}
	assert.Equal(t, []string{"User: bob"}, lines)
	assert.Equal(t, 4, s.Buffered())

	lines = nil
	for line := range s.Feed([]byte("word: secret\n")) {
		lines = append(lines, line)
	}
	assert.Equal(t, []string{"Password: secret"}, lines)
	assert.Zero(t, s.Buffered())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_username", AwaitingUsername.String())
	assert.Equal(t, "authenticated", Authenticated.String())
	assert.Equal(t, "state(9)", State(9).String())
}
