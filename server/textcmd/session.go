package textcmd

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/migadu/kiri/pkg/commands"
	"github.com/migadu/kiri/pkg/metrics"
	"github.com/migadu/kiri/server"
)

// State is the position of a session in the login/command lifecycle.
type State int

const (
	AwaitingUsername State = iota
	AwaitingPassword
	Authenticated
	Closing
)

func (s State) String() string {
	switch s {
	case AwaitingUsername:
		return "awaiting_username"
	case AwaitingPassword:
		return "awaiting_password"
	case Authenticated:
		return "authenticated"
	case Closing:
		return "closing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Close reasons, also used as metric labels.
const (
	CloseQuit              = "quit"
	ClosePeer              = "peer_closed"
	CloseReadError         = "read_error"
	CloseWriteError        = "write_error"
	CloseProtocolViolation = "protocol_violation"
	CloseShutdown          = "shutdown"
)

// Wire responses.
const (
	ReplyUserAccepted       = "OK"
	ReplyLoginFailed        = "Failed to login."
	ReplyInvalidLogin       = "Invalid login format"
	ReplyShuttingDown       = "Server shutting down"
	ReplyTooManyConnections = "Too many connections"
	loginSuccessFormat      = "Hi %s, good to see you"
)

// Authenticator checks a username/password pair. *credentials.Store
// satisfies it.
type Authenticator interface {
	Verify(username, password string) bool
}

// Response is what the session wants done after one message. An empty
// Reply means nothing is sent.
type Response struct {
	Reply string
	Close bool
}

// Session is the per-connection protocol state machine. It does no I/O;
// the event loop feeds it framed lines and writes back its responses.
type Session struct {
	server.Session

	auth            Authenticator
	state           State
	pendingUsername string
	framer          server.LineFramer
	started         time.Time
	closeReason     string
}

// NewSession returns a session in AwaitingUsername.
func NewSession(id, remoteAddr, serverName string, auth Authenticator) *Session {
	return &Session{
		Session: server.Session{
			Id:         id,
			RemoteAddr: remoteAddr,
			ServerName: serverName,
			Protocol:   "KIRI",
		},
		auth:    auth,
		state:   AwaitingUsername,
		started: time.Now(),
	}
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// PendingUsername returns the username awaiting its password, if any.
func (s *Session) PendingUsername() string {
	return s.pendingUsername
}

// CloseReason says why the session entered Closing; empty before that.
func (s *Session) CloseReason() string {
	return s.closeReason
}

// Feed frames raw bytes read from the connection into lines.
func (s *Session) Feed(data []byte) iter.Seq[string] {
	return s.framer.Feed(data)
}

// Buffered returns the size of the incomplete trailing line.
func (s *Session) Buffered() int {
	return s.framer.Buffered()
}

func (s *Session) close(reason string) {
	if s.state == Closing {
		return
	}
	s.state = Closing
	s.closeReason = reason
}

// HandleLine parses and handles one framed line.
func (s *Session) HandleLine(line string) Response {
	return s.Handle(Parse(line))
}

// Handle advances the state machine by one message.
func (s *Session) Handle(msg Message) Response {
	if _, ok := msg.(Quit); ok {
		s.close(CloseQuit)
		s.DebugLog("quit requested")
		return Response{Close: true}
	}

	switch s.state {
	case AwaitingUsername:
		return s.handleUsername(msg)
	case AwaitingPassword:
		return s.handlePassword(msg)
	case Authenticated:
		return s.handleCommand(msg)
	}
	// Closing: nothing more is processed.
	return Response{Close: true}
}

// Terminate moves the session to Closing for a reason outside the
// protocol, such as a socket error or server shutdown.
func (s *Session) Terminate(reason string) {
	s.close(reason)
}

func (s *Session) handleUsername(msg Message) Response {
	m, ok := msg.(LoginUser)
	if !ok {
		metrics.LoginFormatErrors.WithLabelValues(s.ServerName).Inc()
		return Response{Reply: ReplyInvalidLogin}
	}
	s.pendingUsername = m.Name
	s.state = AwaitingPassword
	return Response{Reply: ReplyUserAccepted}
}

func (s *Session) handlePassword(msg Message) Response {
	username := s.pendingUsername
	s.pendingUsername = ""
	s.state = AwaitingUsername

	m, ok := msg.(LoginPassword)
	if !ok {
		metrics.LoginFormatErrors.WithLabelValues(s.ServerName).Inc()
		return Response{Reply: ReplyInvalidLogin}
	}

	if !s.auth.Verify(username, m.Password) {
		metrics.AuthenticationAttempts.WithLabelValues(s.ServerName, "failure").Inc()
		s.Log("authentication failed for %q", username)
		return Response{Reply: ReplyLoginFailed}
	}

	metrics.AuthenticationAttempts.WithLabelValues(s.ServerName, "success").Inc()
	s.state = Authenticated
	s.Username = username
	s.Log("authenticated")
	return Response{Reply: fmt.Sprintf(loginSuccessFormat, username)}
}

func (s *Session) handleCommand(msg Message) Response {
	cmd, ok := msg.(Command)
	if !ok {
		s.WarnLog("protocol violation: %T in command phase", msg)
		s.close(CloseProtocolViolation)
		return Response{Close: true}
	}

	start := time.Now()
	reply, err := commands.Run(cmd.Name, cmd.Params)
	if errors.Is(err, commands.ErrUnknownCommand) {
		s.WarnLog("protocol violation: unknown command %q", cmd.Name)
		s.close(CloseProtocolViolation)
		return Response{Close: true}
	}
	metrics.CommandDuration.WithLabelValues(s.ServerName, cmd.Name).Observe(time.Since(start).Seconds())

	var cerr *commands.Error
	if errors.As(err, &cerr) {
		metrics.CommandsTotal.WithLabelValues(s.ServerName, cmd.Name, "error").Inc()
		return Response{Reply: cerr.Reply}
	}
	if err != nil {
		metrics.CommandsTotal.WithLabelValues(s.ServerName, cmd.Name, "error").Inc()
		s.WarnLog("command %s failed: %v", cmd.Name, err)
		return Response{Reply: "ERROR: " + err.Error()}
	}
	metrics.CommandsTotal.WithLabelValues(s.ServerName, cmd.Name, "ok").Inc()
	return Response{Reply: reply}
}
