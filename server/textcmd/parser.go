package textcmd

import "strings"

// Message is one parsed protocol line.
type Message interface {
	isMessage()
}

// LoginUser is "User: <name>".
type LoginUser struct{ Name string }

// LoginPassword is "Password: <password>".
type LoginPassword struct{ Password string }

// Command is any other "<name>: <params>" line. Params keeps its leading
// whitespace; the command engine trims as each command requires.
type Command struct {
	Name   string
	Params string
}

// Quit is the bare "quit" line (a trailing ":..." is tolerated).
type Quit struct{}

// Malformed is a line with no ':' separator, or a User line without a name.
type Malformed struct{ Line string }

func (LoginUser) isMessage()     {}
func (LoginPassword) isMessage() {}
func (Command) isMessage()       {}
func (Quit) isMessage()          {}
func (Malformed) isMessage()     {}

const (
	userLabel     = "User"
	passwordLabel = "Password"
	quitCommand   = "quit"
)

// Parse classifies a framed line. It never fails; anything it cannot
// classify is Malformed. One trailing '\r' is ignored.
func Parse(line string) Message {
	line = strings.TrimSuffix(line, "\r")

	label, rest, found := strings.Cut(line, ":")
	label = strings.TrimSpace(label)
	if !found {
		if label == quitCommand {
			return Quit{}
		}
		return Malformed{Line: line}
	}

	switch label {
	case userLabel:
		name := strings.TrimSpace(rest)
		if name == "" {
			return Malformed{Line: line}
		}
		return LoginUser{Name: name}
	case passwordLabel:
		return LoginPassword{Password: strings.TrimSpace(rest)}
	case quitCommand:
		return Quit{}
	}
	return Command{Name: label, Params: rest}
}
