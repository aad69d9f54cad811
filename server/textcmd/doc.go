// Package textcmd implements the kiri command protocol server.
//
// The protocol is line based UTF-8 text, one message per '\n'. A client
// authenticates with a two-step handshake and then issues commands:
//
//	S: Welcome! Please log in.
//	C: User: bob
//	S: OK
//	C: Password: secret
//	S: Hi bob, good to see you
//	C: lcm: 12 18
//	S: the lcm is: 36
//	C: quit
//
// # Session States
//
//	AwaitingUsername → AwaitingPassword → Authenticated → Closing
//
// Failed or malformed logins answer with an error and return to
// AwaitingUsername; retries are unlimited. Once authenticated the protocol
// is strict: a line without a ':' separator or with an unknown command
// name closes the connection without a reply. Bad parameters to a known
// command get an error line and the session continues. "quit" closes the
// connection in any state. A connection over the configured limits is
// sent "Too many connections" and closed before a session starts.
//
// # Commands
//
//   - parentheses: <string>   balance check of '(' and ')'
//   - lcm: <a> <b>            least common multiple
//   - caesar: <text> <shift>  Caesar cipher, lowercase output
//   - quit
//
// # Concurrency
//
// One goroutine runs the event loop. It owns every Session and is the only
// code that touches session state or writes to sockets. The accept loop and
// one reader goroutine per connection only block in Accept/Read and post
// what they got to the loop's event channel.
package textcmd
