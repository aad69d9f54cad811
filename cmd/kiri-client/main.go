package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/migadu/kiri/pkg/retry"
	"golang.org/x/term"
)

const (
	defaultHost = "localhost"
	defaultPort = 1337
	dialTimeout = 10 * time.Second
)

var errConnectionClosed = errors.New("connection closed by server")

func main() {
	host, port, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "kiri-client: %v\n", err)
		fmt.Fprintf(os.Stderr, "Usage: %s [host] [port]\n", os.Args[0])
		os.Exit(2)
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := dial(addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kiri-client: cannot connect to %s: %v\n", addr, err)
		os.Exit(1)
	}
	defer conn.Close()

	input := bufio.NewReader(os.Stdin)
	c := newClient(conn, input, os.Stdout, terminalPassword(input))
	if err := c.run(); err != nil {
		fmt.Fprintf(os.Stderr, "kiri-client: %v\n", err)
		os.Exit(1)
	}
}

// dial connects to addr, retrying a few times while the server starts.
func dial(addr string) (net.Conn, error) {
	var conn net.Conn
	err := retry.WithRetry(context.Background(), func() error {
		c, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err != nil {
			var dnsErr *net.DNSError
			if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
				return retry.Stop(err)
			}
			return err
		}
		conn = c
		return nil
	}, retry.DefaultBackoffConfig())
	return conn, err
}

// parseArgs reads "[host] [port]".
func parseArgs(args []string) (string, int, error) {
	host, port := defaultHost, defaultPort
	if len(args) > 2 {
		return "", 0, fmt.Errorf("too many arguments")
	}
	if len(args) >= 1 && args[0] != "" {
		host = args[0]
	}
	if len(args) == 2 {
		p, err := strconv.Atoi(args[1])
		if err != nil || p < 1 || p > 65535 {
			return "", 0, fmt.Errorf("invalid port %q", args[1])
		}
		port = p
	}
	return host, port, nil
}

// terminalPassword reads a password without echo when stdin is a
// terminal, and as a plain line otherwise.
func terminalPassword(input *bufio.Reader) func() (string, error) {
	return func() (string, error) {
		fd := int(os.Stdin.Fd())
		if !term.IsTerminal(fd) {
			return readInputLine(input)
		}
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stdout)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(b), nil
	}
}

type client struct {
	conn         io.Writer
	server       *bufio.Reader
	input        *bufio.Reader
	out          io.Writer
	readPassword func() (string, error)
}

func newClient(conn io.ReadWriter, input *bufio.Reader, out io.Writer, readPassword func() (string, error)) *client {
	return &client{
		conn:         conn,
		server:       bufio.NewReader(conn),
		input:        input,
		out:          out,
		readPassword: readPassword,
	}
}

func (c *client) run() error {
	greeting, err := c.receive()
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, greeting)

	loggedIn, err := c.login()
	if err != nil || !loggedIn {
		return err
	}
	return c.relay()
}

// login prompts until the server accepts a username/password pair. It
// returns false when the user quits first.
func (c *client) login() (bool, error) {
	for {
		fmt.Fprint(c.out, "Username: ")
		user, err := readInputLine(c.input)
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		if errors.Is(err, io.EOF) || user == "quit" {
			return false, c.send("quit")
		}

		if err := c.send("User: " + user); err != nil {
			return false, err
		}
		reply, err := c.receive()
		if err != nil {
			return false, err
		}
		if reply != "OK" {
			fmt.Fprintln(c.out, reply)
			continue
		}

		fmt.Fprint(c.out, "Password: ")
		password, err := c.readPassword()
		if err != nil && !errors.Is(err, io.EOF) {
			return false, err
		}
		if err := c.send("Password: " + password); err != nil {
			return false, err
		}
		reply, err = c.receive()
		if err != nil {
			return false, err
		}
		fmt.Fprintln(c.out, reply)
		if strings.HasPrefix(reply, "Hi ") {
			return true, nil
		}
	}
}

// relay sends each input line as a command and prints the reply.
func (c *client) relay() error {
	for {
		fmt.Fprint(c.out, "> ")
		line, err := readInputLine(c.input)
		if errors.Is(err, io.EOF) {
			line = "quit"
		} else if err != nil {
			return err
		}
		if line == "" {
			continue
		}

		if err := c.send(line); err != nil {
			return err
		}
		if line == "quit" {
			return nil
		}

		reply, err := c.receive()
		if errors.Is(err, errConnectionClosed) {
			fmt.Fprintln(c.out, "Connection closed by server")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, reply)
	}
}

func (c *client) send(line string) error {
	_, err := io.WriteString(c.conn, line+"\n")
	return err
}

func (c *client) receive() (string, error) {
	line, err := c.server.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", errConnectionClosed
		}
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readInputLine returns the next line without its terminator. A final line
// without '\n' is returned with a nil error.
func readInputLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
