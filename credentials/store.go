// Package credentials holds the username/password table the command server
// authenticates against. It is loaded once at startup and read-only
// afterwards, so lookups need no locking.
//
// File format: one entry per line, "username<TAB>password". Blank lines are
// skipped. A password field that is a bcrypt hash ($2a$, $2b$ or $2y$) is
// checked with bcrypt; any other value is compared verbatim.
package credentials

import (
	"bufio"
	"bytes"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"lukechampine.com/blake3"
)

var (
	ErrMalformedLine = errors.New("malformed credentials line")
	ErrDuplicateUser = errors.New("duplicate username")
)

// LineError locates a load failure in the credentials file.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Store maps usernames to passwords. The zero value is an empty store.
type Store struct {
	users  map[string]string
	digest string
}

// Load reads and parses the credentials file at path.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(bytes.NewReader(data))
}

// Parse builds a Store from r. Any malformed line fails the whole load.
func Parse(r io.Reader) (*Store, error) {
	hasher := blake3.New(32, nil)
	scanner := bufio.NewScanner(io.TeeReader(r, hasher))
	users := make(map[string]string)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 2 {
			return nil, &LineError{Line: lineNo, Err: fmt.Errorf("%w: want 2 tab-separated fields, got %d", ErrMalformedLine, len(fields))}
		}
		username, password := fields[0], fields[1]
		if username == "" {
			return nil, &LineError{Line: lineNo, Err: fmt.Errorf("%w: empty username", ErrMalformedLine)}
		}
		if _, exists := users[username]; exists {
			return nil, &LineError{Line: lineNo, Err: fmt.Errorf("%w: %q", ErrDuplicateUser, username)}
		}
		users[username] = password
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}

	return &Store{
		users:  users,
		digest: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// FromMap builds a Store from an in-memory table.
func FromMap(users map[string]string) *Store {
	copied := make(map[string]string, len(users))
	for u, p := range users {
		copied[u] = p
	}
	return &Store{users: copied}
}

// Has reports whether username exists. Matching is exact and case-sensitive.
func (s *Store) Has(username string) bool {
	if s == nil {
		return false
	}
	_, ok := s.users[username]
	return ok
}

// Verify reports whether password is correct for username.
func (s *Store) Verify(username, password string) bool {
	if s == nil {
		return false
	}
	stored, ok := s.users[username]
	if !ok {
		return false
	}
	if isBcryptHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(password)) == 1
}

// Len returns the number of users.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.users)
}

// Digest is the hex BLAKE3 hash of the parsed input, empty for stores not
// built by Parse. It lets operators confirm which file a server loaded.
func (s *Store) Digest() string {
	if s == nil {
		return ""
	}
	return s.digest
}

func isBcryptHash(s string) bool {
	return len(s) == 60 && (strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$"))
}
