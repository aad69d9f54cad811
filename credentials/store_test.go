package credentials

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestParse(t *testing.T) {
	store, err := Parse(strings.NewReader("bob\tsecret\nalice\twonderland\r\n\n"))
	require.NoError(t, err)

	assert.Equal(t, 2, store.Len())
	assert.True(t, store.Verify("bob", "secret"))
	assert.True(t, store.Verify("alice", "wonderland"), "CRLF line endings are tolerated")
	assert.False(t, store.Verify("bob", "wonderland"))
	assert.False(t, store.Verify("Bob", "secret"), "usernames are case-sensitive")
	assert.False(t, store.Verify("carol", ""), "no default entries")
	assert.True(t, store.Has("alice"))
	assert.False(t, store.Has("ALICE"))
}

func TestParsePasswordWithSpaces(t *testing.T) {
	store, err := Parse(strings.NewReader("bob\tcorrect horse battery\n"))
	require.NoError(t, err)
	assert.True(t, store.Verify("bob", "correct horse battery"))
	assert.False(t, store.Verify("bob", "correct"))
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		line    int
		wantErr error
	}{
		{"missing tab", "bob secret\n", 1, ErrMalformedLine},
		{"three fields", "bob\tsecret\textra\n", 1, ErrMalformedLine},
		{"empty username", "\tsecret\n", 1, ErrMalformedLine},
		{"later line", "bob\tsecret\n\nbroken\n", 3, ErrMalformedLine},
		{"duplicate", "bob\ta\nbob\tb\n", 2, ErrDuplicateUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)

			var lineErr *LineError
			require.True(t, errors.As(err, &lineErr))
			assert.Equal(t, tt.line, lineErr.Line)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.txt")
	require.NoError(t, os.WriteFile(path, []byte("bob\tsecret\n"), 0600))

	store, err := Load(path)
	require.NoError(t, err)
	assert.True(t, store.Verify("bob", "secret"))
	assert.Len(t, store.Digest(), 64)

	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, store.Digest(), again.Digest(), "digest is stable for identical input")

	other, err := Parse(strings.NewReader("bob\tother\n"))
	require.NoError(t, err)
	assert.NotEqual(t, store.Digest(), other.Digest())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestVerifyBcrypt(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	store, err := Parse(strings.NewReader("bob\t" + string(hash) + "\n"))
	require.NoError(t, err)

	assert.True(t, store.Verify("bob", "secret"))
	assert.False(t, store.Verify("bob", "wrong"))
	assert.False(t, store.Verify("bob", string(hash)), "the hash itself is not a valid password")
}

func TestNilAndMapStores(t *testing.T) {
	var nilStore *Store
	assert.False(t, nilStore.Verify("bob", "secret"))
	assert.Zero(t, nilStore.Len())

	src := map[string]string{"bob": "secret"}
	store := FromMap(src)
	src["bob"] = "changed"
	assert.True(t, store.Verify("bob", "secret"), "store is immutable after construction")
	assert.Empty(t, store.Digest())
}
