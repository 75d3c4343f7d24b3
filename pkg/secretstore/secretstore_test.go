package secretstore

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	s, err := Open(OpenOptions{Path: t.TempDir()})
	require.NoError(t, err)
	defer s.Close()

	_, found, err := s.GetString("botdash.session.token")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.SetString("botdash.session.token", "abc"))
	v, found, err := s.GetString(" botdash.session.token ")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "abc", v)

	require.NoError(t, s.Delete("botdash.session.token"))
	_, found, err = s.GetString("botdash.session.token")
	require.NoError(t, err)
	require.False(t, found)

	// deleting twice is fine
	require.NoError(t, s.Delete("botdash.session.token"))
}

func TestStoreEmptyValueIsFound(t *testing.T) {
	s, err := Open(OpenOptions{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.SetString("k", ""))
	v, found, err := s.GetString("k")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "", v)
}

func TestStoreEncrypted(t *testing.T) {
	dir := t.TempDir()
	key := []byte(strings.Repeat("k", 32))

	s, err := Open(OpenOptions{Path: dir, EncryptionKey: key})
	require.NoError(t, err)
	require.NoError(t, s.SetString("token", "secret"))
	require.NoError(t, s.Close())

	s, err = Open(OpenOptions{Path: dir, EncryptionKey: key})
	require.NoError(t, err)
	defer s.Close()
	v, found, err := s.GetString("token")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "secret", v)
}

func TestNilStore(t *testing.T) {
	var s *Store
	_, _, err := s.GetString("k")
	require.Error(t, err)
	require.Error(t, s.SetString("k", "v"))
	require.Error(t, s.Delete("k"))
	require.NoError(t, s.Close())
}

func TestParseKey(t *testing.T) {
	raw := []byte(strings.Repeat("a", 32))
	tests := []struct {
		name    string
		in      string
		wantLen int
		wantErr bool
	}{
		{"empty", "", 0, false},
		{"hex", strings.Repeat("ab", 32), 32, false},
		{"hex 0x", "0x" + strings.Repeat("cd", 32), 32, false},
		{"base64", base64.StdEncoding.EncodeToString(raw), 32, false},
		{"short hex", "abcd", 0, true},
		{"garbage", "not a key!", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := ParseKey(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, b, tt.wantLen)
		})
	}
}
