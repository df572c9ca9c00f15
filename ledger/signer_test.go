package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/sentinel/errors"
)

func TestDIDKeyRoundTrip(t *testing.T) {
	s, err := GenerateSigner()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(s.DID, "did:key:z6Mk"), "ed25519 did:key starts with z6Mk, got %s", s.DID)

	pub, err := DecodeDIDKey(s.DID)
	require.NoError(t, err)
	assert.Equal(t, s.PublicKey(), pub)
}

func TestDecodeDIDKey_Invalid(t *testing.T) {
	for _, did := range []string{"", "did:web:example.com", "did:key:z0OIl", "did:key:z2"} {
		_, err := DecodeDIDKey(did)
		assert.Error(t, err, did)
	}
}

func TestParsePublicKey(t *testing.T) {
	s, err := GenerateSigner()
	require.NoError(t, err)

	fromHex, err := ParsePublicKey(s.PublicKeyHex())
	require.NoError(t, err)
	assert.Equal(t, s.PublicKey(), fromHex)

	fromDID, err := ParsePublicKey(" " + s.DID + "\n")
	require.NoError(t, err)
	assert.Equal(t, s.PublicKey(), fromDID)

	_, err = ParsePublicKey("abcd")
	assert.ErrorContains(t, err, "expected 32")
	_, err = ParsePublicKey("zz")
	assert.Error(t, err)
}

func TestLoadOrCreateSigner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "ledger.key")

	first, created, err := LoadOrCreateSigner(path)
	require.NoError(t, err)
	assert.True(t, created)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, created, err := LoadOrCreateSigner(path)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.DID, second.DID)
}

func TestLoadOrCreateSigner_Ephemeral(t *testing.T) {
	s, created, err := LoadOrCreateSigner("")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEmpty(t, s.DID)
}

func TestLoadOrCreateSigner_BadFile(t *testing.T) {
	dir := t.TempDir()

	notHex := filepath.Join(dir, "nothex.key")
	require.NoError(t, os.WriteFile(notHex, []byte("not a seed"), 0o600))
	_, _, err := LoadOrCreateSigner(notHex)
	assert.True(t, errors.Is(err, errors.ErrSigning))

	short := filepath.Join(dir, "short.key")
	require.NoError(t, os.WriteFile(short, []byte("abcd"), 0o600))
	_, _, err = LoadOrCreateSigner(short)
	assert.True(t, errors.Is(err, errors.ErrSigning))
}
