package ledger

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/teranos/sentinel/errors"
)

// Signer holds the ledger's signing identity.
type Signer struct {
	PrivateKey ed25519.PrivateKey
	DID        string
}

// NewSigner wraps an existing private key.
func NewSigner(priv ed25519.PrivateKey) *Signer {
	return &Signer{
		PrivateKey: priv,
		DID:        EncodeDIDKey(priv.Public().(ed25519.PublicKey)),
	}
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to generate ed25519 key"), errors.ErrSigning)
	}
	return NewSigner(priv), nil
}

// LoadOrCreateSigner reads a hex-encoded 32-byte seed from path, creating the
// file with a fresh seed if it does not exist. An empty path yields an
// ephemeral signer.
func LoadOrCreateSigner(path string) (*Signer, bool, error) {
	if path == "" {
		s, err := GenerateSigner()
		return s, true, err
	}

	data, err := os.ReadFile(path)
	if err == nil {
		seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, false, errors.Mark(errors.Wrapf(err, "invalid key file %s", path), errors.ErrSigning)
		}
		if len(seed) != ed25519.SeedSize {
			return nil, false, errors.Mark(
				errors.Newf("key file %s holds %d bytes, expected a %d byte seed", path, len(seed), ed25519.SeedSize),
				errors.ErrSigning)
		}
		return NewSigner(ed25519.NewKeyFromSeed(seed)), false, nil
	}
	if !os.IsNotExist(err) {
		return nil, false, errors.Wrapf(err, "failed to read key file %s", path)
	}

	s, err := GenerateSigner()
	if err != nil {
		return nil, false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, false, errors.Wrapf(err, "failed to create key directory for %s", path)
	}
	seed := hex.EncodeToString(s.PrivateKey.Seed())
	if err := os.WriteFile(path, []byte(seed+"\n"), 0o600); err != nil {
		return nil, false, errors.Wrapf(err, "failed to write key file %s", path)
	}
	return s, true, nil
}

// PublicKey returns the signer's public key.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.PrivateKey.Public().(ed25519.PublicKey)
}

// PublicKeyHex returns the public key as lowercase hex, the form `ledger verify` takes.
func (s *Signer) PublicKeyHex() string {
	return hex.EncodeToString(s.PublicKey())
}

// Sign signs payload.
func (s *Signer) Sign(payload []byte) []byte {
	return ed25519.Sign(s.PrivateKey, payload)
}

// EncodeDIDKey encodes pub as did:key:z + base58btc(0xed 0x01 + pubkey).
func EncodeDIDKey(pub ed25519.PublicKey) string {
	buf := make([]byte, 2+len(pub))
	buf[0] = 0xed
	buf[1] = 0x01
	copy(buf[2:], pub)
	return "did:key:z" + base58.Encode(buf)
}

// DecodeDIDKey extracts the ed25519 public key from a did:key:z... identifier.
func DecodeDIDKey(did string) (ed25519.PublicKey, error) {
	const prefix = "did:key:z"
	if !strings.HasPrefix(did, prefix) {
		return nil, errors.Newf("invalid did:key format: %s", did)
	}

	decoded, err := base58.Decode(did[len(prefix):])
	if err != nil {
		return nil, errors.Wrapf(err, "failed to base58-decode did:key %s", did)
	}
	if len(decoded) != 34 {
		return nil, errors.Newf("unexpected decoded length %d for did:key %s (expected 34)", len(decoded), did)
	}
	if decoded[0] != 0xed || decoded[1] != 0x01 {
		return nil, errors.Newf("unexpected multicodec prefix [%x %x] for did:key %s", decoded[0], decoded[1], did)
	}
	return ed25519.PublicKey(decoded[2:]), nil
}

// ParsePublicKey accepts a hex public key or a did:key.
func ParsePublicKey(s string) (ed25519.PublicKey, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "did:key:") {
		return DecodeDIDKey(s)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrap(err, "public key is neither hex nor did:key")
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errors.Newf("public key has %d bytes, expected %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}
