package auth

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/udisondev/gunnet/internal/constants"
	"github.com/udisondev/gunnet/internal/crypto"
)

// Prelude is what the static-key block reveals before any account lookup.
type Prelude struct {
	Username string
	Magic    uint32
}

// SessionKey is the credential-derived AES-128 key of the second handshake block.
type SessionKey [constants.HandshakeKeySize]byte

// MaterialFunc resolves the key material for a prelude (for example the stored
// password digest of the account). It is supplied by the authentication collaborator.
type MaterialFunc func(p Prelude) ([]byte, error)

// Codec decodes the two-stage login handshake for one server role.
// It holds only immutable configuration and is safe for concurrent use.
type Codec struct {
	cfg Config
}

// NewCodec validates cfg and creates a codec for it.
func NewCodec(cfg Config) (*Codec, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid handshake config: %w", err)
	}
	return &Codec{cfg: cfg}, nil
}

// Config returns the codec configuration.
func (c *Codec) Config() Config {
	return c.cfg
}

// HandshakeSize is the total size of static plus session block.
func (c *Codec) HandshakeSize() int {
	return c.cfg.StaticBlockSize + c.cfg.SessionBlockSize
}

// DecodeStatic decrypts the static-key block and extracts the username and magic nonce.
// block is not modified.
func (c *Codec) DecodeStatic(block []byte) (Prelude, error) {
	if len(block) != c.cfg.StaticBlockSize {
		return Prelude{}, fmt.Errorf("%w: static block is %d bytes, want %d",
			ErrInvalidCredentialBlock, len(block), c.cfg.StaticBlockSize)
	}

	buf := bytes.Clone(block)
	if err := crypto.DecryptPayload(c.cfg.StaticKey[:], buf); err != nil {
		return Prelude{}, fmt.Errorf("%w: %w", ErrInvalidCredentialBlock, err)
	}

	username, err := c.username(buf[:c.cfg.MagicOffset])
	if err != nil {
		return Prelude{}, err
	}

	return Prelude{
		Username: username,
		Magic:    binary.LittleEndian.Uint32(buf[c.cfg.MagicOffset:]),
	}, nil
}

// username reads a NUL-terminated or field-capped name from the start of field.
func (c *Codec) username(field []byte) (string, error) {
	n := bytes.IndexByte(field, 0)
	if n < 0 {
		n = len(field)
	}
	if n == 0 {
		return "", fmt.Errorf("%w: empty username", ErrInvalidCredentialBlock)
	}
	if n > c.cfg.UsernameMaxLength {
		return "", fmt.Errorf("%w: username longer than %d bytes", ErrInvalidCredentialBlock, c.cfg.UsernameMaxLength)
	}
	return string(field[:n]), nil
}

// DecodeSession decrypts the session block with key and restores it.
func (c *Codec) DecodeSession(block []byte, key SessionKey) ([]byte, error) {
	if len(block) != c.cfg.SessionBlockSize {
		return nil, fmt.Errorf("%w: session block is %d bytes, want %d",
			ErrInvalidCredentialBlock, len(block), c.cfg.SessionBlockSize)
	}

	buf := bytes.Clone(block)
	if err := crypto.DecryptPayload(key[:], buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentialBlock, err)
	}
	return Restore(buf, c.cfg.Magic)
}

// Decode runs the whole handshake over data = static block ‖ session block.
// material is asked for the key material once the username is known.
func (c *Codec) Decode(data []byte, material MaterialFunc) (Credentials, error) {
	if len(data) < c.HandshakeSize() {
		return Credentials{}, fmt.Errorf("%w: handshake is %d bytes, want %d",
			ErrInvalidCredentialBlock, len(data), c.HandshakeSize())
	}

	prelude, err := c.DecodeStatic(data[:c.cfg.StaticBlockSize])
	if err != nil {
		return Credentials{}, err
	}

	var mat []byte
	if material != nil {
		if mat, err = material(prelude); err != nil {
			return Credentials{}, fmt.Errorf("resolving key material for %q: %w", prelude.Username, err)
		}
	}

	key := DeriveSessionKey(prelude.Username, mat, prelude.Magic)
	restored, err := c.DecodeSession(data[c.cfg.StaticBlockSize:c.HandshakeSize()], key)
	if err != nil {
		return Credentials{}, err
	}

	cred := Credentials{
		Role:     c.cfg.Role,
		Username: prelude.Username,
		Magic:    prelude.Magic,
	}
	if err := layouts[c.cfg.Role].decode(restored, &cred); err != nil {
		return Credentials{}, err
	}
	return cred, nil
}

// EncodeStatic builds the static-key block the client sends.
func (c *Codec) EncodeStatic(username string, magic uint32) ([]byte, error) {
	if username == "" || len(username) > c.cfg.UsernameMaxLength || len(username) > c.cfg.MagicOffset {
		return nil, fmt.Errorf("%w: username length %d", ErrInvalidCredentialBlock, len(username))
	}
	buf := make([]byte, c.cfg.StaticBlockSize)
	copy(buf, username)
	binary.LittleEndian.PutUint32(buf[c.cfg.MagicOffset:], magic)
	if err := crypto.EncryptPayload(c.cfg.StaticKey[:], buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentialBlock, err)
	}
	return buf, nil
}

// EncodeSession tags payload with the role magic, pads it to the session block
// size and encrypts it with key.
func (c *Codec) EncodeSession(payload []byte, key SessionKey) ([]byte, error) {
	useful := RestoredSize(c.cfg.SessionBlockSize)
	if len(payload) > useful {
		return nil, fmt.Errorf("%w: payload %d bytes exceeds %d", ErrInvalidCredentialBlock, len(payload), useful)
	}
	padded := make([]byte, useful)
	copy(padded, payload)

	buf := Tag(padded, c.cfg.Magic)
	if err := crypto.EncryptPayload(key[:], buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentialBlock, err)
	}
	return buf, nil
}

// Encode builds a full client handshake (static block ‖ session block) for cred.
func (c *Codec) Encode(cred Credentials, material []byte) ([]byte, error) {
	static, err := c.EncodeStatic(cred.Username, cred.Magic)
	if err != nil {
		return nil, err
	}
	fields, err := layouts[c.cfg.Role].encode(cred)
	if err != nil {
		return nil, err
	}
	session, err := c.EncodeSession(fields, DeriveSessionKey(cred.Username, material, cred.Magic))
	if err != nil {
		return nil, err
	}
	return append(static, session...), nil
}

// DeriveSessionKey digests username ‖ material ‖ magic (LE) and keeps the first 16 bytes.
func DeriveSessionKey(username string, material []byte, magic uint32) SessionKey {
	buf := make([]byte, 0, len(username)+len(material)+4)
	buf = append(buf, username...)
	buf = append(buf, material...)
	buf = binary.LittleEndian.AppendUint32(buf, magic)

	sum := crypto.Hash(buf)
	var key SessionKey
	copy(key[:], sum[:])
	return key
}

// MaterialFromDigest builds the key material the policy asks for from a password digest.
func MaterialFromDigest(policy KeyMaterial, digest []byte) []byte {
	switch policy {
	case MaterialHash:
		return bytes.Clone(digest)
	case MaterialHexMiddle:
		h := hex.EncodeToString(digest)
		if len(h) < 30 {
			return []byte(h)
		}
		return []byte(h[10:30])
	default:
		return nil
	}
}
