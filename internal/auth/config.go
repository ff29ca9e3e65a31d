package auth

import (
	"fmt"

	"github.com/udisondev/gunnet/internal/constants"
)

// Role identifies which server is decoding a handshake. Roles share the codec
// logic and differ only in wire constants and field layout.
type Role string

const (
	RoleLogin   Role = "login"
	RoleBuddy   Role = "buddy"
	RoleChannel Role = "channel"
	RoleBroker  Role = "broker"
)

// KeyMaterial selects what is hashed between the username and the magic
// when deriving the session key.
type KeyMaterial string

const (
	MaterialNone      KeyMaterial = "none"       // username ‖ magic
	MaterialHash      KeyMaterial = "hash"       // username ‖ password digest ‖ magic
	MaterialHexMiddle KeyMaterial = "hex-middle" // username ‖ hex(digest)[10:30] ‖ magic
)

// Config holds the per-role wire constants of the handshake.
type Config struct {
	Role              Role
	StaticKey         [constants.HandshakeKeySize]byte
	Magic             uint32
	StaticBlockSize   int
	SessionBlockSize  int
	MagicOffset       int
	UsernameMaxLength int
	KeyMaterial       KeyMaterial
}

// DefaultStaticKey is the handshake key hard-coded in the client.
var DefaultStaticKey = [constants.HandshakeKeySize]byte{
	0xff, 0xb3, 0xb3, 0xbe,
	0xae, 0x97, 0xad, 0x83,
	0xb9, 0x61, 0x0e, 0x23,
	0xa4, 0x3c, 0x2e, 0xb0,
}

// DefaultConfig returns the built-in wire constants for role.
func DefaultConfig(role Role) (Config, error) {
	cfg := Config{
		Role:              role,
		StaticKey:         DefaultStaticKey,
		StaticBlockSize:   32,
		MagicOffset:       16,
		UsernameMaxLength: constants.UsernameMaxLength,
	}
	switch role {
	case RoleLogin:
		cfg.Magic = 0x8631607e
		cfg.SessionBlockSize = 64
		cfg.KeyMaterial = MaterialHash
	case RoleBuddy:
		cfg.Magic = 0x2f64a5e1
		cfg.SessionBlockSize = 32
		cfg.KeyMaterial = MaterialHexMiddle
	case RoleChannel:
		cfg.Magic = 0x43de2a41
		cfg.StaticBlockSize = 64
		cfg.MagicOffset = 20
		cfg.SessionBlockSize = 96
		cfg.KeyMaterial = MaterialNone
	case RoleBroker:
		cfg.Magic = 0x1a5c39d7
		cfg.SessionBlockSize = 32
		cfg.KeyMaterial = MaterialNone
	default:
		return Config{}, fmt.Errorf("unknown role %q", role)
	}
	return cfg, nil
}

// Validate checks that sizes and offsets are consistent with the role layout.
func (c Config) Validate() error {
	layout, ok := layouts[c.Role]
	if !ok {
		return fmt.Errorf("unknown role %q", c.Role)
	}
	if c.StaticBlockSize <= 0 || c.StaticBlockSize%constants.PayloadBlockSize != 0 {
		return fmt.Errorf("static block size %d is not a positive multiple of %d", c.StaticBlockSize, constants.PayloadBlockSize)
	}
	if c.SessionBlockSize <= 0 || c.SessionBlockSize%constants.PayloadBlockSize != 0 {
		return fmt.Errorf("session block size %d is not a positive multiple of %d", c.SessionBlockSize, constants.PayloadBlockSize)
	}
	if c.MagicOffset <= 0 || c.MagicOffset+4 > c.StaticBlockSize {
		return fmt.Errorf("magic offset %d does not fit in a %d-byte static block", c.MagicOffset, c.StaticBlockSize)
	}
	if c.UsernameMaxLength <= 0 {
		return fmt.Errorf("username max length must be positive, got %d", c.UsernameMaxLength)
	}
	if restored := RestoredSize(c.SessionBlockSize); restored < layout.size {
		return fmt.Errorf("session block restores to %d bytes, role %s needs %d", restored, c.Role, layout.size)
	}
	switch c.KeyMaterial {
	case MaterialNone, MaterialHash, MaterialHexMiddle:
	default:
		return fmt.Errorf("unknown key material policy %q", c.KeyMaterial)
	}
	return nil
}

// RestoredSize returns how many useful bytes a tagged buffer of n bytes carries.
func RestoredSize(n int) int {
	return n / constants.PayloadBlockSize * constants.HandshakeUsefulSize
}
