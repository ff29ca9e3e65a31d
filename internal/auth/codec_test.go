package auth

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/gunnet/internal/crypto"
)

func newTestCodec(t *testing.T, role Role) *Codec {
	t.Helper()
	cfg, err := DefaultConfig(role)
	require.NoError(t, err)
	c, err := NewCodec(cfg)
	require.NoError(t, err)
	return c
}

func TestDefaultConfig_AllRolesValid(t *testing.T) {
	for _, role := range []Role{RoleLogin, RoleBuddy, RoleChannel, RoleBroker} {
		cfg, err := DefaultConfig(role)
		require.NoError(t, err, role)
		assert.NoError(t, cfg.Validate(), role)
	}

	_, err := DefaultConfig("gateway")
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	base, err := DefaultConfig(RoleLogin)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"static size not multiple of 16", func(c *Config) { c.StaticBlockSize = 40 }},
		{"session size not multiple of 16", func(c *Config) { c.SessionBlockSize = 20 }},
		{"session too small for role", func(c *Config) { c.SessionBlockSize = 16 }},
		{"magic offset past block", func(c *Config) { c.MagicOffset = 30 }},
		{"unknown material", func(c *Config) { c.KeyMaterial = "salt" }},
		{"unknown role", func(c *Config) { c.Role = "gateway" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
			_, err := NewCodec(cfg)
			assert.Error(t, err)
		})
	}
}

func TestDecodeStatic_RoundTrip(t *testing.T) {
	c := newTestCodec(t, RoleLogin)

	block, err := c.EncodeStatic("tester", 0xdeadbeef)
	require.NoError(t, err)
	require.Len(t, block, 32)
	original := bytes.Clone(block)

	p, err := c.DecodeStatic(block)
	require.NoError(t, err)
	assert.Equal(t, Prelude{Username: "tester", Magic: 0xdeadbeef}, p)
	assert.Equal(t, original, block, "input block must not be modified")
}

func TestDecodeStatic_LengthCappedUsername(t *testing.T) {
	c := newTestCodec(t, RoleLogin)

	block, err := c.EncodeStatic("sixteencharsname", 1)
	require.NoError(t, err)

	p, err := c.DecodeStatic(block)
	require.NoError(t, err)
	assert.Equal(t, "sixteencharsname", p.Username)
}

func TestDecodeStatic_UsernameTooLong(t *testing.T) {
	// Channel blocks leave 20 bytes before the magic, more than the 16 allowed.
	c := newTestCodec(t, RoleChannel)
	cfg := c.Config()

	buf := make([]byte, cfg.StaticBlockSize)
	copy(buf, "eighteen-char-name")
	binary.LittleEndian.PutUint32(buf[cfg.MagicOffset:], 7)
	require.NoError(t, crypto.EncryptPayload(cfg.StaticKey[:], buf))

	_, err := c.DecodeStatic(buf)
	assert.ErrorIs(t, err, ErrInvalidCredentialBlock)
}

func TestDecodeStatic_Errors(t *testing.T) {
	c := newTestCodec(t, RoleLogin)

	_, err := c.DecodeStatic(make([]byte, 31))
	assert.ErrorIs(t, err, ErrInvalidCredentialBlock)

	// All-zero plaintext: empty username.
	cfg := c.Config()
	buf := make([]byte, cfg.StaticBlockSize)
	require.NoError(t, crypto.EncryptPayload(cfg.StaticKey[:], buf))
	_, err = c.DecodeStatic(buf)
	assert.ErrorIs(t, err, ErrInvalidCredentialBlock)

	_, err = c.EncodeStatic("", 0)
	assert.ErrorIs(t, err, ErrInvalidCredentialBlock)
}

func TestDeriveSessionKey(t *testing.T) {
	username := "tester"
	material := []byte{0x01, 0x02}
	magic := uint32(0x04030201)

	want := crypto.Hash([]byte("tester\x01\x02\x01\x02\x03\x04"))
	key := DeriveSessionKey(username, material, magic)
	assert.Equal(t, want[:16], key[:])

	assert.NotEqual(t, key, DeriveSessionKey(username, nil, magic))
	assert.NotEqual(t, key, DeriveSessionKey(username, material, magic+1))
}

func TestDecodeSession_WrongKeyFailsMagic(t *testing.T) {
	c := newTestCodec(t, RoleLogin)

	good := DeriveSessionKey("tester", nil, 1)
	bad := DeriveSessionKey("tester", nil, 2)

	block, err := c.EncodeSession([]byte("payload"), good)
	require.NoError(t, err)

	restored, err := c.DecodeSession(block, good)
	require.NoError(t, err)
	assert.Len(t, restored, 48)
	assert.Equal(t, []byte("payload"), restored[:7])

	_, err = c.DecodeSession(block, bad)
	assert.ErrorIs(t, err, ErrInvalidMagic)

	_, err = c.DecodeSession(block[:48], good)
	assert.ErrorIs(t, err, ErrInvalidCredentialBlock)
}

func TestCodec_EncodeDecode_AllRoles(t *testing.T) {
	digest := crypto.Hash([]byte("secret"))

	tests := []struct {
		role Role
		cred Credentials
	}{
		{RoleLogin, Credentials{Username: "alice", Magic: 0x11223344, Password: "secret", Version: 280}},
		{RoleBuddy, Credentials{Username: "bob", Magic: 0x55667788, Version: 3, PasswordHash: digest[:]}},
		{RoleChannel, Credentials{
			Username: "carol", Magic: 0x99aabbcc, Nickname: "Carolina", PrideTag: "Wolves",
			IP: net.IPv4(10, 0, 0, 7).To4(), Port: 8372, Version: 42,
		}},
		{RoleBroker, Credentials{Username: "dave", Magic: 1, Version: 9}},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			c := newTestCodec(t, tt.role)
			material := MaterialFromDigest(c.Config().KeyMaterial, digest[:])

			data, err := c.Encode(tt.cred, material)
			require.NoError(t, err)
			require.Len(t, data, c.HandshakeSize())

			var asked Prelude
			got, err := c.Decode(data, func(p Prelude) ([]byte, error) {
				asked = p
				return material, nil
			})
			require.NoError(t, err)
			assert.Equal(t, Prelude{Username: tt.cred.Username, Magic: tt.cred.Magic}, asked)

			want := tt.cred
			want.Role = tt.role
			assert.Equal(t, want, got)
		})
	}
}

func TestCodec_Decode_WrongMaterial(t *testing.T) {
	c := newTestCodec(t, RoleLogin)
	right := crypto.Hash([]byte("secret"))
	wrong := crypto.Hash([]byte("guess"))

	data, err := c.Encode(Credentials{Username: "alice", Magic: 5, Password: "secret"}, right[:])
	require.NoError(t, err)

	_, err = c.Decode(data, func(Prelude) ([]byte, error) { return wrong[:], nil })
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestCodec_Decode_MaterialError(t *testing.T) {
	c := newTestCodec(t, RoleLogin)
	data, err := c.Encode(Credentials{Username: "alice", Magic: 5, Password: "secret"}, nil)
	require.NoError(t, err)

	lookupErr := errors.New("account store down")
	_, err = c.Decode(data, func(Prelude) ([]byte, error) { return nil, lookupErr })
	assert.ErrorIs(t, err, lookupErr)
}

func TestCodec_Decode_Short(t *testing.T) {
	c := newTestCodec(t, RoleBroker)
	_, err := c.Decode(make([]byte, c.HandshakeSize()-1), nil)
	assert.ErrorIs(t, err, ErrInvalidCredentialBlock)
}

func TestMaterialFromDigest(t *testing.T) {
	digest := crypto.Hash([]byte("secret"))

	assert.Nil(t, MaterialFromDigest(MaterialNone, digest[:]))
	assert.Equal(t, digest[:], MaterialFromDigest(MaterialHash, digest[:]))

	mid := MaterialFromDigest(MaterialHexMiddle, digest[:])
	assert.Equal(t, hex.EncodeToString(digest[:])[10:30], string(mid))
}
