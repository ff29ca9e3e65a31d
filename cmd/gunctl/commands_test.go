package main

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/gunnet/internal/auth"
	"github.com/udisondev/gunnet/internal/crypto"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// field returns the value printed after "name:".
func field(t *testing.T, out, name string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(line, name+":"); ok {
			return strings.TrimSpace(v)
		}
	}
	t.Fatalf("no %q in output:\n%s", name, out)
	return ""
}

func TestEncodeDecodeHeader(t *testing.T) {
	out, err := execute(t, "encode-header", "--random", "184", "--id", "11", "--seq", "256", "--blocks", "1")
	require.NoError(t, err)
	raw := field(t, out, "raw")
	key := field(t, out, "key")
	assert.Len(t, raw, 16)

	out, err = execute(t, "decode-header", raw)
	require.NoError(t, err)
	assert.Equal(t, "0xb8", field(t, out, "random"))
	assert.Equal(t, "0x000b", field(t, out, "id"))
	assert.Equal(t, "256", field(t, out, "sequence"))
	assert.Equal(t, key, field(t, out, "key"))
}

func TestDecodeHeader_BadChecksum(t *testing.T) {
	cipher, err := crypto.DefaultHeaderCipher()
	require.NoError(t, err)
	headers := crypto.NewHeaderCodec(cipher)

	var bad []byte
	for i := range 256 {
		candidate := []byte{byte(i), 1, 2, 3, 4, 5, 6, 7}
		if _, _, err := headers.DecryptHeader(candidate); err != nil {
			bad = candidate
			break
		}
	}
	require.NotNil(t, bad)

	_, err = execute(t, "decode-header", hex.EncodeToString(bad))
	assert.ErrorIs(t, err, crypto.ErrChecksumMismatch)

	_, err = execute(t, "decode-header", "zz")
	assert.Error(t, err)
}

func TestDecrypt(t *testing.T) {
	cipher, err := crypto.DefaultHeaderCipher()
	require.NoError(t, err)
	headers := crypto.NewHeaderCodec(cipher)

	raw, key, err := headers.EncryptHeader(crypto.Header{ID: 0x22, Sequence: 3, Blocks: 1})
	require.NoError(t, err)
	payload := []byte("abc0000000000000")
	require.NoError(t, crypto.EncryptPayload(key[:], payload))

	out, err := execute(t, "decrypt", hex.EncodeToString(append(raw[:], payload...)))
	require.NoError(t, err)
	assert.Contains(t, out, "id=0x0022 seq=3 blocks=1 body="+hex.EncodeToString([]byte("abc0000000000000")))

	_, err = execute(t, "decrypt", hex.EncodeToString(raw[:4]))
	assert.Error(t, err)
}

func TestDigest(t *testing.T) {
	out, err := execute(t, "digest", "abc")
	require.NoError(t, err)
	assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d\n", out)

	out, err = execute(t, "digest", "--hex", "616263")
	require.NoError(t, err)
	assert.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d\n", out)
}

func TestHandshake(t *testing.T) {
	out, err := execute(t, "handshake", "--user", "alice", "--password", "secret", "--nonce", "7")
	require.NoError(t, err)

	data, err := hex.DecodeString(strings.TrimSpace(out))
	require.NoError(t, err)

	cfg, err := auth.DefaultConfig(auth.RoleLogin)
	require.NoError(t, err)
	codec, err := auth.NewCodec(cfg)
	require.NoError(t, err)

	sum := crypto.Hash([]byte("secret"))
	cred, err := codec.Decode(data, func(auth.Prelude) ([]byte, error) { return sum[:], nil })
	require.NoError(t, err)
	assert.Equal(t, "alice", cred.Username)
	assert.Equal(t, "secret", cred.Password)
	assert.Equal(t, uint32(7), cred.Magic)

	_, err = execute(t, "handshake", "--role", "gateway", "--user", "alice")
	assert.Error(t, err)
}
