package auth

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/udisondev/gunnet/internal/constants"
)

// Credentials is the login credential record handed to the authentication
// collaborator. It is built once per login attempt.
type Credentials struct {
	Role     Role
	Username string
	Magic    uint32

	Password     string // login
	PasswordHash []byte // buddy
	Version      uint32

	Nickname string // channel
	PrideTag string
	IP       net.IP
	Port     uint16
}

// Restored-buffer layouts per role:
//
//	login   [password 20][version 4]
//	buddy   [version 4][password digest 20]
//	channel [nickname 12][pride tag 8][ip 4][port 2][pad 2][version 4]
//	broker  [version 4]
type layout struct {
	size   int
	decode func(restored []byte, cred *Credentials) error
	encode func(cred Credentials) ([]byte, error)
}

const (
	passwordFieldSize = 20
	nicknameFieldSize = 12
	prideTagFieldSize = 8
)

var layouts = map[Role]layout{
	RoleLogin: {
		size: passwordFieldSize + 4,
		decode: func(r []byte, cred *Credentials) error {
			cred.Password = cString(r[:passwordFieldSize])
			if cred.Password == "" {
				return fmt.Errorf("%w: empty password", ErrInvalidCredentialBlock)
			}
			cred.Version = binary.LittleEndian.Uint32(r[passwordFieldSize:])
			return nil
		},
		encode: func(cred Credentials) ([]byte, error) {
			if len(cred.Password) > passwordFieldSize {
				return nil, fmt.Errorf("%w: password longer than %d bytes", ErrInvalidCredentialBlock, passwordFieldSize)
			}
			buf := make([]byte, passwordFieldSize+4)
			copy(buf, cred.Password)
			binary.LittleEndian.PutUint32(buf[passwordFieldSize:], cred.Version)
			return buf, nil
		},
	},
	RoleBuddy: {
		size: 4 + constants.DigestSize,
		decode: func(r []byte, cred *Credentials) error {
			cred.Version = binary.LittleEndian.Uint32(r)
			cred.PasswordHash = bytes.Clone(r[4 : 4+constants.DigestSize])
			return nil
		},
		encode: func(cred Credentials) ([]byte, error) {
			if len(cred.PasswordHash) != constants.DigestSize {
				return nil, fmt.Errorf("%w: password digest is %d bytes", ErrInvalidCredentialBlock, len(cred.PasswordHash))
			}
			buf := make([]byte, 4+constants.DigestSize)
			binary.LittleEndian.PutUint32(buf, cred.Version)
			copy(buf[4:], cred.PasswordHash)
			return buf, nil
		},
	},
	RoleChannel: {
		size: nicknameFieldSize + prideTagFieldSize + 4 + 2 + 2 + 4,
		decode: func(r []byte, cred *Credentials) error {
			cred.Nickname = cString(r[:nicknameFieldSize])
			if cred.Nickname == "" {
				return fmt.Errorf("%w: empty nickname", ErrInvalidCredentialBlock)
			}
			off := nicknameFieldSize
			cred.PrideTag = cString(r[off : off+prideTagFieldSize])
			off += prideTagFieldSize
			cred.IP = net.IPv4(r[off], r[off+1], r[off+2], r[off+3]).To4()
			off += 4
			cred.Port = binary.LittleEndian.Uint16(r[off:])
			off += 4
			cred.Version = binary.LittleEndian.Uint32(r[off:])
			return nil
		},
		encode: func(cred Credentials) ([]byte, error) {
			if len(cred.Nickname) > nicknameFieldSize || len(cred.PrideTag) > prideTagFieldSize {
				return nil, fmt.Errorf("%w: nickname or pride tag too long", ErrInvalidCredentialBlock)
			}
			buf := make([]byte, nicknameFieldSize+prideTagFieldSize+12)
			copy(buf, cred.Nickname)
			off := nicknameFieldSize
			copy(buf[off:], cred.PrideTag)
			off += prideTagFieldSize
			if ip4 := cred.IP.To4(); ip4 != nil {
				copy(buf[off:], ip4)
			}
			off += 4
			binary.LittleEndian.PutUint16(buf[off:], cred.Port)
			off += 4
			binary.LittleEndian.PutUint32(buf[off:], cred.Version)
			return buf, nil
		},
	},
	RoleBroker: {
		size: 4,
		decode: func(r []byte, cred *Credentials) error {
			cred.Version = binary.LittleEndian.Uint32(r)
			return nil
		},
		encode: func(cred Credentials) ([]byte, error) {
			return binary.LittleEndian.AppendUint32(nil, cred.Version), nil
		},
	},
}

// cString returns field up to the first NUL byte.
func cString(field []byte) string {
	if n := bytes.IndexByte(field, 0); n >= 0 {
		field = field[:n]
	}
	return string(field)
}
