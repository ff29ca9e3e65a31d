package login

import (
	"encoding/binary"
	"fmt"
)

// Packet ids of the login exchange.
const (
	OpcodeLoginRequest int16 = 0x1010 // client: static block ‖ session block
	OpcodeLoginResult  int16 = 0x1012 // server: status [+ session id]
)

// LoginResult status codes. The client never learns why a login was rejected.
const (
	StatusAccepted byte = 0
	StatusRejected byte = 1
)

// LoginResult is the server reply to a LoginRequest.
type LoginResult struct {
	Status    byte
	SessionID int32 // only with StatusAccepted
}

// Marshal returns the packet body.
func (r LoginResult) Marshal() []byte {
	if r.Status != StatusAccepted {
		return []byte{r.Status}
	}
	buf := make([]byte, 5)
	buf[0] = r.Status
	binary.LittleEndian.PutUint32(buf[1:], uint32(r.SessionID))
	return buf
}

// ParseLoginResult decodes a LoginResult body. Trailing block padding is ignored.
func ParseLoginResult(body []byte) (LoginResult, error) {
	if len(body) < 1 {
		return LoginResult{}, fmt.Errorf("login result: empty body")
	}
	r := LoginResult{Status: body[0]}
	if r.Status == StatusAccepted {
		if len(body) < 5 {
			return LoginResult{}, fmt.Errorf("login result: %d bytes, want 5", len(body))
		}
		r.SessionID = int32(binary.LittleEndian.Uint32(body[1:]))
	}
	return r, nil
}
