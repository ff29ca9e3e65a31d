package auth

import "errors"

var (
	// ErrInvalidCredentialBlock is returned when a handshake block has the wrong size,
	// cannot be decrypted, or carries a malformed username or field.
	ErrInvalidCredentialBlock = errors.New("invalid credential block")

	// ErrInvalidMagic is returned by Restore when a block does not start with the role magic.
	ErrInvalidMagic = errors.New("invalid handshake magic")
)
