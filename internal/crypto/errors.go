package crypto

import "errors"

var (
	// ErrChecksumMismatch is returned when a decrypted header fails checksum validation.
	// Either the bytes were corrupted or they were not produced with the same header tables.
	ErrChecksumMismatch = errors.New("header checksum mismatch")

	// ErrPayloadCipher is returned when a payload cannot be encrypted or decrypted
	// (length not a multiple of the block size, bad key size).
	ErrPayloadCipher = errors.New("payload cipher failure")
)
