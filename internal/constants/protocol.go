package constants

// Wire constants of the game protocol.
//
// Every game packet is an 8-byte obfuscated header followed by blocks*16 bytes of
// AES-ECB encrypted payload:
//   [random 1][id 2 LE][sequence 2 LE][blocks 2 LE][checksum 1]
//   [payload blocks*16]

// Header Constants
const (
	// HeaderSize is the size of the obfuscated packet header in bytes
	HeaderSize = 8

	// HeaderRandomOffset is the offset of the per-packet filler byte
	HeaderRandomOffset = 0

	// HeaderIDOffset is the offset of the packet id (int16 LE)
	HeaderIDOffset = 1

	// HeaderSequenceOffset is the offset of the sequence counter (int16 LE)
	HeaderSequenceOffset = 3

	// HeaderBlocksOffset is the offset of the payload block count (int16 LE)
	HeaderBlocksOffset = 5

	// HeaderChecksumOffset is the offset of the checksum byte (sum of bytes 0-6 mod 256)
	HeaderChecksumOffset = 7
)

// Cipher Constants
const (
	// HeaderCipherBlockSize is the Blowfish block size used for header obfuscation
	HeaderCipherBlockSize = 8

	// PayloadBlockSize is the AES block size; payload length is always blocks*PayloadBlockSize
	PayloadBlockSize = 16

	// PacketKeySize is the size of the per-packet derived AES-128 key
	PacketKeySize = 16

	// DigestSize is the output size of the SHA-1 compatible digest
	DigestSize = 20
)

// Handshake Constants
const (
	// HandshakeKeySize is the size of both the static and the derived handshake keys (AES-128)
	HandshakeKeySize = 16

	// HandshakeTagSize is the size of the magic tag that prefixes every 16-byte handshake block
	HandshakeTagSize = 4

	// HandshakeUsefulSize is the amount of useful data carried by one handshake block
	HandshakeUsefulSize = PayloadBlockSize - HandshakeTagSize

	// UsernameMaxLength is the longest username accepted from a static block
	UsernameMaxLength = 16
)

// Buffer Constants
const (
	// DefaultReadBufSize is the chunk size of one socket read
	DefaultReadBufSize = 4096

	// DefaultMaxBlocks bounds the payload of a single packet (64 KiB)
	DefaultMaxBlocks = 4096
)
