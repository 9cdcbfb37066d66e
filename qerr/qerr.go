// Package qerr holds the closed set of sentinel errors returned across the
// qiyashash packages. Every error a caller might need to branch on is a
// package-level value here, checked with errors.Is.
package qerr

import "errors"

var (
	// ErrInvalidSignature is returned when an Ed25519 signature over a
	// signed pre-key or a rotation proof does not verify.
	ErrInvalidSignature = errors.New("qerr: invalid signature")

	// ErrInvalidPublicKey is returned when a public key fails to decode,
	// fails point validation, or is a known low-order point.
	ErrInvalidPublicKey = errors.New("qerr: invalid public key")

	// ErrAuthenticationFailed is returned for any AEAD open failure. It
	// intentionally does not distinguish a bad tag from a bad key, a bad
	// nonce, or a bad associated-data binding.
	ErrAuthenticationFailed = errors.New("qerr: authentication failed")

	// ErrMessageTooLarge is returned when a plaintext exceeds MaxMessageSize.
	ErrMessageTooLarge = errors.New("qerr: message exceeds maximum size")

	// ErrChainTooLong is returned when a sending chain would advance past
	// MaxChainLength.
	ErrChainTooLong = errors.New("qerr: chain length exceeded")

	// ErrMessageGapTooLarge is returned when skipping to a message number
	// would require caching more than MaxSkip keys in one jump.
	ErrMessageGapTooLarge = errors.New("qerr: message gap exceeds maximum skip")

	// ErrRatchetCorrupted is returned when ratchet state fails an internal
	// consistency check (malformed header, missing chain key, etc).
	ErrRatchetCorrupted = errors.New("qerr: ratchet state corrupted")

	// ErrPrekeyNotFound is returned when a one-time pre-key id is not
	// present in the manager, whether because it never existed or was
	// already consumed.
	ErrPrekeyNotFound = errors.New("qerr: pre-key not found")

	// ErrInvalidChainState is returned by chainstate verification on any
	// broken link, sequence gap, or timestamp regression.
	ErrInvalidChainState = errors.New("qerr: invalid chain state")

	// ErrKeyExchangeFailed is returned when an X3DH handshake cannot be
	// completed, for example because the responder's current signed
	// pre-key no longer matches the id the initiator targeted.
	ErrKeyExchangeFailed = errors.New("qerr: key exchange failed")
)
