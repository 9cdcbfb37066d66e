// Package core ties together the qiyashash cryptographic primitives:
// identity management, pre-key publication, X3DH session establishment,
// the Double Ratchet, and hash-chain integrity tracking.
//
// Overview
//
// A conversation between two parties moves through four layers:
//
//	1. identity   - long-term Ed25519/X25519 identity key pairs
//	2. prekey     - signed and one-time pre-keys published for asynchronous setup
//	3. x3dh       - one-shot key agreement producing a shared secret and session AD
//	4. ratchet    - the Double Ratchet session built from that shared secret
//
// A chainstate.State runs alongside a ratchet.Session to provide tamper-evident
// ordering over the messages, deletions, and rotations that flow through it.
//
// None of these packages touch the network or a database. Callers provide
// storage by implementing the Store interfaces in prekey and ratchet; the
// wire package defines the binary encoding used to move sessions and
// messages between processes.
package core
