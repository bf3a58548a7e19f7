// Package checksum computes the content identity of a mutation.
//
// A checksum is blake2b-256 over a domain separator, a zero byte and the
// canonical JSON encoding of the mutation's entity, entity id, operation,
// base version and payload. Canonical JSON sorts object keys by UTF-16 code
// units, never escapes HTML characters, NFC-normalizes strings and accepts
// integers only, so the same logical mutation always hashes to the same
// value regardless of how the device serialized it.
package checksum
