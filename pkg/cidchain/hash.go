// Package cidchain implements content addressing and hash chaining over
// canonical byte forms: SHA-256 digests, prefixed content IDs, and
// hash-chained links for an append-only log. These primitives support the
// surrounding platform's log (see the teacher's pkg/ledger); the evaluator
// itself never calls them on its hot path.
package cidchain

import (
	"crypto/sha256"
	"encoding/hex"
)

// GenesisHash anchors a new chain.
const GenesisHash = "h:genesis"

// Sha256Hex returns the lowercase hex SHA-256 digest of data.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Sha256Str returns Sha256Hex of s's UTF-8 encoding.
func Sha256Str(s string) string {
	return Sha256Hex([]byte(s))
}

// CID returns the content identifier of data: "c:" followed by its
// SHA-256 hex digest.
func CID(data []byte) string {
	return "c:" + Sha256Str(string(data))
}

// BodyHash returns the body hash of body: "b:" followed by its SHA-256
// hex digest.
func BodyHash(body []byte) string {
	return "b:" + Sha256Str(string(body))
}

// HeadHash forms a chain-link hash binding prevHash to cid: "h:" followed
// by the SHA-256 hex digest of prevHash + ":" + cid.
func HeadHash(prevHash, cid string) string {
	return "h:" + Sha256Str(prevHash+":"+cid)
}

// VerifyChainLink recomputes the head hash from prevHash and cid and
// compares it byte-for-byte to expected.
func VerifyChainLink(prevHash, cid, expected string) bool {
	return HeadHash(prevHash, cid) == expected
}
