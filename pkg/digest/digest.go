// Package digest computes the burst-mode end-to-end integrity check
// (spec.md §3, §4.7). The canonical form is CBOR over the ordered chunk
// list followed by MD5, resolving the open question in spec.md §9 in
// favour of the "digest a well-defined serialization" redesign rather
// than the original's language-specific repr().
package digest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Compute returns the lowercase-hex MD5 digest of the CBOR encoding of
// chunks, the exact bytes both ends transmit as the integrity digest
// frame.
func Compute(chunks [][]byte) (string, error) {
	encoded, err := cbor.Marshal(chunks)
	if err != nil {
		return "", fmt.Errorf("digest: encode chunk list: %w", err)
	}
	sum := md5.Sum(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// Verify reports whether chunks hashes to want.
func Verify(chunks [][]byte, want string) bool {
	got, err := Compute(chunks)
	if err != nil {
		return false
	}
	return got == want
}
