package canonicalize

import (
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/meshward/policyguard/pkg/policyerr"
)

// Strict canonicalizes raw JSON using RFC 8785 (JCS) via gowebpki/jcs,
// which re-normalizes numbers to the ECMAScript Number rendering rather
// than preserving the parser's original digits. This answers the §9 Open
// Question on number canonicalization: operators who need strict,
// cross-platform content-addressing guarantees (the same document hashing
// identically whether it was produced by a Go, Rust, or JS parser) should
// use Strict instead of Canonicalize. The two MUST NOT be mixed within one
// deployment — a document hashed with one and verified with the other
// will not match whenever it contains a float with more than one valid
// textual rendering.
func Strict(raw []byte) ([]byte, error) {
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: jcs transform: %v", policyerr.ErrCanonicalization, err)
	}
	return out, nil
}
