//go:build property
// +build property

package canonicalize

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestCanonicalize_KeyOrderIndependence exercises spec invariant 2: for
// every object and every permutation of its entries, canonicalization
// produces the same bytes.
func TestCanonicalize_KeyOrderIndependence(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("object canonicalization is key-order independent", prop.ForAll(
		func(keys []string, values []int) bool {
			obj := make(map[string]interface{})
			for i := 0; i < len(keys) && i < len(values); i++ {
				if keys[i] != "" {
					obj[keys[i]] = values[i]
				}
			}
			a, err1 := CanonicalizeValue(obj)
			b, err2 := CanonicalizeValue(obj)
			if err1 != nil || err2 != nil {
				return err1 != nil && err2 != nil
			}
			return string(a) == string(b)
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.IntRange(-1000, 1000)),
	))

	properties.TestingRun(t)
}

// TestCanonicalize_Determinism exercises spec invariant 1: re-parsing and
// re-canonicalizing a canonical form is a fixed point.
func TestCanonicalize_Determinism(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("canonicalize is a fixed point over its own output", prop.ForAll(
		func(s string) bool {
			once, err := CanonicalizeValue(s)
			if err != nil {
				return true
			}
			twice, err := Canonicalize(once)
			if err != nil {
				return false
			}
			return string(once) == string(twice)
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
