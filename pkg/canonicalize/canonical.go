// Package canonicalize produces deterministic byte serializations of a
// JSON value tree. Two semantically equal trees — same scalars, same set
// of object entries, same array sequences — MUST serialize identically
// regardless of platform, language, compiler version, or run.
package canonicalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/meshward/policyguard/pkg/policyerr"
)

// Canonicalize parses raw JSON bytes and serializes them in canonical
// form: no insignificant whitespace, object keys sorted lexicographically
// by raw UTF-8 byte order, numbers preserved exactly as the parser
// produced them, strings escaped per the table in spec.md §4.1.
func Canonicalize(raw []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", policyerr.ErrCanonicalization, err)
	}
	return CanonicalizeValue(v)
}

// CanonicalizeValue serializes an already-decoded value tree. The tree
// must use json.Number (not float64) for numbers if exact source
// rendering is required; plain float64/int values are also accepted and
// rendered via Go's default formatting.
func CanonicalizeValue(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// String is a convenience wrapper returning the canonical form as a string.
func String(v interface{}) (string, error) {
	b, err := CanonicalizeValue(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CanonicalizeJSON marshals an arbitrary Go value to JSON, then
// canonicalizes the result. Convenience for signing/hashing typed structs
// (PolicyDecision, Policy, Pack) without a manual marshal step at each
// call site.
func CanonicalizeJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal: %v", policyerr.ErrCanonicalization, err)
	}
	return Canonicalize(raw)
}

func writeValue(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil
	case json.Number:
		buf.WriteString(t.String())
		return nil
	case float64:
		buf.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
		return nil
	case int:
		buf.WriteString(strconv.Itoa(t))
		return nil
	case int64:
		buf.WriteString(strconv.FormatInt(t, 10))
		return nil
	case string:
		writeString(buf, t)
		return nil
	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]interface{}:
		return writeObject(buf, t)
	default:
		return fmt.Errorf("%w: unsupported value type %T", policyerr.ErrCanonicalization, v)
	}
}

func writeObject(buf *bytes.Buffer, m map[string]interface{}) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys) // lexicographic, byte-wise Unicode scalar order

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, k)
		buf.WriteByte(':')
		if err := writeValue(buf, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

// writeString normalizes line endings (CRLF and bare CR both become LF)
// then emits the escaped, quoted string per spec.md §4.1.
func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	runes := []rune(normalizeNewlines(s))
	for _, r := range runes {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if isControl(r) {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

func normalizeNewlines(s string) string {
	if !bytes.ContainsAny([]byte(s), "\r") {
		return s
	}
	var out bytes.Buffer
	out.Grow(len(s))
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\r' {
			if i+1 < len(runes) && runes[i+1] == '\n' {
				i++
			}
			out.WriteRune('\n')
			continue
		}
		out.WriteRune(r)
	}
	return out.String()
}

// isControl reports whether r is a Unicode Cc control character not
// already handled by the dedicated escapes above.
func isControl(r rune) bool {
	if r == '\n' || r == '\r' || r == '\t' {
		return false
	}
	return r < 0x20 || (r >= 0x7f && r <= 0x9f)
}

// ValidUTF8 reports whether raw is valid UTF-8, used to fail fast before
// attempting canonicalization of untrusted input.
func ValidUTF8(raw []byte) bool {
	return utf8.Valid(raw)
}
