// Package events implements the structural and cryptographic validity
// checks that gate the admission pipeline's first stage.
package events

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"strconv"

	"relaycore/core/types"
)

// CanonicalHash computes the content hash an event's id must equal. The
// canonical form is the compact JSON array
// [0, pubkey, created_at, kind, tags, content], hex pubkey lower-case,
// matching the serialization rule relied on by the protocol's id
// derivation.
func CanonicalHash(e *types.Event) [32]byte {
	var buf bytes.Buffer
	buf.WriteByte('[')
	buf.WriteString("0,")
	buf.WriteByte('"')
	buf.WriteString(e.PubKeyHex())
	buf.WriteString("\",")
	buf.WriteString(strconv.FormatInt(e.CreatedAt, 10))
	buf.WriteByte(',')
	buf.WriteString(strconv.FormatUint(uint64(e.Kind), 10))
	buf.WriteByte(',')
	writeTags(&buf, e.Tags)
	buf.WriteByte(',')
	writeJSONString(&buf, e.Content)
	buf.WriteByte(']')
	return sha256.Sum256(buf.Bytes())
}

func writeTags(buf *bytes.Buffer, tags types.TagList) {
	buf.WriteByte('[')
	for i, tag := range tags {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('[')
		for j, field := range tag {
			if j > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(buf, field)
		}
		buf.WriteByte(']')
	}
	buf.WriteByte(']')
}

// writeJSONString escapes a string the way the protocol's reference
// clients do: quotes, backslashes, and control characters below 0x20 are
// escaped; everything else (including multi-byte UTF-8) is copied as-is.
func writeJSONString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
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
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
				continue
			}
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
}
