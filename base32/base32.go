// Package base32 implements earthstar's base32 string convention: RFC 4648
// lowercase, unpadded, with a leading "b" byte marking the string as
// base32-encoded (so it can sit next to plain text unambiguously, the way
// a multibase prefix does).
package base32

import (
	"encoding/base32"
	"strings"

	"earthstar.dev/errors"
)

var encoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// Encode returns the "b"-prefixed lowercase base32 encoding of data.
func Encode(data []byte) string {
	return "b" + encoding.EncodeToString(data)
}

// Decode reverses Encode. It requires the leading "b" marker.
func Decode(s string) ([]byte, error) {
	const op = "base32.Decode"
	if len(s) == 0 || s[0] != 'b' {
		return nil, errors.E(op, errors.Invalid, errors.Str("base32 string missing leading 'b'"))
	}
	data, err := encoding.DecodeString(strings.ToLower(s[1:]))
	if err != nil {
		return nil, errors.E(op, errors.Invalid, err)
	}
	return data, nil
}
