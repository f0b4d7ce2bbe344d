// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package address parses and validates share and author addresses. It is
// pure: no I/O, no state, just predicates over strings, the way
// upspin.io/user validates e-mail-shaped user names.
package address

import (
	"strings"

	"earthstar.dev/earthstar"
	"earthstar.dev/errors"
)

// base32Alphabet is the RFC 4648 lowercase alphabet earthstar uses for
// encoding public keys and hashes, always prefixed with "b" to mark the
// string as base32.
const base32Alphabet = "abcdefghijklmnopqrstuvwxyz234567"

// pubkeyLen is the length, in base32 characters, of an encoded Ed25519
// public key (32 raw bytes -> 52 base32 characters with no padding, plus
// the leading "b" marker is carried separately here).
const pubkeyLen = 52

func okBase32Char(c byte) bool {
	return strings.IndexByte(base32Alphabet, c) >= 0
}

func okSuffix(suffix string) bool {
	if len(suffix) != 1+pubkeyLen {
		return false
	}
	if suffix[0] != 'b' {
		return false
	}
	for i := 1; i < len(suffix); i++ {
		if !okBase32Char(suffix[i]) {
			return false
		}
	}
	return true
}

// ParseShareAddress validates addr against "^\+[a-z][a-z0-9]*\.b[a-z2-7]{52}$"
// and returns the share name and the base32 public-key suffix, including
// its leading "b" marker (i.e. directly usable as an earthstar.PublicKey).
func ParseShareAddress(addr earthstar.ShareAddress) (name, pubkeySuffix string, err error) {
	const op = "address.ParseShareAddress"
	s := string(addr)
	if len(s) == 0 || s[0] != '+' {
		return "", "", errors.E(op, errors.Syntax, errors.Str("share address must start with +"))
	}
	s = s[1:]
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return "", "", errors.E(op, errors.Syntax, errors.Str("share address missing '.'"))
	}
	name, suffix := s[:dot], s[dot+1:]
	if name == "" || !isAlpha(name[0]) {
		return "", "", errors.E(op, errors.Syntax, errors.Str("share name must start with a letter"))
	}
	for i := 0; i < len(name); i++ {
		if !isLowerAlnum(name[i]) {
			return "", "", errors.E(op, errors.Syntax, errors.Str("bad character in share name"))
		}
	}
	if !okSuffix(suffix) {
		return "", "", errors.E(op, errors.Syntax, errors.Str("bad base32 public-key suffix"))
	}
	return name, suffix, nil
}

// ParseAuthorAddress validates addr against
// "^@[a-z][a-z0-9]{3}\.b[a-z2-7]{52}$" and returns the 4-letter shortname
// and the base32 public-key suffix, including its leading "b" marker (i.e.
// directly usable as an earthstar.PublicKey).
func ParseAuthorAddress(addr earthstar.AuthorAddress) (shortname, pubkeySuffix string, err error) {
	const op = "address.ParseAuthorAddress"
	s := string(addr)
	if len(s) == 0 || s[0] != '@' {
		return "", "", errors.E(op, errors.Syntax, errors.Str("author address must start with @"))
	}
	s = s[1:]
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return "", "", errors.E(op, errors.Syntax, errors.Str("author address missing '.'"))
	}
	shortname, suffix := s[:dot], s[dot+1:]
	if len(shortname) != 4 {
		return "", "", errors.E(op, errors.Syntax, errors.Str("author shortname must be exactly 4 characters"))
	}
	if !isAlpha(shortname[0]) {
		return "", "", errors.E(op, errors.Syntax, errors.Str("author shortname must start with a letter"))
	}
	for i := 1; i < len(shortname); i++ {
		if !isLowerAlnum(shortname[i]) {
			return "", "", errors.E(op, errors.Syntax, errors.Str("bad character in author shortname"))
		}
	}
	if !okSuffix(suffix) {
		return "", "", errors.E(op, errors.Syntax, errors.Str("bad base32 public-key suffix"))
	}
	return shortname, suffix, nil
}

// IsValidShareAddress reports whether addr is well-formed.
func IsValidShareAddress(addr earthstar.ShareAddress) bool {
	_, _, err := ParseShareAddress(addr)
	return err == nil
}

// IsValidAuthorAddress reports whether addr is well-formed.
func IsValidAuthorAddress(addr earthstar.AuthorAddress) bool {
	_, _, err := ParseAuthorAddress(addr)
	return err == nil
}

func isAlpha(c byte) bool {
	return c >= 'a' && c <= 'z'
}

func isLowerAlnum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
