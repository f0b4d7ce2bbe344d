// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package path validates earthstar document paths and answers the shape
// questions (ephemeral, owned) that the replica and formats depend on.
package path

import (
	"strings"

	"earthstar.dev/earthstar"
	"earthstar.dev/errors"
)

// MinLen and MaxLen bound a valid path's length in bytes, per §3.
const (
	MinLen = 2
	MaxLen = 512
)

// okPathChar is the restricted punctuation/alnum alphabet a path character
// may use, beyond the leading '/'.
func okPathChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	case r >= '0' && r <= '9':
		return true
	}
	switch r {
	case '/', '.', '-', '_', '~', '!', '@', '$', '&', '\'', '(', ')', '*', '+', ',', ':', ';', '=', '?', '%':
		return true
	}
	return false
}

// Validate checks p against every shape rule in §3 other than the
// ownership rule, which needs an author to evaluate.
func Validate(p earthstar.PathName) error {
	const op = "path.Validate"
	s := string(p)
	if len(s) < MinLen || len(s) > MaxLen {
		return errors.E(op, p, errors.Invalid, errors.Errorf("path length %d out of range [%d, %d]", len(s), MinLen, MaxLen))
	}
	if s[0] != '/' {
		return errors.E(op, p, errors.Invalid, errors.Str("path must start with '/'"))
	}
	if s[len(s)-1] == '/' {
		return errors.E(op, p, errors.Invalid, errors.Str("path must not end with '/'"))
	}
	if strings.Contains(s, "//") {
		return errors.E(op, p, errors.Invalid, errors.Str("path must not contain '//'"))
	}
	if strings.HasPrefix(s, "/@") {
		return errors.E(op, p, errors.Invalid, errors.Str("path must not start with '/@'"))
	}
	for _, r := range s {
		if !okPathChar(r) {
			return errors.E(op, p, errors.Invalid, errors.Errorf("invalid character %q in path", r))
		}
	}
	if earthstar.PathIsEphemeral(p) {
		// Nothing further to check here; the replica enforces that an
		// ephemeral path carries a DeleteAfter on the document itself.
	}
	return nil
}

// CanWrite reports whether author may write to p: either p is unowned
// (carries no "~" ownership marker at all) or it is owned by author.
func CanWrite(p earthstar.PathName, author earthstar.AuthorAddress) bool {
	if !strings.Contains(string(p), "~") {
		return true
	}
	return earthstar.PathIsOwned(p, author)
}

// IsEphemeral reports whether p's shape marks its documents as ephemeral.
func IsEphemeral(p earthstar.PathName) bool {
	return earthstar.PathIsEphemeral(p)
}

// Compare orders two paths for query output: byte-wise lexicographic on
// the path string itself (earthstar paths have no separate user-name
// field the way upspin's do, so there is no special-cased leading
// component).
func Compare(a, b earthstar.PathName) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// HasPrefix reports whether p begins with prefix, compared as a literal
// string (no glob expansion and no path-element boundary check, so
// "/wikifoo" has the prefix "/wiki").
func HasPrefix(p earthstar.PathName, prefix string) bool {
	return strings.HasPrefix(string(p), prefix)
}
