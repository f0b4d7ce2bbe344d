// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package format provides the registry binding a FormatTag to its
// earthstar.Format implementation, the way upspin.io/pack binds a Packing
// code to a Packer. Concrete formats (es.4, es.5) register themselves from
// their init functions and are otherwise stateless values.
package format

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"earthstar.dev/earthstar"
)

var (
	mu      sync.Mutex
	formats = make(map[earthstar.FormatTag]earthstar.Format)
)

// Register binds a format's tag to its implementation. It must be called
// from the init function of a Format implementation. Registering the same
// tag twice panics.
func Register(f earthstar.Format) {
	mu.Lock()
	defer mu.Unlock()
	tag := f.Tag()
	if _, present := formats[tag]; present {
		panic(fmt.Sprintf("format: Register(%q) already registered", tag))
	}
	formats[tag] = f
}

// Lookup returns the Format registered under tag, or nil.
func Lookup(tag earthstar.FormatTag) earthstar.Format {
	mu.Lock()
	defer mu.Unlock()
	return formats[tag]
}

// field is one signed field's canonical name and serialized value.
type field struct {
	name  string
	value string
}

// CanonicalSerialize sorts fields by name and renders them as
// "<name>\t<value>\n", the wire form §6 specifies for hashing. Fields with
// an empty value are treated as absent and omitted, matching "null-valued
// optional fields are omitted".
func CanonicalSerialize(fields map[string]string) []byte {
	names := make([]string, 0, len(fields))
	for name, value := range fields {
		if value == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		b.WriteByte('\t')
		b.WriteString(fields[name])
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// FormatTimestamp renders a Timestamp as the decimal string used in the
// canonical serialization.
func FormatTimestamp(t earthstar.Timestamp) string {
	return strconv.FormatInt(int64(t), 10)
}

// FormatOptionalTimestamp renders *t, or "" (meaning "omit") if t is nil.
func FormatOptionalTimestamp(t *earthstar.Timestamp) string {
	if t == nil {
		return ""
	}
	return FormatTimestamp(*t)
}

// FormatInt64 renders an int64 as the decimal string used in the canonical
// serialization.
func FormatInt64(n int64) string {
	return strconv.FormatInt(n, 10)
}
