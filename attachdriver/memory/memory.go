// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memory implements a non-persistent, in-memory
// earthstar.AttachmentDriver, the way upspin.io/store/inprocess implements
// a non-persistent blob store behind a single mutex-guarded map.
package memory

import (
	"bytes"
	"context"
	"io"
	"sync"

	"earthstar.dev/crypto"
	"earthstar.dev/earthstar"
	"earthstar.dev/errors"
)

// Driver is an AttachmentDriver backed entirely by an in-process map. All
// data is lost when the process exits.
type Driver struct {
	mu   sync.Mutex
	blob map[earthstar.AttachmentKey][]byte
}

var _ earthstar.AttachmentDriver = (*Driver)(nil)

// New returns an empty Driver.
func New() *Driver {
	return &Driver{blob: make(map[earthstar.AttachmentKey][]byte)}
}

type stage struct {
	d     *Driver
	key   earthstar.AttachmentKey
	bytes []byte
}

func (s *stage) Commit() error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()
	s.d.blob[s.key] = s.bytes
	return nil
}

func (s *stage) Reject() error {
	return nil
}

// Stage reads source to completion, verifies its hash against
// expectedHash, and returns a stage that commits the bytes in memory.
func (d *Driver) Stage(ctx context.Context, format earthstar.FormatTag, expectedHash string, source earthstar.AttachmentSource) (earthstar.AttachmentStage, error) {
	const op = "attachdriver/memory.Stage"
	if err := ctx.Err(); err != nil {
		return nil, errors.E(op, errors.Transient, err)
	}
	hasher := crypto.Default().UpdatableHash()
	var buf bytes.Buffer
	if _, err := io.Copy(io.MultiWriter(&buf, hasher), source); err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	if got := hasher.SumString(); got != expectedHash {
		return nil, errors.E(op, errors.Invalid, errors.Str("attachment hash mismatch"))
	}
	return &stage{
		d:     d,
		key:   earthstar.AttachmentKey{Format: format, Hash: expectedHash},
		bytes: append([]byte(nil), buf.Bytes()...),
	}, nil
}

func (d *Driver) GetAttachment(format earthstar.FormatTag, hash string) (earthstar.AttachmentSource, error) {
	const op = "attachdriver/memory.GetAttachment"
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.blob[earthstar.AttachmentKey{Format: format, Hash: hash}]
	if !ok {
		return nil, errors.E(op, errors.NotExist, errors.Str("no such attachment"))
	}
	return bytes.NewReader(b), nil
}

func (d *Driver) EraseAttachment(format earthstar.FormatTag, hash string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := earthstar.AttachmentKey{Format: format, Hash: hash}
	if _, ok := d.blob[key]; !ok {
		return false, nil
	}
	delete(d.blob, key)
	return true, nil
}

func (d *Driver) Filter(allowList []earthstar.AttachmentKey) ([]earthstar.AttachmentKey, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	allowed := make(map[earthstar.AttachmentKey]bool, len(allowList))
	for _, k := range allowList {
		allowed[k] = true
	}
	var erased []earthstar.AttachmentKey
	for k := range d.blob {
		if !allowed[k] {
			erased = append(erased, k)
			delete(d.blob, k)
		}
	}
	return erased, nil
}

func (d *Driver) ClearAll() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.blob = make(map[earthstar.AttachmentKey][]byte)
	return nil
}
