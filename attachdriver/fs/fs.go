// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fs implements a filesystem-backed earthstar.AttachmentDriver,
// the way upspin.io/store/filesystem serves blobs from a root directory on
// disk. Unlike the read-only teacher package, this driver also accepts
// writes: attachments are staged into a temporary file and only made
// visible with an atomic rename on Commit.
package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"earthstar.dev/crypto"
	"earthstar.dev/earthstar"
	"earthstar.dev/errors"
)

// Driver stores attachment blobs as regular files under Root, one file per
// (format, hash) pair.
type Driver struct {
	Root string
}

var _ earthstar.AttachmentDriver = (*Driver)(nil)

// New returns a Driver rooted at dir, which must already exist.
func New(dir string) *Driver {
	return &Driver{Root: dir}
}

func (d *Driver) blobPath(format earthstar.FormatTag, hash string) string {
	return filepath.Join(d.Root, string(format)+"_"+hash)
}

type stage struct {
	tmp  *os.File
	dest string
}

func (s *stage) Commit() error {
	const op = "attachdriver/fs.Commit"
	if err := s.tmp.Close(); err != nil {
		return errors.E(op, errors.IO, err)
	}
	if err := os.Rename(s.tmp.Name(), s.dest); err != nil {
		os.Remove(s.tmp.Name())
		return errors.E(op, errors.IO, err)
	}
	return nil
}

func (s *stage) Reject() error {
	s.tmp.Close()
	return os.Remove(s.tmp.Name())
}

// Stage writes source to a temporary file in Root, verifying its hash
// incrementally, and returns a handle that atomically renames it into
// place on Commit.
func (d *Driver) Stage(ctx context.Context, format earthstar.FormatTag, expectedHash string, source earthstar.AttachmentSource) (earthstar.AttachmentStage, error) {
	const op = "attachdriver/fs.Stage"
	if err := ctx.Err(); err != nil {
		return nil, errors.E(op, errors.Transient, err)
	}
	tmp, err := os.CreateTemp(d.Root, "stage-*")
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	hasher := crypto.Default().UpdatableHash()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), source); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, errors.E(op, errors.IO, err)
	}
	if got := hasher.SumString(); got != expectedHash {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, errors.E(op, errors.Invalid, errors.Str("attachment hash mismatch"))
	}
	return &stage{tmp: tmp, dest: d.blobPath(format, expectedHash)}, nil
}

func (d *Driver) GetAttachment(format earthstar.FormatTag, hash string) (earthstar.AttachmentSource, error) {
	const op = "attachdriver/fs.GetAttachment"
	f, err := os.Open(d.blobPath(format, hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.E(op, errors.NotExist, errors.Str("no such attachment"))
		}
		return nil, errors.E(op, errors.IO, err)
	}
	return f, nil
}

func (d *Driver) EraseAttachment(format earthstar.FormatTag, hash string) (bool, error) {
	const op = "attachdriver/fs.EraseAttachment"
	err := os.Remove(d.blobPath(format, hash))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.E(op, errors.IO, err)
	}
	return true, nil
}

func (d *Driver) Filter(allowList []earthstar.AttachmentKey) ([]earthstar.AttachmentKey, error) {
	const op = "attachdriver/fs.Filter"
	allowed := make(map[string]bool, len(allowList))
	for _, k := range allowList {
		allowed[filepath.Base(d.blobPath(k.Format, k.Hash))] = true
	}
	entries, err := os.ReadDir(d.Root)
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	var erased []earthstar.AttachmentKey
	for _, ent := range entries {
		if ent.IsDir() || allowed[ent.Name()] {
			continue
		}
		if err := os.Remove(filepath.Join(d.Root, ent.Name())); err != nil {
			continue
		}
		format, hash := splitName(ent.Name())
		erased = append(erased, earthstar.AttachmentKey{Format: format, Hash: hash})
	}
	return erased, nil
}

func (d *Driver) ClearAll() error {
	const op = "attachdriver/fs.ClearAll"
	entries, err := os.ReadDir(d.Root)
	if err != nil {
		return errors.E(op, errors.IO, err)
	}
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		os.Remove(filepath.Join(d.Root, ent.Name()))
	}
	return nil
}

func splitName(name string) (earthstar.FormatTag, string) {
	for i := 0; i < len(name); i++ {
		if name[i] == '_' {
			return earthstar.FormatTag(name[:i]), name[i+1:]
		}
	}
	return "", name
}
