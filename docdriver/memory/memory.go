// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memory implements a non-persistent, in-memory earthstar.
// DocumentDriver, the way upspin.io/store/inprocess implements a
// non-persistent store behind a single mutex-guarded map.
package memory

import (
	"context"
	"sort"
	"sync"

	"earthstar.dev/earthstar"
	"earthstar.dev/errors"
	"earthstar.dev/query"
)

type key struct {
	path   earthstar.PathName
	author earthstar.AuthorAddress
}

// Driver is a DocumentDriver backed entirely by in-process maps. All data
// is lost when the process exits.
type Driver struct {
	share earthstar.ShareAddress

	mu      sync.RWMutex
	closed  bool
	docs    map[key]*earthstar.Document
	nextIdx earthstar.LocalIndex
	config  map[string]string
}

var _ earthstar.DocumentDriver = (*Driver)(nil)

// New returns a Driver for share with no documents and no config.
func New(share earthstar.ShareAddress) *Driver {
	return &Driver{
		share:  share,
		docs:   make(map[key]*earthstar.Document),
		config: make(map[string]string),
	}
}

func (d *Driver) Share() earthstar.ShareAddress { return d.share }

func (d *Driver) IsClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}

// Close marks the driver closed. If erase is true, every document and
// config entry is discarded first.
func (d *Driver) Close(erase bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.E("docdriver/memory.Close", errors.Closed, errors.Str("already closed"))
	}
	if erase {
		d.docs = make(map[key]*earthstar.Document)
		d.config = make(map[string]string)
	}
	d.closed = true
	return nil
}

func (d *Driver) checkOpen(op string) error {
	if d.closed {
		return errors.E(op, errors.Closed, errors.Str("document driver is closed"))
	}
	return nil
}

func (d *Driver) GetConfig(key string) (string, error) {
	const op = "docdriver/memory.GetConfig"
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(op); err != nil {
		return "", err
	}
	v, ok := d.config[key]
	if !ok {
		return "", errors.E(op, errors.NotExist, errors.Str("no such config key"))
	}
	return v, nil
}

func (d *Driver) SetConfig(k, v string) error {
	const op = "docdriver/memory.SetConfig"
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(op); err != nil {
		return err
	}
	d.config[k] = v
	return nil
}

func (d *Driver) DeleteConfig(k string) error {
	const op = "docdriver/memory.DeleteConfig"
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(op); err != nil {
		return err
	}
	delete(d.config, k)
	return nil
}

func (d *Driver) ListConfigKeys() ([]string, error) {
	const op = "docdriver/memory.ListConfigKeys"
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(op); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(d.config))
	for k := range d.config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (d *Driver) GetMaxLocalIndex() (earthstar.LocalIndex, error) {
	const op = "docdriver/memory.GetMaxLocalIndex"
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(op); err != nil {
		return 0, err
	}
	if d.nextIdx == 0 {
		return -1, nil
	}
	return d.nextIdx - 1, nil
}

func (d *Driver) QueryDocs(ctx context.Context, q earthstar.Query) ([]*earthstar.Document, error) {
	const op = "docdriver/memory.QueryDocs"
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := d.checkOpen(op); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.E(op, errors.Transient, err)
	}
	candidates := make([]*earthstar.Document, 0, len(d.docs))
	for _, doc := range d.docs {
		candidates = append(candidates, doc)
	}
	return query.Run(candidates, q), nil
}

func (d *Driver) Upsert(ctx context.Context, doc *earthstar.Document) (*earthstar.Document, error) {
	const op = "docdriver/memory.Upsert"
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(op); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.E(op, errors.Transient, err)
	}
	cp := doc.Clone()
	cp.LocalIndex = d.nextIdx
	d.nextIdx++
	d.docs[key{cp.Path, cp.Author}] = cp
	return cp, nil
}

func (d *Driver) EraseExpiredDocs(ctx context.Context, now earthstar.Timestamp) ([]*earthstar.Document, error) {
	const op = "docdriver/memory.EraseExpiredDocs"
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkOpen(op); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.E(op, errors.Transient, err)
	}
	var removed []*earthstar.Document
	for k, doc := range d.docs {
		if doc.DeleteAfter != nil && *doc.DeleteAfter < now {
			removed = append(removed, doc)
			delete(d.docs, k)
		}
	}
	return removed, nil
}
