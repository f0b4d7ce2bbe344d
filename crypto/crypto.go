// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package crypto provides the registry that binds a name to a concrete
// earthstar.CryptoProvider implementation, the way upspin.io/pack binds a
// Packing code to a Packer. Implementations live in subpackages (sodium,
// noble) and register themselves from their init functions.
package crypto

import (
	"fmt"
	"sync"

	"earthstar.dev/earthstar"
	"earthstar.dev/errors"
)

var (
	mu        sync.Mutex
	providers = make(map[string]earthstar.CryptoProvider)
	current   earthstar.CryptoProvider
)

// Register binds name to provider. It must be called from the init
// function of a CryptoProvider implementation. Registering the same name
// twice panics, the same as pack.Register does for packings.
func Register(provider earthstar.CryptoProvider) {
	mu.Lock()
	defer mu.Unlock()
	name := provider.Name()
	if _, present := providers[name]; present {
		panic(fmt.Sprintf("crypto: Register(%q) already registered", name))
	}
	providers[name] = provider
	if current == nil {
		current = provider
	}
}

// Lookup returns the provider registered under name, or nil.
func Lookup(name string) earthstar.CryptoProvider {
	mu.Lock()
	defer mu.Unlock()
	return providers[name]
}

// SetDefault changes the process-wide default provider. Callers that need
// a stable provider reference for the duration of one operation must call
// Default() once at the start of that operation and keep using the
// returned value — SetDefault may be called concurrently with in-flight
// operations, and a snapshot keeps a single ingest from being split
// between two implementations mid-flight.
func SetDefault(name string) error {
	const op = "crypto.SetDefault"
	mu.Lock()
	defer mu.Unlock()
	p, ok := providers[name]
	if !ok {
		return errors.E(op, errors.Invalid, errors.Errorf("no such crypto provider %q", name))
	}
	current = p
	return nil
}

// Default returns a snapshot of the process-wide default provider.
func Default() earthstar.CryptoProvider {
	mu.Lock()
	defer mu.Unlock()
	return current
}
