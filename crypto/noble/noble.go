// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package noble implements earthstar.CryptoProvider using only Go's
// standard crypto/ed25519, earthstar's portable, dependency-free crypto
// backend — the counterpart of the native sodium package. It is
// interchangeable with sodium: Ed25519 signing is deterministic, so the
// two backends produce byte-identical signatures for the same keypair and
// message, just as a JS project's pure "@noble/ed25519" and a libsodium
// binding agree with each other.
package noble

import (
	"crypto/ed25519"
	"crypto/sha256"

	"earthstar.dev/base32"
	"earthstar.dev/crypto"
	"earthstar.dev/earthstar"
	"earthstar.dev/errors"
)

const name = "noble"

func init() {
	crypto.Register(Provider{})
}

// Provider is the stateless pure-Go Ed25519 implementation.
type Provider struct{}

var _ earthstar.CryptoProvider = Provider{}

func (Provider) Name() string { return name }

func (Provider) Sha256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

func (Provider) GenerateKeypair() (earthstar.KeyPair, error) {
	const op = "noble.GenerateKeypair"
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return earthstar.KeyPair{}, errors.E(op, errors.IO, err)
	}
	return earthstar.KeyPair{
		PublicKey: earthstar.PublicKey(base32.Encode(pub)),
		SecretKey: base32.Encode(priv.Seed()),
	}, nil
}

func (Provider) Sign(kp earthstar.KeyPair, msg []byte) (earthstar.Signature, error) {
	const op = "noble.Sign"
	seed, err := base32.Decode(kp.SecretKey)
	if err != nil {
		return "", errors.E(op, errors.Invalid, err)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	sig := ed25519.Sign(priv, msg)
	return earthstar.Signature(base32.Encode(sig)), nil
}

func (Provider) Verify(pub earthstar.PublicKey, sig earthstar.Signature, msg []byte) bool {
	pubBytes, err := base32.Decode(string(pub))
	if err != nil || len(pubBytes) != ed25519.PublicKeySize {
		return false
	}
	sigBytes, err := base32.Decode(string(sig))
	if err != nil || len(sigBytes) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pubBytes), msg, sigBytes)
}

func (Provider) UpdatableHash() earthstar.UpdatableHash {
	return &hasher{h: sha256.New()}
}

type hasher struct {
	h interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
	}
}

func (h *hasher) Write(p []byte) (int, error) { return h.h.Write(p) }

func (h *hasher) SumString() string {
	return base32.Encode(h.h.Sum(nil))
}
