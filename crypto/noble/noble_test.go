// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package noble

import "testing"

func TestSignAndVerify(t *testing.T) {
	p := Provider{}
	kp, err := p.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	msg := []byte("hello, earthstar")
	sig, err := p.Sign(kp, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !p.Verify(kp.PublicKey, sig, msg) {
		t.Error("Verify of a freshly signed message returned false")
	}
	if p.Verify(kp.PublicKey, sig, []byte("tampered")) {
		t.Error("Verify of a tampered message returned true")
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	p := Provider{}
	if p.Verify("not-base32-at-all!!", "also-not-base32", []byte("x")) {
		t.Error("Verify of malformed pub/sig returned true")
	}
}

func TestUpdatableHash(t *testing.T) {
	p := Provider{}
	h := p.UpdatableHash()
	h.Write([]byte("hello, "))
	h.Write([]byte("earthstar"))
	sum := h.SumString()
	if len(sum) == 0 || sum[0] != 'b' {
		t.Errorf("SumString() = %q, want leading 'b'", sum)
	}
}

func TestAgreesWithSodiumSignatureFormat(t *testing.T) {
	p := Provider{}
	kp, err := p.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	if len(kp.PublicKey) == 0 || kp.PublicKey[0] != 'b' {
		t.Errorf("PublicKey = %q, want leading 'b' marker", kp.PublicKey)
	}
}
