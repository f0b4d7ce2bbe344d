// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package es5

import (
	"testing"

	"earthstar.dev/crypto/sodium"
	"earthstar.dev/earthstar"
)

const share = earthstar.ShareAddress("+test.b" + pubkeyFiller)
const pubkeyFiller = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

func TestAttachmentRoundTrip(t *testing.T) {
	crypto := sodium.Provider{}
	kp, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	author := earthstar.AuthorAddress("@suzy." + string(kp.PublicKey))
	f := Format{}
	now := earthstar.Timestamp(20000000000000)
	doc, err := f.GenerateDocument(earthstar.DocInput{Path: "/photos/sunset", Text: "A sunset"}, kp, author, share, crypto)
	if err != nil {
		t.Fatalf("GenerateDocument: %v", err)
	}
	doc.Timestamp = now

	h := crypto.UpdatableHash()
	h.Write([]byte("binary image bytes"))
	hash := h.SumString()

	withAttachment, err := f.UpdateAttachmentFields(kp, doc, 18, hash, crypto)
	if err != nil {
		t.Fatalf("UpdateAttachmentFields: %v", err)
	}
	withAttachment.Timestamp = now
	resigned, err := f.SignDocument(kp, withAttachment, crypto)
	if err != nil {
		t.Fatalf("SignDocument: %v", err)
	}

	info, err := f.GetAttachmentInfo(resigned)
	if err != nil {
		t.Fatalf("GetAttachmentInfo: %v", err)
	}
	if info == nil || info.Hash != hash || info.Size != 18 {
		t.Fatalf("GetAttachmentInfo = %+v, want hash %q size 18", info, hash)
	}

	if err := f.CheckDocumentIsValid(resigned, now, crypto); err != nil {
		t.Errorf("CheckDocumentIsValid: %v", err)
	}
}

func TestCheckDocumentIsValidRejectsBadAttachment(t *testing.T) {
	crypto := sodium.Provider{}
	kp, _ := crypto.GenerateKeypair()
	author := earthstar.AuthorAddress("@suzy." + string(kp.PublicKey))
	f := Format{}
	doc, _ := f.GenerateDocument(earthstar.DocInput{Path: "/photos/sunset", Text: "x"}, kp, author, share, crypto)
	doc.Attachment = &earthstar.AttachmentDescriptor{Hash: "", Size: -1}
	if err := f.CheckDocumentIsValid(doc, doc.Timestamp, crypto); err == nil {
		t.Error("CheckDocumentIsValid accepted a malformed attachment descriptor")
	}
}
