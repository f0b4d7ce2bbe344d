// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package es4

import (
	"testing"

	"earthstar.dev/crypto/sodium"
	"earthstar.dev/earthstar"
)

const (
	share  = earthstar.ShareAddress("+test.b" + pubkeyFiller)
	author = earthstar.AuthorAddress("@suzy.b" + pubkeyFiller)

	pubkeyFiller = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
)

func TestGenerateAndValidate(t *testing.T) {
	crypto := sodium.Provider{}
	kp, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	realAuthor := earthstar.AuthorAddress("@suzy." + string(kp.PublicKey))

	f := Format{}
	now := earthstar.Timestamp(20000000000000)
	input := earthstar.DocInput{
		Path:      "/wiki/Tomatoes",
		Text:      "Tomatoes are a fruit.",
		Timestamp: &now,
	}
	doc, err := f.GenerateDocument(input, kp, realAuthor, share, crypto)
	if err != nil {
		t.Fatalf("GenerateDocument: %v", err)
	}
	if doc.Format != Tag {
		t.Errorf("doc.Format = %q, want %q", doc.Format, Tag)
	}
	if err := f.CheckDocumentIsValid(doc, now, crypto); err != nil {
		t.Errorf("CheckDocumentIsValid: %v", err)
	}
}

func TestCheckDocumentIsValidRejectsTamperedSignature(t *testing.T) {
	crypto := sodium.Provider{}
	kp, _ := crypto.GenerateKeypair()
	realAuthor := earthstar.AuthorAddress("@suzy." + string(kp.PublicKey))
	f := Format{}
	now := earthstar.Timestamp(20000000000000)
	doc, err := f.GenerateDocument(earthstar.DocInput{Path: "/wiki/Tomatoes", Text: "hi", Timestamp: &now}, kp, realAuthor, share, crypto)
	if err != nil {
		t.Fatalf("GenerateDocument: %v", err)
	}
	doc.Content = "tampered"
	if err := f.CheckDocumentIsValid(doc, now, crypto); err == nil {
		t.Error("CheckDocumentIsValid accepted a document with tampered content")
	}
}

func TestWipeDocumentBumpsTimestamp(t *testing.T) {
	crypto := sodium.Provider{}
	kp, _ := crypto.GenerateKeypair()
	realAuthor := earthstar.AuthorAddress("@suzy." + string(kp.PublicKey))
	f := Format{}
	now := earthstar.Timestamp(20000000000000)
	doc, err := f.GenerateDocument(earthstar.DocInput{Path: "/wiki/Tomatoes", Text: "hi", Timestamp: &now}, kp, realAuthor, share, crypto)
	if err != nil {
		t.Fatalf("GenerateDocument: %v", err)
	}
	wiped, err := f.WipeDocument(kp, doc, crypto)
	if err != nil {
		t.Fatalf("WipeDocument: %v", err)
	}
	if wiped.Content != "" || wiped.Timestamp <= doc.Timestamp {
		t.Errorf("wiped document = %+v, want empty content and later timestamp", wiped)
	}
	if err := f.CheckDocumentIsValid(wiped, wiped.Timestamp, crypto); err != nil {
		t.Errorf("CheckDocumentIsValid(wiped): %v", err)
	}
}

func TestGetAttachmentInfoNotSupported(t *testing.T) {
	f := Format{}
	doc := &earthstar.Document{Format: Tag}
	if _, err := f.GetAttachmentInfo(doc); err == nil {
		t.Error("GetAttachmentInfo on es.4 succeeded, want NotSupported error")
	}
}
