// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package es4 implements earthstar's original text-only document format:
// content travels inline with the document, addressed by its own
// contentHash for integrity but not separately stored. Attachments are not
// supported; use format/es5 for that.
package es4

import (
	"earthstar.dev/address"
	"earthstar.dev/base32"
	"earthstar.dev/earthstar"
	"earthstar.dev/errors"
	"earthstar.dev/format"
	"earthstar.dev/path"
)

// Tag is this format's identifying string.
const Tag earthstar.FormatTag = "es.4"

// MaxContentLength is the largest permitted content payload, measured in
// bytes of the UTF-8 encoding. Larger payloads must travel as es.5
// attachments.
const MaxContentLength = 4_000_000

func init() {
	format.Register(Format{})
}

// Format is the stateless es.4 rule set.
type Format struct{}

var _ earthstar.Format = Format{}

func (Format) Tag() earthstar.FormatTag { return Tag }

func (Format) SupportsAttachments() bool { return false }

func fields(doc *earthstar.Document) map[string]string {
	return map[string]string{
		"author":      string(doc.Author),
		"contentHash": doc.ContentHash,
		"deleteAfter": format.FormatOptionalTimestamp(doc.DeleteAfter),
		"format":      string(doc.Format),
		"path":        string(doc.Path),
		"share":       string(doc.Share),
		"timestamp":   format.FormatTimestamp(doc.Timestamp),
	}
}

func (Format) HashDocument(doc *earthstar.Document, crypto earthstar.CryptoProvider) (string, error) {
	sum := crypto.Sha256(format.CanonicalSerialize(fields(doc)))
	return base32.Encode(sum[:]), nil
}

func contentHash(crypto earthstar.CryptoProvider, content string) string {
	sum := crypto.Sha256([]byte(content))
	return base32.Encode(sum[:])
}

func (f Format) GenerateDocument(input earthstar.DocInput, kp earthstar.KeyPair, author earthstar.AuthorAddress, share earthstar.ShareAddress, crypto earthstar.CryptoProvider) (*earthstar.Document, error) {
	const op = "es4.GenerateDocument"
	ts := earthstar.Timestamp(0)
	if input.Timestamp != nil {
		ts = *input.Timestamp
	}
	doc := &earthstar.Document{
		Format:      Tag,
		Author:      author,
		Path:        input.Path,
		Share:       share,
		Timestamp:   ts,
		DeleteAfter: input.DeleteAfter,
		Content:     input.Text,
		ContentHash: contentHash(crypto, input.Text),
	}
	signed, err := f.SignDocument(kp, doc, crypto)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return signed, nil
}

func (f Format) SignDocument(kp earthstar.KeyPair, doc *earthstar.Document, crypto earthstar.CryptoProvider) (*earthstar.Document, error) {
	const op = "es4.SignDocument"
	cp := doc.Clone()
	hash, err := f.HashDocument(cp, crypto)
	if err != nil {
		return nil, errors.E(op, err)
	}
	sig, err := crypto.Sign(kp, []byte(hash))
	if err != nil {
		return nil, errors.E(op, err)
	}
	cp.Signature = sig
	return cp, nil
}

func (f Format) WipeDocument(kp earthstar.KeyPair, doc *earthstar.Document, crypto earthstar.CryptoProvider) (*earthstar.Document, error) {
	const op = "es4.WipeDocument"
	wiped := doc.Clone()
	wiped.Content = ""
	wiped.ContentHash = contentHash(crypto, "")
	wiped.Timestamp = bumpedTimestamp(doc.Timestamp)
	if wiped.Timestamp >= earthstar.MaxTimestamp {
		return nil, errors.E(op, doc.Path, errors.Invalid, errors.Str("wipe would push timestamp past the maximum accepted value"))
	}
	return f.SignDocument(kp, wiped, crypto)
}

func bumpedTimestamp(t earthstar.Timestamp) earthstar.Timestamp {
	return t + 1
}

func (Format) RemoveExtraFields(doc *earthstar.Document) (*earthstar.Document, map[string]interface{}, error) {
	cp := doc.Clone()
	extras := cp.Extra
	cp.Extra = nil
	kept := make(map[string]interface{})
	for k, v := range extras {
		if len(k) > 0 && k[0] == '_' {
			kept[k] = v
		}
	}
	return cp, kept, nil
}

func (f Format) CheckDocumentIsValid(doc *earthstar.Document, now earthstar.Timestamp, crypto earthstar.CryptoProvider) error {
	const op = "es4.CheckDocumentIsValid"

	// 1. Basic structural/schema check: the cheapest, most common
	// rejection, so it runs first.
	if doc.Format != Tag {
		return errors.E(op, doc.Path, errors.Invalid, errors.Str("wrong format tag for es.4"))
	}
	if doc.Author == "" || doc.Path == "" || doc.Share == "" || doc.Signature == "" {
		return errors.E(op, doc.Path, errors.Invalid, errors.Str("missing required field"))
	}
	if len(doc.Content) > MaxContentLength {
		return errors.E(op, doc.Path, errors.Invalid, errors.Str("content exceeds es.4 max length; use es.5 with an attachment"))
	}

	// 2. Timestamp / ephemeral check.
	if doc.Timestamp < earthstar.MinTimestamp || doc.Timestamp >= earthstar.MaxTimestamp {
		return errors.E(op, doc.Path, errors.Invalid, errors.Str("timestamp out of range"))
	}
	if doc.Timestamp > now+earthstar.MaxClockSkew {
		return errors.E(op, doc.Path, errors.Invalid, errors.Str("timestamp too far in the future"))
	}
	if doc.IsEphemeral() && doc.DeleteAfter == nil {
		return errors.E(op, doc.Path, errors.Invalid, errors.Str("ephemeral path requires deleteAfter"))
	}
	if !doc.IsEphemeral() && doc.DeleteAfter != nil {
		return errors.E(op, doc.Path, errors.Invalid, errors.Str("non-ephemeral path must not set deleteAfter"))
	}

	// 3. Author-can-write-to-path check.
	if !path.CanWrite(doc.Path, doc.Author) {
		return errors.E(op, doc.Path, errors.Permission, errors.Str("author is not permitted to write to this path"))
	}

	// 4. Path-shape check.
	if err := path.Validate(doc.Path); err != nil {
		return errors.E(op, err)
	}

	// 5. Address validity.
	if !address.IsValidAuthorAddress(doc.Author) {
		return errors.E(op, doc.Path, errors.Invalid, errors.Str("invalid author address"))
	}
	if !address.IsValidShareAddress(doc.Share) {
		return errors.E(op, doc.Path, errors.Invalid, errors.Str("invalid share address"))
	}

	// 6. Signature verification (expensive; runs after every cheap
	// check has passed).
	hash, err := f.HashDocument(doc, crypto)
	if err != nil {
		return errors.E(op, err)
	}
	_, pubSuffix, err := address.ParseAuthorAddress(doc.Author)
	if err != nil {
		return errors.E(op, err)
	}
	pub := earthstar.PublicKey(pubSuffix)
	if !crypto.Verify(pub, doc.Signature, []byte(hash)) {
		return errors.E(op, doc.Path, errors.Invalid, errors.Str("signature verification failed"))
	}

	// 7. contentHash verification.
	if doc.ContentHash != contentHash(crypto, doc.Content) {
		return errors.E(op, doc.Path, errors.Invalid, errors.Str("contentHash does not match content"))
	}

	return nil
}

func (Format) GetAttachmentInfo(doc *earthstar.Document) (*earthstar.AttachmentDescriptor, error) {
	const op = "es4.GetAttachmentInfo"
	return nil, errors.E(op, doc.Path, errors.NotSupported, errors.Str("es.4 does not support attachments"))
}

func (Format) UpdateAttachmentFields(kp earthstar.KeyPair, doc *earthstar.Document, size int64, hash string, crypto earthstar.CryptoProvider) (*earthstar.Document, error) {
	const op = "es4.UpdateAttachmentFields"
	return nil, errors.E(op, doc.Path, errors.NotSupported, errors.Str("es.4 does not support attachments"))
}
