// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package es5 implements earthstar's attachment-capable document format:
// a short inline "text" component travels with the document itself, while
// large opaque payloads are referenced by a content hash and size and
// stored separately by the attachment driver.
package es5

import (
	"earthstar.dev/address"
	"earthstar.dev/base32"
	"earthstar.dev/earthstar"
	"earthstar.dev/errors"
	"earthstar.dev/format"
	"earthstar.dev/path"
)

// Tag is this format's identifying string.
const Tag earthstar.FormatTag = "es.5"

func init() {
	format.Register(Format{})
}

// Format is the stateless es.5 rule set.
type Format struct{}

var _ earthstar.Format = Format{}

func (Format) Tag() earthstar.FormatTag { return Tag }

func (Format) SupportsAttachments() bool { return true }

func fields(doc *earthstar.Document) map[string]string {
	f := map[string]string{
		"author":      string(doc.Author),
		"deleteAfter": format.FormatOptionalTimestamp(doc.DeleteAfter),
		"format":      string(doc.Format),
		"path":        string(doc.Path),
		"share":       string(doc.Share),
		"text":        doc.Text,
		"timestamp":   format.FormatTimestamp(doc.Timestamp),
	}
	if doc.Attachment != nil {
		f["attachmentHash"] = doc.Attachment.Hash
		f["attachmentSize"] = format.FormatInt64(doc.Attachment.Size)
	}
	return f
}

func (Format) HashDocument(doc *earthstar.Document, crypto earthstar.CryptoProvider) (string, error) {
	sum := crypto.Sha256(format.CanonicalSerialize(fields(doc)))
	return base32.Encode(sum[:]), nil
}

func (f Format) GenerateDocument(input earthstar.DocInput, kp earthstar.KeyPair, author earthstar.AuthorAddress, share earthstar.ShareAddress, crypto earthstar.CryptoProvider) (*earthstar.Document, error) {
	const op = "es5.GenerateDocument"
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
		Text:        input.Text,
	}
	signed, err := f.SignDocument(kp, doc, crypto)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return signed, nil
}

func (f Format) SignDocument(kp earthstar.KeyPair, doc *earthstar.Document, crypto earthstar.CryptoProvider) (*earthstar.Document, error) {
	const op = "es5.SignDocument"
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
	const op = "es5.WipeDocument"
	wiped := doc.Clone()
	wiped.Text = ""
	wiped.Attachment = nil
	wiped.Timestamp = doc.Timestamp + 1
	if wiped.Timestamp >= earthstar.MaxTimestamp {
		return nil, errors.E(op, doc.Path, errors.Invalid, errors.Str("wipe would push timestamp past the maximum accepted value"))
	}
	return f.SignDocument(kp, wiped, crypto)
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
	const op = "es5.CheckDocumentIsValid"

	// 1. Basic structural/schema check.
	if doc.Format != Tag {
		return errors.E(op, doc.Path, errors.Invalid, errors.Str("wrong format tag for es.5"))
	}
	if doc.Author == "" || doc.Path == "" || doc.Share == "" || doc.Signature == "" {
		return errors.E(op, doc.Path, errors.Invalid, errors.Str("missing required field"))
	}
	if doc.Attachment != nil && (doc.Attachment.Hash == "" || doc.Attachment.Size < 0) {
		return errors.E(op, doc.Path, errors.Invalid, errors.Str("malformed attachment descriptor"))
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

	// 6. Signature verification.
	hash, err := f.HashDocument(doc, crypto)
	if err != nil {
		return errors.E(op, err)
	}
	_, pubSuffix, err := address.ParseAuthorAddress(doc.Author)
	if err != nil {
		return errors.E(op, err)
	}
	if !crypto.Verify(earthstar.PublicKey(pubSuffix), doc.Signature, []byte(hash)) {
		return errors.E(op, doc.Path, errors.Invalid, errors.Str("signature verification failed"))
	}

	// 7. contentHash verification: es.5 has no inline content, so this
	// step verifies nothing extra, consistent with the step order the
	// spec prescribes applying uniformly across formats.
	return nil
}

func (Format) GetAttachmentInfo(doc *earthstar.Document) (*earthstar.AttachmentDescriptor, error) {
	if doc.Attachment == nil {
		return nil, nil
	}
	cp := *doc.Attachment
	return &cp, nil
}

func (f Format) UpdateAttachmentFields(kp earthstar.KeyPair, doc *earthstar.Document, size int64, hash string, crypto earthstar.CryptoProvider) (*earthstar.Document, error) {
	const op = "es5.UpdateAttachmentFields"
	cp := doc.Clone()
	cp.Attachment = &earthstar.AttachmentDescriptor{Hash: hash, Size: size}
	signed, err := f.SignDocument(kp, cp, crypto)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return signed, nil
}
