// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package earthstar defines the core types and interfaces shared by every
// component of the system: the replica, the formats, and the document and
// attachment drivers. Concrete implementations live in subpackages; this
// package holds only the contracts between them, the way upspin.io/upspin
// holds the contracts between upspin's directory, store, and packing
// implementations.
package earthstar

import (
	"context"
	"strings"
)

// A ShareAddress names a replication group: "+name.b<base32 pubkey>".
type ShareAddress string

// An AuthorAddress names a writer: "@shortname.b<base32 pubkey>".
type AuthorAddress string

// A PathName is the routing key for a document within a share.
type PathName string

// A FormatTag names a document schema, such as "es.4" or "es.5".
type FormatTag string

// A Signature is a base32-encoded Ed25519 signature, prefixed "b".
type Signature string

// PublicKey is the base32-encoded public half of an author or share keypair,
// without its address prefix or shortname.
type PublicKey string

// Timestamp is a microsecond-resolution Unix timestamp, as carried on every
// Document. The valid range is [MinTimestamp, MaxTimestamp).
type Timestamp int64

const (
	// MinTimestamp is the smallest timestamp accepted on an incoming
	// document: 10^13 microseconds, about 116 days after the Unix epoch
	// (late April 1970) — in practice it simply rules out documents
	// that were stamped in seconds or milliseconds by mistake.
	MinTimestamp Timestamp = 10000000000000
	// MaxTimestamp is the exclusive upper bound on accepted timestamps
	// (2^53 - 2), which keeps every accepted value within the integers a
	// float64/JSON number represents exactly.
	MaxTimestamp Timestamp = (1 << 53) - 2
	// MaxClockSkew bounds how far a document's timestamp may sit beyond
	// the replica's wall clock and still be accepted.
	MaxClockSkew Timestamp = 10 * 60 * 1000 * 1000 // 10 minutes, in microseconds
)

// LocalIndex is a replica-local, strictly-increasing sequence number
// assigned to a document at ingest time. It is never reused and carries no
// meaning across replicas; it exists purely so a synchronizer can ask
// "everything after N".
type LocalIndex int64

// AttachmentDescriptor is the metadata an attachment-capable document
// carries about the opaque bytes it references.
type AttachmentDescriptor struct {
	Hash string // content hash of the attachment, in the format's own encoding
	Size int64  // size of the attachment in bytes
}

// Document is the shared core of every format's document record. Formats
// may carry additional fields (see the Format interface); the fields here
// are common to es.4, es.5, and any future format.
type Document struct {
	Format      FormatTag
	Author      AuthorAddress
	Path        PathName
	Share       ShareAddress
	Timestamp   Timestamp
	DeleteAfter *Timestamp // nil for a permanent document
	Signature   Signature

	// Text-only formats (es.4) use Content/ContentHash. Attachment-
	// capable formats (es.5) use Text for inline text and Attachment
	// for the opaque payload descriptor; Attachment is nil when the
	// document carries no attachment.
	Content     string
	ContentHash string
	Text        string
	Attachment  *AttachmentDescriptor

	// LocalIndex is assigned by the document driver at ingest time and
	// is never part of the signed content.
	LocalIndex LocalIndex

	// Extra holds fields outside the format's schema whose name begins
	// with "_"; see Format.RemoveExtraFields.
	Extra map[string]interface{}
}

// PathIsEphemeral reports whether a path's shape marks its documents as
// ephemeral. The full path grammar lives in the path package; this helper
// is trivial enough (and needed by both earthstar.Document and the path
// package) to keep here rather than invite an import cycle.
func PathIsEphemeral(p PathName) bool {
	return strings.Contains(string(p), "!")
}

// PathIsOwned reports whether a path's shape restricts writes to a single
// author: it contains a "~" immediately followed by that author's address.
func PathIsOwned(p PathName, author AuthorAddress) bool {
	return strings.Contains(string(p), "~"+string(author))
}

// Clone returns a deep-enough copy of d safe to mutate independently.
func (d *Document) Clone() *Document {
	cp := *d
	if d.DeleteAfter != nil {
		t := *d.DeleteAfter
		cp.DeleteAfter = &t
	}
	if d.Attachment != nil {
		a := *d.Attachment
		cp.Attachment = &a
	}
	if d.Extra != nil {
		cp.Extra = make(map[string]interface{}, len(d.Extra))
		for k, v := range d.Extra {
			cp.Extra[k] = v
		}
	}
	return &cp
}

// IsEphemeral reports whether the document's path marks it as ephemeral
// (contains "!"), which requires DeleteAfter to be set.
func (d *Document) IsEphemeral() bool {
	return PathIsEphemeral(d.Path)
}

// KeyPair is an Ed25519 keypair as produced by a CryptoProvider.
type KeyPair struct {
	PublicKey PublicKey
	SecretKey string // base32-encoded 32-byte Ed25519 seed, never transmitted
}

// UpdatableHash is an incremental hasher used to verify attachment bytes as
// they stream in, without buffering the whole payload.
type UpdatableHash interface {
	Write(p []byte) (n int, err error)
	SumString() string // the format's canonical encoding of the running hash
}

// CryptoProvider is the abstract contract the rest of the system consumes
// for hashing, key generation, signing, and verification. Two
// implementations are expected: a native one backed by a real Ed25519
// library, and a portable pure-Go one; callers never depend on which is
// active. A process-wide default may be swapped at runtime (see the crypto
// package's SetDefault), but any single operation must snapshot the
// reference it needs so a hot-swap can never split one ingest between
// implementations.
type CryptoProvider interface {
	Name() string
	Sha256(data []byte) [32]byte
	GenerateKeypair() (KeyPair, error)
	Sign(kp KeyPair, msg []byte) (Signature, error)
	Verify(pub PublicKey, sig Signature, msg []byte) bool
	UpdatableHash() UpdatableHash
}

// DocInput is the caller-supplied payload to Set; a Format turns it into a
// signed Document.
type DocInput struct {
	Path        PathName
	Text        string // or Content, for text-only formats
	DeleteAfter *Timestamp
	Timestamp   *Timestamp // nil to let the replica pick one

	// Attachment, if non-nil, supplies the opaque bytes Set should hash,
	// size, and ingest alongside the document in a single call. Only
	// formats whose SupportsAttachments is true accept it.
	Attachment AttachmentSource
}

// Format is a pure, stateless rule set for one document schema. Formats are
// values, not instances: a Format implementation carries no state of its
// own and is safe to share across replicas and goroutines, mirroring
// upspin.io/upspin.Packer.
type Format interface {
	// Tag returns the format's identifying string, e.g. "es.4".
	Tag() FormatTag

	// HashDocument returns the canonical hash of doc's signed fields.
	HashDocument(doc *Document, crypto CryptoProvider) (string, error)

	// GenerateDocument fills in the computed fields of a new document
	// from input and signs it.
	GenerateDocument(input DocInput, kp KeyPair, author AuthorAddress, share ShareAddress, crypto CryptoProvider) (*Document, error)

	// SignDocument returns a clone of doc with a freshly computed
	// Signature installed.
	SignDocument(kp KeyPair, doc *Document, crypto CryptoProvider) (*Document, error)

	// WipeDocument returns a new, empty-content, re-signed document for
	// the same (path, author) with a strictly later timestamp.
	WipeDocument(kp KeyPair, doc *Document, crypto CryptoProvider) (*Document, error)

	// RemoveExtraFields strips fields outside the schema, returning the
	// cleaned document and the removed fields whose name begins with
	// "_" (those are retained by the caller; all others are discarded).
	RemoveExtraFields(doc *Document) (*Document, map[string]interface{}, error)

	// CheckDocumentIsValid runs every structural, temporal, and
	// cryptographic check, cheapest first, returning the first failure.
	CheckDocumentIsValid(doc *Document, now Timestamp, crypto CryptoProvider) error

	// GetAttachmentInfo returns the attachment descriptor the document
	// declares, or (nil, nil) if it declares none. It returns
	// errors.NotSupported if the format has no attachment concept.
	GetAttachmentInfo(doc *Document) (*AttachmentDescriptor, error)

	// UpdateAttachmentFields returns a new signed document with
	// attachment metadata filled in.
	UpdateAttachmentFields(kp KeyPair, doc *Document, size int64, hash string, crypto CryptoProvider) (*Document, error)

	// SupportsAttachments reports whether this format has any notion of
	// attachments at all.
	SupportsAttachments() bool
}

// HistoryLess reports whether a sorts before b under the history
// comparator shared by replica history ordering and latest-wins
// resolution: timestamp descending, then signature descending
// lexicographically. The "lesser" element in this order is the winner.
func HistoryLess(a, b *Document) bool {
	if a.Timestamp != b.Timestamp {
		return a.Timestamp > b.Timestamp
	}
	return a.Signature > b.Signature
}

// Query describes a request against a replica's documents.
type Query struct {
	HistoryMode HistoryMode
	OrderBy     OrderBy
	// Limit bounds the number of results. Left unset (the zero value,
	// the common case for every internal replica query), it means
	// unlimited. Set explicitly to 0 via WithLimit(0), it means the
	// query cannot match anything, per CleanUpQuery.
	Limit   int
	Filter  Filter
	Formats []FormatTag // empty means all formats

	limitSet bool
}

// WithLimit returns a copy of q with Limit set to n. Unlike assigning the
// Limit field directly, this marks the limit as explicitly chosen, so
// WithLimit(0) is distinguishable from an unset Query{} and collapses the
// query to match nothing rather than "unlimited".
func (q Query) WithLimit(n int) Query {
	q.Limit = n
	q.limitSet = true
	return q
}

// HasLimit reports whether Limit was set via WithLimit.
func (q Query) HasLimit() bool { return q.limitSet }

// HistoryMode selects whether a query sees every historical version at a
// path or only the current winner.
type HistoryMode string

const (
	HistoryAll    HistoryMode = "all"
	HistoryLatest HistoryMode = "latest"
)

// OrderBy selects the sort applied to query results.
type OrderBy string

const (
	OrderPathAsc        OrderBy = "path ASC"
	OrderPathDesc       OrderBy = "path DESC"
	OrderLocalIndexAsc  OrderBy = "localIndex ASC"
	OrderLocalIndexDesc OrderBy = "localIndex DESC"
)

// CompareOp names a comparison a Filter may apply to a scalar field.
type CompareOp string

const (
	CompareEQ CompareOp = "eq"
	CompareGT CompareOp = "gt"
	CompareLT CompareOp = "lt"
)

// PathFilter restricts matches by path shape.
type PathFilter struct {
	Exact  PathName
	Prefix string
	Suffix string
	Glob   string
}

// Filter is the set of optional predicates a Query may apply.
type Filter struct {
	Path            PathFilter
	TimestampOp     CompareOp
	Timestamp       Timestamp
	ContentLengthOp CompareOp
	ContentLength   int64
	// Author restricts matches to one author. Left unset (the zero
	// value, the common case for queries with no author predicate at
	// all), every author matches. Set explicitly to "" via
	// WithAuthor(""), no author (and so no document) matches, per
	// CleanUpQuery.
	Author           AuthorAddress
	Share            ShareAddress
	hasTimestamp     bool
	hasContentLength bool
	authorSet        bool
}

// WithAuthor returns a copy of f scoped to author. WithAuthor("") marks the
// filter as impossible to satisfy, distinct from a Filter{} that never
// mentions Author at all.
func (f Filter) WithAuthor(author AuthorAddress) Filter {
	f.Author = author
	f.authorSet = true
	return f
}

// HasAuthor reports whether Author was set via WithAuthor.
func (f Filter) HasAuthor() bool { return f.authorSet }

// WithTimestamp returns a copy of f with a timestamp comparison set.
func (f Filter) WithTimestamp(op CompareOp, ts Timestamp) Filter {
	f.TimestampOp = op
	f.Timestamp = ts
	f.hasTimestamp = true
	return f
}

// HasTimestamp reports whether a timestamp comparison was set.
func (f Filter) HasTimestamp() bool { return f.hasTimestamp }

// WithContentLength returns a copy of f with a content-length comparison
// set, measured in bytes of the UTF-8 encoding.
func (f Filter) WithContentLength(op CompareOp, n int64) Filter {
	f.ContentLengthOp = op
	f.ContentLength = n
	f.hasContentLength = true
	return f
}

// HasContentLength reports whether a content-length comparison was set.
func (f Filter) HasContentLength() bool { return f.hasContentLength }

// DocumentDriver persists document records for one share. Every method is a
// suspension point; an implementation backed by a remote or disk store
// should treat each call as a potential blocking operation.
type DocumentDriver interface {
	Share() ShareAddress
	IsClosed() bool
	Close(erase bool) error

	GetConfig(key string) (string, error)
	SetConfig(key, value string) error
	DeleteConfig(key string) error
	ListConfigKeys() ([]string, error)

	GetMaxLocalIndex() (LocalIndex, error)

	QueryDocs(ctx context.Context, q Query) ([]*Document, error)

	// Upsert stores doc with a freshly assigned LocalIndex, overwriting
	// any existing row for the same (path, author).
	Upsert(ctx context.Context, doc *Document) (*Document, error)

	// EraseExpiredDocs atomically removes every document whose
	// DeleteAfter is before now, returning the removed set.
	EraseExpiredDocs(ctx context.Context, now Timestamp) ([]*Document, error)
}

// AttachmentSource supplies attachment bytes incrementally, so a driver can
// hash and store them without buffering the whole payload in memory.
type AttachmentSource interface {
	Read(p []byte) (n int, err error)
}

// AttachmentStage is the handle returned by AttachmentDriver.Stage while an
// upload is in flight but not yet visible.
type AttachmentStage interface {
	// Commit atomically moves the staged bytes into addressable storage.
	Commit() error
	// Reject discards the staged bytes and frees any resources.
	Reject() error
}

// AttachmentKey identifies one attachment blob.
type AttachmentKey struct {
	Format FormatTag
	Hash   string
}

// AttachmentDriver persists opaque attachment bytes keyed by (format, hash).
type AttachmentDriver interface {
	// Stage consumes source, hashing incrementally and comparing against
	// expectedHash; on mismatch it returns an error before any bytes
	// become visible.
	Stage(ctx context.Context, format FormatTag, expectedHash string, source AttachmentSource) (AttachmentStage, error)

	GetAttachment(format FormatTag, hash string) (AttachmentSource, error)
	EraseAttachment(format FormatTag, hash string) (bool, error)

	// Filter erases every attachment not present in allowList, returning
	// the keys that were erased. Used for GC against the document
	// driver's ground truth.
	Filter(allowList []AttachmentKey) ([]AttachmentKey, error)

	ClearAll() error
}
