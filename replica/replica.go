// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package replica implements the earthstar replica core: the single
// object that owns one share's document and attachment drivers, validates
// and ingests incoming documents, answers queries, sweeps expired
// ephemeral documents, and fans out a typed event stream to subscribers.
// It plays the role upspin.io/dir/inprocess plays for a directory tree,
// but the data model here is a flat, path-keyed store rather than a
// Merkle tree.
package replica

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"earthstar.dev/earthstar"
	"earthstar.dev/errors"
	"earthstar.dev/format"
	"earthstar.dev/log"
)

// Clock abstracts the wall clock so tests can control time deterministically.
type Clock func() earthstar.Timestamp

// SystemClock returns the current time as a microsecond Unix timestamp.
func SystemClock() earthstar.Timestamp {
	return earthstar.Timestamp(time.Now().UnixMicro())
}

// Replica coordinates one share's document and attachment drivers.
type Replica struct {
	share  earthstar.ShareAddress
	docs   earthstar.DocumentDriver
	attach earthstar.AttachmentDriver
	crypto earthstar.CryptoProvider
	clock  Clock

	events *eventManager
	sf     singleflight.Group

	mu         sync.Mutex
	closed     bool
	sweepTimer *time.Timer
	sweepStop  chan struct{}
}

// Open validates share against the document driver's persisted config
// (adopting it if the driver has none yet), arms the expiry sweep timer,
// and returns a ready Replica.
func Open(share earthstar.ShareAddress, docs earthstar.DocumentDriver, attach earthstar.AttachmentDriver, crypto earthstar.CryptoProvider, clock Clock) (*Replica, error) {
	const op = "replica.Open"
	if clock == nil {
		clock = SystemClock
	}
	persisted, err := docs.GetConfig("share")
	if err != nil {
		if !errors.Is(errors.NotExist, err) {
			return nil, errors.E(op, err)
		}
		if err := docs.SetConfig("share", string(share)); err != nil {
			return nil, errors.E(op, err)
		}
	} else if earthstar.ShareAddress(persisted) != share {
		return nil, errors.E(op, errors.Invalid, errors.Str("document driver is configured for a different share"))
	}

	r := &Replica{
		share:     share,
		docs:      docs,
		attach:    attach,
		crypto:    crypto,
		clock:     clock,
		events:    newEventManager(),
		sweepStop: make(chan struct{}),
	}

	if err := r.pruneOrphanedAttachments(context.Background()); err != nil {
		return nil, errors.E(op, err)
	}

	r.armSweep()
	log.Debug.Printf("replica: opened %s", share)
	return r, nil
}

func (r *Replica) checkOpen(op string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.E(op, errors.Closed, errors.Str("replica is closed"))
	}
	return nil
}

// Close emits willClose, closes both drivers, and emits didClose. Every
// operation after Close returns a Closed-kind error.
func (r *Replica) Close(erase bool) error {
	const op = "replica.Close"
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.E(op, errors.Closed, errors.Str("already closed"))
	}
	r.closed = true
	close(r.sweepStop)
	if r.sweepTimer != nil {
		r.sweepTimer.Stop()
	}
	r.mu.Unlock()

	r.events.Emit(Event{Kind: EventWillClose})

	var g errgroup.Group
	g.Go(func() error { return r.docs.Close(erase) })
	g.Go(func() error {
		if erase {
			return r.attach.ClearAll()
		}
		return nil
	})
	err := g.Wait()

	r.events.Emit(Event{Kind: EventDidClose})
	r.events.Close()
	if err != nil {
		log.Error.Printf("replica: close of %s failed: %v", r.share, err)
		return errors.E(op, errors.IO, err)
	}
	log.Debug.Printf("replica: closed %s (erase=%v)", r.share, erase)
	return nil
}

// GetEventStream returns a channel of future events, optionally filtered
// to a single channel tag.
func (r *Replica) GetEventStream(channel string) <-chan Event {
	return r.events.Subscribe(channel)
}

func (r *Replica) lookupFormat(tag earthstar.FormatTag) (earthstar.Format, error) {
	f := format.Lookup(tag)
	if f == nil {
		return nil, errors.E(errors.NotSupported, errors.Str("unknown format tag"))
	}
	return f, nil
}

// latestAtPath returns the current winning document at path across every
// format, or nil if none exists.
func (r *Replica) latestAtPath(ctx context.Context, path earthstar.PathName) (*earthstar.Document, error) {
	docs, err := r.docs.QueryDocs(ctx, earthstar.Query{
		HistoryMode: earthstar.HistoryLatest,
		Filter:      earthstar.Filter{Path: earthstar.PathFilter{Exact: path}},
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	return docs[0], nil
}

// Set generates a signed document for input via the named format (or
// es.4's successor default if tag is empty, chosen by the caller),
// defaulting its timestamp to max(now, latestAtPath+1) so the write wins,
// and ingests it. If input carries an Attachment, Set reads it fully to
// compute its hash and size, completes the document with that attachment
// metadata before signing, and ingests the document and the attachment
// bytes together in this one call.
func (r *Replica) Set(ctx context.Context, kp earthstar.KeyPair, author earthstar.AuthorAddress, input earthstar.DocInput, tag earthstar.FormatTag) (*earthstar.Document, error) {
	const op = "replica.Set"
	if err := r.checkOpen(op); err != nil {
		return nil, err
	}
	if tag == "" {
		tag = "es.5"
	}
	f, err := r.lookupFormat(tag)
	if err != nil {
		return nil, errors.E(op, err)
	}

	var attachmentBytes []byte
	hasAttachment := input.Attachment != nil
	if hasAttachment {
		if !f.SupportsAttachments() {
			return nil, errors.E(op, errors.NotSupported, errors.Str("format does not support attachments"))
		}
		attachmentBytes, err = io.ReadAll(input.Attachment)
		if err != nil {
			return nil, errors.E(op, errors.IO, err)
		}
	}

	now := r.clock()
	ts := now
	prev, err := r.latestAtPath(ctx, input.Path)
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	if prev != nil && prev.Timestamp >= ts {
		ts = prev.Timestamp + 1
	}
	if input.Timestamp == nil {
		input.Timestamp = &ts
	}

	doc, err := f.GenerateDocument(input, kp, author, r.share, r.crypto)
	if err != nil {
		return nil, errors.E(op, err)
	}

	if hasAttachment {
		hasher := r.crypto.UpdatableHash()
		hasher.Write(attachmentBytes)
		doc, err = f.UpdateAttachmentFields(kp, doc, int64(len(attachmentBytes)), hasher.SumString(), r.crypto)
		if err != nil {
			return nil, errors.E(op, err)
		}
	}

	result, err := r.Ingest(ctx, tag, doc, "local")
	if err != nil {
		return nil, errors.E(op, err)
	}
	if hasAttachment && result != nil {
		if _, err := r.IngestAttachment(ctx, tag, result, bytes.NewReader(attachmentBytes), "local"); err != nil {
			return nil, errors.E(op, err)
		}
	}
	return result, nil
}

// Ingest validates doc and, unless a newer-or-equal document already
// exists at (path, author), stores it and emits an ingest event.
func (r *Replica) Ingest(ctx context.Context, tag earthstar.FormatTag, doc *earthstar.Document, sourceTag string) (*earthstar.Document, error) {
	const op = "replica.Ingest"
	if err := r.checkOpen(op); err != nil {
		return nil, err
	}
	f, err := r.lookupFormat(tag)
	if err != nil {
		r.events.Emit(Event{Kind: EventIngest, Result: IngestFailure, Doc: doc, Err: err, Channel: sourceTag})
		return nil, errors.E(op, err)
	}

	now := r.clock()
	if err := f.CheckDocumentIsValid(doc, now, r.crypto); err != nil {
		log.Debug.Printf("replica: rejected invalid document at %s: %v", doc.Path, err)
		r.events.Emit(Event{Kind: EventIngest, Result: IngestFailure, Doc: doc, Err: err, Channel: sourceTag})
		return nil, errors.E(op, err)
	}

	sameAuthor, err := r.docs.QueryDocs(ctx, earthstar.Query{
		HistoryMode: earthstar.HistoryAll,
		Filter: earthstar.Filter{
			Path:   earthstar.PathFilter{Exact: doc.Path},
			Author: doc.Author,
		},
	})
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	for _, existing := range sameAuthor {
		if !earthstar.HistoryLess(doc, existing) {
			r.events.Emit(Event{Kind: EventIngest, Result: IngestNothing, Doc: doc, Reason: "obsolete_from_same_author", Channel: sourceTag})
			return nil, nil
		}
	}

	stored, err := r.docs.Upsert(ctx, doc)
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}

	latest, err := r.latestAtPath(ctx, doc.Path)
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	result := IngestSuccessNotLatest
	if latest != nil && latest.Signature == stored.Signature {
		result = IngestSuccess
	}
	r.events.Emit(Event{Kind: EventIngest, Result: result, Doc: stored, Channel: sourceTag})

	r.armSweep()
	return stored, nil
}

// IngestAttachment streams source through the attachment driver, verifying
// its hash against the hash doc's attachment descriptor declares before
// making it visible. The declared size is not compared with the number of
// bytes read. Re-ingesting bytes for an already-present (format, hash) is a
// no-op that reports false.
func (r *Replica) IngestAttachment(ctx context.Context, tag earthstar.FormatTag, doc *earthstar.Document, source earthstar.AttachmentSource, sourceTag string) (bool, error) {
	const op = "replica.IngestAttachment"
	if err := r.checkOpen(op); err != nil {
		return false, err
	}
	f, err := r.lookupFormat(tag)
	if err != nil {
		return false, errors.E(op, err)
	}
	info, err := f.GetAttachmentInfo(doc)
	if err != nil {
		return false, errors.E(op, err)
	}
	if info == nil {
		return false, errors.E(op, errors.Invalid, errors.Str("document declares no attachment"))
	}

	result, err, _ := r.sf.Do(string(tag)+"/"+info.Hash, func() (interface{}, error) {
		if existing, err := r.attach.GetAttachment(tag, info.Hash); err == nil && existing != nil {
			return false, nil
		}
		stage, err := r.attach.Stage(ctx, tag, info.Hash, source)
		if err != nil {
			return nil, errors.E(errors.Invalid, err)
		}
		if err := stage.Commit(); err != nil {
			stage.Reject()
			return nil, errors.E(errors.IO, err)
		}
		return true, nil
	})
	if err != nil {
		return false, errors.E(op, err)
	}
	committed := result.(bool)
	if committed {
		ak := earthstar.AttachmentKey{Format: tag, Hash: info.Hash}
		r.events.Emit(Event{Kind: EventAttachmentIngest, Doc: doc, AttachmentKey: &ak, Channel: sourceTag})
	}
	return committed, nil
}

// GetAttachment returns the attachment bytes doc declares, or (nil, nil)
// if the document declares none, or a NotSupported error if doc.Format has
// no attachment concept at all.
func (r *Replica) GetAttachment(doc *earthstar.Document) (earthstar.AttachmentSource, error) {
	const op = "replica.GetAttachment"
	if err := r.checkOpen(op); err != nil {
		return nil, err
	}
	f, err := r.lookupFormat(doc.Format)
	if err != nil {
		return nil, errors.E(op, err)
	}
	info, err := f.GetAttachmentInfo(doc)
	if err != nil {
		return nil, errors.E(op, err)
	}
	if info == nil {
		return nil, nil
	}
	src, err := r.attach.GetAttachment(doc.Format, info.Hash)
	if err != nil {
		if errors.Is(errors.NotExist, err) {
			return nil, nil
		}
		return nil, errors.E(op, err)
	}
	return src, nil
}

// QueryDocs runs q against the document driver.
func (r *Replica) QueryDocs(ctx context.Context, q earthstar.Query) ([]*earthstar.Document, error) {
	const op = "replica.QueryDocs"
	if err := r.checkOpen(op); err != nil {
		return nil, err
	}
	docs, err := r.docs.QueryDocs(ctx, q)
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	return r.dropExpired(docs), nil
}

func (r *Replica) dropExpired(docs []*earthstar.Document) []*earthstar.Document {
	now := r.clock()
	kept := docs[:0:0]
	for _, d := range docs {
		if d.DeleteAfter != nil && *d.DeleteAfter < now {
			continue
		}
		kept = append(kept, d)
	}
	return kept
}

func (r *Replica) GetAllDocs(ctx context.Context) ([]*earthstar.Document, error) {
	return r.QueryDocs(ctx, earthstar.Query{HistoryMode: earthstar.HistoryAll})
}

func (r *Replica) GetLatestDocs(ctx context.Context) ([]*earthstar.Document, error) {
	return r.QueryDocs(ctx, earthstar.Query{HistoryMode: earthstar.HistoryLatest})
}

func (r *Replica) GetAllDocsAtPath(ctx context.Context, path earthstar.PathName) ([]*earthstar.Document, error) {
	return r.QueryDocs(ctx, earthstar.Query{
		HistoryMode: earthstar.HistoryAll,
		Filter:      earthstar.Filter{Path: earthstar.PathFilter{Exact: path}},
	})
}

func (r *Replica) GetLatestDocAtPath(ctx context.Context, path earthstar.PathName) (*earthstar.Document, error) {
	docs, err := r.QueryDocs(ctx, earthstar.Query{
		HistoryMode: earthstar.HistoryLatest,
		Filter:      earthstar.Filter{Path: earthstar.PathFilter{Exact: path}},
	})
	if err != nil || len(docs) == 0 {
		return nil, err
	}
	return docs[0], nil
}

// QueryAuthors returns the distinct authors present among docs matching q.
func (r *Replica) QueryAuthors(ctx context.Context, q earthstar.Query) ([]earthstar.AuthorAddress, error) {
	docs, err := r.QueryDocs(ctx, q)
	if err != nil {
		return nil, err
	}
	seen := make(map[earthstar.AuthorAddress]bool)
	var authors []earthstar.AuthorAddress
	for _, d := range docs {
		if !seen[d.Author] {
			seen[d.Author] = true
			authors = append(authors, d.Author)
		}
	}
	return authors, nil
}

// QueryPaths returns the distinct paths present among docs matching q.
func (r *Replica) QueryPaths(ctx context.Context, q earthstar.Query) ([]earthstar.PathName, error) {
	docs, err := r.QueryDocs(ctx, q)
	if err != nil {
		return nil, err
	}
	seen := make(map[earthstar.PathName]bool)
	var paths []earthstar.PathName
	for _, d := range docs {
		if !seen[d.Path] {
			seen[d.Path] = true
			paths = append(paths, d.Path)
		}
	}
	return paths, nil
}

// WipeDocAtPath replaces the author's document at path with an empty,
// re-signed replacement and erases any attachment the old document
// referenced that no other document still needs.
func (r *Replica) WipeDocAtPath(ctx context.Context, kp earthstar.KeyPair, author earthstar.AuthorAddress, path earthstar.PathName) (*earthstar.Document, error) {
	const op = "replica.WipeDocAtPath"
	if err := r.checkOpen(op); err != nil {
		return nil, err
	}
	docs, err := r.docs.QueryDocs(ctx, earthstar.Query{
		HistoryMode: earthstar.HistoryAll,
		Filter:      earthstar.Filter{Path: earthstar.PathFilter{Exact: path}, Author: author},
	})
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	if len(docs) == 0 {
		return nil, errors.E(op, path, author, errors.NotExist, errors.Str("no document at this path for this author"))
	}
	existing := docs[0]
	f, err := r.lookupFormat(existing.Format)
	if err != nil {
		return nil, errors.E(op, err)
	}
	var oldInfo *earthstar.AttachmentDescriptor
	if f.SupportsAttachments() {
		oldInfo, _ = f.GetAttachmentInfo(existing)
	}
	wiped, err := f.WipeDocument(kp, existing, r.crypto)
	if err != nil {
		return nil, errors.E(op, err)
	}
	stored, err := r.Ingest(ctx, existing.Format, wiped, "local")
	if err != nil {
		return nil, errors.E(op, err)
	}
	if oldInfo != nil {
		r.pruneAttachmentIfOrphaned(ctx, existing.Format, oldInfo.Hash)
	}
	return stored, nil
}

// OverwriteAllDocsByAuthor wipes every path where kp's author currently has
// a document, returning the number of paths successfully wiped. If
// bumping any single path's timestamp would exceed MaxTimestamp, that
// path's wipe fails and its error is returned alongside the partial count;
// it is never silently skipped.
func (r *Replica) OverwriteAllDocsByAuthor(ctx context.Context, kp earthstar.KeyPair, author earthstar.AuthorAddress) (int, error) {
	const op = "replica.OverwriteAllDocsByAuthor"
	if err := r.checkOpen(op); err != nil {
		return 0, err
	}
	docs, err := r.docs.QueryDocs(ctx, earthstar.Query{
		HistoryMode: earthstar.HistoryLatest,
		Filter:      earthstar.Filter{Author: author},
	})
	if err != nil {
		return 0, errors.E(op, errors.IO, err)
	}
	count := 0
	for _, doc := range docs {
		if _, err := r.WipeDocAtPath(ctx, kp, author, doc.Path); err != nil {
			return count, errors.E(op, doc.Path, err)
		}
		count++
	}
	return count, nil
}

func (r *Replica) pruneAttachmentIfOrphaned(ctx context.Context, tag earthstar.FormatTag, hash string) {
	docs, err := r.docs.QueryDocs(ctx, earthstar.Query{HistoryMode: earthstar.HistoryAll, Formats: []earthstar.FormatTag{tag}})
	if err != nil {
		return
	}
	f, err := r.lookupFormat(tag)
	if err != nil {
		return
	}
	for _, d := range docs {
		if info, _ := f.GetAttachmentInfo(d); info != nil && info.Hash == hash {
			return
		}
	}
	if ok, _ := r.attach.EraseAttachment(tag, hash); ok {
		ak := earthstar.AttachmentKey{Format: tag, Hash: hash}
		r.events.Emit(Event{Kind: EventAttachmentPrune, AttachmentKey: &ak})
	}
}

// pruneOrphanedAttachments runs the attachment driver's Filter pass against
// the live document set, cleaning up anything staged but never committed
// to a document before a prior crash.
func (r *Replica) pruneOrphanedAttachments(ctx context.Context) error {
	docs, err := r.docs.QueryDocs(ctx, earthstar.Query{HistoryMode: earthstar.HistoryAll})
	if err != nil {
		return err
	}
	var allow []earthstar.AttachmentKey
	for _, d := range docs {
		f, err := r.lookupFormat(d.Format)
		if err != nil || !f.SupportsAttachments() {
			continue
		}
		info, err := f.GetAttachmentInfo(d)
		if err != nil || info == nil {
			continue
		}
		allow = append(allow, earthstar.AttachmentKey{Format: d.Format, Hash: info.Hash})
	}
	erased, err := r.attach.Filter(allow)
	if err != nil {
		return err
	}
	for _, k := range erased {
		k := k
		r.events.Emit(Event{Kind: EventAttachmentPrune, AttachmentKey: &k})
	}
	return nil
}

// armSweep arms (or re-arms) the background timer to fire at the earliest
// known DeleteAfter among all documents, erasing expired documents when it
// fires.
func (r *Replica) armSweep() {
	ctx := context.Background()
	docs, err := r.docs.QueryDocs(ctx, earthstar.Query{HistoryMode: earthstar.HistoryAll})
	if err != nil {
		return
	}
	var earliest *earthstar.Timestamp
	for _, d := range docs {
		if d.DeleteAfter == nil {
			continue
		}
		if earliest == nil || *d.DeleteAfter < *earliest {
			t := *d.DeleteAfter
			earliest = &t
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if r.sweepTimer != nil {
		r.sweepTimer.Stop()
	}
	if earliest == nil {
		return
	}
	now := r.clock()
	delay := time.Duration(*earliest-now) * time.Microsecond
	if delay < 0 {
		delay = 0
	}
	r.sweepTimer = time.AfterFunc(delay, r.sweep)
}

func (r *Replica) sweep() {
	select {
	case <-r.sweepStop:
		return
	default:
	}
	removed, err := r.docs.EraseExpiredDocs(context.Background(), r.clock())
	if err != nil {
		log.Error.Printf("replica: sweep of %s failed: %v", r.share, err)
		return
	}
	for _, d := range removed {
		log.Debug.Printf("replica: expired %s/%s", r.share, d.Path)
		r.events.Emit(Event{Kind: EventExpire, Doc: d})
	}
	r.armSweep()
}
