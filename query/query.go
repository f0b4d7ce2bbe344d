// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package query implements the matching and ordering semantics a
// earthstar.Query applies against a set of documents. It is pure: no
// storage, no I/O, just predicates and comparators that a document driver
// or the replica can call against whatever documents it already has in
// hand, the way upspin.io/path implements pure path grammar.
package query

import (
	"path"
	"sort"
	"strings"

	"earthstar.dev/earthstar"
)

// WillMatch summarizes, before scanning any documents, how restrictive a
// query's filter is. A driver backed by an index can use this to decide
// whether a full scan is worth avoiding.
type WillMatch int

const (
	// WillMatchSome means the filter may match zero or more documents;
	// the driver must evaluate DocMatchesFilter against candidates.
	WillMatchSome WillMatch = iota
	// WillMatchNone means the filter can never match any document (e.g.
	// an exact-path filter combined with a mismatched prefix).
	WillMatchNone
)

// CleanUpQuery validates q and reports whether it can ever match anything.
// It does not mutate q; callers pass the same value on to DocMatchesFilter.
func CleanUpQuery(q earthstar.Query) (earthstar.Query, WillMatch) {
	if q.HasLimit() && q.Limit == 0 {
		return q, WillMatchNone
	}
	f := q.Filter
	if f.HasAuthor() && f.Author == "" {
		return q, WillMatchNone
	}
	if f.Path.Exact != "" {
		if f.Path.Prefix != "" && !strings.HasPrefix(string(f.Path.Exact), f.Path.Prefix) {
			return q, WillMatchNone
		}
		if f.Path.Suffix != "" && !strings.HasSuffix(string(f.Path.Exact), f.Path.Suffix) {
			return q, WillMatchNone
		}
		if f.Path.Glob != "" {
			if ok, err := path.Match(f.Path.Glob, string(f.Path.Exact)); err != nil || !ok {
				return q, WillMatchNone
			}
		}
	}
	if f.HasContentLength() && f.ContentLength < 0 {
		return q, WillMatchNone
	}
	return q, WillMatchSome
}

// DocMatchesFilter reports whether doc satisfies every predicate in f.
func DocMatchesFilter(doc *earthstar.Document, f earthstar.Filter) bool {
	if f.Path.Exact != "" && doc.Path != f.Path.Exact {
		return false
	}
	if f.Path.Prefix != "" && !strings.HasPrefix(string(doc.Path), f.Path.Prefix) {
		return false
	}
	if f.Path.Suffix != "" && !strings.HasSuffix(string(doc.Path), f.Path.Suffix) {
		return false
	}
	if f.Path.Glob != "" {
		ok, err := path.Match(f.Path.Glob, string(doc.Path))
		if err != nil || !ok {
			return false
		}
	}
	if f.HasAuthor() && f.Author == "" {
		return false
	}
	if f.Author != "" && doc.Author != f.Author {
		return false
	}
	if f.Share != "" && doc.Share != f.Share {
		return false
	}
	if f.HasTimestamp() && !compareInt64(int64(doc.Timestamp), f.TimestampOp, int64(f.Timestamp)) {
		return false
	}
	if f.HasContentLength() {
		n := contentLength(doc)
		if !compareInt64(n, f.ContentLengthOp, f.ContentLength) {
			return false
		}
	}
	return true
}

// contentLength measures doc's payload in bytes of its UTF-8 encoding,
// whichever field the document's format uses to carry it.
func contentLength(doc *earthstar.Document) int64 {
	if doc.Content != "" {
		return int64(len(doc.Content))
	}
	return int64(len(doc.Text))
}

func compareInt64(got int64, op earthstar.CompareOp, want int64) bool {
	switch op {
	case earthstar.CompareEQ:
		return got == want
	case earthstar.CompareGT:
		return got > want
	case earthstar.CompareLT:
		return got < want
	default:
		return true
	}
}

// FilterFormats reports whether doc's format passes q's format allow-list
// (an empty list means every format is allowed).
func FilterFormats(doc *earthstar.Document, formats []earthstar.FormatTag) bool {
	if len(formats) == 0 {
		return true
	}
	for _, tag := range formats {
		if doc.Format == tag {
			return true
		}
	}
	return false
}

// ResolveHistory collapses docs (all sharing one path) down to the single
// latest-winning document when mode is HistoryLatest; HistoryAll returns
// docs unchanged (but sorted by HistoryLess, newest first).
func ResolveHistory(docs []*earthstar.Document, mode earthstar.HistoryMode) []*earthstar.Document {
	if len(docs) == 0 {
		return docs
	}
	sorted := make([]*earthstar.Document, len(docs))
	copy(sorted, docs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return earthstar.HistoryLess(sorted[i], sorted[j])
	})
	if mode == earthstar.HistoryAll {
		return sorted
	}
	return sorted[:1]
}

// Sort orders docs in place per q.OrderBy.
func Sort(docs []*earthstar.Document, order earthstar.OrderBy) {
	switch order {
	case earthstar.OrderPathAsc:
		sort.SliceStable(docs, func(i, j int) bool { return docs[i].Path < docs[j].Path })
	case earthstar.OrderPathDesc:
		sort.SliceStable(docs, func(i, j int) bool { return docs[i].Path > docs[j].Path })
	case earthstar.OrderLocalIndexAsc:
		sort.SliceStable(docs, func(i, j int) bool { return docs[i].LocalIndex < docs[j].LocalIndex })
	case earthstar.OrderLocalIndexDesc:
		sort.SliceStable(docs, func(i, j int) bool { return docs[i].LocalIndex > docs[j].LocalIndex })
	}
}

// Run applies q's filter, format allow-list, history resolution, ordering,
// and limit to candidates, which must already belong to one share. It is
// the single entry point document drivers use once they have gathered
// every candidate document a naive full scan would consider.
func Run(candidates []*earthstar.Document, q earthstar.Query) []*earthstar.Document {
	q, will := CleanUpQuery(q)
	if will == WillMatchNone {
		return nil
	}
	matched := make([]*earthstar.Document, 0, len(candidates))
	for _, doc := range candidates {
		if !DocMatchesFilter(doc, q.Filter) {
			continue
		}
		if !FilterFormats(doc, q.Formats) {
			continue
		}
		matched = append(matched, doc)
	}

	mode := q.HistoryMode
	if mode == "" {
		mode = earthstar.HistoryLatest
	}
	byPath := make(map[earthstar.PathName][]*earthstar.Document)
	var order []earthstar.PathName
	for _, doc := range matched {
		if _, ok := byPath[doc.Path]; !ok {
			order = append(order, doc.Path)
		}
		byPath[doc.Path] = append(byPath[doc.Path], doc)
	}
	var resolved []*earthstar.Document
	for _, p := range order {
		resolved = append(resolved, ResolveHistory(byPath[p], mode)...)
	}

	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = earthstar.OrderPathAsc
	}
	Sort(resolved, orderBy)
	if q.Limit > 0 && len(resolved) > q.Limit {
		resolved = resolved[:q.Limit]
	}
	return resolved
}
