// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package query

import (
	"testing"

	"earthstar.dev/earthstar"
)

func doc(path earthstar.PathName, author earthstar.AuthorAddress, ts earthstar.Timestamp, sig string) *earthstar.Document {
	return &earthstar.Document{
		Path:      path,
		Author:    author,
		Timestamp: ts,
		Signature: earthstar.Signature(sig),
	}
}

func TestRunLatestResolvesToWinner(t *testing.T) {
	docs := []*earthstar.Document{
		doc("/wiki/a", "@suzy.bxxxx", 100, "bsig1"),
		doc("/wiki/a", "@mole.byyyy", 200, "bsig2"),
		doc("/wiki/a", "@mole.byyyy", 150, "bsig0"),
	}
	got := Run(docs, earthstar.Query{})
	if len(got) != 1 {
		t.Fatalf("Run returned %d docs, want 1", len(got))
	}
	if got[0].Timestamp != 200 {
		t.Errorf("winner timestamp = %d, want 200", got[0].Timestamp)
	}
}

func TestRunHistoryAllKeepsEveryVersion(t *testing.T) {
	docs := []*earthstar.Document{
		doc("/wiki/a", "@suzy.bxxxx", 100, "bsig1"),
		doc("/wiki/a", "@mole.byyyy", 200, "bsig2"),
	}
	got := Run(docs, earthstar.Query{HistoryMode: earthstar.HistoryAll})
	if len(got) != 2 {
		t.Fatalf("Run returned %d docs, want 2", len(got))
	}
}

func TestRunFiltersByPathPrefix(t *testing.T) {
	docs := []*earthstar.Document{
		doc("/wiki/a", "@suzy.bxxxx", 100, "bsig1"),
		doc("/chat/b", "@suzy.bxxxx", 100, "bsig2"),
	}
	q := earthstar.Query{Filter: earthstar.Filter{Path: earthstar.PathFilter{Prefix: "/wiki/"}}}
	got := Run(docs, q)
	if len(got) != 1 || got[0].Path != "/wiki/a" {
		t.Fatalf("Run with prefix filter = %v, want only /wiki/a", got)
	}
}

func TestRunOrdersByPath(t *testing.T) {
	docs := []*earthstar.Document{
		doc("/wiki/b", "@suzy.bxxxx", 100, "bsig1"),
		doc("/wiki/a", "@mole.byyyy", 100, "bsig2"),
	}
	got := Run(docs, earthstar.Query{OrderBy: earthstar.OrderPathAsc})
	if len(got) != 2 || got[0].Path != "/wiki/a" || got[1].Path != "/wiki/b" {
		t.Fatalf("Run ordering = %v, want [/wiki/a /wiki/b]", got)
	}
}

func TestRunRespectsLimit(t *testing.T) {
	docs := []*earthstar.Document{
		doc("/wiki/a", "@suzy.bxxxx", 100, "bsig1"),
		doc("/wiki/b", "@mole.byyyy", 100, "bsig2"),
		doc("/wiki/c", "@mole.byyyy", 100, "bsig3"),
	}
	got := Run(docs, earthstar.Query{Limit: 2})
	if len(got) != 2 {
		t.Fatalf("Run with Limit=2 returned %d docs, want 2", len(got))
	}
}

func TestCleanUpQueryDetectsImpossibleFilter(t *testing.T) {
	q := earthstar.Query{Filter: earthstar.Filter{
		Path: earthstar.PathFilter{Exact: "/wiki/a", Prefix: "/chat/"},
	}}
	_, will := CleanUpQuery(q)
	if will != WillMatchNone {
		t.Errorf("CleanUpQuery with mismatched exact/prefix = %v, want WillMatchNone", will)
	}
}

func TestCleanUpQueryExplicitZeroLimitMatchesNothing(t *testing.T) {
	_, will := CleanUpQuery(earthstar.Query{}.WithLimit(0))
	if will != WillMatchNone {
		t.Errorf("CleanUpQuery with WithLimit(0) = %v, want WillMatchNone", will)
	}
	// An unset Query{} (the zero value, the common case for replica-internal
	// queries) must remain unlimited, not collapse to WillMatchNone.
	if _, will := CleanUpQuery(earthstar.Query{}); will != WillMatchSome {
		t.Errorf("CleanUpQuery on zero-value Query = %v, want WillMatchSome", will)
	}
}

func TestCleanUpQueryExplicitEmptyAuthorMatchesNothing(t *testing.T) {
	q := earthstar.Query{Filter: earthstar.Filter{}.WithAuthor("")}
	_, will := CleanUpQuery(q)
	if will != WillMatchNone {
		t.Errorf("CleanUpQuery with WithAuthor(\"\") = %v, want WillMatchNone", will)
	}
}

func TestRunExplicitZeroLimitReturnsNothing(t *testing.T) {
	docs := []*earthstar.Document{
		doc("/wiki/a", "@suzy.bxxxx", 100, "bsig1"),
	}
	got := Run(docs, earthstar.Query{}.WithLimit(0))
	if len(got) != 0 {
		t.Fatalf("Run with WithLimit(0) returned %d docs, want 0", len(got))
	}
}

func TestRunExplicitEmptyAuthorReturnsNothing(t *testing.T) {
	docs := []*earthstar.Document{
		doc("/wiki/a", "@suzy.bxxxx", 100, "bsig1"),
	}
	q := earthstar.Query{Filter: earthstar.Filter{}.WithAuthor("")}
	got := Run(docs, q)
	if len(got) != 0 {
		t.Fatalf("Run with WithAuthor(\"\") returned %d docs, want 0", len(got))
	}
}

func TestDocMatchesFilterContentLength(t *testing.T) {
	d := doc("/wiki/a", "@suzy.bxxxx", 100, "bsig1")
	d.Content = "hello"
	f := earthstar.Filter{}.WithContentLength(earthstar.CompareEQ, 5)
	if !DocMatchesFilter(d, f) {
		t.Error("DocMatchesFilter with matching content length returned false")
	}
	f2 := earthstar.Filter{}.WithContentLength(earthstar.CompareGT, 10)
	if DocMatchesFilter(d, f2) {
		t.Error("DocMatchesFilter with non-matching content length returned true")
	}
}
