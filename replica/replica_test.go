// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package replica

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	attachmem "earthstar.dev/attachdriver/memory"
	"earthstar.dev/crypto/sodium"
	docmem "earthstar.dev/docdriver/memory"
	"earthstar.dev/earthstar"
	_ "earthstar.dev/format/es4"
	_ "earthstar.dev/format/es5"
)

func newTestReplica(t *testing.T, clock Clock) (*Replica, earthstar.KeyPair, earthstar.AuthorAddress) {
	t.Helper()
	sodiumProvider := sodium.Provider{}
	kp, err := sodiumProvider.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	share := earthstar.ShareAddress("+test." + string(kp.PublicKey))
	author := earthstar.AuthorAddress("@suzy." + string(kp.PublicKey))

	r, err := Open(share, docmem.New(share), attachmem.New(), sodiumProvider, clock)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close(false) })
	return r, kp, author
}

func TestSetIngestQueryRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := earthstar.Timestamp(20000000000000)
	r, kp, author := newTestReplica(t, func() earthstar.Timestamp { return now })

	doc, err := r.Set(ctx, kp, author, earthstar.DocInput{Path: "/wiki/Tomatoes", Text: "Tomatoes are a fruit."}, "es.4")
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if doc.Content != "Tomatoes are a fruit." {
		t.Errorf("doc.Content = %q, want the set text", doc.Content)
	}

	got, err := r.GetLatestDocAtPath(ctx, "/wiki/Tomatoes")
	if err != nil {
		t.Fatalf("GetLatestDocAtPath: %v", err)
	}
	if got == nil || got.Content != doc.Content {
		t.Fatalf("GetLatestDocAtPath = %+v, want the doc just set", got)
	}
}

func TestSetOverwritesWithLaterTimestamp(t *testing.T) {
	ctx := context.Background()
	now := earthstar.Timestamp(20000000000000)
	r, kp, author := newTestReplica(t, func() earthstar.Timestamp { return now })

	if _, err := r.Set(ctx, kp, author, earthstar.DocInput{Path: "/wiki/a", Text: "v1"}, "es.4"); err != nil {
		t.Fatalf("Set v1: %v", err)
	}
	if _, err := r.Set(ctx, kp, author, earthstar.DocInput{Path: "/wiki/a", Text: "v2"}, "es.4"); err != nil {
		t.Fatalf("Set v2: %v", err)
	}
	docs, err := r.GetAllDocsAtPath(ctx, "/wiki/a")
	if err != nil {
		t.Fatalf("GetAllDocsAtPath: %v", err)
	}
	if len(docs) != 1 || docs[0].Content != "v2" {
		t.Fatalf("GetAllDocsAtPath = %v, want a single doc with content v2", docs)
	}
}

func TestIngestEmitsEventStream(t *testing.T) {
	ctx := context.Background()
	now := earthstar.Timestamp(20000000000000)
	r, kp, author := newTestReplica(t, func() earthstar.Timestamp { return now })

	sub := r.GetEventStream("")
	if _, err := r.Set(ctx, kp, author, earthstar.DocInput{Path: "/wiki/a", Text: "hello"}, "es.4"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	select {
	case ev := <-sub:
		if ev.Kind != EventIngest || ev.Result != IngestSuccess {
			t.Errorf("event = %+v, want a successful ingest event", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ingest event")
	}
}

func TestAttachmentIngestAndRetrieve(t *testing.T) {
	ctx := context.Background()
	now := earthstar.Timestamp(20000000000000)
	r, kp, author := newTestReplica(t, func() earthstar.Timestamp { return now })

	data := "binary image bytes"
	doc, err := r.Set(ctx, kp, author, earthstar.DocInput{
		Path:       "/photos/sunset",
		Text:       "A sunset",
		Attachment: strings.NewReader(data),
	}, "es.5")
	if err != nil {
		t.Fatalf("Set with attachment: %v", err)
	}
	if doc.Attachment == nil {
		t.Fatal("doc.Attachment is nil after Set with an attachment")
	}

	src, err := r.GetAttachment(doc)
	if err != nil {
		t.Fatalf("GetAttachment: %v", err)
	}
	if src == nil {
		t.Fatal("GetAttachment returned nil source for a committed attachment")
	}
	got, err := io.ReadAll(src)
	if err != nil {
		t.Fatalf("reading attachment source: %v", err)
	}
	if string(got) != data {
		t.Errorf("attachment bytes = %q, want %q", got, data)
	}

	again, err := r.IngestAttachment(ctx, "es.5", doc, strings.NewReader(data), "local")
	if err != nil {
		t.Fatalf("second IngestAttachment: %v", err)
	}
	if again {
		t.Error("re-ingesting an already-present attachment reported a change")
	}
}

func TestWipeDocAtPathClearsContent(t *testing.T) {
	ctx := context.Background()
	now := earthstar.Timestamp(20000000000000)
	r, kp, author := newTestReplica(t, func() earthstar.Timestamp { return now })

	if _, err := r.Set(ctx, kp, author, earthstar.DocInput{Path: "/wiki/a", Text: "hello"}, "es.4"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	wiped, err := r.WipeDocAtPath(ctx, kp, author, "/wiki/a")
	if err != nil {
		t.Fatalf("WipeDocAtPath: %v", err)
	}
	if wiped.Content != "" {
		t.Errorf("wiped.Content = %q, want empty", wiped.Content)
	}
}

func TestExpirySweepRemovesEphemeralDoc(t *testing.T) {
	ctx := context.Background()
	now := earthstar.Timestamp(20000000000000)
	clockVal := now
	clock := func() earthstar.Timestamp { return clockVal }
	r, kp, author := newTestReplica(t, clock)

	deleteAfter := now + earthstar.Timestamp(50*time.Millisecond/time.Microsecond)
	input := earthstar.DocInput{Path: "/!1234/ephemeral", Text: "temp", DeleteAfter: &deleteAfter}
	if _, err := r.Set(ctx, kp, author, input, "es.4"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	sub := r.GetEventStream("")
	clockVal = deleteAfter + 1
	r.armSweep()

	select {
	case ev := <-sub:
		if ev.Kind != EventExpire {
			t.Errorf("event = %+v, want an expire event", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for expire event")
	}
}
