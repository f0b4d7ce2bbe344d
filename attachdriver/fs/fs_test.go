// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"earthstar.dev/crypto"
	_ "earthstar.dev/crypto/sodium"
	"earthstar.dev/earthstar"
)

func hashOf(t *testing.T, data string) string {
	t.Helper()
	h := crypto.Default().UpdatableHash()
	h.Write([]byte(data))
	return h.SumString()
}

func TestStageCommitIsAtomicAndVisible(t *testing.T) {
	ctx := context.Background()
	d := New(t.TempDir())
	data := "binary image bytes"
	hash := hashOf(t, data)

	stage, err := d.Stage(ctx, "es.5", hash, strings.NewReader(data))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	entries, _ := os.ReadDir(d.Root)
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Name(), "stage-") {
		t.Fatalf("before Commit, dir has %v, want one stage- file", entries)
	}

	if err := stage.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if _, err := os.Stat(filepath.Join(d.Root, "es.5_"+hash)); err != nil {
		t.Errorf("committed blob missing: %v", err)
	}

	src, err := d.GetAttachment("es.5", hash)
	if err != nil {
		t.Fatalf("GetAttachment: %v", err)
	}
	got, err := io.ReadAll(src)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != data {
		t.Errorf("content = %q, want %q", got, data)
	}
}

func TestStageRejectsHashMismatch(t *testing.T) {
	ctx := context.Background()
	d := New(t.TempDir())
	if _, err := d.Stage(ctx, "es.5", "bwronghash", strings.NewReader("x")); err == nil {
		t.Error("Stage with wrong expected hash succeeded, want error")
	}
	entries, _ := os.ReadDir(d.Root)
	if len(entries) != 0 {
		t.Errorf("failed stage left %d files behind, want 0", len(entries))
	}
}

func TestGetAttachmentNotExist(t *testing.T) {
	d := New(t.TempDir())
	if _, err := d.GetAttachment("es.5", "bmissing"); err == nil {
		t.Error("GetAttachment of a missing blob succeeded, want error")
	}
}

func TestEraseAttachment(t *testing.T) {
	ctx := context.Background()
	d := New(t.TempDir())
	hash := hashOf(t, "x")
	stage, _ := d.Stage(ctx, "es.5", hash, strings.NewReader("x"))
	stage.Commit()

	erased, err := d.EraseAttachment("es.5", hash)
	if err != nil || !erased {
		t.Fatalf("EraseAttachment = %v, %v, want true, nil", erased, err)
	}
	erased, err = d.EraseAttachment("es.5", hash)
	if err != nil || erased {
		t.Fatalf("second EraseAttachment = %v, %v, want false, nil", erased, err)
	}
}

func TestFilterErasesUnlisted(t *testing.T) {
	ctx := context.Background()
	d := New(t.TempDir())
	hashA := hashOf(t, "a")
	hashB := hashOf(t, "b")
	stageA, _ := d.Stage(ctx, "es.5", hashA, strings.NewReader("a"))
	stageA.Commit()
	stageB, _ := d.Stage(ctx, "es.5", hashB, strings.NewReader("b"))
	stageB.Commit()

	erased, err := d.Filter([]earthstar.AttachmentKey{{Format: "es.5", Hash: hashA}})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if len(erased) != 1 || erased[0].Hash != hashB {
		t.Fatalf("Filter erased %v, want just hashB", erased)
	}
	if _, err := d.GetAttachment("es.5", hashA); err != nil {
		t.Errorf("GetAttachment(hashA) after Filter failed: %v", err)
	}
}
