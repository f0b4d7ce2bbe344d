// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

import (
	"context"
	"io"
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

func TestStageAndGetAttachment(t *testing.T) {
	ctx := context.Background()
	d := New()
	data := "binary image bytes"
	hash := hashOf(t, data)

	stage, err := d.Stage(ctx, "es.5", hash, strings.NewReader(data))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if err := stage.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
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
		t.Errorf("GetAttachment content = %q, want %q", got, data)
	}
}

func TestStageRejectsHashMismatch(t *testing.T) {
	ctx := context.Background()
	d := New()
	if _, err := d.Stage(ctx, "es.5", "bwronghash", strings.NewReader("x")); err == nil {
		t.Error("Stage with wrong expected hash succeeded, want error")
	}
}

func TestEraseAttachment(t *testing.T) {
	ctx := context.Background()
	d := New()
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
	d := New()
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
	if _, err := d.GetAttachment("es.5", hashB); err == nil {
		t.Error("GetAttachment(hashB) after Filter succeeded, want error")
	}
}
