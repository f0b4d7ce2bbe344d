// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package settings

import (
	"path/filepath"
	"testing"

	"earthstar.dev/earthstar"
)

func TestLoadMissingFileYieldsEmptySettings(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.CurrentAuthor != "" || len(s.Shares) != 0 {
		t.Errorf("Load(missing) = %+v, want empty Settings", s)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "settings.yaml")
	s := New()
	s.CurrentAuthor = "@suzy.baaaa"
	s.AddShare("+gardening.bxxxx", "bsecret", []string{"https://example.com"})

	if err := Save(path, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.CurrentAuthor != s.CurrentAuthor {
		t.Errorf("CurrentAuthor = %q, want %q", got.CurrentAuthor, s.CurrentAuthor)
	}
	if len(got.Shares) != 1 || got.Shares[0] != "+gardening.bxxxx" {
		t.Fatalf("Shares = %v, want [+gardening.bxxxx]", got.Shares)
	}
	if got.ShareSecrets["+gardening.bxxxx"] != "bsecret" {
		t.Errorf("ShareSecrets = %v, want bsecret", got.ShareSecrets)
	}
}

func TestAddShareIsIdempotent(t *testing.T) {
	s := New()
	s.AddShare("+gardening.bxxxx", "", nil)
	s.AddShare("+gardening.bxxxx", "", nil)
	if len(s.Shares) != 1 {
		t.Errorf("Shares = %v, want a single entry", s.Shares)
	}
}

func TestRemoveShare(t *testing.T) {
	s := New()
	s.AddShare("+gardening.bxxxx", "bsecret", []string{"https://example.com"})
	s.RemoveShare("+gardening.bxxxx")
	if len(s.Shares) != 0 {
		t.Errorf("Shares after RemoveShare = %v, want empty", s.Shares)
	}
	if _, ok := s.ShareSecrets["+gardening.bxxxx"]; ok {
		t.Error("ShareSecrets still has the removed share")
	}
}

func TestInvitationRoundTrip(t *testing.T) {
	inv := Invitation{
		Share:   earthstar.ShareAddress("+gardening.bxxxx"),
		Secret:  "bsecret",
		Servers: []string{"https://a.example", "https://b.example"},
	}
	u := BuildInvitation(inv)
	got, err := ParseInvitation(u)
	if err != nil {
		t.Fatalf("ParseInvitation(%q): %v", u, err)
	}
	if got.Share != inv.Share || got.Secret != inv.Secret {
		t.Errorf("ParseInvitation = %+v, want %+v", got, inv)
	}
	if len(got.Servers) != 2 {
		t.Fatalf("Servers = %v, want 2 entries", got.Servers)
	}
}

func TestParseInvitationRejectsWrongScheme(t *testing.T) {
	if _, err := ParseInvitation("https://example.com"); err == nil {
		t.Error("ParseInvitation accepted a non-earthstar scheme")
	}
}
