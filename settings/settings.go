// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package settings implements the client-side settings registry: the
// author keypair in use, the set of known shares, each share's secret, and
// each share's known servers, persisted as a single YAML file the way
// upspin.io/config persists a client's YAML configuration.
package settings

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	yaml "gopkg.in/yaml.v2"

	osuser "os/user"

	"earthstar.dev/earthstar"
	"earthstar.dev/errors"
)

// Settings is the client-side registry keyed, per the external key space,
// as current_author | shares | share_secrets | servers.
type Settings struct {
	CurrentAuthor earthstar.AuthorAddress             `yaml:"current_author"`
	Shares        []earthstar.ShareAddress            `yaml:"shares"`
	ShareSecrets  map[earthstar.ShareAddress]string   `yaml:"share_secrets"`
	Servers       map[earthstar.ShareAddress][]string `yaml:"servers"`
}

// New returns an empty Settings with its maps initialized.
func New() *Settings {
	return &Settings{
		ShareSecrets: make(map[earthstar.ShareAddress]string),
		Servers:      make(map[earthstar.ShareAddress][]string),
	}
}

// Homedir returns the home directory of the OS' logged-in user, the way
// config.Homedir locates $HOME for upspin's own configuration file.
func Homedir() (string, error) {
	u, err := osuser.Current()
	if u == nil {
		e := errors.Str("lookup of current user failed")
		if err != nil {
			e = errors.Errorf("%v: %v", e, err)
		}
		return "", e
	}
	if u.HomeDir == "" {
		return "", errors.E(errors.NotExist, errors.Str("user home directory not found"))
	}
	return u.HomeDir, nil
}

// DefaultPath returns $HOME/.earthstar/settings.yaml.
func DefaultPath() (string, error) {
	home, err := Homedir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".earthstar", "settings.yaml"), nil
}

// Load reads and parses the settings file at path. A missing file is not an
// error; it yields an empty Settings, mirroring the way a freshly installed
// client has made no choices yet.
func Load(path string) (*Settings, error) {
	const op = "settings.Load"
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, errors.E(op, errors.IO, err)
	}
	s := New()
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, errors.E(op, errors.Invalid, err)
	}
	if s.ShareSecrets == nil {
		s.ShareSecrets = make(map[earthstar.ShareAddress]string)
	}
	if s.Servers == nil {
		s.Servers = make(map[earthstar.ShareAddress][]string)
	}
	return s, nil
}

// Save writes s to path as YAML, creating the parent directory if needed.
func Save(path string, s *Settings) error {
	const op = "settings.Save"
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errors.E(op, errors.IO, err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return errors.E(op, errors.Internal, err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.E(op, errors.IO, err)
	}
	return nil
}

// AddShare records share as known, with secret as its write secret (empty
// if the share is read-only to this client) and servers as its known sync
// endpoints.
func (s *Settings) AddShare(share earthstar.ShareAddress, secret string, servers []string) {
	known := false
	for _, existing := range s.Shares {
		if existing == share {
			known = true
			break
		}
	}
	if !known {
		s.Shares = append(s.Shares, share)
	}
	if secret != "" {
		s.ShareSecrets[share] = secret
	}
	if len(servers) > 0 {
		s.Servers[share] = append(append([]string(nil), s.Servers[share]...), servers...)
	}
}

// RemoveShare discards a known share and its secret and servers.
func (s *Settings) RemoveShare(share earthstar.ShareAddress) {
	kept := s.Shares[:0]
	for _, existing := range s.Shares {
		if existing != share {
			kept = append(kept, existing)
		}
	}
	s.Shares = kept
	delete(s.ShareSecrets, share)
	delete(s.Servers, share)
}

// Invitation is a parsed earthstar:// invitation URL.
type Invitation struct {
	Share   earthstar.ShareAddress
	Secret  string
	Servers []string
}

// ParseInvitation parses an invitation URL of the form
// earthstar://<share>?secret=<base32>&server=<url>&server=<url>...
func ParseInvitation(raw string) (*Invitation, error) {
	const op = "settings.ParseInvitation"
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.E(op, errors.Syntax, err)
	}
	if u.Scheme != "earthstar" {
		return nil, errors.E(op, errors.Syntax, errors.Str("invitation URL must use the earthstar scheme"))
	}
	share := u.Host
	if share == "" {
		// Some URL forms put the whole share in Opaque instead of Host
		// when the share address itself contains no '/'.
		share = strings.TrimPrefix(u.Opaque, "//")
	}
	if share == "" {
		return nil, errors.E(op, errors.Syntax, errors.Str("invitation URL missing share address"))
	}
	q := u.Query()
	return &Invitation{
		Share:   earthstar.ShareAddress(share),
		Secret:  q.Get("secret"),
		Servers: q["server"],
	}, nil
}

// BuildInvitation renders inv as an earthstar:// invitation URL.
func BuildInvitation(inv Invitation) string {
	v := url.Values{}
	if inv.Secret != "" {
		v.Set("secret", inv.Secret)
	}
	for _, srv := range inv.Servers {
		v.Add("server", srv)
	}
	u := url.URL{
		Scheme:   "earthstar",
		Host:     string(inv.Share),
		RawQuery: v.Encode(),
	}
	return u.String()
}
