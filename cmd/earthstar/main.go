// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Earthstar is a simple utility for exercising a replica against the
// user's local settings registry.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	attachmem "earthstar.dev/attachdriver/memory"
	"earthstar.dev/crypto/sodium"
	docmem "earthstar.dev/docdriver/memory"
	"earthstar.dev/earthstar"
	_ "earthstar.dev/format/es4"
	_ "earthstar.dev/format/es5"
	"earthstar.dev/log"
	"earthstar.dev/replica"
	"earthstar.dev/settings"
)

var commands = map[string]func(*State, ...string){
	"get":  (*State).get,
	"set":  (*State).set,
	"ls":   (*State).ls,
	"wipe": (*State).wipe,
}

// State carries the replica and settings a subcommand operates against.
type State struct {
	op       string
	settings *settings.Settings
	replica  *replica.Replica
	keyPair  earthstar.KeyPair
	exitCode int
}

func main() {
	logLevel := flag.String("log", log.GetLevel(), "`level` of logging: debug, info, error, disabled")
	flag.Usage = usage
	flag.Parse()
	if err := log.SetLevel(*logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "earthstar: %v\n", err)
		os.Exit(2)
	}
	if flag.NArg() < 1 {
		usage()
	}

	state := newState(strings.ToLower(flag.Arg(0)))
	args := flag.Args()[1:]

	fn := commands[state.op]
	if fn == nil {
		fmt.Fprintf(os.Stderr, "earthstar: no such command %q\n", flag.Arg(0))
		usage()
	}
	fn(state, args...)
	os.Exit(state.exitCode)
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: earthstar [flags] <command> <args>")
	fmt.Fprintln(os.Stderr, "Commands: get, set, ls, wipe")
	os.Exit(2)
}

func newState(op string) *State {
	path, err := settings.DefaultPath()
	if err != nil {
		fatal(op, err)
	}
	s, err := settings.Load(path)
	if err != nil {
		fatal(op, err)
	}
	if s.CurrentAuthor == "" {
		fatalf(op, "no current_author configured in %s", path)
	}

	share := earthstar.ShareAddress("")
	if len(s.Shares) > 0 {
		share = s.Shares[0]
	}

	r, err := replica.Open(share, docmem.New(share), attachmem.New(), sodium.Provider{}, nil)
	if err != nil {
		fatal(op, err)
	}
	log.Debug.Printf("earthstar %s: opened in-memory replica for %s", op, share)

	secret, ok := s.ShareSecrets[share]
	if !ok {
		secret = ""
	}
	kp := earthstar.KeyPair{PublicKey: earthstar.PublicKey(strings.TrimPrefix(string(s.CurrentAuthor), "@")), SecretKey: secret}

	return &State{op: op, settings: s, replica: r, keyPair: kp}
}

func (s *State) exit(err error) {
	fmt.Fprintf(os.Stderr, "earthstar %s: %v\n", s.op, err)
	s.exitCode = 1
}

func fatal(op string, err error) {
	fmt.Fprintf(os.Stderr, "earthstar %s: %v\n", op, err)
	os.Exit(1)
}

func fatalf(op, format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "earthstar %s: "+format+"\n", append([]interface{}{op}, args...)...)
	os.Exit(1)
}
