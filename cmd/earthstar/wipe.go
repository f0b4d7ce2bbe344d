// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"earthstar.dev/earthstar"
)

// wipe erases the content at a path, leaving a tombstone signed by the
// current author.
//
// Usage: earthstar wipe <path>
func (s *State) wipe(args ...string) {
	fs := flag.NewFlagSet("wipe", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: earthstar wipe <path>")
		os.Exit(2)
	}

	doc, err := s.replica.WipeDocAtPath(context.Background(), s.keyPair, s.settings.CurrentAuthor, earthstar.PathName(fs.Arg(0)))
	if err != nil {
		s.exit(err)
		return
	}
	fmt.Fprintf(os.Stdout, "wiped %s @%d\n", doc.Path, doc.Timestamp)
}
