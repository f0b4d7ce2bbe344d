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

// get writes the latest content at a path to standard output.
//
// Usage: earthstar get <path>
func (s *State) get(args ...string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: earthstar get <path>")
		os.Exit(2)
	}

	doc, err := s.replica.GetLatestDocAtPath(context.Background(), earthstar.PathName(fs.Arg(0)))
	if err != nil {
		s.exit(err)
		return
	}
	if doc == nil {
		s.exit(fmt.Errorf("no document at %q", fs.Arg(0)))
		return
	}
	content := doc.Content
	if content == "" {
		content = doc.Text
	}
	fmt.Fprintln(os.Stdout, content)
}
