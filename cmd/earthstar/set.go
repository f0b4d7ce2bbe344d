// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"earthstar.dev/earthstar"
	"earthstar.dev/format/es4"
	"earthstar.dev/format/es5"
)

// set writes a new version of the document at a path, signed by the
// current author.
//
// Usage: earthstar set [-format es.4|es.5] [-ttl seconds] [-attachment file] <path> <text>
func (s *State) set(args ...string) {
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	format := fs.String("format", string(es5.Tag), "document format (es.4 or es.5)")
	ephemeralTTL := fs.Int64("ttl", 0, "delete-after in seconds from now; 0 for permanent")
	attachment := fs.String("attachment", "", "path to a file to attach (requires -format es.5)")
	fs.Parse(args)
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: earthstar set [-format es.4|es.5] [-ttl seconds] [-attachment file] <path> <text>")
		os.Exit(2)
	}

	tag := earthstar.FormatTag(*format)
	if tag != es4.Tag && tag != es5.Tag {
		s.exit(fmt.Errorf("unknown format %q", *format))
		return
	}

	input := earthstar.DocInput{
		Path: earthstar.PathName(fs.Arg(0)),
		Text: fs.Arg(1),
	}
	if *ephemeralTTL > 0 {
		deleteAfter := earthstar.Timestamp(time.Now().UnixMicro() + *ephemeralTTL*1e6)
		input.DeleteAfter = &deleteAfter
	}
	if *attachment != "" {
		if tag != es5.Tag {
			s.exit(fmt.Errorf("-attachment requires -format es.5"))
			return
		}
		f, err := os.Open(*attachment)
		if err != nil {
			s.exit(err)
			return
		}
		defer f.Close()
		input.Attachment = f
	}

	doc, err := s.replica.Set(context.Background(), s.keyPair, s.settings.CurrentAuthor, input, tag)
	if err != nil {
		s.exit(err)
		return
	}
	fmt.Fprintf(os.Stdout, "set %s @%d\n", doc.Path, doc.Timestamp)
}
