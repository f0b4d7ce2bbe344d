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

// ls lists the paths known to the replica, optionally restricted to a
// path prefix.
//
// Usage: earthstar ls [-prefix <prefix>] [-history]
func (s *State) ls(args ...string) {
	fs := flag.NewFlagSet("ls", flag.ExitOnError)
	prefix := fs.String("prefix", "", "only list paths with this prefix")
	history := fs.Bool("history", false, "show every historical version, not just the latest")
	fs.Parse(args)
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "Usage: earthstar ls [-prefix <prefix>] [-history]")
		os.Exit(2)
	}

	q := earthstar.Query{
		HistoryMode: earthstar.HistoryLatest,
		OrderBy:     earthstar.OrderPathAsc,
	}
	if *history {
		q.HistoryMode = earthstar.HistoryAll
	}
	if *prefix != "" {
		q.Filter.Path.Prefix = *prefix
	}

	docs, err := s.replica.QueryDocs(context.Background(), q)
	if err != nil {
		s.exit(err)
		return
	}
	for _, doc := range docs {
		fmt.Fprintf(os.Stdout, "%s\t%s\t@%d\n", doc.Path, doc.Author, doc.Timestamp)
	}
}
