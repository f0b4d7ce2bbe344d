// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sql implements a persistent earthstar.DocumentDriver on top of
// database/sql and modernc.org/sqlite, the embedded, cgo-free SQL engine
// used throughout the retrieved example pack for durable local storage.
//
// The schema is a single "docs" table keyed by (path, author), carrying
// the document's JSON encoding alongside the scalar columns a query needs
// to filter and order without decoding every row, plus a "config" table
// for the driver's own key/value settings.
package sql

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "modernc.org/sqlite"

	"earthstar.dev/earthstar"
	"earthstar.dev/errors"
	"earthstar.dev/query"
)

const schemaVersion = "2"

const schema = `
CREATE TABLE IF NOT EXISTS docs (
	path        TEXT NOT NULL,
	author      TEXT NOT NULL,
	timestamp   INTEGER NOT NULL,
	signature   TEXT NOT NULL,
	deleteAfter INTEGER,
	localIndex  INTEGER UNIQUE NOT NULL,
	format      TEXT NOT NULL,
	doc         TEXT NOT NULL,
	PRIMARY KEY (path, author)
);
CREATE INDEX IF NOT EXISTS docs_path_idx ON docs(path);
CREATE INDEX IF NOT EXISTS docs_localIndex_idx ON docs(localIndex);
CREATE INDEX IF NOT EXISTS docs_deleteAfter_idx ON docs(deleteAfter);
CREATE TABLE IF NOT EXISTS config (
	key     TEXT PRIMARY KEY,
	content TEXT NOT NULL
);
`

// Driver is a DocumentDriver backed by a single SQLite database file.
type Driver struct {
	db     *sql.DB
	share  earthstar.ShareAddress
	closed bool
}

var _ earthstar.DocumentDriver = (*Driver)(nil)

// Open opens (creating if necessary) the SQLite database at path and
// prepares it to serve share. WAL journal mode is enabled so readers never
// block the single ingest writer.
func Open(path string, share earthstar.ShareAddress) (*Driver, error) {
	const op = "docdriver/sql.Open"
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, errors.E(op, errors.IO, err)
	}
	if _, err := db.Exec(`PRAGMA encoding="UTF-8";`); err != nil {
		db.Close()
		return nil, errors.E(op, errors.IO, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.E(op, errors.IO, err)
	}
	d := &Driver{db: db, share: share}
	if err := d.SetConfig("share", string(share)); err != nil {
		db.Close()
		return nil, errors.E(op, err)
	}
	if err := d.SetConfig("schemaVersion", schemaVersion); err != nil {
		db.Close()
		return nil, errors.E(op, err)
	}
	return d, nil
}

func (d *Driver) Share() earthstar.ShareAddress { return d.share }

func (d *Driver) IsClosed() bool { return d.closed }

func (d *Driver) Close(erase bool) error {
	const op = "docdriver/sql.Close"
	if d.closed {
		return errors.E(op, errors.Closed, errors.Str("already closed"))
	}
	if erase {
		if _, err := d.db.Exec(`DELETE FROM docs; DELETE FROM config;`); err != nil {
			return errors.E(op, errors.IO, err)
		}
	}
	if err := d.db.Close(); err != nil {
		return errors.E(op, errors.IO, err)
	}
	d.closed = true
	return nil
}

func (d *Driver) checkOpen(op string) error {
	if d.closed {
		return errors.E(op, errors.Closed, errors.Str("document driver is closed"))
	}
	return nil
}

func (d *Driver) GetConfig(key string) (string, error) {
	const op = "docdriver/sql.GetConfig"
	if err := d.checkOpen(op); err != nil {
		return "", err
	}
	var content string
	err := d.db.QueryRow(`SELECT content FROM config WHERE key = ?`, key).Scan(&content)
	if err == sql.ErrNoRows {
		return "", errors.E(op, errors.NotExist, errors.Str("no such config key"))
	}
	if err != nil {
		return "", errors.E(op, errors.IO, err)
	}
	return content, nil
}

func (d *Driver) SetConfig(key, value string) error {
	const op = "docdriver/sql.SetConfig"
	if err := d.checkOpen(op); err != nil {
		return err
	}
	_, err := d.db.Exec(`INSERT INTO config(key, content) VALUES(?, ?)
		ON CONFLICT(key) DO UPDATE SET content = excluded.content`, key, value)
	if err != nil {
		return errors.E(op, errors.IO, err)
	}
	return nil
}

func (d *Driver) DeleteConfig(key string) error {
	const op = "docdriver/sql.DeleteConfig"
	if err := d.checkOpen(op); err != nil {
		return err
	}
	if _, err := d.db.Exec(`DELETE FROM config WHERE key = ?`, key); err != nil {
		return errors.E(op, errors.IO, err)
	}
	return nil
}

func (d *Driver) ListConfigKeys() ([]string, error) {
	const op = "docdriver/sql.ListConfigKeys"
	if err := d.checkOpen(op); err != nil {
		return nil, err
	}
	rows, err := d.db.Query(`SELECT key FROM config ORDER BY key`)
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errors.E(op, errors.IO, err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (d *Driver) GetMaxLocalIndex() (earthstar.LocalIndex, error) {
	const op = "docdriver/sql.GetMaxLocalIndex"
	if err := d.checkOpen(op); err != nil {
		return 0, err
	}
	var max sql.NullInt64
	err := d.db.QueryRow(`SELECT MAX(localIndex) FROM docs`).Scan(&max)
	if err != nil {
		return 0, errors.E(op, errors.IO, err)
	}
	if !max.Valid {
		return -1, nil
	}
	return earthstar.LocalIndex(max.Int64), nil
}

// scanDoc decodes one row's JSON blob and overlays the scalar columns that
// the row already carries, so the two representations can never drift.
func scanDoc(jsonDoc string, localIndex int64) (*earthstar.Document, error) {
	var doc earthstar.Document
	if err := json.Unmarshal([]byte(jsonDoc), &doc); err != nil {
		return nil, err
	}
	doc.LocalIndex = earthstar.LocalIndex(localIndex)
	return &doc, nil
}

func (d *Driver) QueryDocs(ctx context.Context, q earthstar.Query) ([]*earthstar.Document, error) {
	const op = "docdriver/sql.QueryDocs"
	if err := d.checkOpen(op); err != nil {
		return nil, err
	}
	rows, err := d.db.QueryContext(ctx, `SELECT doc, localIndex FROM docs`)
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	defer rows.Close()
	var candidates []*earthstar.Document
	for rows.Next() {
		var jsonDoc string
		var localIndex int64
		if err := rows.Scan(&jsonDoc, &localIndex); err != nil {
			return nil, errors.E(op, errors.IO, err)
		}
		doc, err := scanDoc(jsonDoc, localIndex)
		if err != nil {
			return nil, errors.E(op, errors.Internal, err)
		}
		candidates = append(candidates, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	return query.Run(candidates, q), nil
}

func (d *Driver) Upsert(ctx context.Context, doc *earthstar.Document) (*earthstar.Document, error) {
	const op = "docdriver/sql.Upsert"
	if err := d.checkOpen(op); err != nil {
		return nil, err
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	defer tx.Rollback()

	var max sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(localIndex) FROM docs`).Scan(&max); err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	next := int64(0)
	if max.Valid {
		next = max.Int64 + 1
	}

	cp := doc.Clone()
	cp.LocalIndex = earthstar.LocalIndex(next)
	blob, err := json.Marshal(cp)
	if err != nil {
		return nil, errors.E(op, errors.Internal, err)
	}
	var deleteAfter sql.NullInt64
	if cp.DeleteAfter != nil {
		deleteAfter = sql.NullInt64{Int64: int64(*cp.DeleteAfter), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO docs(path, author, timestamp, signature, deleteAfter, localIndex, format, doc)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path, author) DO UPDATE SET
			timestamp = excluded.timestamp,
			signature = excluded.signature,
			deleteAfter = excluded.deleteAfter,
			localIndex = excluded.localIndex,
			format = excluded.format,
			doc = excluded.doc`,
		string(cp.Path), string(cp.Author), int64(cp.Timestamp), string(cp.Signature),
		deleteAfter, next, string(cp.Format), string(blob))
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	return cp, nil
}

func (d *Driver) EraseExpiredDocs(ctx context.Context, now earthstar.Timestamp) ([]*earthstar.Document, error) {
	const op = "docdriver/sql.EraseExpiredDocs"
	if err := d.checkOpen(op); err != nil {
		return nil, err
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT doc, localIndex FROM docs WHERE deleteAfter IS NOT NULL AND deleteAfter < ?`, int64(now))
	if err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	var removed []*earthstar.Document
	for rows.Next() {
		var jsonDoc string
		var localIndex int64
		if err := rows.Scan(&jsonDoc, &localIndex); err != nil {
			rows.Close()
			return nil, errors.E(op, errors.IO, err)
		}
		doc, err := scanDoc(jsonDoc, localIndex)
		if err != nil {
			rows.Close()
			return nil, errors.E(op, errors.Internal, err)
		}
		removed = append(removed, doc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.E(op, errors.IO, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM docs WHERE deleteAfter IS NOT NULL AND deleteAfter < ?`, int64(now)); err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.E(op, errors.IO, err)
	}
	return removed, nil
}
