// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

// Package buntdbstore implements ledger.Store using BuntDB
// (https://github.com/tidwall/buntdb).
//
// Every Update runs inside one BuntDB read/write transaction, which BuntDB
// serializes across the whole database. The account number counter lives
// in the same database so numbering rolls back with the records.
package buntdbstore

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/tidwall/buntdb"

	"github.com/moov-io/points/pkg/ledger"
)

const (
	accountPrefix = "account:"
	counterKey    = "meta:account-number"
)

// New opens (or creates) the BuntDB file at path. Use ":memory:" for a
// store that lives only as long as the process.
func New(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening buntdb %s", path)
	}
	return &Store{
		db: db,
	}, nil
}

type Store struct {
	db *buntdb.DB
}

func (s *Store) Close() error {
	return s.db.Close()
}

func accountKey(id ledger.Identity) string {
	return accountPrefix + id.String()
}

func (s *Store) Get(id ledger.Identity) (*ledger.Account, error) {
	var out *ledger.Account
	err := s.db.View(func(tx *buntdb.Tx) error {
		acct, err := getAccount(tx, id)
		out = acct
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Create(id ledger.Identity) (*ledger.Account, error) {
	var out *ledger.Account
	err := s.Update([]ledger.Identity{id}, func(tx ledger.Txn) error {
		acct, err := tx.Create(id)
		out = acct
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Update(ids []ledger.Identity, fn func(tx ledger.Txn) error) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		return fn(&txn{tx: tx, ids: ids})
	})
}

// Count returns how many accounts are stored.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(accountPrefix+"*", func(_, _ string) bool {
			n++
			return true
		})
	})
	if err != nil {
		return 0, errors.Wrap(err, "counting accounts")
	}
	return n, nil
}

func getAccount(tx *buntdb.Tx, id ledger.Identity) (*ledger.Account, error) {
	v, err := tx.Get(accountKey(id))
	if err == buntdb.ErrNotFound {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading account %s", id)
	}
	acct, err := ledger.DecodeAccount([]byte(v))
	if err != nil {
		return nil, errors.Wrapf(err, "decoding account %s", id)
	}
	return acct, nil
}

func putAccount(tx *buntdb.Tx, acct *ledger.Account) error {
	bs, err := acct.MarshalBinary()
	if err != nil {
		return err
	}
	if _, _, err := tx.Set(accountKey(acct.Identity), string(bs), nil); err != nil {
		return errors.Wrapf(err, "writing account %s", acct.Identity)
	}
	return nil
}

func readCounter(tx *buntdb.Tx) (uint32, error) {
	v, err := tx.Get(counterKey)
	if err == buntdb.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "reading account number")
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "parsing account number %q", v)
	}
	return uint32(n), nil
}

func writeCounter(tx *buntdb.Tx, n uint32) error {
	_, _, err := tx.Set(counterKey, strconv.FormatUint(uint64(n), 10), nil)
	return errors.Wrap(err, "writing account number")
}

// nextAccountNumber increments the stored counter inside tx.
func nextAccountNumber(tx *buntdb.Tx) (uint32, error) {
	n, err := readCounter(tx)
	if err != nil {
		return 0, err
	}
	n++
	if err := writeCounter(tx, n); err != nil {
		return 0, err
	}
	return n, nil
}

type txn struct {
	tx  *buntdb.Tx
	ids []ledger.Identity
}

func (t *txn) check(id ledger.Identity) error {
	if !ledger.ContainsIdentity(t.ids, id) {
		return fmt.Errorf("buntdbstore: identity %s not locked by this update", id)
	}
	return nil
}

func (t *txn) Get(id ledger.Identity) (*ledger.Account, error) {
	if err := t.check(id); err != nil {
		return nil, err
	}
	return getAccount(t.tx, id)
}

func (t *txn) Create(id ledger.Identity) (*ledger.Account, error) {
	if err := t.check(id); err != nil {
		return nil, err
	}
	switch _, err := getAccount(t.tx, id); {
	case err == nil:
		return nil, ledger.ErrAlreadyExists
	case err != ledger.ErrNotFound:
		return nil, err
	}

	n, err := nextAccountNumber(t.tx)
	if err != nil {
		return nil, err
	}
	acct := &ledger.Account{Identity: id, Number: n}
	if err := putAccount(t.tx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}

func (t *txn) Put(acct *ledger.Account) error {
	if err := t.check(acct.Identity); err != nil {
		return err
	}
	if acct.Number == 0 {
		rec := *acct
		switch cur, err := getAccount(t.tx, acct.Identity); {
		case err == nil:
			rec.Number = cur.Number
		case err == ledger.ErrNotFound:
			if rec.Number, err = nextAccountNumber(t.tx); err != nil {
				return err
			}
		default:
			return err
		}
		return putAccount(t.tx, &rec)
	}

	n, err := readCounter(t.tx)
	if err != nil {
		return err
	}
	if acct.Number > n {
		if err := writeCounter(t.tx, acct.Number); err != nil {
			return err
		}
	}
	return putAccount(t.tx, acct)
}
